// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package chain composes middleware stages around a transport.Port.
//
// A [Stage] receives each request together with the remainder of the chain
// and decides what to do with it: pass it on, derive a new request and pass
// that on, or short-circuit with a synthesized response. Stages treat the
// request they receive as read-only. Any change (a resolved authority, an
// injected header) is made on a copy obtained from the request's With
// methods, because the same descriptor may be seen more than once under
// retry or fallback.
//
// Stages must not hold locks while calling next, since next may block on
// network I/O for as long as the transport allows.
package chain

import (
	"context"

	"github.com/bufbuild/httpbind/request"
	"github.com/bufbuild/httpbind/transport"
)

// Handler is the remainder of a chain. It has the same shape as
// transport.Port, so any Port is also a Handler.
type Handler interface {
	Execute(ctx context.Context, req *request.Descriptor) (*transport.Response, error)
}

// Stage is one middleware step.
type Stage interface {
	Apply(ctx context.Context, req *request.Descriptor, next Handler) (*transport.Response, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(ctx context.Context, req *request.Descriptor, next Handler) (*transport.Response, error)

// Apply calls f.
func (f StageFunc) Apply(ctx context.Context, req *request.Descriptor, next Handler) (*transport.Response, error) {
	return f(ctx, req, next)
}

// Compose builds a single Handler from port and stages. The first stage is
// the outermost: it sees each request first and each response last. Nil
// stages are skipped.
func Compose(port transport.Port, stages ...Stage) Handler {
	var handler Handler = port
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i] == nil {
			continue
		}
		handler = &link{stage: stages[i], next: handler}
	}
	return handler
}

type link struct {
	stage Stage
	next  Handler
}

func (l *link) Execute(ctx context.Context, req *request.Descriptor) (*transport.Response, error) {
	return l.stage.Apply(ctx, req, l.next)
}
