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

// Package resilience provides the circuit-breaking stage of a client chain.
//
// Each request is named by a resource string derived from its authority,
// method, and path template. An [Admitter] decides whether the resource may
// be called at all. When a call is refused, fails at the transport level, or
// receives a non-2xx response, an optional [Fallback] supplies a substitute
// response. A fallback that itself fails degrades to a fixed 503 response,
// so once a fallback is configured the caller always receives a response.
package resilience

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/httpbind/transport"
	"go.uber.org/zap"
)

// ErrBlocked is the admission refusal. Stages wrap it in a
// *transport.Error, so errors.Is(err, ErrBlocked) identifies refused calls.
var ErrBlocked = errors.New("request blocked")

// Admitter decides whether a call to resource may proceed. A nil error
// admits the call. A non-nil error blocks it.
type Admitter interface {
	Admit(resource string) error
}

// AdmitterFunc adapts a function to the Admitter interface.
type AdmitterFunc func(resource string) error

// Admit calls f.
func (f AdmitterFunc) Admit(resource string) error {
	return f(resource)
}

// AllowAll admits every call.
//
//nolint:gochecknoglobals
var AllowAll Admitter = AdmitterFunc(func(string) error { return nil })

// Reporter is implemented by admitters that want to be told how each
// admitted call ended. err is nil on success, a *transport.Error for
// transport failures, or a *transport.RemoteError for non-2xx responses.
type Reporter interface {
	Report(resource string, err error)
}

// Fallback produces a substitute response for a failed call. cause is the
// error that triggered it.
type Fallback interface {
	Fallback(ctx context.Context, cause error) (*transport.Response, error)
}

// FallbackFunc adapts a function to the Fallback interface.
type FallbackFunc func(ctx context.Context, cause error) (*transport.Response, error)

// Fallback calls f.
func (f FallbackFunc) Fallback(ctx context.Context, cause error) (*transport.Response, error) {
	return f(ctx, cause)
}

const defaultFallbackBody = `{"error":"Service temporarily unavailable"}`

// DefaultFallback returns a fallback that logs the cause and answers with a
// 503 and a small JSON error body. A nil logger discards the log.
func DefaultFallback(logger *zap.Logger) Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return FallbackFunc(func(_ context.Context, cause error) (*transport.Response, error) {
		logger.Warn("service degraded", zap.Error(cause))
		header := http.Header{}
		header.Set("Content-Type", "application/json")
		return &transport.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     header,
			Body:       []byte(defaultFallbackBody),
		}, nil
	})
}

func serviceUnavailable() *transport.Response {
	return &transport.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{},
		Body:       []byte{},
	}
}
