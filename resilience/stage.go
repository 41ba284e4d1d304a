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

package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bufbuild/httpbind/chain"
	"github.com/bufbuild/httpbind/request"
	"github.com/bufbuild/httpbind/transport"
	"go.uber.org/zap"
)

// DefaultResourcePrefix is prepended to resource names unless the stage is
// configured otherwise.
const DefaultResourcePrefix = "httpbind"

// StageOption configures a Stage.
type StageOption interface {
	apply(*Stage)
}

// WithResourcePrefix sets the prefix of resource names. An empty prefix
// yields names of the form "{authority}:{method}:{path}".
func WithResourcePrefix(prefix string) StageOption {
	return stageOptionFunc(func(s *Stage) {
		s.prefix = prefix
	})
}

// WithFallback sets the fallback used for refused and failed calls. Without
// one, failures propagate to the caller.
func WithFallback(fallback Fallback) StageOption {
	return stageOptionFunc(func(s *Stage) {
		s.fallback = fallback
	})
}

// WithLogger sets the logger for blocks and fallbacks.
func WithLogger(logger *zap.Logger) StageOption {
	return stageOptionFunc(func(s *Stage) {
		s.logger = logger
	})
}

type stageOptionFunc func(*Stage)

func (f stageOptionFunc) apply(s *Stage) { f(s) }

// Stage guards calls with an Admitter and recovers failures through an
// optional Fallback.
type Stage struct {
	admitter Admitter
	reporter Reporter
	fallback Fallback
	prefix   string
	logger   *zap.Logger
}

var _ chain.Stage = (*Stage)(nil)

// NewStage returns a stage that consults admitter before each call. A nil
// admitter admits everything. If admitter also implements Reporter, it is told
// the outcome of every admitted call.
func NewStage(admitter Admitter, options ...StageOption) *Stage {
	if admitter == nil {
		admitter = AllowAll
	}
	stage := &Stage{admitter: admitter, prefix: DefaultResourcePrefix}
	stage.reporter, _ = admitter.(Reporter)
	for _, opt := range options {
		opt.apply(stage)
	}
	if stage.logger == nil {
		stage.logger = zap.NewNop()
	}
	return stage
}

// ResourceName returns the name under which req is admitted:
// "[prefix:]{authority}:{method}:{path}", where path is the path template.
func ResourceName(prefix string, req *request.Descriptor) string {
	var sb strings.Builder
	if prefix != "" {
		sb.WriteString(prefix)
		sb.WriteByte(':')
	}
	sb.WriteString(req.Authority())
	sb.WriteByte(':')
	sb.WriteString(req.Method())
	sb.WriteByte(':')
	sb.WriteString(req.PathTemplate())
	return sb.String()
}

// errPanicked is reported for calls whose next handler panicked.
var errPanicked = errors.New("next handler panicked")

// Apply implements chain.Stage.
func (s *Stage) Apply(ctx context.Context, req *request.Descriptor, next chain.Handler) (*transport.Response, error) {
	resource := ResourceName(s.prefix, req)
	if err := s.admitter.Admit(resource); err != nil {
		s.logger.Warn("request blocked", zap.String("resource", resource), zap.Error(err))
		if !errors.Is(err, ErrBlocked) {
			err = fmt.Errorf("%w: %w", ErrBlocked, err)
		}
		return s.degrade(ctx, req, resource, &transport.Error{Target: req.Authority(), Err: err})
	}
	resp, err := s.call(ctx, req, next, resource)
	cause := failure(resp, err)
	if cause == nil || s.fallback == nil || !recoverable(cause) {
		return resp, err
	}
	return s.degrade(ctx, req, resource, cause)
}

// call runs next and reports its outcome, including when next panics. A nil
// response without an error is turned into a *transport.Error.
func (s *Stage) call(ctx context.Context, req *request.Descriptor, next chain.Handler, resource string) (*transport.Response, error) {
	completed := false
	if s.reporter != nil {
		defer func() {
			if !completed {
				s.reporter.Report(resource, errPanicked)
			}
		}()
	}
	resp, err := next.Execute(ctx, req)
	if err == nil && resp == nil {
		err = &transport.Error{Target: req.Authority(), Err: transport.ErrNoResponse}
	}
	completed = true
	if s.reporter != nil {
		s.reporter.Report(resource, failure(resp, err))
	}
	return resp, err
}

// failure returns the error a call ended with: err itself, or a
// *transport.RemoteError for a non-2xx response.
func failure(resp *transport.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return transport.NewRemoteError(resp)
	}
	return nil
}

// degrade runs the fallback for cause. Without a fallback, cause is returned
// to the caller.
func (s *Stage) degrade(ctx context.Context, req *request.Descriptor, resource string, cause error) (*transport.Response, error) {
	if s.fallback == nil {
		return nil, cause
	}
	s.logger.Info("executing fallback",
		zap.String("resource", resource),
		zap.String("method", req.Method()),
		zap.String("path", req.PathTemplate()),
		zap.Error(cause))
	resp, err := s.callFallback(ctx, cause)
	if err != nil || resp == nil {
		if err == nil {
			err = errors.New("fallback returned no response")
		}
		s.logger.Error("fallback failed", zap.String("resource", resource), zap.Error(err))
		return serviceUnavailable(), nil
	}
	return resp, nil
}

func (s *Stage) callFallback(ctx context.Context, cause error) (resp *transport.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("fallback panicked: %v", r)
		}
	}()
	return s.fallback.Fallback(ctx, cause)
}

func recoverable(err error) bool {
	var transportErr *transport.Error
	var remoteErr *transport.RemoteError
	return errors.As(err, &transportErr) || errors.As(err, &remoteErr)
}
