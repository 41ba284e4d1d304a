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

package balancer

import (
	"context"
	"fmt"

	"github.com/bufbuild/httpbind/chain"
	"github.com/bufbuild/httpbind/request"
	"github.com/bufbuild/httpbind/transport"
	"go.uber.org/zap"
)

// StageOption is an option used to customize the load-balancing stage.
type StageOption interface {
	apply(*Stage)
}

// WithLogger configures the logger used to report instance selection.
func WithLogger(logger *zap.Logger) StageOption {
	return stageOptionFunc(func(s *Stage) {
		s.logger = logger
	})
}

// WithUnhealthyFallback lets the stage select from unhealthy instances when
// a service has no healthy instance at all. By default unhealthy instances
// are never selected.
func WithUnhealthyFallback() StageOption {
	return stageOptionFunc(func(s *Stage) {
		s.allowUnhealthy = true
	})
}

type stageOptionFunc func(*Stage)

func (f stageOptionFunc) apply(s *Stage) { f(s) }

// Stage is the load-balancing chain.Stage. It resolves a logical service
// name in the request authority to one instance and rewrites the request
// to that instance's origin.
type Stage struct {
	discovery      Discovery
	picker         Picker
	allowUnhealthy bool
	logger         *zap.Logger
}

var _ chain.Stage = (*Stage)(nil)

// NewStage returns a load-balancing stage. A nil picker uses
// NewWeighted(DefaultConfig()).
func NewStage(discovery Discovery, picker Picker, options ...StageOption) *Stage {
	if picker == nil {
		picker = NewWeighted(DefaultConfig())
	}
	stage := &Stage{discovery: discovery, picker: picker}
	for _, opt := range options {
		opt.apply(stage)
	}
	if stage.logger == nil {
		stage.logger = zap.NewNop()
	}
	return stage
}

// Apply implements chain.Stage.
func (s *Stage) Apply(ctx context.Context, req *request.Descriptor, next chain.Handler) (*transport.Response, error) {
	service := req.Authority()
	if service == "" || req.IsOrigin() {
		return next.Execute(ctx, req)
	}
	instances, err := s.discovery.ListInstances(ctx, service)
	if err != nil {
		s.logger.Warn("instance discovery failed", zap.String("service", service), zap.Error(err))
		return nil, &transport.Error{
			Target: service,
			Err:    fmt.Errorf("%w: %w", transport.ErrNoInstanceAvailable, err),
		}
	}
	instance, err := s.picker.Pick(service, s.candidates(instances))
	if err != nil {
		s.logger.Warn("no instance available", zap.String("service", service))
		return nil, err
	}
	origin := instance.Origin()
	s.logger.Debug("selected instance",
		zap.String("service", service),
		zap.String("instance", instance.ID),
		zap.String("origin", origin))
	return next.Execute(ctx, req.WithAuthority(origin))
}

func (s *Stage) candidates(instances []Instance) []Instance {
	healthy := make([]Instance, 0, len(instances))
	for _, instance := range instances {
		if instance.Healthy {
			healthy = append(healthy, instance)
		}
	}
	if len(healthy) == 0 && s.allowUnhealthy {
		return instances
	}
	return healthy
}
