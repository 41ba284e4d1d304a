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

package txn

import (
	"context"

	"github.com/bufbuild/httpbind/chain"
	"github.com/bufbuild/httpbind/request"
	"github.com/bufbuild/httpbind/transport"
	"go.uber.org/zap"
)

// Stage injects the ambient transaction into outgoing request headers.
// Calls without a transaction pass through untouched.
type Stage struct {
	config Config
	source Source
	logger *zap.Logger
}

var _ chain.Stage = (*Stage)(nil)

// NewStage returns a propagation stage. Empty header names in config take
// their defaults.
func NewStage(config Config, opts ...Option) *Stage {
	config.applyDefaults()
	o := newOptions(opts)
	return &Stage{config: config, source: o.source, logger: o.logger}
}

// Apply implements chain.Stage.
func (s *Stage) Apply(ctx context.Context, req *request.Descriptor, next chain.Handler) (*transport.Response, error) {
	tx, ok := s.source.Current(ctx)
	if !ok {
		return next.Execute(ctx, req)
	}
	req = req.WithHeader(s.config.XIDHeader, tx.ID)
	if tx.BranchType != "" {
		req = req.WithHeader(s.config.BranchTypeHeader, string(tx.BranchType))
	}
	s.logger.Debug("propagating transaction",
		xidField(s.config, tx.ID),
		zap.String("branch_type", string(tx.BranchType)))
	resp, err := next.Execute(ctx, req)
	if err != nil {
		s.logger.Error("transaction request failed", xidField(s.config, tx.ID), zap.Error(err))
		return nil, err
	}
	if resp != nil && resp.StatusCode >= 500 {
		s.logger.Warn("transaction request returned server error",
			xidField(s.config, tx.ID),
			zap.Int("status", resp.StatusCode))
	}
	return resp, nil
}
