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

// Package txn propagates distributed-transaction context across HTTP calls.
//
// On the client side, [NewStage] copies the ambient [Transaction] from the
// request context into headers. On the server side, [Middleware] reads those
// headers back into the request context, optionally handing the transaction
// to a [Binder] for the lifetime of the request. The package carries the
// transaction identity only. It does not coordinate commits or rollbacks.
package txn

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// BranchType is the transaction mode of a branch.
type BranchType string

const (
	BranchAT   BranchType = "AT"
	BranchTCC  BranchType = "TCC"
	BranchSAGA BranchType = "SAGA"
	BranchXA   BranchType = "XA"
)

// ErrInvalidBranchType is returned by ParseBranchType for unknown names.
var ErrInvalidBranchType = errors.New("invalid branch type")

// ParseBranchType returns the BranchType named by s. Names are case
// sensitive.
func ParseBranchType(s string) (BranchType, error) {
	switch branchType := BranchType(s); branchType {
	case BranchAT, BranchTCC, BranchSAGA, BranchXA:
		return branchType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBranchType, s)
	}
}

// Transaction identifies the global transaction a call belongs to.
type Transaction struct {
	// ID is the global transaction identifier (XID).
	ID string
	// BranchType is optional.
	BranchType BranchType
}

type contextKey struct{}

// WithTransaction returns a copy of ctx carrying tx.
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, contextKey{}, tx)
}

// FromContext returns the transaction carried by ctx. It reports false when
// there is none or its ID is empty.
func FromContext(ctx context.Context) (Transaction, bool) {
	tx, ok := ctx.Value(contextKey{}).(Transaction)
	if !ok || tx.ID == "" {
		return Transaction{}, false
	}
	return tx, true
}

// Source yields the ambient transaction of a call.
type Source interface {
	Current(ctx context.Context) (Transaction, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (Transaction, bool)

// Current calls f.
func (f SourceFunc) Current(ctx context.Context) (Transaction, bool) {
	return f(ctx)
}

// ContextSource reads the transaction stored by WithTransaction.
//
//nolint:gochecknoglobals
var ContextSource Source = SourceFunc(FromContext)

const (
	DefaultXIDHeader        = "TX_XID"
	DefaultBranchTypeHeader = "TX_BRANCH_TYPE"
)

// Config names the propagation headers.
type Config struct {
	// XIDHeader carries the transaction ID. Defaults to "TX_XID".
	XIDHeader string
	// BranchTypeHeader carries the branch type. Defaults to
	// "TX_BRANCH_TYPE".
	BranchTypeHeader string
	// LogXID includes transaction IDs in log entries.
	LogXID bool
}

func (c *Config) applyDefaults() {
	if c.XIDHeader == "" {
		c.XIDHeader = DefaultXIDHeader
	}
	if c.BranchTypeHeader == "" {
		c.BranchTypeHeader = DefaultBranchTypeHeader
	}
}

// Option configures a Stage or a Middleware.
type Option interface {
	apply(*options)
}

// WithSource sets where the stage finds the ambient transaction. The
// default is ContextSource. Middleware ignores it.
func WithSource(source Source) Option {
	return optionFunc(func(o *options) {
		o.source = source
	})
}

// WithBinder registers hooks run around each inbound request that carries
// a transaction. The stage ignores it.
func WithBinder(binder Binder) Option {
	return optionFunc(func(o *options) {
		o.binder = binder
	})
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = logger
	})
}

type options struct {
	source Source
	binder Binder
	logger *zap.Logger
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt.apply(o)
	}
	if o.source == nil {
		o.source = ContextSource
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

func xidField(config Config, xid string) zap.Field {
	if !config.LogXID {
		return zap.Skip()
	}
	return zap.String("xid", xid)
}
