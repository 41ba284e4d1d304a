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
	"net/http"

	"go.uber.org/zap"
)

// Binder attaches an inbound transaction to whatever the server uses to
// track it. Bind runs before the handler and may return a derived context.
// Unbind runs after the handler on every exit path, including panics.
type Binder interface {
	Bind(ctx context.Context, tx Transaction) context.Context
	Unbind(ctx context.Context, tx Transaction)
}

// Middleware reads the propagation headers of each request, stores the
// transaction in the request context, and calls next. Requests without an
// XID header are passed through. An unknown branch type is logged and
// dropped; the XID is still bound.
func Middleware(config Config, next http.Handler, opts ...Option) http.Handler {
	config.applyDefaults()
	o := newOptions(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		xid := r.Header.Get(config.XIDHeader)
		if xid == "" {
			next.ServeHTTP(w, r)
			return
		}
		tx := Transaction{ID: xid}
		if raw := r.Header.Get(config.BranchTypeHeader); raw != "" {
			branchType, err := ParseBranchType(raw)
			if err != nil {
				o.logger.Warn("ignoring invalid branch type", zap.String("branch_type", raw))
			} else {
				tx.BranchType = branchType
			}
		}
		ctx := WithTransaction(r.Context(), tx)
		if o.binder != nil {
			ctx = o.binder.Bind(ctx, tx)
			defer o.binder.Unbind(ctx, tx)
		}
		o.logger.Debug("bound transaction", xidField(config, tx.ID))
		defer o.logger.Debug("unbound transaction", xidField(config, tx.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
