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

package txn_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bufbuild/httpbind/chain"
	"github.com/bufbuild/httpbind/request"
	"github.com/bufbuild/httpbind/transport"
	"github.com/bufbuild/httpbind/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type bindKey struct{}

type recordingBinder struct {
	mu      sync.Mutex
	bound   []txn.Transaction
	unbound []txn.Transaction
}

func (b *recordingBinder) Bind(ctx context.Context, tx txn.Transaction) context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bound = append(b.bound, tx)
	return context.WithValue(ctx, bindKey{}, tx.ID)
}

func (b *recordingBinder) Unbind(_ context.Context, tx txn.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbound = append(b.unbound, tx)
}

func TestMiddlewareBindsTransaction(t *testing.T) {
	t.Parallel()

	binder := &recordingBinder{}
	var got txn.Transaction
	var gotOK bool
	var bindValue any
	handler := txn.Middleware(txn.Config{}, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, gotOK = txn.FromContext(r.Context())
		bindValue = r.Context().Value(bindKey{})
	}), txn.WithBinder(binder))

	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	req.Header.Set("TX_XID", "xid-1")
	req.Header.Set("TX_BRANCH_TYPE", "XA")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, gotOK)
	assert.Equal(t, txn.Transaction{ID: "xid-1", BranchType: txn.BranchXA}, got)
	assert.Equal(t, "xid-1", bindValue)
	assert.Equal(t, []txn.Transaction{got}, binder.bound)
	assert.Equal(t, []txn.Transaction{got}, binder.unbound)
}

func TestMiddlewareWithoutTransaction(t *testing.T) {
	t.Parallel()

	binder := &recordingBinder{}
	var gotOK bool
	handler := txn.Middleware(txn.Config{}, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, gotOK = txn.FromContext(r.Context())
	}), txn.WithBinder(binder))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, gotOK)
	assert.Empty(t, binder.bound)
	assert.Empty(t, binder.unbound)
}

func TestMiddlewareInvalidBranchType(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	var got txn.Transaction
	handler := txn.Middleware(txn.Config{}, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = txn.FromContext(r.Context())
	}), txn.WithLogger(zap.New(core)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("TX_XID", "xid-1")
	req.Header.Set("TX_BRANCH_TYPE", "BOGUS")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, txn.Transaction{ID: "xid-1"}, got)
	entries := logs.FilterMessage("ignoring invalid branch type").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "BOGUS", entries[0].ContextMap()["branch_type"])
}

func TestMiddlewareUnbindsOnPanic(t *testing.T) {
	t.Parallel()

	binder := &recordingBinder{}
	handler := txn.Middleware(txn.Config{}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler failed")
	}), txn.WithBinder(binder))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("TX_XID", "xid-1")
	assert.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	})
	assert.Len(t, binder.bound, 1)
	assert.Len(t, binder.unbound, 1)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	config := txn.Config{XIDHeader: "X-Global-Tx", BranchTypeHeader: "X-Branch"}
	server := httptest.NewServer(txn.Middleware(config, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tx, ok := txn.FromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		_, _ = w.Write([]byte(tx.ID + "/" + string(tx.BranchType)))
	})))
	t.Cleanup(server.Close)

	httpTransport := transport.NewHTTP()
	t.Cleanup(httpTransport.Close)
	handler := chain.Compose(httpTransport, txn.NewStage(config))
	ctx := txn.WithTransaction(context.Background(), txn.Transaction{ID: "xid-42", BranchType: txn.BranchTCC})
	resp, err := handler.Execute(ctx, request.New(http.MethodGet, server.URL, "/work"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "xid-42/TCC", string(resp.Body))
}
