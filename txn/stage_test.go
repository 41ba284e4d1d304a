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
	"errors"
	"net/http"
	"testing"

	"github.com/bufbuild/httpbind/request"
	"github.com/bufbuild/httpbind/transport"
	"github.com/bufbuild/httpbind/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func capture(seen **request.Descriptor, status int, err error) transport.Port {
	return transport.PortFunc(func(_ context.Context, req *request.Descriptor) (*transport.Response, error) {
		*seen = req
		if err != nil {
			return nil, err
		}
		return &transport.Response{StatusCode: status}, nil
	})
}

func TestParseBranchType(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"AT", "TCC", "SAGA", "XA"} {
		branchType, err := txn.ParseBranchType(name)
		require.NoError(t, err)
		assert.Equal(t, txn.BranchType(name), branchType)
	}
	_, err := txn.ParseBranchType("at")
	require.ErrorIs(t, err, txn.ErrInvalidBranchType)
	_, err = txn.ParseBranchType("")
	require.ErrorIs(t, err, txn.ErrInvalidBranchType)
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	_, ok := txn.FromContext(context.Background())
	assert.False(t, ok)
	_, ok = txn.FromContext(txn.WithTransaction(context.Background(), txn.Transaction{}))
	assert.False(t, ok)
	tx, ok := txn.FromContext(txn.WithTransaction(context.Background(), txn.Transaction{ID: "xid-1", BranchType: txn.BranchTCC}))
	assert.True(t, ok)
	assert.Equal(t, txn.Transaction{ID: "xid-1", BranchType: txn.BranchTCC}, tx)
}

func TestStageWithoutTransaction(t *testing.T) {
	t.Parallel()

	stage := txn.NewStage(txn.Config{})
	original := request.New(http.MethodPost, "svc", "/api/test")
	var seen *request.Descriptor
	resp, err := stage.Apply(context.Background(), original, capture(&seen, http.StatusOK, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Same(t, original, seen)
	assert.Empty(t, seen.HeaderValue(txn.DefaultXIDHeader))
}

func TestStageInjectsHeaders(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		config     txn.Config
		tx         txn.Transaction
		xidHeader  string
		typeHeader string
	}{
		{
			name:       "xid only",
			tx:         txn.Transaction{ID: "xid-1"},
			xidHeader:  "TX_XID",
			typeHeader: "TX_BRANCH_TYPE",
		},
		{
			name:       "with branch type",
			tx:         txn.Transaction{ID: "xid-2", BranchType: txn.BranchAT},
			xidHeader:  "TX_XID",
			typeHeader: "TX_BRANCH_TYPE",
		},
		{
			name:       "custom header names",
			config:     txn.Config{XIDHeader: "CUSTOM_XID", BranchTypeHeader: "CUSTOM_BRANCH_TYPE"},
			tx:         txn.Transaction{ID: "xid-3", BranchType: txn.BranchSAGA},
			xidHeader:  "CUSTOM_XID",
			typeHeader: "CUSTOM_BRANCH_TYPE",
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			stage := txn.NewStage(testCase.config)
			original := request.New(http.MethodPost, "svc", "/api/test")
			ctx := txn.WithTransaction(context.Background(), testCase.tx)
			var seen *request.Descriptor
			_, err := stage.Apply(ctx, original, capture(&seen, http.StatusOK, nil))
			require.NoError(t, err)
			assert.Equal(t, testCase.tx.ID, seen.HeaderValue(testCase.xidHeader))
			assert.Equal(t, string(testCase.tx.BranchType), seen.HeaderValue(testCase.typeHeader))
			assert.Empty(t, original.HeaderValue(testCase.xidHeader), "original descriptor is untouched")
		})
	}
}

func TestStageCustomSource(t *testing.T) {
	t.Parallel()

	source := txn.SourceFunc(func(context.Context) (txn.Transaction, bool) {
		return txn.Transaction{ID: "from-source"}, true
	})
	stage := txn.NewStage(txn.Config{}, txn.WithSource(source))
	var seen *request.Descriptor
	_, err := stage.Apply(context.Background(), request.New(http.MethodGet, "svc", "/"), capture(&seen, http.StatusOK, nil))
	require.NoError(t, err)
	assert.Equal(t, "from-source", seen.HeaderValue(txn.DefaultXIDHeader))
}

func TestStageLogging(t *testing.T) {
	t.Parallel()

	ctx := txn.WithTransaction(context.Background(), txn.Transaction{ID: "secret-xid"})
	req := request.New(http.MethodPost, "svc", "/")

	core, logs := observer.New(zapcore.DebugLevel)
	stage := txn.NewStage(txn.Config{}, txn.WithLogger(zap.New(core)))
	_, err := stage.Apply(ctx, req, capture(new(*request.Descriptor), http.StatusOK, nil))
	require.NoError(t, err)
	entries := logs.FilterMessage("propagating transaction").All()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap(), "xid")

	core, logs = observer.New(zapcore.DebugLevel)
	stage = txn.NewStage(txn.Config{LogXID: true}, txn.WithLogger(zap.New(core)))
	resp, err := stage.Apply(ctx, req, capture(new(*request.Descriptor), http.StatusServiceUnavailable, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	entries = logs.FilterMessage("transaction request returned server error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "secret-xid", entries[0].ContextMap()["xid"])
}

func TestStagePropagatesErrors(t *testing.T) {
	t.Parallel()

	ioErr := &transport.Error{Err: errors.New("network error")}
	ctx := txn.WithTransaction(context.Background(), txn.Transaction{ID: "xid"})
	var seen *request.Descriptor
	_, err := txn.NewStage(txn.Config{}).Apply(ctx, request.New(http.MethodPost, "svc", "/"), capture(&seen, 0, ioErr))
	assert.Same(t, ioErr, err)
	assert.Equal(t, "xid", seen.HeaderValue(txn.DefaultXIDHeader))
}

func TestStageNilResponse(t *testing.T) {
	t.Parallel()

	empty := transport.PortFunc(func(context.Context, *request.Descriptor) (*transport.Response, error) {
		return nil, nil //nolint:nilnil
	})
	ctx := txn.WithTransaction(context.Background(), txn.Transaction{ID: "xid"})
	resp, err := txn.NewStage(txn.Config{}).Apply(ctx, request.New(http.MethodGet, "svc", "/"), empty)
	require.NoError(t, err)
	assert.Nil(t, resp)
}
