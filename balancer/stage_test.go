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

package balancer_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bufbuild/httpbind/balancer"
	"github.com/bufbuild/httpbind/chain"
	"github.com/bufbuild/httpbind/internal/clocktest"
	"github.com/bufbuild/httpbind/request"
	"github.com/bufbuild/httpbind/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func capture(seen **request.Descriptor) chain.Handler {
	return transport.PortFunc(func(_ context.Context, req *request.Descriptor) (*transport.Response, error) {
		*seen = req
		return &transport.Response{StatusCode: http.StatusOK}, nil
	})
}

func TestStageRewritesServiceName(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	discovery := balancer.Static{"users": {instance("7", nil)}}
	stage := balancer.NewStage(discovery, nil, balancer.WithLogger(zap.New(core)))

	original := request.New(http.MethodGet, "users", "/users/{id}")
	var seen *request.Descriptor
	_, err := stage.Apply(context.Background(), original, capture(&seen))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.7:8080", seen.Authority())
	assert.Equal(t, "http://10.0.0.7:8080/users/{id}", seen.URL())
	assert.Equal(t, "users", original.Authority())

	entries := logs.FilterMessage("selected instance").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "users", entries[0].ContextMap()["service"])
}

func TestStagePassesThroughLiteralOrigins(t *testing.T) {
	t.Parallel()

	discovery := balancer.DiscoveryFunc(func(context.Context, string) ([]balancer.Instance, error) {
		t.Fatal("discovery must not be consulted for literal origins")
		return nil, nil
	})
	stage := balancer.NewStage(discovery, nil)
	for _, authority := range []string{"http://example.com", "https://example.com:8443", ""} {
		original := request.New(http.MethodGet, authority, "/")
		var seen *request.Descriptor
		_, err := stage.Apply(context.Background(), original, capture(&seen))
		require.NoError(t, err)
		assert.Same(t, original, seen)
	}
}

func TestStageNoInstance(t *testing.T) {
	t.Parallel()

	lookupErr := errors.New("registry down")
	testCases := []struct {
		name      string
		discovery balancer.Discovery
		wantCause error
	}{
		{
			name:      "empty",
			discovery: balancer.Static{},
		},
		{
			name: "all unhealthy",
			discovery: balancer.Static{"users": {
				{ID: "1", Host: "h", Port: 1, Healthy: false},
			}},
		},
		{
			name: "failure",
			discovery: balancer.DiscoveryFunc(func(context.Context, string) ([]balancer.Instance, error) {
				return nil, lookupErr
			}),
			wantCause: lookupErr,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			stage := balancer.NewStage(testCase.discovery, nil)
			next := transport.PortFunc(func(context.Context, *request.Descriptor) (*transport.Response, error) {
				t.Fatal("next must not be called")
				return nil, nil
			})
			_, err := stage.Apply(context.Background(), request.New(http.MethodGet, "users", "/"), next)
			require.ErrorIs(t, err, transport.ErrNoInstanceAvailable)
			var transportErr *transport.Error
			require.ErrorAs(t, err, &transportErr)
			if testCase.wantCause != nil {
				require.ErrorIs(t, err, testCase.wantCause)
			}
		})
	}
}

func TestStageSkipsUnhealthyInstances(t *testing.T) {
	t.Parallel()

	sick := instance("1", nil)
	sick.Healthy = false
	discovery := balancer.Static{"users": {sick, instance("2", nil)}}
	stage := balancer.NewStage(discovery, balancer.NewWeighted(balancer.Config{}))
	for i := 0; i < 10; i++ {
		var seen *request.Descriptor
		_, err := stage.Apply(context.Background(), request.New(http.MethodGet, "users", "/"), capture(&seen))
		require.NoError(t, err)
		assert.Equal(t, "http://10.0.0.2:8080", seen.Authority())
	}

	stage = balancer.NewStage(balancer.Static{"users": {sick}}, nil, balancer.WithUnhealthyFallback())
	var seen *request.Descriptor
	_, err := stage.Apply(context.Background(), request.New(http.MethodGet, "users", "/"), capture(&seen))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8080", seen.Authority())
}

type countingDiscovery struct {
	calls     atomic.Int32
	instances []balancer.Instance
	err       error
}

func (c *countingDiscovery) ListInstances(context.Context, string) ([]balancer.Instance, error) {
	c.calls.Add(1)
	return c.instances, c.err
}

func TestCachingDiscovery(t *testing.T) {
	t.Parallel()

	clock := clocktest.NewFakeClock()
	source := &countingDiscovery{instances: []balancer.Instance{instance("1", nil)}}
	cache := balancer.NewCachingDiscovery(source, time.Minute, nil)
	balancer.SetClock(cache, clock)
	ctx := context.Background()

	got, err := cache.ListInstances(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, source.instances, got)
	_, err = cache.ListInstances(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int32(1), source.calls.Load())

	// Callers cannot corrupt the cached snapshot.
	got[0].Host = "mutated"
	got, err = cache.ListInstances(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", got[0].Host)

	clock.Advance(time.Minute)
	source.instances = []balancer.Instance{instance("2", nil)}
	got, err = cache.ListInstances(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestCachingDiscoveryServesStaleOnError(t *testing.T) {
	t.Parallel()

	clock := clocktest.NewFakeClock()
	core, logs := observer.New(zapcore.WarnLevel)
	source := &countingDiscovery{instances: []balancer.Instance{instance("1", nil)}}
	cache := balancer.NewCachingDiscovery(source, time.Second, zap.New(core))
	balancer.SetClock(cache, clock)
	ctx := context.Background()

	_, err := cache.ListInstances(ctx, "users")
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	source.err = errors.New("registry down")
	got, err := cache.ListInstances(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, 1, logs.FilterMessage("instance refresh failed, serving stale list").Len())

	_, err = cache.ListInstances(ctx, "orders")
	require.EqualError(t, err, "registry down")
}

type blockingDiscovery struct {
	entered   chan context.Context
	release   chan struct{}
	calls     atomic.Int32
	instances []balancer.Instance
}

func (d *blockingDiscovery) ListInstances(ctx context.Context, _ string) ([]balancer.Instance, error) {
	d.calls.Add(1)
	d.entered <- ctx
	select {
	case <-d.release:
		return d.instances, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestStageSharedLookupSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	source := &blockingDiscovery{
		entered:   make(chan context.Context, 2),
		release:   make(chan struct{}),
		instances: []balancer.Instance{instance("1", nil)},
	}
	stage := balancer.NewStage(balancer.NewCachingDiscovery(source, time.Minute, nil), nil)
	req := request.New(http.MethodGet, "users", "/")

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		var seen *request.Descriptor
		_, err := stage.Apply(firstCtx, req, capture(&seen))
		firstErr <- err
	}()
	lookupCtx := <-source.entered

	type outcome struct {
		seen *request.Descriptor
		err  error
	}
	second := make(chan outcome, 1)
	go func() {
		var seen *request.Descriptor
		_, err := stage.Apply(context.Background(), req, capture(&seen))
		second <- outcome{seen: seen, err: err}
	}()

	cancelFirst()
	err := <-firstErr
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, transport.ErrNoInstanceAvailable)
	require.NoError(t, lookupCtx.Err(), "shared lookup must not inherit the first caller's cancellation")

	close(source.release)
	result := <-second
	require.NoError(t, result.err)
	assert.Equal(t, "http://10.0.0.1:8080", result.seen.Authority())
}
