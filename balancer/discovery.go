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
	"slices"
	"sync"
	"time"

	"github.com/bufbuild/httpbind/internal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Discovery lists the instances registered for a service. An empty result
// and an error are both treated as "no instance" by Stage.
type Discovery interface {
	ListInstances(ctx context.Context, service string) ([]Instance, error)
}

// DiscoveryFunc adapts a function to the Discovery interface.
type DiscoveryFunc func(ctx context.Context, service string) ([]Instance, error)

// ListInstances calls f.
func (f DiscoveryFunc) ListInstances(ctx context.Context, service string) ([]Instance, error) {
	return f(ctx, service)
}

// Static is a fixed service-to-instances table.
type Static map[string][]Instance

// ListInstances returns a copy of the instances registered for service.
func (s Static) ListInstances(_ context.Context, service string) ([]Instance, error) {
	return slices.Clone(s[service]), nil
}

// CachingDiscovery wraps another Discovery and caches each service's
// instance list for a fixed TTL. Concurrent refreshes of the same service
// are coalesced into one call. When a refresh fails and a previous list
// exists, the stale list keeps being served until a refresh succeeds.
type CachingDiscovery struct {
	source Discovery
	ttl    time.Duration
	clock  internal.Clock
	logger *zap.Logger
	group  singleflight.Group

	mu sync.Mutex
	// +checklocks:mu
	entries map[string]cacheEntry
}

type cacheEntry struct {
	instances []Instance
	expiry    time.Time
}

var _ Discovery = (*CachingDiscovery)(nil)

// NewCachingDiscovery returns a Discovery that caches results of source for
// ttl. A nil logger disables logging.
func NewCachingDiscovery(source Discovery, ttl time.Duration, logger *zap.Logger) *CachingDiscovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingDiscovery{
		source:  source,
		ttl:     ttl,
		clock:   internal.NewRealClock(),
		logger:  logger,
		entries: map[string]cacheEntry{},
	}
}

// ListInstances returns the cached instances for service, refreshing them
// from the underlying Discovery once they have expired. Concurrent callers
// share one refresh. A caller whose ctx is done stops waiting without
// cancelling the refresh for the others.
func (c *CachingDiscovery) ListInstances(ctx context.Context, service string) ([]Instance, error) {
	if instances, ok := c.fresh(service); ok {
		return instances, nil
	}
	// The shared lookup outlives any single caller's cancellation.
	lookupCtx := context.WithoutCancel(ctx)
	results := c.group.DoChan(service, func() (any, error) {
		if instances, ok := c.fresh(service); ok {
			return instances, nil
		}
		instances, err := c.source.ListInstances(lookupCtx, service)
		if err != nil {
			if stale, ok := c.stale(service); ok {
				c.logger.Warn("instance refresh failed, serving stale list",
					zap.String("service", service), zap.Error(err))
				return stale, nil
			}
			return nil, err
		}
		c.mu.Lock()
		c.entries[service] = cacheEntry{
			instances: slices.Clone(instances),
			expiry:    c.clock.Now().Add(c.ttl),
		}
		c.mu.Unlock()
		return instances, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		return slices.Clone(result.Val.([]Instance)), nil //nolint:forcetypeassert
	}
}

func (c *CachingDiscovery) fresh(service string) ([]Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[service]
	if !ok || !c.clock.Now().Before(entry.expiry) {
		return nil, false
	}
	return slices.Clone(entry.instances), true
}

func (c *CachingDiscovery) stale(service string) ([]Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[service]
	if !ok {
		return nil, false
	}
	return slices.Clone(entry.instances), true
}
