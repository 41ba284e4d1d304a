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
	"math/rand/v2"
	"sync/atomic"

	"github.com/bufbuild/httpbind/internal"
	"github.com/bufbuild/httpbind/transport"
)

// Picker selects one instance of service from candidates. Candidates is a
// snapshot owned by the caller and must not be modified.
type Picker interface {
	Pick(service string, candidates []Instance) (Instance, error)
}

// Config controls how Weighted selects instances.
type Config struct {
	// WeightEnabled selects instances in proportion to their weight
	// metadata. When false, instances are selected round robin.
	WeightEnabled bool
	// SameClusterPriority restricts selection to instances whose cluster
	// matches Cluster, when any such instance exists.
	SameClusterPriority bool
	// Cluster is the caller's own cluster label.
	Cluster string
}

// DefaultConfig enables both weighting and same-cluster priority.
func DefaultConfig() Config {
	return Config{WeightEnabled: true, SameClusterPriority: true}
}

// Weighted is a Picker that honors cluster locality and instance weights.
// It is safe for concurrent use.
type Weighted struct {
	config  Config
	// +checkatomic
	counter atomic.Uint64
	random  func() float64
}

var _ Picker = (*Weighted)(nil)

// NewWeighted returns a picker using config. The round-robin position starts
// at a random offset so that clients started together do not all send their
// first requests to the same instance.
func NewWeighted(config Config) *Weighted {
	picker := &Weighted{
		config: config,
		random: rand.Float64, //nolint:gosec // does not need to be cryptographically secure
	}
	picker.counter.Store(internal.RandomOffset())
	return picker
}

// Pick selects one of candidates:
//
//  1. With same-cluster priority and a non-empty caller cluster, only
//     instances in that cluster are considered, unless there are none.
//  2. With weighting, one uniform draw in [0, total) is located in the
//     cumulative weights of the positive-weight instances.
//  3. Otherwise, or when no weight is positive, instances are taken in
//     round-robin order.
func (w *Weighted) Pick(service string, candidates []Instance) (Instance, error) {
	if len(candidates) == 0 {
		return Instance{}, &transport.Error{Target: service, Err: transport.ErrNoInstanceAvailable}
	}
	eligible := w.sameCluster(candidates)
	if w.config.WeightEnabled {
		if instance, ok := w.pickWeighted(eligible); ok {
			return instance, nil
		}
	}
	return w.pickRoundRobin(eligible), nil
}

func (w *Weighted) sameCluster(candidates []Instance) []Instance {
	if !w.config.SameClusterPriority || w.config.Cluster == "" {
		return candidates
	}
	var local []Instance
	for _, instance := range candidates {
		if instance.Cluster() == w.config.Cluster {
			local = append(local, instance)
		}
	}
	if len(local) == 0 {
		return candidates
	}
	return local
}

func (w *Weighted) pickWeighted(candidates []Instance) (Instance, bool) {
	var total float64
	for _, instance := range candidates {
		if weight := instance.Weight(); weight > 0 {
			total += weight
		}
	}
	if total <= 0 {
		return Instance{}, false
	}
	target := w.random() * total
	var cumulative float64
	var last Instance
	for _, instance := range candidates {
		weight := instance.Weight()
		if weight <= 0 {
			continue
		}
		cumulative += weight
		last = instance
		if cumulative >= target {
			return instance, true
		}
	}
	// Only reachable through floating point rounding.
	return last, true
}

func (w *Weighted) pickRoundRobin(candidates []Instance) Instance {
	return candidates[w.counter.Add(1)%uint64(len(candidates))]
}
