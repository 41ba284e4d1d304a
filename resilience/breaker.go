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
	"errors"
	"sync"
	"time"

	"github.com/bufbuild/httpbind/internal"
	"github.com/bufbuild/httpbind/transport"
)

const (
	defaultFailureThreshold = 5
	defaultOpenDuration     = 10 * time.Second
)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker for a resource. Defaults to 5.
	FailureThreshold int
	// OpenDuration is how long an open breaker refuses calls before letting
	// a single probe through. Defaults to 10s.
	OpenDuration time.Duration
}

func (c *BreakerConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = defaultOpenDuration
	}
}

// Breaker is a per-resource consecutive-failure circuit breaker. Transport
// failures and 5xx responses count as failures. Other responses reset the
// count.
//
// After OpenDuration an open breaker admits one probe. The probe's outcome
// either closes the breaker or opens it again.
type Breaker struct {
	config BreakerConfig
	clock  internal.Clock

	mu sync.Mutex
	// +checklocks:mu
	states map[string]*breakerState
}

type breakerState struct {
	failures  int
	openUntil time.Time
	probing   bool
}

var (
	_ Admitter = (*Breaker)(nil)
	_ Reporter = (*Breaker)(nil)
)

// NewBreaker returns a breaker with every resource closed.
func NewBreaker(config BreakerConfig) *Breaker {
	config.applyDefaults()
	return &Breaker{
		config: config,
		clock:  internal.NewRealClock(),
		states: map[string]*breakerState{},
	}
}

// Admit returns ErrBlocked while the breaker for resource is open.
func (b *Breaker) Admit(resource string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.states[resource]
	if !ok || state.openUntil.IsZero() {
		return nil
	}
	if b.clock.Now().Before(state.openUntil) || state.probing {
		return ErrBlocked
	}
	state.probing = true
	return nil
}

// Report records the outcome of an admitted call.
func (b *Breaker) Report(resource string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !isFailure(err) {
		delete(b.states, resource)
		return
	}
	state, ok := b.states[resource]
	if !ok {
		state = &breakerState{}
		b.states[resource] = state
	}
	state.failures++
	if state.probing || state.failures >= b.config.FailureThreshold {
		state.failures = 0
		state.probing = false
		state.openUntil = b.clock.Now().Add(b.config.OpenDuration)
	}
}

func isFailure(err error) bool {
	if err == nil {
		return false
	}
	var remoteErr *transport.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode >= 500
	}
	return true
}
