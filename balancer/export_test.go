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
	"net/netip"

	"github.com/bufbuild/httpbind/internal"
)

func SetRandom(w *Weighted, random func() float64) {
	w.random = random
}

func SetCounter(w *Weighted, value uint64) {
	w.counter.Store(value)
}

func SetClock(c *CachingDiscovery, clock internal.Clock) {
	c.clock = clock
}

func FilterFamily(addresses []netip.Addr, affinity AddressFamilyAffinity) []netip.Addr {
	return filterFamily(addresses, affinity)
}
