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

package internal

import (
	"hash/maphash"
	"math/rand"
)

// NewRand returns a properly seeded *rand.Rand. The seed is computed using
// the "hash/maphash" package, which can be used concurrently and is
// lock-free, so each caller effectively draws from the runtime's
// per-thread RNG.
//
// The returned value is not thread-safe. It is meant for one-shot work at
// construction time, such as picking a starting offset.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(randomSeed())) //nolint:gosec // don't need cryptographic RNG
}

// RandomOffset returns a random, non-negative starting position for a
// counter. Multiple clients created at the same moment get uncorrelated
// offsets.
func RandomOffset() uint64 {
	return uint64(NewRand().Int63())
}

func randomSeed() int64 {
	var hash maphash.Hash
	return int64(hash.Sum64())
}
