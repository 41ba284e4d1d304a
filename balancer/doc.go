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

// Package balancer resolves logical service names to physical instances.
//
// A [Discovery] lists the instances currently registered for a service, a
// [Picker] selects one of them, and [Stage] is the chain.Stage that glues
// the two together: requests addressed to a service name are rewritten to
// the selected instance's origin before they reach the transport. Requests
// addressed to a literal origin (such as "http://10.0.0.1:8080") pass
// through untouched.
//
// [Weighted] is the default picker. It prefers instances in the caller's
// own cluster, then selects by weight, falling back to round robin when
// weighting is disabled or every weight is non-positive.
package balancer
