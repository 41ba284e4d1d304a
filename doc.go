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

// Package httpbind turns declarative operation descriptions into HTTP
// calls.
//
// Each remote call is described once as a [binding.Operation]: an HTTP
// verb, a path template, and the role of each positional argument. A
// [Client] built from a set of operations can then invoke any of them by
// ID. The client parses an operation the first time it is invoked, builds
// the request, runs it through a chain of stages, and translates the
// response.
//
//	client, err := httpbind.NewClient("user-service", []binding.Operation{{
//	    ID:      "getUser",
//	    Method:  binding.GET,
//	    Path:    "/users/{id}",
//	    Args:    []binding.ArgSpec{binding.PathArg("id")},
//	    Returns: binding.ReturnTyped,
//	}}, httpbind.WithDiscovery(registry, balancer.DefaultConfig()))
//	...
//	user, err := httpbind.Call[User](ctx, client, "getUser", 42)
//
// # Stages
//
// The chain is assembled when the client is built. From outermost to
// innermost it holds:
//
//  1. Load balancing, enabled by [WithDiscovery]. Logical service names are
//     resolved to an instance and rewritten to that instance's origin.
//     Authorities that already carry a URL scheme are left alone.
//  2. Resilience, enabled by [WithResilience]. Calls are admitted or refused
//     per resource, and failures may be answered by a fallback.
//  3. Transaction propagation, enabled by [WithTransactionPropagation]. The
//     ambient transaction of the context is copied into request headers.
//  4. Any stages given to [WithStages], in order.
//
// The innermost handler is the transport, by default a [transport.HTTP].
//
// # Errors
//
// Failures are reported with the following types:
//   - [*binding.Error]: the operation description is invalid. The failure is
//     cached, so later invocations fail the same way without re-parsing.
//   - [*transport.Error]: I/O failures, refused calls, and
//     [transport.ErrNoInstanceAvailable].
//   - [*transport.RemoteError]: a non-2xx response.
//   - [*codec.DecodeError]: a 2xx response whose body could not be decoded.
package httpbind
