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

// Package binding describes remote operations and parses those
// descriptions into Bindings.
//
// An [Operation] is the declarative surface: a struct literal naming the
// HTTP verb, the path template, any static headers, and the role of each
// positional argument. [Parse] validates an Operation and produces a
// [Binding], which is the immutable metadata the client caches and uses to
// assemble requests.
//
//	op := binding.Operation{
//		ID:      "GetUser",
//		Method:  binding.GET,
//		Path:    "/users/{id}",
//		Args:    []binding.ArgSpec{binding.PathArg("id")},
//		Returns: binding.ReturnTyped,
//	}
package binding
