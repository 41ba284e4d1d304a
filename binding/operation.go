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

package binding

// Operation is the declarative description of a single remote call. It is
// the only input the client needs to produce a Binding; nothing is
// discovered by scanning or reflection.
type Operation struct {
	// ID uniquely identifies the operation within a client.
	ID string
	// Method is the HTTP verb. Exactly one verb is required.
	Method string
	// Path is the path template, for example "/users/{id}".
	Path string
	// Headers are static "Name: Value" header lines.
	Headers []string
	// Args describes each positional argument, in call order.
	Args []ArgSpec
	// Returns is the expected result shape.
	Returns ReturnKind
	// Result optionally allocates the decode target (usually a pointer)
	// for ReturnTyped results of untyped invocations.
	Result func() any
}

// ArgSpec is the declared role of one argument. More than one role may be
// set; Parse resolves the conflict in a fixed order (see Parse). A zero
// ArgSpec declares a Body argument.
type ArgSpec struct {
	PathVar     string
	QueryParam  string
	RequestBody bool
	HeaderName  string
}

// PathArg declares an argument bound to the {name} path token.
func PathArg(name string) ArgSpec { return ArgSpec{PathVar: name} }

// QueryArg declares an argument bound to the name query parameter.
func QueryArg(name string) ArgSpec { return ArgSpec{QueryParam: name} }

// HeaderArg declares an argument bound to the name request header.
func HeaderArg(name string) ArgSpec { return ArgSpec{HeaderName: name} }

// BodyArg declares an argument that is encoded as the request body.
func BodyArg() ArgSpec { return ArgSpec{RequestBody: true} }
