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

import "fmt"

// Common HTTP verbs, for use in an Operation literal.
const (
	GET    = "GET"
	POST   = "POST"
	PUT    = "PUT"
	DELETE = "DELETE"
	PATCH  = "PATCH"
)

// Kind is the role a call argument plays in the request.
type Kind int

const (
	// Body arguments are encoded into the request body. This is the
	// default for arguments with no explicit role.
	Body Kind = iota
	// Path arguments replace a {name} token in the path template.
	Path
	// Query arguments become query-string parameters.
	Query
	// Header arguments become request headers.
	Header
)

func (k Kind) String() string {
	switch k {
	case Body:
		return "body"
	case Path:
		return "path"
	case Query:
		return "query"
	case Header:
		return "header"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ReturnKind describes what a caller expects back from an operation.
type ReturnKind int

const (
	// ReturnVoid discards the response body.
	ReturnVoid ReturnKind = iota
	// ReturnRaw hands back the response envelope itself, undecoded.
	ReturnRaw
	// ReturnTyped decodes the response body into a typed value.
	ReturnTyped
)

func (r ReturnKind) String() string {
	switch r {
	case ReturnVoid:
		return "void"
	case ReturnRaw:
		return "raw"
	case ReturnTyped:
		return "typed"
	default:
		return fmt.Sprintf("ReturnKind(%d)", r)
	}
}

// Binding is the parsed, immutable description of one remote operation.
// A Binding is created once per operation and shared by all calls, so it
// must never be modified after Parse returns it.
type Binding struct {
	// OperationID identifies the operation within its client.
	OperationID string
	// Method is the HTTP verb, always upper case and never empty.
	Method string
	// PathTemplate is the path with {name} placeholders. It may be empty.
	PathTemplate string
	// StaticHeaders are "Name: Value" lines applied to every request.
	StaticHeaders []string
	// Returns is the expected result shape.
	Returns ReturnKind
	// Params lists the role of each positional argument, in order.
	Params []Param
	// Result, if non-nil, allocates a decode target for ReturnTyped.
	Result func() any
}

// Param binds one positional call argument to a part of the request.
type Param struct {
	// Index is the argument's position in the call.
	Index int
	// Kind is the argument's role.
	Kind Kind
	// Name is the path variable, query key, or header name. It is empty
	// for Body parameters.
	Name string
}
