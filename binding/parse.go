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

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoMethod is returned (wrapped in an *Error) when an operation declares
// no HTTP verb.
var ErrNoMethod = errors.New("operation must declare an HTTP method")

// ErrPathMismatch is returned (wrapped in an *Error) by strict parsing when
// path tokens and path parameters disagree.
var ErrPathMismatch = errors.New("path template and path parameters do not match")

var pathToken = regexp.MustCompile(`\{([^{}]+)\}`)

// Error reports a malformed or incomplete operation description.
type Error struct {
	OperationID string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("binding %q: %v", e.OperationID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ParseOption customizes Parse.
type ParseOption interface {
	apply(*parseOptions)
}

// WithStrictPaths makes Parse reject operations whose path template tokens
// and PATH parameters do not correspond one to one. Without it, unmatched
// tokens are left verbatim in the path and unmatched variables are ignored
// when the request is built.
func WithStrictPaths() ParseOption {
	return parseOptionFunc(func(opts *parseOptions) {
		opts.strictPaths = true
	})
}

type parseOptionFunc func(*parseOptions)

func (f parseOptionFunc) apply(opts *parseOptions) { f(opts) }

type parseOptions struct {
	strictPaths bool
}

// Parse validates op and returns its Binding. It performs no I/O and is
// deterministic: equal operations yield equal Bindings.
//
// Each argument is classified by the first role that is set, in the order
// PATH, QUERY, explicit BODY, HEADER. An argument with no role is BODY.
func Parse(op Operation, options ...ParseOption) (*Binding, error) {
	var opts parseOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	method := strings.ToUpper(strings.TrimSpace(op.Method))
	if method == "" {
		return nil, &Error{OperationID: op.ID, Err: ErrNoMethod}
	}
	params := make([]Param, len(op.Args))
	for i, arg := range op.Args {
		params[i] = classify(i, arg)
	}
	if opts.strictPaths {
		if err := checkPath(op.Path, params); err != nil {
			return nil, &Error{OperationID: op.ID, Err: err}
		}
	}
	var headers []string
	if len(op.Headers) > 0 {
		headers = make([]string, len(op.Headers))
		copy(headers, op.Headers)
	}
	return &Binding{
		OperationID:   op.ID,
		Method:        method,
		PathTemplate:  op.Path,
		StaticHeaders: headers,
		Returns:       op.Returns,
		Params:        params,
		Result:        op.Result,
	}, nil
}

func classify(index int, arg ArgSpec) Param {
	switch {
	case arg.PathVar != "":
		return Param{Index: index, Kind: Path, Name: arg.PathVar}
	case arg.QueryParam != "":
		return Param{Index: index, Kind: Query, Name: arg.QueryParam}
	case arg.RequestBody:
		return Param{Index: index, Kind: Body}
	case arg.HeaderName != "":
		return Param{Index: index, Kind: Header, Name: arg.HeaderName}
	default:
		return Param{Index: index, Kind: Body}
	}
}

func checkPath(template string, params []Param) error {
	tokens := map[string]bool{}
	for _, match := range pathToken.FindAllStringSubmatch(template, -1) {
		tokens[match[1]] = false
	}
	for _, param := range params {
		if param.Kind != Path {
			continue
		}
		if _, ok := tokens[param.Name]; !ok {
			return fmt.Errorf("%w: no {%s} token in %q", ErrPathMismatch, param.Name, template)
		}
		tokens[param.Name] = true
	}
	for name, bound := range tokens {
		if !bound {
			return fmt.Errorf("%w: token {%s} has no path parameter", ErrPathMismatch, name)
		}
	}
	return nil
}
