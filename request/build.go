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

package request

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/bufbuild/httpbind/binding"
	"github.com/bufbuild/httpbind/codec"
)

// ErrArgumentCount is returned when a call supplies a different number of
// arguments than its binding declares.
var ErrArgumentCount = errors.New("argument count does not match binding")

// Build assembles the descriptor for one call of b, addressed to authority.
//
// Static header lines are split on their first colon; lines without a colon
// are dropped. Nil arguments are skipped entirely. A body argument is
// encoded with enc and sets Content-Type, overriding any earlier value.
// GET and DELETE requests never carry a body; other methods without a body
// argument carry an explicit empty one.
func Build(b *binding.Binding, authority string, args []any, enc codec.Encoder) (*Descriptor, error) {
	if len(args) != len(b.Params) {
		return nil, fmt.Errorf("%w: %s wants %d, got %d", ErrArgumentCount, b.OperationID, len(b.Params), len(args))
	}
	desc := New(b.Method, authority, b.PathTemplate)
	for _, line := range b.StaticHeaders {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		desc.header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	bodyless := b.Method == http.MethodGet || b.Method == http.MethodDelete
	var body []byte
	for _, param := range b.Params {
		value := args[param.Index]
		if isNil(value) {
			continue
		}
		switch param.Kind {
		case binding.Path:
			desc.pathVars[param.Name] = stringify(value)
		case binding.Query:
			desc.query[param.Name] = stringify(value)
		case binding.Header:
			desc.header.Set(param.Name, stringify(value))
		case binding.Body:
			if bodyless {
				continue
			}
			encoded, err := enc.Encode(value)
			if err != nil {
				return nil, fmt.Errorf("encode body of %s: %w", b.OperationID, err)
			}
			// Multiple body parameters: the last one wins.
			body = encoded
			desc.header.Set("Content-Type", enc.ContentType())
		}
	}
	if !bodyless {
		if body == nil {
			body = []byte{}
		}
		desc.body = body
	}
	return desc, nil
}

// BuildAddress substitutes vars into path, appends query, and joins the
// result onto base.
//
// Substitution is textual: tokens with no variable stay in place and
// variables with no token are ignored. Query keys are sorted so the result
// is deterministic. Exactly one "/" separates base from the path.
func BuildAddress(base, path string, vars, query map[string]string) string {
	return joinAddress(base, expandPath(path, vars, query))
}

func expandPath(path string, vars, query map[string]string) string {
	for _, name := range sortedKeys(vars) {
		path = strings.ReplaceAll(path, "{"+name+"}", vars[name])
	}
	if len(query) == 0 {
		return path
	}
	var sb strings.Builder
	sb.WriteString(path)
	if strings.Contains(path, "?") {
		sb.WriteByte('&')
	} else {
		sb.WriteByte('?')
	}
	for i, name := range sortedKeys(query) {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(query[name]))
	}
	return sb.String()
}

func joinAddress(base, path string) string {
	if base == "" {
		return path
	}
	baseSlash := strings.HasSuffix(base, "/")
	pathSlash := strings.HasPrefix(path, "/")
	switch {
	case baseSlash && pathSlash:
		return base + path[1:]
	case !baseSlash && !pathSlash:
		return base + "/" + path
	default:
		return base + path
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() { //nolint:exhaustive
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
