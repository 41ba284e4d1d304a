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

// Package request assembles outgoing calls. A [Descriptor] is the fully
// materialized, immutable form of one HTTP request before it reaches the
// transport; [Build] produces one from a binding.Binding and the call's
// arguments.
package request

import (
	"bytes"
	"maps"
	"net/http"
	"regexp"
)

var schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// Descriptor is an immutable request description. Stages that need a
// different request derive one with the With methods; the receiver is never
// modified, so a descriptor can safely be shared across retries and
// fallbacks.
type Descriptor struct {
	method       string
	authority    string
	pathTemplate string
	header       http.Header
	query        map[string]string
	pathVars     map[string]string
	// nil means no body; a non-nil empty slice is an explicit empty body.
	body []byte
}

// New returns a descriptor with no headers, parameters, or body.
func New(method, authority, pathTemplate string) *Descriptor {
	return &Descriptor{
		method:       method,
		authority:    authority,
		pathTemplate: pathTemplate,
		header:       http.Header{},
		query:        map[string]string{},
		pathVars:     map[string]string{},
	}
}

// Method returns the HTTP verb.
func (d *Descriptor) Method() string { return d.method }

// Authority returns the logical service name or literal origin the request
// is addressed to.
func (d *Descriptor) Authority() string { return d.authority }

// PathTemplate returns the unsubstituted path template.
func (d *Descriptor) PathTemplate() string { return d.pathTemplate }

// Header returns a copy of the request headers.
func (d *Descriptor) Header() http.Header { return d.header.Clone() }

// HeaderValue returns the value of the named header, or "".
func (d *Descriptor) HeaderValue(name string) string { return d.header.Get(name) }

// Query returns a copy of the query parameters.
func (d *Descriptor) Query() map[string]string { return maps.Clone(d.query) }

// PathVariables returns a copy of the path variables.
func (d *Descriptor) PathVariables() map[string]string { return maps.Clone(d.pathVars) }

// Body returns a copy of the request body, and whether there is one at all.
func (d *Descriptor) Body() ([]byte, bool) {
	if d.body == nil {
		return nil, false
	}
	return bytes.Clone(d.body), true
}

// IsOrigin reports whether the authority is a literal origin, that is,
// whether it starts with a URL scheme.
func (d *Descriptor) IsOrigin() bool {
	return IsOrigin(d.authority)
}

// Path returns the path template with path variables substituted and the
// query string appended.
func (d *Descriptor) Path() string {
	return expandPath(d.pathTemplate, d.pathVars, d.query)
}

// URL returns the final request address. An authority without a scheme is
// treated as plain HTTP.
func (d *Descriptor) URL() string {
	base := d.authority
	if base != "" && !IsOrigin(base) {
		base = "http://" + base
	}
	return joinAddress(base, d.Path())
}

// WithAuthority returns a copy of d addressed to authority.
func (d *Descriptor) WithAuthority(authority string) *Descriptor {
	clone := d.clone()
	clone.authority = authority
	return clone
}

// WithHeader returns a copy of d with the named header set to value,
// replacing any previous values.
func (d *Descriptor) WithHeader(name, value string) *Descriptor {
	clone := d.clone()
	clone.header.Set(name, value)
	return clone
}

// WithBody returns a copy of d with the given body. A nil body removes it.
func (d *Descriptor) WithBody(body []byte) *Descriptor {
	clone := d.clone()
	clone.body = bytes.Clone(body)
	return clone
}

func (d *Descriptor) clone() *Descriptor {
	return &Descriptor{
		method:       d.method,
		authority:    d.authority,
		pathTemplate: d.pathTemplate,
		header:       d.header.Clone(),
		query:        maps.Clone(d.query),
		pathVars:     maps.Clone(d.pathVars),
		body:         d.body,
	}
}

// IsOrigin reports whether authority begins with a URL scheme, such as
// "http://" or "https://".
func IsOrigin(authority string) bool {
	return schemePrefix.MatchString(authority)
}
