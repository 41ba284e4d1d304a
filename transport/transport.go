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

// Package transport defines the port through which assembled requests are
// executed, the response envelope, and the transport-level error types. It
// also provides [HTTP], the default net/http based implementation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bufbuild/httpbind/request"
)

// ErrNoInstanceAvailable is wrapped by an *Error when a logical service name
// has no instance to route to.
var ErrNoInstanceAvailable = errors.New("no instance available")

// ErrNoResponse is wrapped by an *Error when a handler returns neither a
// response nor an error.
var ErrNoResponse = errors.New("no response")

// Port executes one request and returns one response. Implementations own
// connection pooling, TLS, and timeouts. I/O failures should be reported as
// an *Error.
type Port interface {
	Execute(ctx context.Context, req *request.Descriptor) (*Response, error)
}

// PortFunc adapts a function to the Port interface.
type PortFunc func(ctx context.Context, req *request.Descriptor) (*Response, error)

// Execute calls f.
func (f PortFunc) Execute(ctx context.Context, req *request.Descriptor) (*Response, error) {
	return f(ctx, req)
}

// Response is the envelope of one HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	// Body is nil when the response had no body.
	Body []byte
}

// IsSuccess reports whether the status code is in [200, 300).
func (r *Response) IsSuccess() bool {
	return IsSuccess(r.StatusCode)
}

// IsSuccess reports whether status is in [200, 300).
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Error is a transport failure: an I/O error, an admission refusal, or no
// instance being available. It is recoverable only through a fallback.
type Error struct {
	// Target is the address or service name the request was sent to.
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RemoteError reports a non-2xx response. The status and body are kept so
// callers can inspect what the server said.
type RemoteError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewRemoteError returns the RemoteError describing resp.
func NewRemoteError(resp *Response) *RemoteError {
	return &RemoteError{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}
}

func (e *RemoteError) Error() string {
	text := http.StatusText(e.StatusCode)
	if text == "" {
		return fmt.Sprintf("remote: status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote: status %d %s", e.StatusCode, text)
}
