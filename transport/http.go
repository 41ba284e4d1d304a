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

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bufbuild/httpbind/request"
	"golang.org/x/net/http2"
)

// HTTPOption is an option used to customize the net/http transport.
type HTTPOption interface {
	apply(*httpOptions)
}

// WithDialTimeout configures how long establishing a connection may take.
// If not specified, a 5 second timeout is used.
func WithDialTimeout(duration time.Duration) HTTPOption {
	return httpOptionFunc(func(opts *httpOptions) {
		opts.dialTimeout = duration
	})
}

// WithRequestTimeout limits every request to the given duration, from
// sending the first byte to reading the last byte of the response. If not
// specified, requests time out after 10 seconds. Zero disables the limit;
// the request context still applies.
func WithRequestTimeout(duration time.Duration) HTTPOption {
	return httpOptionFunc(func(opts *httpOptions) {
		opts.requestTimeout = duration
		opts.requestTimeoutSet = true
	})
}

// WithMaxIdleConnections bounds the idle connection pool. If not
// specified, up to 200 idle connections are kept.
func WithMaxIdleConnections(limit int) HTTPOption {
	return httpOptionFunc(func(opts *httpOptions) {
		opts.maxIdleConns = limit
	})
}

// WithIdleConnectionTimeout configures how long an idle connection remains
// open. If not specified, idle connections are closed after 5 minutes.
func WithIdleConnectionTimeout(duration time.Duration) HTTPOption {
	return httpOptionFunc(func(opts *httpOptions) {
		opts.idleConnTimeout = duration
	})
}

// WithTLSConfig adds custom TLS configuration used for "https" origins.
func WithTLSConfig(config *tls.Config) HTTPOption {
	return httpOptionFunc(func(opts *httpOptions) {
		opts.tlsConfig = config
	})
}

// WithH2C makes the transport speak HTTP/2 over plaintext (aka H2C) to
// "http" origins. TLS options are ignored in this mode.
func WithH2C() HTTPOption {
	return httpOptionFunc(func(opts *httpOptions) {
		opts.h2c = true
	})
}

// WithRoundTripper replaces the underlying round-tripper entirely. All
// connection-level options are then ignored.
func WithRoundTripper(roundTripper http.RoundTripper) HTTPOption {
	return httpOptionFunc(func(opts *httpOptions) {
		opts.roundTripper = roundTripper
	})
}

type httpOptionFunc func(*httpOptions)

func (f httpOptionFunc) apply(opts *httpOptions) {
	f(opts)
}

type httpOptions struct {
	dialTimeout       time.Duration
	requestTimeout    time.Duration
	requestTimeoutSet bool
	maxIdleConns      int
	idleConnTimeout   time.Duration
	tlsConfig         *tls.Config
	h2c               bool
	roundTripper      http.RoundTripper
}

func (opts *httpOptions) applyDefaults() {
	if opts.dialTimeout == 0 {
		opts.dialTimeout = 5 * time.Second
	}
	if !opts.requestTimeoutSet {
		opts.requestTimeout = 10 * time.Second
	}
	if opts.maxIdleConns == 0 {
		opts.maxIdleConns = 200
	}
	if opts.idleConnTimeout == 0 {
		opts.idleConnTimeout = 5 * time.Minute
	}
}

// HTTP is a Port backed by an *http.Client.
type HTTP struct {
	client *http.Client
	close  func()
}

var _ Port = (*HTTP)(nil)

// NewHTTP returns a Port that executes requests with net/http.
func NewHTTP(options ...HTTPOption) *HTTP {
	var opts httpOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	opts.applyDefaults()
	roundTripper, closeIdle := newRoundTripper(&opts)
	return &HTTP{
		client: &http.Client{
			Transport: roundTripper,
			Timeout:   opts.requestTimeout,
			// Redirects are surfaced to the caller as-is.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		close: closeIdle,
	}
}

func newRoundTripper(opts *httpOptions) (http.RoundTripper, func()) {
	if opts.roundTripper != nil {
		return opts.roundTripper, func() {}
	}
	dialer := &net.Dialer{
		Timeout:   opts.dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	if opts.h2c {
		transport := &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		}
		return transport, transport.CloseIdleConnections
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          opts.maxIdleConns,
		MaxIdleConnsPerHost:   opts.maxIdleConns,
		IdleConnTimeout:       opts.idleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		TLSClientConfig:       opts.tlsConfig,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return transport, transport.CloseIdleConnections
}

// Execute sends req and reads the whole response body.
func (h *HTTP) Execute(ctx context.Context, req *request.Descriptor) (*Response, error) {
	target := req.URL()
	var body io.Reader
	if data, ok := req.Body(); ok {
		body = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), target, body)
	if err != nil {
		return nil, &Error{Target: target, Err: err}
	}
	httpReq.Header = req.Header()
	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Target: target, Err: err}
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Target: target, Err: err}
	}
	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header}
	if len(data) > 0 {
		resp.Body = data
	}
	return resp, nil
}

// Close releases idle connections.
func (h *HTTP) Close() {
	h.close()
}
