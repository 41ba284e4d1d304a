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

package httpbind

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bufbuild/httpbind/binding"
	"github.com/bufbuild/httpbind/chain"
	"github.com/bufbuild/httpbind/codec"
	"github.com/bufbuild/httpbind/request"
	"github.com/bufbuild/httpbind/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnknownOperation is returned when invoking an ID that the client
	// was not built with.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrDuplicateOperation is returned by NewClient when two operations
	// share an ID.
	ErrDuplicateOperation = errors.New("duplicate operation")
)

// Client invokes the operations it was built with against one authority.
// It is safe for concurrent use.
type Client struct {
	authority    string
	operations   map[string]binding.Operation
	parseOptions []binding.ParseOption
	parse        func(binding.Operation, ...binding.ParseOption) (*binding.Binding, error)
	handler      chain.Handler
	encoder      codec.Encoder
	decoder      codec.Decoder
	logger       *zap.Logger
	closePort    func()

	// cache maps operation IDs to *cacheEntry values.
	cache sync.Map
	group singleflight.Group
}

type cacheEntry struct {
	binding *binding.Binding
	err     error
}

// NewClient returns a client for ops. The authority is either a logical
// service name, resolved per call when [WithDiscovery] is used, or a literal
// origin such as "https://api.example.com".
//
// Operations are not parsed here. An invalid operation fails with a
// *binding.Error the first time it is invoked.
func NewClient(authority string, ops []binding.Operation, options ...ClientOption) (*Client, error) {
	operations := make(map[string]binding.Operation, len(ops))
	for _, op := range ops {
		if _, ok := operations[op.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateOperation, op.ID)
		}
		operations[op.ID] = op
	}
	var opts clientOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	opts.applyDefaults()
	return &Client{
		authority:    authority,
		operations:   operations,
		parseOptions: opts.parseOptions,
		parse:        binding.Parse,
		handler:      chain.Compose(opts.port, opts.chainStages()...),
		encoder:      opts.encoder,
		decoder:      opts.decoder,
		logger:       opts.logger,
		closePort:    opts.closePort,
	}, nil
}

// Close releases the idle connections of the default transport. A
// transport supplied with [WithTransport] is left open.
func (c *Client) Close() {
	if c.closePort != nil {
		c.closePort()
	}
}

// ClearCache drops every parsed binding, so each operation is parsed again
// on its next invocation.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// Invoke calls operation id with args and returns the translated result:
//   - nil for [binding.ReturnVoid] operations;
//   - the *transport.Response for [binding.ReturnRaw] operations;
//   - for [binding.ReturnTyped] operations, the value allocated by the
//     operation's Result factory after decoding into it, or the decoded
//     value itself when there is no factory. An empty body yields nil.
func (c *Client) Invoke(ctx context.Context, id string, args ...any) (any, error) {
	b, resp, err := c.execute(ctx, id, args)
	if err != nil {
		return nil, err
	}
	if b.Returns != binding.ReturnTyped || b.Result != nil {
		var target any
		if b.Result != nil {
			target = b.Result()
		}
		return Translate(resp, b.Returns, target, c.decoder)
	}
	var value any
	result, err := Translate(resp, b.Returns, &value, c.decoder)
	if err != nil || result == nil {
		return nil, err
	}
	return value, nil
}

// Do calls operation id with args and returns the response envelope
// without decoding it. Non-2xx responses are reported as a
// *transport.RemoteError.
func (c *Client) Do(ctx context.Context, id string, args ...any) (*transport.Response, error) {
	_, resp, err := c.execute(ctx, id, args)
	return resp, err
}

// Call calls operation id on client and returns the result as a T.
//
// Void operations return the zero T. When T is *transport.Response, raw
// operations return the envelope itself. In every other case the body is
// decoded into a new T; an empty body yields the zero T.
func Call[T any](ctx context.Context, client *Client, id string, args ...any) (T, error) {
	var zero T
	b, resp, err := client.execute(ctx, id, args)
	if err != nil {
		return zero, err
	}
	if b.Returns == binding.ReturnVoid {
		return zero, nil
	}
	if raw, ok := any(resp).(T); ok && b.Returns == binding.ReturnRaw {
		return raw, nil
	}
	target := new(T)
	result, err := Translate(resp, binding.ReturnTyped, target, client.decoder)
	if err != nil || result == nil {
		return zero, err
	}
	return *target, nil
}

func (c *Client) execute(ctx context.Context, id string, args []any) (*binding.Binding, *transport.Response, error) {
	b, err := c.binding(id)
	if err != nil {
		return nil, nil, err
	}
	req, err := request.Build(b, c.authority, args, c.encoder)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.handler.Execute(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if resp == nil {
		return nil, nil, &transport.Error{Target: req.Authority(), Err: transport.ErrNoResponse}
	}
	if !resp.IsSuccess() {
		return nil, nil, transport.NewRemoteError(resp)
	}
	return b, resp, nil
}

// binding returns the parsed binding for id, parsing it at most once.
func (c *Client) binding(id string) (*binding.Binding, error) {
	if value, ok := c.cache.Load(id); ok {
		entry := value.(*cacheEntry) //nolint:forcetypeassert
		return entry.binding, entry.err
	}
	op, ok := c.operations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, id)
	}
	value, _, _ := c.group.Do(id, func() (any, error) {
		if value, ok := c.cache.Load(id); ok {
			return value, nil
		}
		b, err := c.parse(op, c.parseOptions...)
		if err != nil {
			c.logger.Error("invalid operation", zap.String("operation", id), zap.Error(err))
		}
		entry := &cacheEntry{binding: b, err: err}
		c.cache.Store(id, entry)
		return entry, nil
	})
	entry := value.(*cacheEntry) //nolint:forcetypeassert
	return entry.binding, entry.err
}
