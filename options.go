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
	"github.com/bufbuild/httpbind/balancer"
	"github.com/bufbuild/httpbind/binding"
	"github.com/bufbuild/httpbind/chain"
	"github.com/bufbuild/httpbind/codec"
	"github.com/bufbuild/httpbind/resilience"
	"github.com/bufbuild/httpbind/transport"
	"github.com/bufbuild/httpbind/txn"
	"go.uber.org/zap"
)

// ClientOption is an option used to customize the behavior of a Client.
type ClientOption interface {
	apply(*clientOptions)
}

// WithLogger configures the logger used by the client and by the stages it
// creates. If not specified, nothing is logged.
func WithLogger(logger *zap.Logger) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.logger = logger
	})
}

// WithCodec configures both the request body encoder and the response body
// decoder. If not specified, [codec.JSON] is used.
func WithCodec(c codec.Codec) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.encoder = c
		opts.decoder = c
	})
}

// WithEncoder configures the request body encoder.
func WithEncoder(encoder codec.Encoder) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.encoder = encoder
	})
}

// WithDecoder configures the response body decoder.
func WithDecoder(decoder codec.Decoder) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.decoder = decoder
	})
}

// WithTransport configures the port that finally executes requests. If not
// specified, the client creates a [transport.HTTP] with default settings and
// releases it on Close. A port given here is never closed by the client.
func WithTransport(port transport.Port) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.port = port
	})
}

// WithDiscovery enables load balancing. Logical service names are looked
// up in discovery and one instance is chosen by a [balancer.Weighted]
// configured with config. Wrap discovery with
// [balancer.NewCachingDiscovery] to avoid a lookup per call.
func WithDiscovery(discovery balancer.Discovery, config balancer.Config, options ...balancer.StageOption) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.discovery = discovery
		opts.picker = balancer.NewWeighted(config)
		opts.balancerOptions = options
	})
}

// WithResilience enables admission control and fallback. A nil admitter
// admits every call, which is useful when only a fallback is wanted.
func WithResilience(admitter resilience.Admitter, options ...resilience.StageOption) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.resilience = true
		opts.admitter = admitter
		opts.resilienceOptions = options
	})
}

// WithTransactionPropagation enables copying the ambient transaction into
// request headers.
func WithTransactionPropagation(config txn.Config, options ...txn.Option) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.txn = true
		opts.txnConfig = config
		opts.txnOptions = options
	})
}

// WithStages appends custom stages. They run inside the built-in stages, so
// they see resolved authorities and propagated headers.
func WithStages(stages ...chain.Stage) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.stages = append(opts.stages, stages...)
	})
}

// WithStrictBindings makes parsing reject operations whose path template
// and path arguments disagree. See [binding.WithStrictPaths].
func WithStrictBindings() ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.parseOptions = append(opts.parseOptions, binding.WithStrictPaths())
	})
}

type clientOptionFunc func(*clientOptions)

func (f clientOptionFunc) apply(opts *clientOptions) {
	f(opts)
}

type clientOptions struct {
	logger            *zap.Logger
	encoder           codec.Encoder
	decoder           codec.Decoder
	port              transport.Port
	closePort         func()
	discovery         balancer.Discovery
	picker            balancer.Picker
	balancerOptions   []balancer.StageOption
	resilience        bool
	admitter          resilience.Admitter
	resilienceOptions []resilience.StageOption
	txn               bool
	txnConfig         txn.Config
	txnOptions        []txn.Option
	stages            []chain.Stage
	parseOptions      []binding.ParseOption
}

func (opts *clientOptions) applyDefaults() {
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
	if opts.encoder == nil {
		opts.encoder = codec.JSON
	}
	if opts.decoder == nil {
		opts.decoder = codec.JSON
	}
	if opts.port == nil {
		httpTransport := transport.NewHTTP()
		opts.port = httpTransport
		opts.closePort = httpTransport.Close
	}
}

// chainStages returns the configured stages, outermost first. The client
// logger is applied before any stage-specific options, so those take
// precedence.
func (opts *clientOptions) chainStages() []chain.Stage {
	var stages []chain.Stage
	if opts.discovery != nil {
		options := append([]balancer.StageOption{balancer.WithLogger(opts.logger)}, opts.balancerOptions...)
		stages = append(stages, balancer.NewStage(opts.discovery, opts.picker, options...))
	}
	if opts.resilience {
		options := append([]resilience.StageOption{resilience.WithLogger(opts.logger)}, opts.resilienceOptions...)
		stages = append(stages, resilience.NewStage(opts.admitter, options...))
	}
	if opts.txn {
		options := append([]txn.Option{txn.WithLogger(opts.logger)}, opts.txnOptions...)
		stages = append(stages, txn.NewStage(opts.txnConfig, options...))
	}
	return append(stages, opts.stages...)
}
