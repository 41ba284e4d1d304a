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
	"fmt"

	"github.com/bufbuild/httpbind/binding"
	"github.com/bufbuild/httpbind/codec"
	"github.com/bufbuild/httpbind/transport"
)

// Translate converts resp into the result of an operation that returns
// returns. A non-2xx status yields a *transport.RemoteError that keeps the
// status and body.
//
// For [binding.ReturnTyped], the body is decoded into target, which is then
// returned. An empty body or a nil target yields nil, and decoder failures
// are wrapped in a *codec.DecodeError.
func Translate(resp *transport.Response, returns binding.ReturnKind, target any, decoder codec.Decoder) (any, error) {
	if !resp.IsSuccess() {
		return nil, transport.NewRemoteError(resp)
	}
	switch returns {
	case binding.ReturnVoid:
		return nil, nil //nolint:nilnil
	case binding.ReturnRaw:
		return resp, nil
	case binding.ReturnTyped:
	}
	if len(resp.Body) == 0 || target == nil {
		return nil, nil //nolint:nilnil
	}
	if err := decoder.Decode(resp.Body, target); err != nil {
		return nil, &codec.DecodeError{Target: fmt.Sprintf("%T", target), Err: err}
	}
	return target, nil
}
