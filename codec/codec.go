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

// Package codec defines how request bodies are encoded and response bodies
// decoded, and provides JSON and protobuf implementations.
//
// Both decoders treat an empty body as an absent value: the target is left
// untouched and no error is returned. Targets of type *[]byte and *string
// receive the raw body without any parsing.
package codec

import (
	"errors"
	"fmt"
)

// Encoder converts a request argument into body bytes.
type Encoder interface {
	Encode(value any) ([]byte, error)
	// ContentType is the media type of the bytes Encode produces.
	ContentType() string
}

// Decoder converts response body bytes into the value pointed to by target.
type Decoder interface {
	Decode(data []byte, target any) error
}

// ErrNotProtoMessage is returned by the protobuf codec for values that do
// not implement proto.Message.
var ErrNotProtoMessage = errors.New("value is not a proto.Message")

// DecodeError reports a response body that could not be converted into the
// declared return type. It is never subject to fallback, since the request
// itself succeeded.
type DecodeError struct {
	Target string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode into %s: %v", e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// passthrough handles the raw targets shared by every decoder. It reports
// whether target was handled.
func passthrough(data []byte, target any) bool {
	switch t := target.(type) {
	case *[]byte:
		buf := make([]byte, len(data))
		copy(buf, data)
		*t = buf
		return true
	case *string:
		*t = string(data)
		return true
	}
	return false
}
