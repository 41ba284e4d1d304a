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

package codec

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// JSONContentType is the content type produced by JSON.
const JSONContentType = "application/json; charset=UTF-8"

//nolint:gochecknoglobals
var (
	// JSON encodes and decodes bodies as JSON. Protobuf messages use the
	// canonical protobuf JSON mapping; other values use encoding/json.
	JSON Codec = jsonCodec{}
)

// Codec is both an Encoder and a Decoder.
type Codec interface {
	Encoder
	Decoder
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string {
	return JSONContentType
}

func (jsonCodec) Encode(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case proto.Message:
		return protojson.Marshal(v)
	}
	return json.Marshal(value)
}

func (jsonCodec) Decode(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	if passthrough(data, target) {
		return nil
	}
	if msg, ok := target.(proto.Message); ok {
		return protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(data, msg)
	}
	return json.Unmarshal(data, target)
}
