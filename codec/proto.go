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
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ProtoContentType is the content type produced by Proto.
const ProtoContentType = "application/x-protobuf"

//nolint:gochecknoglobals
var (
	// Proto encodes and decodes bodies in the protobuf binary format. Values
	// must implement proto.Message, except for raw []byte and string.
	Proto Codec = protoCodec{}
)

type protoCodec struct{}

func (protoCodec) ContentType() string {
	return ProtoContentType
}

func (protoCodec) Encode(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case proto.Message:
		return proto.Marshal(v)
	}
	return nil, fmt.Errorf("%w: %T", ErrNotProtoMessage, value)
}

func (protoCodec) Decode(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	if passthrough(data, target) {
		return nil
	}
	msg, ok := target.(proto.Message)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotProtoMessage, target)
	}
	return proto.Unmarshal(data, msg)
}
