// Package rpcwire provides a grpc codec so the master API can be served
// over real grpc transport, framing and flow control without a protoc
// code-generation step: messages are encoded as JSON instead of the
// protobuf wire format.
package rpcwire

import "encoding/json"

// Name is the codec's name, sent as the grpc-encoding header value.
const Name = "json"

// Codec marshals grpc messages as JSON. It implements grpc's
// encoding.Codec interface without importing it directly, since that
// interface is exactly {Marshal, Unmarshal, Name}.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return Name
}
