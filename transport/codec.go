package transport

import (
	"encoding/json"

	"github.com/gorilla/websocket"
)

// MessageType represents the WebSocket frame type.
type MessageType int

const (
	// TextMessage denotes a text data message (UTF-8 encoded)
	TextMessage MessageType = websocket.TextMessage // 1

	// BinaryMessage denotes a binary data message
	BinaryMessage MessageType = websocket.BinaryMessage // 2
)

// Codec handles encoding/decoding of messages over WebSocket. I and O are
// the input (received) and output (sent) message types. Pings are handled
// at the transport layer (BaseConn), not by codecs.
type Codec[I any, O any] interface {
	// Decode converts raw WebSocket data into a typed input message.
	Decode(data []byte, msgType MessageType) (I, error)

	// Encode converts a typed output message to raw bytes for sending.
	Encode(msg O) ([]byte, MessageType, error)
}

// JSONCodec handles encoding/decoding of arbitrary JSON messages, useful
// when the structure isn't known at compile time.
type JSONCodec struct{}

// Decode unmarshals JSON data into an untyped any value.
func (c *JSONCodec) Decode(data []byte, msgType MessageType) (any, error) {
	var out any
	err := json.Unmarshal(data, &out)
	return out, err
}

// Encode marshals any value to JSON bytes.
func (c *JSONCodec) Encode(msg any) ([]byte, MessageType, error) {
	data, err := json.Marshal(msg)
	return data, TextMessage, err
}

// TypedJSONCodec handles encoding/decoding of strongly-typed JSON messages,
// for when Go struct types for the messages are known ahead of time.
type TypedJSONCodec[I any, O any] struct{}

// Decode unmarshals JSON data into a typed value.
func (c *TypedJSONCodec[I, O]) Decode(data []byte, msgType MessageType) (I, error) {
	var out I
	err := json.Unmarshal(data, &out)
	return out, err
}

// Encode marshals a typed value to JSON bytes.
func (c *TypedJSONCodec[I, O]) Encode(msg O) ([]byte, MessageType, error) {
	data, err := json.Marshal(msg)
	return data, TextMessage, err
}

var (
	_ Codec[any, any] = (*JSONCodec)(nil)
	_ Codec[any, any] = (*TypedJSONCodec[any, any])(nil)
)
