// Package wsbridge implements the call multiplexer and gRPC call pump: the
// per-connection Call Manager that parses JSON frames tagged by an opaque
// callId, dispatches them to in-flight gRPC calls, drives the four RPC
// shape state machines, and relays headers/data/status/error back over the
// WebSocket.
package wsbridge

import (
	"encoding/json"

	"github.com/panyam/grpcwsbridge/transport"
)

// Frame types, inbound (client-initiated) and outbound (server-initiated).
const (
	FrameStart  = "start"
	FrameWrite  = "write"
	FrameEnd    = "end"
	FrameCancel = "cancel"

	FrameHeaders = "headers"
	FrameData    = "data"
	FrameStatus  = "status"
	FrameError   = "error"

	// frameMalformed is an internal sentinel; it never appears on the wire.
	// It marks frames that failed to decode as a well-formed {type:...}
	// object so Dispatch can still emit the correctly-shaped error frame.
	frameMalformed = "__malformed__"
)

// StatusJSON is the outbound shape of a terminal status or error.
type StatusJSON struct {
	Code     int          `json:"code"`
	Details  string       `json:"details"`
	Metadata MetadataJSON `json:"metadata,omitempty"`
}

// Frame is the JSON envelope exchanged over the WebSocket in both
// directions. Not every field is populated for every Type — e.g. Method
// and Target only appear on start, Status only on a terminal status frame.
type Frame struct {
	Type         string          `json:"type"`
	CallID       string          `json:"callId,omitempty"`
	Method       string          `json:"method,omitempty"`
	Target       string          `json:"target,omitempty"`
	Metadata     MetadataJSON    `json:"metadata,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	BinaryFields []string        `json:"binaryFields,omitempty"`
	Status       *StatusJSON     `json:"status,omitempty"`
	Error        *StatusJSON     `json:"error,omitempty"`
}

// FrameCodec implements transport.Codec[Frame, Frame]. Decode never returns
// an error for malformed input; instead it produces a Frame tagged with the
// internal frameMalformed sentinel so the Call Manager can emit a properly
// addressed error frame on the wire rather than closing the socket.
type FrameCodec struct{}

// Decode parses data as a JSON object frame. Non-object JSON, invalid JSON,
// or an object missing "type" all decode successfully into a sentinel
// Frame; genuine transport-level decode errors never escape this codec.
func (c *FrameCodec) Decode(data []byte, msgType transport.MessageType) (Frame, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Frame{Type: frameMalformed, CallID: peekCallID(data)}, nil
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{Type: frameMalformed, CallID: peekCallID(data)}, nil
	}
	if f.Type == "" {
		f.Type = frameMalformed
	}
	return f, nil
}

// Encode serializes f as a JSON text frame.
func (c *FrameCodec) Encode(f Frame) ([]byte, transport.MessageType, error) {
	data, err := json.Marshal(f)
	return data, transport.TextMessage, err
}

// peekCallID best-effort extracts a "callId" string field from raw bytes
// that failed full Frame decoding, so malformed-frame errors can still be
// addressed to a callId when one was present and well-typed.
func peekCallID(data []byte) string {
	var probe struct {
		CallID string `json:"callId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.CallID
}

var _ transport.Codec[Frame, Frame] = (*FrameCodec)(nil)
