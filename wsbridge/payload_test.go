package wsbridge

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
)

const payloadTestProto = `
syntax = "proto3";

package demo;

message Ping {
  string audio = 1;
  int64 big = 2;
  string name = 3;
}

message Greeting {
  oneof kind {
    string text = 1;
    int32 code = 2;
    string user_id = 3;
  }
}
`

func parseTestFile(t *testing.T) *desc.FileDescriptor {
	t.Helper()
	accessor := protoparse.FileContentsFromMap(map[string]string{"payload_test.proto": payloadTestProto})
	parser := protoparse.Parser{Accessor: accessor}
	fds, err := parser.ParseFiles("payload_test.proto")
	if err != nil {
		t.Fatalf("ParseFiles() error = %v", err)
	}
	return fds[0]
}

func TestDecodePayload_EmptyPayload(t *testing.T) {
	fd := parseTestFile(t)
	md := fd.FindMessage("demo.Ping")

	msg, err := DecodePayload(md, nil, nil)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if msg.GetMessageDescriptor() != md {
		t.Error("decoded message has the wrong descriptor")
	}
}

func TestDecodePayload_Int64AsDecimalString(t *testing.T) {
	fd := parseTestFile(t)
	md := fd.FindMessage("demo.Ping")

	msg, err := DecodePayload(md, json.RawMessage(`{"big":"9223372036854775807"}`), nil)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}

	fdBig := md.FindFieldByName("big")
	if got := msg.GetField(fdBig); got != int64(9223372036854775807) {
		t.Errorf("big = %v, want max int64", got)
	}
}

func TestDecodePayload_BinaryFieldHint(t *testing.T) {
	fd := parseTestFile(t)
	md := fd.FindMessage("demo.Ping")

	raw := []byte("raw audio bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)

	msg, err := DecodePayload(md, json.RawMessage(`{"audio":"`+encoded+`"}`), nil)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}

	fdAudio := md.FindFieldByName("audio")
	got, ok := msg.GetField(fdAudio).(string)
	if !ok || got != string(raw) {
		t.Errorf("audio = %q, want %q (decoded via built-in heuristic)", got, raw)
	}
}

func TestEncodePayload_BinaryFieldHintRoundTrip(t *testing.T) {
	fd := parseTestFile(t)
	md := fd.FindMessage("demo.Ping")

	raw := []byte("round trip bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)

	msg, err := DecodePayload(md, json.RawMessage(`{"audio":"`+encoded+`"}`), nil)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}

	out, err := EncodePayload(msg, nil)
	if err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(out, &obj); err != nil {
		t.Fatalf("failed to unmarshal encoded payload: %v", err)
	}
	if obj["audio"] != encoded {
		t.Errorf("audio = %v, want %v (re-encoded as base64)", obj["audio"], encoded)
	}
}

func TestEncodePayload_OneofDiscriminator(t *testing.T) {
	fd := parseTestFile(t)
	md := fd.FindMessage("demo.Greeting")

	msg, err := DecodePayload(md, json.RawMessage(`{"text":"hello"}`), nil)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}

	out, err := EncodePayload(msg, nil)
	if err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(out, &obj); err != nil {
		t.Fatalf("failed to unmarshal encoded payload: %v", err)
	}
	if obj["kindCase"] != "text" {
		t.Errorf("kindCase = %v, want text", obj["kindCase"])
	}
	if obj["text"] != "hello" {
		t.Errorf("text = %v, want hello", obj["text"])
	}
}

func TestEncodePayload_OneofDiscriminatorUsesJSONName(t *testing.T) {
	fd := parseTestFile(t)
	md := fd.FindMessage("demo.Greeting")

	msg, err := DecodePayload(md, json.RawMessage(`{"userId":"u-1"}`), nil)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}

	out, err := EncodePayload(msg, nil)
	if err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(out, &obj); err != nil {
		t.Fatalf("failed to unmarshal encoded payload: %v", err)
	}
	if obj["kindCase"] != "userId" {
		t.Errorf("kindCase = %v, want userId (JSON name, not proto name user_id)", obj["kindCase"])
	}
}

func TestEncodePayload_OneofDiscriminatorAbsentWhenUnset(t *testing.T) {
	fd := parseTestFile(t)
	md := fd.FindMessage("demo.Greeting")

	msg, err := DecodePayload(md, nil, nil)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}

	out, err := EncodePayload(msg, nil)
	if err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(out, &obj); err != nil {
		t.Fatalf("failed to unmarshal encoded payload: %v", err)
	}
	if _, ok := obj["kindCase"]; ok {
		t.Errorf("kindCase should be absent when no oneof case is set, got %v", obj["kindCase"])
	}
}
