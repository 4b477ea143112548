package wsbridge

import (
	"encoding/base64"
	"encoding/json"

	"github.com/golang/protobuf/jsonpb"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/types/descriptorpb"
)

// defaultBinaryFieldNames is the built-in heuristic: field names that are
// treated as binary-hinted even when a start frame carries no explicit
// binaryFields list.
var defaultBinaryFieldNames = map[string]bool{
	"audio":         true,
	"audio_content": true,
}

// binaryFieldSet unions the built-in heuristic with the per-call hint from
// a start frame's binaryFields. The hint is top-level only: it names a
// direct field of the request or response message, never a dotted path
// into a nested message (see DESIGN.md for the Open Question decision).
func binaryFieldSet(hints []string) map[string]bool {
	set := make(map[string]bool, len(defaultBinaryFieldNames)+len(hints))
	for name := range defaultBinaryFieldNames {
		set[name] = true
	}
	for _, name := range hints {
		set[name] = true
	}
	return set
}

// DecodePayload parses a JSON payload into a dynamic message of the given
// descriptor, honoring the loader's wire-compatibility options (64-bit
// integers as decimal strings, symbolic enum names, materialized
// defaults) via jsonpb. An empty or absent payload decodes to an empty
// message, matching the bridge's `payload ?? {}` convention for a call
// that carries no request body.
//
// Fields named in binaryFields (or matching the built-in heuristic) that
// are declared as proto string fields are additionally base64-decoded in
// place after the standard unmarshal, so a hinted string field carries
// raw bytes rather than base64 text.
func DecodePayload(md *desc.MessageDescriptor, raw json.RawMessage, binaryFields []string) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(md)
	if len(raw) == 0 {
		return msg, nil
	}

	unmarshaler := &jsonpb.Unmarshaler{AllowUnknownFields: true}
	if err := msg.UnmarshalJSONPB(unmarshaler, raw); err != nil {
		return nil, err
	}

	for name := range binaryFieldSet(binaryFields) {
		fd := md.FindFieldByName(name)
		if fd == nil || fd.GetType() != descriptorpb.FieldDescriptorProto_TYPE_STRING {
			continue
		}
		if !msg.HasField(fd) {
			continue
		}
		strVal, ok := msg.GetField(fd).(string)
		if !ok {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(strVal)
		if err != nil {
			continue
		}
		if err := msg.TrySetField(fd, string(decoded)); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// EncodePayload renders a dynamic message to the JSON payload shape with
// the same wire-compatibility options as DecodePayload, then applies two
// bridge-specific post-processing passes on top of plain jsonpb output:
//
//  1. oneof discriminator fields: for every oneof in the message, if a
//     case is set, an additional "<oneofName>Case" field names the JSON
//     name of the selected field.
//  2. binary-hinted string fields (see DecodePayload) are re-encoded as
//     base64, matching the convention clients see for true bytes fields.
func EncodePayload(msg *dynamic.Message, binaryFields []string) (json.RawMessage, error) {
	md := msg.GetMessageDescriptor()
	marshaler := &jsonpb.Marshaler{EmitDefaults: true}
	data, err := msg.MarshalJSONPB(marshaler)
	if err != nil {
		return nil, err
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	for name := range binaryFieldSet(binaryFields) {
		fd := md.FindFieldByName(name)
		if fd == nil || fd.GetType() != descriptorpb.FieldDescriptorProto_TYPE_STRING {
			continue
		}
		key := fd.GetJSONName()
		raw, ok := obj[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		obj[key] = base64.StdEncoding.EncodeToString([]byte(s))
	}

	if err := addOneofDiscriminators(msg, md, obj); err != nil {
		return nil, err
	}

	return json.Marshal(obj)
}

// addOneofDiscriminators mutates obj in place, adding a "<oneofName>Case"
// field for every oneof in md that has a case set on msg.
func addOneofDiscriminators(msg *dynamic.Message, md *desc.MessageDescriptor, obj map[string]interface{}) error {
	for _, oneof := range md.GetOneOfs() {
		fd, _, err := msg.TryGetOneOfField(oneof)
		if err != nil {
			return err
		}
		if fd == nil {
			continue
		}
		obj[oneof.GetName()+"Case"] = fd.GetJSONName()
	}
	return nil
}
