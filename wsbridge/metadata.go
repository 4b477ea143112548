package wsbridge

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"google.golang.org/grpc/metadata"
)

// MetadataJSON is the wire shape of a Metadata mapping: each key maps to
// either a single string or an ordered list of strings. Binary (-bin)
// keys carry base64-encoded values, exactly as gRPC already requires for
// ASCII transport.
type MetadataJSON map[string]any

// DecodeMetadataJSON converts a wire metadata object to native gRPC
// metadata.MD. Null values are skipped. -bin keys are base64 decoded to
// raw bytes before being appended; all other values are stringified as
// text. Keys are lower-cased, matching gRPC's own normalization.
func DecodeMetadataJSON(m MetadataJSON) (metadata.MD, error) {
	md := metadata.MD{}
	for key, raw := range m {
		if raw == nil {
			continue
		}
		lowerKey := strings.ToLower(key)
		isBin := strings.HasSuffix(lowerKey, "-bin")

		values, err := metadataValues(raw)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			if isBin {
				decoded, err := base64.StdEncoding.DecodeString(v)
				if err != nil {
					return nil, err
				}
				md.Append(lowerKey, string(decoded))
			} else {
				md.Append(lowerKey, v)
			}
		}
	}
	return md, nil
}

// metadataValues normalizes a decoded JSON value (string, or list of
// strings) into an ordered slice of strings.
func metadataValues(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				b, err := json.Marshal(item)
				if err != nil {
					return nil, err
				}
				s = string(b)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return []string{string(b)}, nil
	}
}

// EncodeMetadataJSON converts native gRPC metadata to the wire shape.
// -bin values are re-encoded as base64; text values pass through
// unchanged. A key with exactly one value is emitted as a scalar string;
// with more than one, as an ordered list.
func EncodeMetadataJSON(md metadata.MD) MetadataJSON {
	out := MetadataJSON{}
	for key, values := range md {
		isBin := strings.HasSuffix(key, "-bin")

		encoded := make([]string, len(values))
		for i, v := range values {
			if isBin {
				encoded[i] = base64.StdEncoding.EncodeToString([]byte(v))
			} else {
				encoded[i] = v
			}
		}

		if len(encoded) == 1 {
			out[key] = encoded[0]
		} else {
			out[key] = encoded
		}
	}
	return out
}
