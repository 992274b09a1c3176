package commsutil

import "encoding/json"

// EncodePayload serializes an event or status value to JSON bytes. Command
// payloads do not go through here; they use pkg/codec.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
