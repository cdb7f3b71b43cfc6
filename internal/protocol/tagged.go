// ABOUTME: Helpers for externally tagged union encoding used across the protocol.
// ABOUTME: Unit variants are bare strings, data variants are single-key objects.

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errBadUnion = errors.New("expected a string or a single-key object")

// marshalTagged encodes a union variant. A nil payload yields a unit variant.
func marshalTagged(tag string, payload any) ([]byte, error) {
	if payload == nil {
		return json.Marshal(tag)
	}
	return json.Marshal(map[string]any{tag: payload})
}

// unmarshalTagged splits a union value into its tag and raw payload.
// Unit variants return a nil payload.
func unmarshalTagged(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil, errBadUnion
	}

	if data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, err
		}
		return tag, nil, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, err
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("%w: got %d keys", errBadUnion, len(obj))
	}
	for tag, payload := range obj {
		return tag, payload, nil
	}
	return "", nil, errBadUnion
}

// requirePayload fails when a data variant arrived without data.
func requirePayload(tag string, payload json.RawMessage) error {
	if payload == nil {
		return fmt.Errorf("variant %s requires a payload", tag)
	}
	return nil
}
