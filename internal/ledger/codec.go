package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode serialises the state deterministically (keys sorted, indented).
func Encode(state State) ([]byte, error) {
	if state == nil {
		state = New()
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a serialised state. Empty input yields an empty state.
func Decode(data []byte) (State, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}
	state := New()
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}
