package postgres

import (
	"encoding/json"
	"fmt"
)

// toJSONB marshals a value to JSONB-compatible bytes, returning nil for a
// nil or zero-valued pointer so the column stores SQL NULL.
func toJSONB(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling to jsonb: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

// fromJSONB unmarshals JSONB bytes into dst, leaving dst untouched when src
// is nil (SQL NULL).
func fromJSONB(src []byte, dst any) error {
	if src == nil {
		return nil
	}
	if err := json.Unmarshal(src, dst); err != nil {
		return fmt.Errorf("unmarshaling from jsonb: %w", err)
	}
	return nil
}
