package postgresql

import (
	"encoding/json"
	"fmt"
)

// asJSON marshals a value for a JSONB column, mapping nil-ish values to SQL
// NULL so the column stays queryable.
func asJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONB value: %w", err)
	}

	return data, nil
}

// fromJSON unmarshals a nullable JSONB column into v, leaving v untouched on
// NULL.
func fromJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	err := json.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSONB value: %w", err)
	}

	return nil
}
