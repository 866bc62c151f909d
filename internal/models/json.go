package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONB is a free-form JSON object stored in a jsonb column.
type JSONB map[string]interface{}

// Value returns JSON as a string so it also works with simple protocol mode.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("type assertion to []byte failed for JSONB")
	}
}
