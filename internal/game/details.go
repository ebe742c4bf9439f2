package game

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Details is the opaque JSON payload attached to audit records.
type Details map[string]any

// Value stores Details as a JSON text column.
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return string(raw), nil
}

func (d *Details) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = Details{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("details: unsupported scan type %T", src)
	}
	out := Details{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("unmarshal details: %w", err)
		}
	}
	*d = out
	return nil
}

// Clone returns a shallow copy.
func (d Details) Clone() Details {
	out := make(Details, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
