package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// IntList stores an ordered list of integers as a jsonb column (course mode
// suggested prices).
type IntList []int

func (l *IntList) Scan(src any) error {
	if src == nil {
		*l = IntList{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("IntList: unsupported Scan type %T", src)
	}

	if len(raw) == 0 {
		*l = IntList{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

func (l IntList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
