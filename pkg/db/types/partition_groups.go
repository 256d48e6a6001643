package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// PartitionGroup is one named group inside a user partition definition.
type PartitionGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PartitionGroupList stores a partition's groups as a jsonb column.
type PartitionGroupList []PartitionGroup

func (l *PartitionGroupList) Scan(src any) error {
	if src == nil {
		*l = PartitionGroupList{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("PartitionGroupList: unsupported Scan type %T", src)
	}

	if len(raw) == 0 {
		*l = PartitionGroupList{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

func (l PartitionGroupList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
