package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// GroupAccessMap stores a block's partition restrictions as a jsonb column:
// partition id → allowed group ids. An absent partition key means "universe".
type GroupAccessMap map[int][]int64

func (g *GroupAccessMap) Scan(src any) error {
	if src == nil {
		*g = GroupAccessMap{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("GroupAccessMap: unsupported Scan type %T", src)
	}

	if len(raw) == 0 {
		*g = GroupAccessMap{}
		return nil
	}

	// JSON object keys are strings; convert back to partition ids.
	decoded := map[string][]int64{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("GroupAccessMap: %w", err)
	}
	out := make(GroupAccessMap, len(decoded))
	for k, v := range decoded {
		id, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("GroupAccessMap: partition id %q: %w", k, err)
		}
		out[id] = v
	}
	*g = out
	return nil
}

func (g GroupAccessMap) Value() (driver.Value, error) {
	if len(g) == 0 {
		return "{}", nil
	}
	encoded := make(map[string][]int64, len(g))
	for k, v := range g {
		encoded[strconv.Itoa(k)] = v
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Clone returns a deep copy so merges never mutate stored rows.
func (g GroupAccessMap) Clone() GroupAccessMap {
	if g == nil {
		return nil
	}
	out := make(GroupAccessMap, len(g))
	for k, v := range g {
		ids := make([]int64, len(v))
		copy(ids, v)
		out[k] = ids
	}
	return out
}

// PartitionIDs returns the restricted partition ids in ascending order.
func (g GroupAccessMap) PartitionIDs() []int {
	ids := make([]int, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
