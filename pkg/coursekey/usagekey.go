package coursekey

import (
	"database/sql/driver"
	"fmt"
	"regexp"
)

// UsageKey identifies a block inside a course run:
// "block-v1:org+course+run+type@category+block@id".
type UsageKey struct {
	course   CourseKey
	category string
	blockID  string
}

var usageRe = regexp.MustCompile(`^block-v1:([^+/]+)\+([^+/]+)\+([^+/]+)\+type@([^+@]+)\+block@([^+@]+)$`)

// NewUsageKey composes a usage key under the given course run.
func NewUsageKey(course CourseKey, category, blockID string) (UsageKey, error) {
	if course.IsZero() {
		return UsageKey{}, fmt.Errorf("usage key requires a course key")
	}
	if category == "" || blockID == "" {
		return UsageKey{}, fmt.Errorf("usage key requires category and block id")
	}
	return UsageKey{course: course, category: category, blockID: blockID}, nil
}

// MustNewUsageKey is the panicking variant used by tests and fixtures.
func MustNewUsageKey(course CourseKey, category, blockID string) UsageKey {
	key, err := NewUsageKey(course, category, blockID)
	if err != nil {
		panic(err)
	}
	return key
}

// ParseUsage parses the block-v1 wire form.
func ParseUsage(s string) (UsageKey, error) {
	m := usageRe.FindStringSubmatch(s)
	if m == nil {
		return UsageKey{}, fmt.Errorf("invalid usage key %q", s)
	}
	course, err := New(m[1], m[2], m[3])
	if err != nil {
		return UsageKey{}, err
	}
	return NewUsageKey(course, m[4], m[5])
}

// CourseKey returns the run this block belongs to.
func (u UsageKey) CourseKey() CourseKey { return u.course }

// Category returns the block type (chapter, sequential, vertical, ...).
func (u UsageKey) Category() string { return u.category }

// BlockID returns the block's id segment.
func (u UsageKey) BlockID() string { return u.blockID }

// IsZero reports whether the key is the uninitialized value.
func (u UsageKey) IsZero() bool { return u.course.IsZero() }

func (u UsageKey) String() string {
	if u.IsZero() {
		return ""
	}
	return fmt.Sprintf("block-v1:%s+%s+%s+type@%s+block@%s",
		u.course.org, u.course.course, u.course.run, u.category, u.blockID)
}

// MarshalText implements encoding.TextMarshaler.
func (u UsageKey) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UsageKey) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*u = UsageKey{}
		return nil
	}
	parsed, err := ParseUsage(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Value implements driver.Valuer.
func (u UsageKey) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// Scan implements sql.Scanner.
func (u *UsageKey) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*u = UsageKey{}
		return nil
	case string:
		return u.UnmarshalText([]byte(v))
	case []byte:
		return u.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into UsageKey", src)
	}
}
