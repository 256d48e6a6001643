package coursekey

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CourseKey identifies one run of a course as (org, course, run). Two wire
// forms are accepted: the legacy "org/course/run" and the v1
// "course-v1:org+course+run". Derivative (custom) courses carry an extra
// numeric suffix: "ccx-v1:org+course+run+ccx@N".
//
// A CourseKey is immutable once constructed; all comparisons are
// case-sensitive on every segment.
type CourseKey struct {
	org    string
	course string
	run    string
	ccx    int
}

var (
	legacyRe = regexp.MustCompile(`^([^/+]+)/([^/+]+)/([^/+]+)$`)
	v1Re     = regexp.MustCompile(`^course-v1:([^+/]+)\+([^+/]+)\+([^+/]+)$`)
	ccxRe    = regexp.MustCompile(`^ccx-v1:([^+/]+)\+([^+/]+)\+([^+/]+)\+ccx@(\d+)$`)
)

// New builds a CourseKey from its three segments.
func New(org, course, run string) (CourseKey, error) {
	for _, segment := range []string{org, course, run} {
		if segment == "" {
			return CourseKey{}, fmt.Errorf("course key segment must not be empty")
		}
		if strings.ContainsAny(segment, "/+ ") {
			return CourseKey{}, fmt.Errorf("course key segment %q contains reserved characters", segment)
		}
	}
	return CourseKey{org: org, course: course, run: run}, nil
}

// MustNew builds a CourseKey and panics on invalid segments. Intended for
// tests and fixtures.
func MustNew(org, course, run string) CourseKey {
	key, err := New(org, course, run)
	if err != nil {
		panic(err)
	}
	return key
}

// Parse accepts both wire forms and the ccx derivative form.
func Parse(s string) (CourseKey, error) {
	if m := v1Re.FindStringSubmatch(s); m != nil {
		return New(m[1], m[2], m[3])
	}
	if m := ccxRe.FindStringSubmatch(s); m != nil {
		key, err := New(m[1], m[2], m[3])
		if err != nil {
			return CourseKey{}, err
		}
		ccxID, err := strconv.Atoi(m[4])
		if err != nil {
			return CourseKey{}, fmt.Errorf("invalid ccx id %q", m[4])
		}
		key.ccx = ccxID
		return key, nil
	}
	if m := legacyRe.FindStringSubmatch(s); m != nil {
		return New(m[1], m[2], m[3])
	}
	return CourseKey{}, fmt.Errorf("invalid course key %q", s)
}

// Org returns the organization segment.
func (k CourseKey) Org() string { return k.org }

// Course returns the course segment.
func (k CourseKey) Course() string { return k.course }

// Run returns the run segment.
func (k CourseKey) Run() string { return k.run }

// IsZero reports whether the key is the uninitialized value.
func (k CourseKey) IsZero() bool {
	return k.org == "" && k.course == "" && k.run == ""
}

// IsCCX reports whether the key identifies a derivative (custom) course.
func (k CourseKey) IsCCX() bool { return k.ccx > 0 }

// CCXID returns the derivative course id, or 0 for a plain run.
func (k CourseKey) CCXID() int { return k.ccx }

// WithCCX derives a ccx key from a plain course key.
func (k CourseKey) WithCCX(id int) (CourseKey, error) {
	if id <= 0 {
		return CourseKey{}, fmt.Errorf("ccx id must be positive, got %d", id)
	}
	derived := k
	derived.ccx = id
	return derived, nil
}

// Parent strips the ccx suffix, returning the plain run key.
func (k CourseKey) Parent() CourseKey {
	parent := k
	parent.ccx = 0
	return parent
}

// String renders the canonical v1 form (or the ccx form for derivatives).
// Parse(k.String()) always round-trips.
func (k CourseKey) String() string {
	if k.IsZero() {
		return ""
	}
	if k.ccx > 0 {
		return fmt.Sprintf("ccx-v1:%s+%s+%s+ccx@%d", k.org, k.course, k.run, k.ccx)
	}
	return fmt.Sprintf("course-v1:%s+%s+%s", k.org, k.course, k.run)
}

// Legacy renders the deprecated slash-separated form. Derivative keys have no
// legacy form and render canonically instead.
func (k CourseKey) Legacy() string {
	if k.IsZero() {
		return ""
	}
	if k.ccx > 0 {
		return k.String()
	}
	return fmt.Sprintf("%s/%s/%s", k.org, k.course, k.run)
}

// Equal reports segment-wise case-sensitive equality.
func (k CourseKey) Equal(other CourseKey) bool { return k == other }

// EqualFold reports equality ignoring letter case on every segment. Only the
// modulestore existence probe may rely on this.
func (k CourseKey) EqualFold(other CourseKey) bool {
	return strings.EqualFold(k.org, other.org) &&
		strings.EqualFold(k.course, other.course) &&
		strings.EqualFold(k.run, other.run) &&
		k.ccx == other.ccx
}

// Compare imposes a total, wire-form-independent order: by org, course, run,
// then ccx id.
func Compare(a, b CourseKey) int {
	if c := strings.Compare(a.org, b.org); c != 0 {
		return c
	}
	if c := strings.Compare(a.course, b.course); c != 0 {
		return c
	}
	if c := strings.Compare(a.run, b.run); c != 0 {
		return c
	}
	switch {
	case a.ccx < b.ccx:
		return -1
	case a.ccx > b.ccx:
		return 1
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (k CourseKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CourseKey) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*k = CourseKey{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value implements driver.Valuer so keys persist as their canonical string.
func (k CourseKey) Value() (driver.Value, error) {
	if k.IsZero() {
		return nil, nil
	}
	return k.String(), nil
}

// Scan implements sql.Scanner.
func (k *CourseKey) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*k = CourseKey{}
		return nil
	case string:
		return k.UnmarshalText([]byte(v))
	case []byte:
		return k.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into CourseKey", src)
	}
}
