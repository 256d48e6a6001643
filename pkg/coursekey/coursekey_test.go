package coursekey

import (
	"sort"
	"testing"
)

func TestParseBothWireForms(t *testing.T) {
	cases := []struct {
		in               string
		org, course, run string
	}{
		{"edX/DemoX/Demo_2020", "edX", "DemoX", "Demo_2020"},
		{"course-v1:edX+DemoX+Demo_2020", "edX", "DemoX", "Demo_2020"},
		{"MITx/6.002x/2013_Spring", "MITx", "6.002x", "2013_Spring"},
	}
	for _, tc := range cases {
		key, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if key.Org() != tc.org || key.Course() != tc.course || key.Run() != tc.run {
			t.Fatalf("parse %q: got (%s,%s,%s)", tc.in, key.Org(), key.Course(), key.Run())
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"edX/DemoX",
		"edX/DemoX/Demo/extra",
		"course-v1:edX+DemoX",
		"course-v1:edX+DemoX+Demo+extra",
		"block-v1:edX+DemoX+Demo+type@html+block@intro",
		"org with spaces/course/run",
	} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected parse of %q to fail", in)
		}
	}
}

func TestStringRoundTrips(t *testing.T) {
	key := MustNew("edX", "DemoX", "Demo_2020")
	parsed, err := Parse(key.String())
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if !parsed.Equal(key) {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, key)
	}

	parsedLegacy, err := Parse(key.Legacy())
	if err != nil {
		t.Fatalf("legacy round trip: %v", err)
	}
	if !parsedLegacy.Equal(key) {
		t.Fatalf("legacy round trip mismatch")
	}
}

func TestEqualityIsCaseSensitive(t *testing.T) {
	a := MustNew("edX", "DemoX", "Demo_2020")
	b := MustNew("edx", "DemoX", "Demo_2020")
	if a.Equal(b) {
		t.Fatal("expected case-sensitive inequality")
	}
	if !a.EqualFold(b) {
		t.Fatal("expected case-insensitive match")
	}
}

func TestCCXKeys(t *testing.T) {
	key, err := Parse("ccx-v1:edX+DemoX+Demo_2020+ccx@7")
	if err != nil {
		t.Fatalf("parse ccx: %v", err)
	}
	if !key.IsCCX() || key.CCXID() != 7 {
		t.Fatalf("expected ccx id 7, got %d", key.CCXID())
	}
	if key.Parent().IsCCX() {
		t.Fatal("parent should not be a ccx key")
	}

	reparsed, err := Parse(key.String())
	if err != nil {
		t.Fatalf("ccx round trip: %v", err)
	}
	if !reparsed.Equal(key) {
		t.Fatal("ccx round trip mismatch")
	}
}

func TestCompareIsTotalAndStableAcrossForms(t *testing.T) {
	raw := []string{
		"course-v1:edX+DemoX+2020",
		"aaa/zzz/run",
		"ccx-v1:edX+DemoX+2020+ccx@1",
		"edX/AlgebraX/2019",
	}
	keys := make([]CourseKey, len(raw))
	for i, s := range raw {
		key, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		keys[i] = key
	}
	sort.Slice(keys, func(i, j int) bool { return Compare(keys[i], keys[j]) < 0 })

	want := []string{
		"course-v1:aaa+zzz+run",
		"course-v1:edX+AlgebraX+2019",
		"course-v1:edX+DemoX+2020",
		"ccx-v1:edX+DemoX+2020+ccx@1",
	}
	for i, key := range keys {
		if key.String() != want[i] {
			t.Fatalf("position %d: got %s want %s", i, key, want[i])
		}
	}
}

func TestUsageKeyRoundTrip(t *testing.T) {
	course := MustNew("edX", "DemoX", "Demo_2020")
	usage := MustNewUsageKey(course, "sequential", "week1")
	parsed, err := ParseUsage(usage.String())
	if err != nil {
		t.Fatalf("usage round trip: %v", err)
	}
	if parsed != usage {
		t.Fatalf("usage round trip mismatch: %s vs %s", parsed, usage)
	}
	if !parsed.CourseKey().Equal(course) {
		t.Fatal("usage key lost its course key")
	}
	if parsed.Category() != "sequential" || parsed.BlockID() != "week1" {
		t.Fatalf("unexpected segments: %s %s", parsed.Category(), parsed.BlockID())
	}
}

func TestUsageKeyRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"block-v1:edX+DemoX+Demo",
		"course-v1:edX+DemoX+Demo",
		"block-v1:edX+DemoX+Demo+type@html",
	} {
		if _, err := ParseUsage(in); err == nil {
			t.Fatalf("expected usage parse of %q to fail", in)
		}
	}
}
