package partitions

import (
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// Reserved partition ids. Scheme-backed partitions are synthesized per
// request; course-authored partitions take ids from MinCoursePartitionID up.
const (
	EnrollmentTrackPartitionID int64 = 50
	ContentGatePartitionID     int64 = 51
	MinCoursePartitionID       int64 = 100
)

// Content-gate group ids, fixed across all runs.
const (
	LimitedAccessGroupID int64 = 1
	FullAccessGroupID    int64 = 2
)

// Partition schemes.
const (
	SchemeEnrollmentTrack = "enrollment_track"
	SchemeContentGate     = "content_type_gate"
	SchemeCohort          = "cohort"
	SchemeRandom          = "random"
)

// enrollmentTrackGroups fixes one group id per selectable mode across every
// course. Credit enrollments collapse onto the verified group.
var enrollmentTrackGroups = map[enums.ModeSlug]Group{
	enums.ModeAudit:            {ID: 1, Name: "Audit"},
	enums.ModeHonor:            {ID: 2, Name: "Honor"},
	enums.ModeVerified:         {ID: 3, Name: "Verified"},
	enums.ModeProfessional:     {ID: 4, Name: "Professional"},
	enums.ModeNoIDProfessional: {ID: 5, Name: "Professional (no ID)"},
	enums.ModeMasters:          {ID: 6, Name: "Masters"},
}

// Group is one named group inside a partition.
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Partition is the read projection of one partition, synthesized or stored.
type Partition struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Scheme string  `json:"scheme"`
	Active bool    `json:"active"`
	Groups []Group `json:"groups"`
}

// enrollmentTrackGroupFor maps a mode onto its fixed track group.
func enrollmentTrackGroupFor(mode enums.ModeSlug) (Group, bool) {
	if mode.IsCredit() {
		mode = enums.ModeVerified
	}
	group, ok := enrollmentTrackGroups[mode]
	return group, ok
}

func enrollmentTrackPartition() Partition {
	groups := make([]Group, 0, len(enrollmentTrackGroups))
	for _, mode := range []enums.ModeSlug{
		enums.ModeAudit,
		enums.ModeHonor,
		enums.ModeVerified,
		enums.ModeProfessional,
		enums.ModeNoIDProfessional,
		enums.ModeMasters,
	} {
		groups = append(groups, enrollmentTrackGroups[mode])
	}
	return Partition{
		ID:     EnrollmentTrackPartitionID,
		Name:   "Enrollment Track Groups",
		Scheme: SchemeEnrollmentTrack,
		Active: true,
		Groups: groups,
	}
}

func contentGatePartition() Partition {
	return Partition{
		ID:     ContentGatePartitionID,
		Name:   "Feature-based Enrollments",
		Scheme: SchemeContentGate,
		Active: true,
		Groups: []Group{
			{ID: LimitedAccessGroupID, Name: "Limited-access Users"},
			{ID: FullAccessGroupID, Name: "Full-access Users"},
		},
	}
}
