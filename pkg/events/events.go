package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// Event names carried on the in-process bus.
const (
	NameEnrollmentCreated     = "enrollment.created"
	NameEnrollmentModeChanged = "enrollment.mode_changed"
	NameEnrollmentDeactivated = "enrollment.deactivated"
	NameCoursePublished       = "course.published"
	NameCourseDeleted         = "course.deleted"
)

// EnrollmentCreated fires when an enrollment is created or reactivated.
// Subscribers run before the enroll call returns.
type EnrollmentCreated struct {
	EnrollmentID uuid.UUID
	UserID       uuid.UUID
	CourseID     coursekey.CourseKey
	Mode         enums.ModeSlug
	CreatedAt    time.Time
	Reactivated  bool
}

func (EnrollmentCreated) EventName() string { return NameEnrollmentCreated }
func (e EnrollmentCreated) DedupeKey() string {
	return e.UserID.String() + "|" + e.CourseID.String()
}

// EnrollmentModeChanged fires when an active enrollment switches tracks.
type EnrollmentModeChanged struct {
	EnrollmentID uuid.UUID
	UserID       uuid.UUID
	CourseID     coursekey.CourseKey
	FromMode     enums.ModeSlug
	ToMode       enums.ModeSlug
}

func (EnrollmentModeChanged) EventName() string { return NameEnrollmentModeChanged }
func (e EnrollmentModeChanged) DedupeKey() string {
	return e.UserID.String() + "|" + e.CourseID.String()
}

// EnrollmentDeactivated fires on unenroll.
type EnrollmentDeactivated struct {
	EnrollmentID uuid.UUID
	UserID       uuid.UUID
	CourseID     coursekey.CourseKey
	Mode         enums.ModeSlug
}

func (EnrollmentDeactivated) EventName() string { return NameEnrollmentDeactivated }
func (e EnrollmentDeactivated) DedupeKey() string {
	return e.UserID.String() + "|" + e.CourseID.String()
}

// CoursePublished fires after course structure or run settings change,
// including inside bulk scopes where repeats coalesce to one signal.
type CoursePublished struct {
	CourseID coursekey.CourseKey
}

func (CoursePublished) EventName() string   { return NameCoursePublished }
func (e CoursePublished) DedupeKey() string { return e.CourseID.String() }

// CourseDeleted fires when a run is soft-removed from the registry.
type CourseDeleted struct {
	CourseID coursekey.CourseKey
}

func (CourseDeleted) EventName() string   { return NameCourseDeleted }
func (e CourseDeleted) DedupeKey() string { return e.CourseID.String() }
