package enrollment

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// EnrollmentDTO is the API projection of one ledger row.
type EnrollmentDTO struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	CourseID  string         `json:"course_id"`
	Mode      enums.ModeSlug `json:"mode"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created"`
}

// CourseDetails is the run summary embedded in enrollment listings.
type CourseDetails struct {
	CourseID        string     `json:"course_id"`
	DisplayName     string     `json:"course_name"`
	Org             string     `json:"org"`
	Number          string     `json:"number"`
	Start           time.Time  `json:"course_start"`
	End             *time.Time `json:"course_end,omitempty"`
	EnrollmentStart *time.Time `json:"enrollment_start,omitempty"`
	EnrollmentEnd   *time.Time `json:"enrollment_end,omitempty"`
	InvitationOnly  bool       `json:"invite_only"`
	SelfPaced       bool       `json:"pacing_self_paced"`
}

// ListedEnrollment is one row of a learner's enrollment listing.
type ListedEnrollment struct {
	CourseDetails CourseDetails  `json:"course_details"`
	Mode          enums.ModeSlug `json:"mode"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     time.Time      `json:"created"`
}

// EnrollmentPage is one cursor page of a learner's enrollment listing.
type EnrollmentPage struct {
	Enrollments []ListedEnrollment `json:"enrollments"`
	NextCursor  string             `json:"next_cursor,omitempty"`
}

// AttributeDTO is one namespaced key/value on an enrollment.
type AttributeDTO struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Value     string `json:"value"`
}

// EnrollParams carries one enroll request.
type EnrollParams struct {
	UserID   uuid.UUID
	CourseID coursekey.CourseKey
	Mode     enums.ModeSlug
	// CheckAccess enforces the enrollment window, the invitation flag and
	// the enrollment cap. Administrative enrollments pass false.
	CheckAccess bool
	// HasInvitation marks callers the course explicitly admitted; it only
	// matters for invitation-only runs.
	HasInvitation bool
}

func toEnrollmentDTO(row models.Enrollment) EnrollmentDTO {
	return EnrollmentDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		CourseID:  row.CourseID.String(),
		Mode:      row.Mode,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
	}
}

func toCourseDetails(run models.CourseRun) CourseDetails {
	return CourseDetails{
		CourseID:        run.ID.String(),
		DisplayName:     run.DisplayName,
		Org:             run.Org,
		Number:          run.Number,
		Start:           run.Start,
		End:             run.End,
		EnrollmentStart: run.EnrollmentStart,
		EnrollmentEnd:   run.EnrollmentEnd,
		InvitationOnly:  run.InvitationOnly,
		SelfPaced:       run.SelfPaced,
	}
}

func toAttributeDTOs(rows []models.EnrollmentAttribute) []AttributeDTO {
	out := make([]AttributeDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, AttributeDTO{Namespace: row.Namespace, Name: row.Name, Value: row.Value})
	}
	return out
}
