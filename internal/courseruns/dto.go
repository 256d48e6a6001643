package courseruns

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// CourseRunDTO is the API projection of a course run.
type CourseRunDTO struct {
	ID                string                  `json:"id"`
	Org               string                  `json:"org"`
	Number            string                  `json:"number"`
	Run               string                  `json:"run"`
	DisplayName       string                  `json:"display_name"`
	Start             time.Time               `json:"start"`
	End               *time.Time              `json:"end,omitempty"`
	EnrollmentStart   *time.Time              `json:"enrollment_start,omitempty"`
	EnrollmentEnd     *time.Time              `json:"enrollment_end,omitempty"`
	SelfPaced         bool                    `json:"self_paced"`
	InvitationOnly    bool                    `json:"invitation_only"`
	CatalogVisibility enums.CatalogVisibility `json:"catalog_visibility"`
	AdvertisedStart   *string                 `json:"advertised_start,omitempty"`
	WeeksToComplete   *int                    `json:"weeks_to_complete,omitempty"`
	MaxEnrollments    *int                    `json:"max_enrollments,omitempty"`
	DaysEarlyForBeta  *int                    `json:"days_early_for_beta,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

func toDTO(run models.CourseRun) CourseRunDTO {
	return CourseRunDTO{
		ID:                run.ID.String(),
		Org:               run.Org,
		Number:            run.Number,
		Run:               run.Run,
		DisplayName:       run.DisplayName,
		Start:             run.Start,
		End:               run.End,
		EnrollmentStart:   run.EnrollmentStart,
		EnrollmentEnd:     run.EnrollmentEnd,
		SelfPaced:         run.SelfPaced,
		InvitationOnly:    run.InvitationOnly,
		CatalogVisibility: run.CatalogVisibility,
		AdvertisedStart:   run.AdvertisedStart,
		WeeksToComplete:   run.WeeksToComplete,
		MaxEnrollments:    run.MaxEnrollments,
		DaysEarlyForBeta:  run.DaysEarlyForBeta,
		CreatedAt:         run.CreatedAt,
		UpdatedAt:         run.UpdatedAt,
	}
}

// CreateParams carries everything needed to register a new run.
type CreateParams struct {
	Org               string
	Number            string
	Run               string
	DisplayName       string
	Start             time.Time
	End               *time.Time
	EnrollmentStart   *time.Time
	EnrollmentEnd     *time.Time
	SelfPaced         bool
	InvitationOnly    bool
	CatalogVisibility enums.CatalogVisibility
	WeeksToComplete   *int
	MaxEnrollments    *int
	DaysEarlyForBeta  *int
	ActorID           uuid.UUID
}

// UpdateParams carries partial settings updates. Nil pointer fields keep the
// stored value; ClearEnd and friends reset nullable columns explicitly.
type UpdateParams struct {
	DisplayName       *string
	Start             *time.Time
	End               *time.Time
	ClearEnd          bool
	EnrollmentStart   *time.Time
	ClearEnrollStart  bool
	EnrollmentEnd     *time.Time
	ClearEnrollEnd    bool
	SelfPaced         *bool
	InvitationOnly    *bool
	CatalogVisibility *enums.CatalogVisibility
	AdvertisedStart   *string
	WeeksToComplete   *int
	MaxEnrollments    *int
	DaysEarlyForBeta  *int
	ActorID           uuid.UUID
}

// RerunParams drives the copy of an existing run into a new one.
type RerunParams struct {
	Run         string
	DisplayName string
	Start       time.Time
	ActorID     uuid.UUID
}

// RerunStateDTO reports the progress of one rerun request.
type RerunStateDTO struct {
	ID            uuid.UUID         `json:"id"`
	SourceID      string            `json:"source_id"`
	DestinationID string            `json:"destination_id"`
	State         enums.RerunStatus `json:"state"`
	DisplayName   string            `json:"display_name"`
	Message       *string           `json:"message,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func toRerunDTO(state models.CourseRerunState) RerunStateDTO {
	return RerunStateDTO{
		ID:            state.ID,
		SourceID:      state.SourceID.String(),
		DestinationID: state.DestinationID.String(),
		State:         state.State,
		DisplayName:   state.DisplayName,
		Message:       state.Message,
		CreatedAt:     state.CreatedAt,
		UpdatedAt:     state.UpdatedAt,
	}
}
