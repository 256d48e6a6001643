package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// CourseRun is the root record for one offering of a course. The content tree
// hangs off CourseBlock rows keyed by the same course id.
type CourseRun struct {
	ID            coursekey.CourseKey `gorm:"column:id;type:varchar(255);primaryKey"`
	Org           string              `gorm:"column:org;type:varchar(64);not null;index:idx_course_runs_org"`
	Number        string              `gorm:"column:number;type:varchar(64);not null"`
	Run           string              `gorm:"column:run;type:varchar(64);not null"`
	DisplayName   string              `gorm:"column:display_name;type:varchar(255);not null"`
	DisplayNumber string              `gorm:"column:display_number;type:varchar(64)"`

	Start           time.Time  `gorm:"column:start;not null"`
	End             *time.Time `gorm:"column:end"`
	EnrollmentStart *time.Time `gorm:"column:enrollment_start"`
	EnrollmentEnd   *time.Time `gorm:"column:enrollment_end"`

	SelfPaced         bool                    `gorm:"column:self_paced;not null;default:false"`
	AdvertisedStart   *string                 `gorm:"column:advertised_start;type:varchar(255)"`
	InvitationOnly    bool                    `gorm:"column:invitation_only;not null;default:false"`
	CatalogVisibility enums.CatalogVisibility `gorm:"column:catalog_visibility;type:varchar(16);not null;default:'both'"`
	MobileAvailable   bool                    `gorm:"column:mobile_available;not null;default:false"`
	Effort            *string                 `gorm:"column:effort;type:varchar(64)"`

	EnableSubsectionGating bool `gorm:"column:enable_subsection_gating;not null;default:false"`
	EnableUniversityID     bool `gorm:"column:enable_university_id;not null;default:false"`

	MaxEnrollments   *int `gorm:"column:max_enrollments"`
	DaysEarlyForBeta *int `gorm:"column:days_early_for_beta"`
	WeeksToComplete  *int `gorm:"column:weeks_to_complete"`

	DeletedAt *time.Time `gorm:"column:deleted_at;index"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
	UpdatedBy uuid.UUID `gorm:"column:updated_by;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsDeleted reports whether the run was soft-invalidated.
func (c CourseRun) IsDeleted() bool {
	return c.DeletedAt != nil
}

// HasStarted reports whether the run is open at the given instant.
func (c CourseRun) HasStarted(at time.Time) bool {
	return !c.Start.After(at)
}

// HasEnded reports whether the run closed before the given instant.
func (c CourseRun) HasEnded(at time.Time) bool {
	return c.End != nil && c.End.Before(at)
}
