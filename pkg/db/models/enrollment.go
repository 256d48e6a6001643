package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// Enrollment is the authoritative (learner, course-run) record. The unique
// constraint covers (user_id, course_id) regardless of is_active, so
// re-enrollment reuses the original row and preserves created_at.
type Enrollment struct {
	ID       uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID   uuid.UUID           `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_enrollment_user_course,priority:1"`
	CourseID coursekey.CourseKey `gorm:"column:course_id;type:varchar(255);not null;uniqueIndex:uq_enrollment_user_course,priority:2"`

	Mode     enums.ModeSlug `gorm:"column:mode;type:varchar(32);not null"`
	IsActive bool           `gorm:"column:is_active;not null;default:true"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// EnrollmentAttribute is a namespaced key/value attached to an enrollment
// (e.g. credit provider ids). Every field is required.
type EnrollmentAttribute struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EnrollmentID uuid.UUID `gorm:"column:enrollment_id;type:uuid;not null;uniqueIndex:uq_enrollment_attr,priority:1"`
	Namespace    string    `gorm:"column:namespace;type:varchar(64);not null;uniqueIndex:uq_enrollment_attr,priority:2"`
	Name         string    `gorm:"column:name;type:varchar(255);not null;uniqueIndex:uq_enrollment_attr,priority:3"`
	Value        string    `gorm:"column:value;type:text;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
