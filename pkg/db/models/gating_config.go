package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// ContentTypeGatingConfig is one row of the stacked gating configuration.
// Exactly one of site/org/course is set for non-global rows; nullable fields
// mean "inherit from the broader scope".
type ContentTypeGatingConfig struct {
	ID    uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Scope enums.ConfigScope `gorm:"column:scope;type:varchar(16);not null;index:idx_gating_scope"`

	Site     *string              `gorm:"column:site;type:varchar(255);index"`
	Org      *string              `gorm:"column:org;type:varchar(64);index"`
	CourseID *coursekey.CourseKey `gorm:"column:course_id;type:varchar(255);index"`

	Enabled       *bool      `gorm:"column:enabled"`
	EnabledAsOf   *time.Time `gorm:"column:enabled_as_of"`
	StudioEnabled *bool      `gorm:"column:studio_enabled"`

	ChangedBy uuid.UUID `gorm:"column:changed_by;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CourseDurationLimitConfig is one row of the stacked audit-duration
// configuration. Same shape and resolution rules as the gating table.
type CourseDurationLimitConfig struct {
	ID    uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Scope enums.ConfigScope `gorm:"column:scope;type:varchar(16);not null;index:idx_duration_scope"`

	Site     *string              `gorm:"column:site;type:varchar(255);index"`
	Org      *string              `gorm:"column:org;type:varchar(64);index"`
	CourseID *coursekey.CourseKey `gorm:"column:course_id;type:varchar(255);index"`

	Enabled     *bool      `gorm:"column:enabled"`
	EnabledAsOf *time.Time `gorm:"column:enabled_as_of"`

	ChangedBy uuid.UUID `gorm:"column:changed_by;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
