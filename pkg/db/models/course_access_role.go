package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// CourseAccessRole grants a user a role scoped to a course run, an org, or
// globally. Course-scoped rows set CourseID; org-scoped rows set Org only;
// global rows set neither.
type CourseAccessRole struct {
	ID     uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_access_role,priority:1"`
	Role   enums.CourseRole `gorm:"column:role;type:varchar(32);not null;uniqueIndex:uq_access_role,priority:2"`

	Org      string               `gorm:"column:org;type:varchar(64);uniqueIndex:uq_access_role,priority:3"`
	CourseID *coursekey.CourseKey `gorm:"column:course_id;type:varchar(255);uniqueIndex:uq_access_role,priority:4"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
