package models

import (
	"time"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// CourseBlock is one node of a course run's content tree. Every block is
// reachable by exactly one path from the run's course block.
type CourseBlock struct {
	UsageID  coursekey.UsageKey  `gorm:"column:usage_id;type:varchar(512);primaryKey"`
	CourseID coursekey.CourseKey `gorm:"column:course_id;type:varchar(255);not null;index:idx_course_blocks_course"`

	Category    enums.BlockCategory `gorm:"column:category;type:varchar(64);not null"`
	DisplayName string              `gorm:"column:display_name;type:varchar(255)"`

	ParentID *coursekey.UsageKey `gorm:"column:parent_id;type:varchar(512);index"`
	Position int                 `gorm:"column:position;not null;default:0"`

	GroupAccess        dbtypes.GroupAccessMap `gorm:"column:group_access;type:jsonb;not null;default:'{}'"`
	VisibleToStaffOnly bool                   `gorm:"column:visible_to_staff_only;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
