package models

import (
	"time"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
)

// UserPartitionDef is a persisted partition definition for a course run.
// Scheme-backed partitions (enrollment track, content gate) are synthesized
// at read time and never stored; only course-authored partitions such as
// cohorts and random A/B splits live here.
type UserPartitionDef struct {
	ID       int64               `gorm:"column:id;primaryKey;autoIncrement:false"`
	CourseID coursekey.CourseKey `gorm:"column:course_id;type:varchar(255);not null;index:idx_partitions_course"`

	Scheme      string `gorm:"column:scheme;type:varchar(64);not null"`
	Name        string `gorm:"column:name;type:varchar(255);not null"`
	Description string `gorm:"column:description;type:text"`
	Active      bool   `gorm:"column:active;not null;default:true"`

	Groups dbtypes.PartitionGroupList `gorm:"column:groups;type:jsonb;not null;default:'[]'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// UserPartitionAssignment pins a user to a group inside a stored partition
// (cohort membership, sticky random-split choices).
type UserPartitionAssignment struct {
	ID          int64               `gorm:"column:id;primaryKey;autoIncrement"`
	CourseID    coursekey.CourseKey `gorm:"column:course_id;type:varchar(255);not null;uniqueIndex:uq_partition_assignment,priority:1"`
	PartitionID int64               `gorm:"column:partition_id;not null;uniqueIndex:uq_partition_assignment,priority:2"`
	UserID      string              `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_partition_assignment,priority:3"`
	GroupID     int64               `gorm:"column:group_id;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
