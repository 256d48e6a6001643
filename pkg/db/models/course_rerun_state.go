package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// CourseRerunState tracks an asynchronous rerun copy from a source run into
// a destination run. State transitions follow the rerun status machine.
type CourseRerunState struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SourceID      coursekey.CourseKey `gorm:"column:source_id;type:varchar(255);not null;index"`
	DestinationID coursekey.CourseKey `gorm:"column:destination_id;type:varchar(255);not null;uniqueIndex:uq_rerun_destination"`

	State       enums.RerunStatus `gorm:"column:state;type:varchar(16);not null;default:'initiated'"`
	DisplayName string            `gorm:"column:display_name;type:varchar(255);not null"`
	Message     *string           `gorm:"column:message;type:text"`

	RequestedBy uuid.UUID `gorm:"column:requested_by;type:uuid;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
