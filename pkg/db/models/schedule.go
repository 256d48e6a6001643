package models

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is derived 1:1 from an enrollment: the content-availability date
// and the verified-upgrade deadline. Expirations are computed on read, never
// stored.
type Schedule struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EnrollmentID uuid.UUID `gorm:"column:enrollment_id;type:uuid;not null;uniqueIndex:uq_schedule_enrollment"`

	Start           time.Time  `gorm:"column:start;not null"`
	UpgradeDeadline *time.Time `gorm:"column:upgrade_deadline"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
