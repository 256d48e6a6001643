package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents the canonical identity entity. GlobalStaff grants the
// platform-wide superuser bit checked before any per-course rules.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Username     string     `gorm:"column:username;type:varchar(150);not null;uniqueIndex"`
	Email        string     `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	FullName     string     `gorm:"column:full_name;type:varchar(255)"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	GlobalStaff  bool       `gorm:"column:global_staff;not null;default:false"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
