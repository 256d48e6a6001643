package models

import (
	"time"

	"github.com/google/uuid"
)

// ExperimentData is a per-user (namespace, key) value bucket for
// experiment assignments such as the gating holdback.
type ExperimentData struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_experiment_data,priority:1"`
	Namespace string    `gorm:"column:namespace;type:varchar(255);not null;uniqueIndex:uq_experiment_data,priority:2"`
	Key       string    `gorm:"column:key;type:varchar(255);not null;uniqueIndex:uq_experiment_data,priority:3"`
	Value     string    `gorm:"column:value;type:varchar(512);not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
