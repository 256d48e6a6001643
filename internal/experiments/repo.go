package experiments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/db/models"
)

// Repository encapsulates per-user experiment data persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an experiment data repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Find loads one (user, namespace, key) bucket.
func (r *Repository) Find(ctx context.Context, userID uuid.UUID, namespace, key string) (*models.ExperimentData, error) {
	var row models.ExperimentData
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND namespace = ? AND key = ?", userID, namespace, key).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert writes a bucket keyed by (user, namespace, key).
func (r *Repository) Upsert(ctx context.Context, row *models.ExperimentData) error {
	var existing models.ExperimentData
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND namespace = ? AND key = ?", row.UserID, row.Namespace, row.Key).
		First(&existing).Error
	if err == nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(row).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// ListByNamespace returns the user's buckets under one namespace.
func (r *Repository) ListByNamespace(ctx context.Context, userID uuid.UUID, namespace string) ([]models.ExperimentData, error) {
	var rows []models.ExperimentData
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND namespace = ?", userID, namespace).
		Order("key ASC").
		Find(&rows).Error
	return rows, err
}
