package partitions

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
)

// Repository encapsulates stored partition definitions and assignments.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a partition repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListByCourse returns the course's active stored partitions ordered by id.
func (r *Repository) ListByCourse(ctx context.Context, courseID coursekey.CourseKey) ([]models.UserPartitionDef, error) {
	var rows []models.UserPartitionDef
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND active = ?", courseID, true).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// FindByID loads one stored partition of a course, active or not.
func (r *Repository) FindByID(ctx context.Context, courseID coursekey.CourseKey, partitionID int64) (*models.UserPartitionDef, error) {
	var row models.UserPartitionDef
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND id = ?", courseID, partitionID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Create inserts a stored partition definition.
func (r *Repository) Create(ctx context.Context, row *models.UserPartitionDef) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// Save persists mutations to a stored partition definition.
func (r *Repository) Save(ctx context.Context, row *models.UserPartitionDef) error {
	return r.db.WithContext(ctx).Save(row).Error
}

// FindAssignment loads a user's pinned group in a stored partition.
func (r *Repository) FindAssignment(ctx context.Context, courseID coursekey.CourseKey, partitionID int64, userID string) (*models.UserPartitionAssignment, error) {
	var row models.UserPartitionAssignment
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND partition_id = ? AND user_id = ?", courseID, partitionID, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertAssignment pins the user's group, replacing any prior pin.
func (r *Repository) UpsertAssignment(ctx context.Context, row *models.UserPartitionAssignment) error {
	var existing models.UserPartitionAssignment
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND partition_id = ? AND user_id = ?", row.CourseID, row.PartitionID, row.UserID).
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
