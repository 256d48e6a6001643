package roles

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// Repository encapsulates course access role grants.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a role repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts one grant. The unique index on (user, role, org, course)
// rejects duplicates.
func (r *Repository) Create(ctx context.Context, row *models.CourseAccessRole) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// Delete removes a grant matching the full scope tuple.
func (r *Repository) Delete(ctx context.Context, userID uuid.UUID, role enums.CourseRole, org string, courseID *coursekey.CourseKey) error {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role)
	if org == "" {
		query = query.Where("org = '' OR org IS NULL")
	} else {
		query = query.Where("org = ?", org)
	}
	if courseID == nil {
		query = query.Where("course_id IS NULL")
	} else {
		query = query.Where("course_id = ?", *courseID)
	}
	result := query.Delete(&models.CourseAccessRole{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByUser returns every grant held by the user, oldest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourseAccessRole, error) {
	var rows []models.CourseAccessRole
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// ListByCourse returns the grants scoped to one course run.
func (r *Repository) ListByCourse(ctx context.Context, courseID coursekey.CourseKey) ([]models.CourseAccessRole, error) {
	var rows []models.CourseAccessRole
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// FindUser loads the user row backing a grant check.
func (r *Repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var row models.User
	err := r.db.WithContext(ctx).
		Where("id = ?", userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
