package modes

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// Repository encapsulates course mode persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a mode repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListByCourse returns every mode row for a run ordered by position then slug.
func (r *Repository) ListByCourse(ctx context.Context, courseID coursekey.CourseKey) ([]models.CourseMode, error) {
	var modes []models.CourseMode
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("position ASC").
		Order("slug ASC").
		Find(&modes).Error
	return modes, err
}

// FindBySlug loads one mode row.
func (r *Repository) FindBySlug(ctx context.Context, courseID coursekey.CourseKey, slug enums.ModeSlug) (*models.CourseMode, error) {
	var mode models.CourseMode
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND slug = ?", courseID, slug).
		First(&mode).Error
	if err != nil {
		return nil, err
	}
	return &mode, nil
}

// Upsert creates or replaces the mode row keyed by (course, slug).
func (r *Repository) Upsert(ctx context.Context, mode *models.CourseMode) error {
	var existing models.CourseMode
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND slug = ?", mode.CourseID, mode.Slug).
		First(&existing).Error
	if err == nil {
		mode.ID = existing.ID
		mode.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(mode).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.db.WithContext(ctx).Create(mode).Error
}

// Delete removes the mode row keyed by (course, slug).
func (r *Repository) Delete(ctx context.Context, courseID coursekey.CourseKey, slug enums.ModeSlug) error {
	return r.db.WithContext(ctx).
		Where("course_id = ? AND slug = ?", courseID, slug).
		Delete(&models.CourseMode{}).Error
}
