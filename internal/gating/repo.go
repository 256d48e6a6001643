package gating

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/db/models"
)

// Repository encapsulates the two stacked-config tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a gating config repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ContentGatingChain loads every row relevant to the ref, broadest scope
// first and oldest first within a scope, so a fold over the slice lands on
// the newest row of the most specific scope.
func (r *Repository) ContentGatingChain(ctx context.Context, ref ScopeRef) ([]models.ContentTypeGatingConfig, error) {
	var rows []models.ContentTypeGatingConfig
	err := r.chainQuery(ctx, ref).Find(&rows).Error
	return rows, err
}

// DurationLimitChain is ContentGatingChain for the duration-limit table.
func (r *Repository) DurationLimitChain(ctx context.Context, ref ScopeRef) ([]models.CourseDurationLimitConfig, error) {
	var rows []models.CourseDurationLimitConfig
	err := r.chainQuery(ctx, ref).Find(&rows).Error
	return rows, err
}

func (r *Repository) chainQuery(ctx context.Context, ref ScopeRef) *gorm.DB {
	return r.db.WithContext(ctx).
		Where(
			"scope = ? OR (scope = ? AND site = ?) OR (scope = ? AND org = ?) OR (scope = ? AND course_id = ?)",
			"global", "site", ref.Site, "org", ref.Org, "course", ref.CourseID,
		).
		Order("CASE scope WHEN 'global' THEN 0 WHEN 'site' THEN 1 WHEN 'org' THEN 2 ELSE 3 END ASC").
		Order("created_at ASC")
}

// InsertContentGating appends a row; the stack is append-only so prior rows
// remain as audit history.
func (r *Repository) InsertContentGating(ctx context.Context, row *models.ContentTypeGatingConfig) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// InsertDurationLimit appends a duration-limit row.
func (r *Repository) InsertDurationLimit(ctx context.Context, row *models.CourseDurationLimitConfig) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// ListContentGating returns the whole gating stack for the admin surface.
func (r *Repository) ListContentGating(ctx context.Context) ([]models.ContentTypeGatingConfig, error) {
	var rows []models.ContentTypeGatingConfig
	err := r.db.WithContext(ctx).
		Order("CASE scope WHEN 'global' THEN 0 WHEN 'site' THEN 1 WHEN 'org' THEN 2 ELSE 3 END ASC").
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// ListDurationLimit returns the whole duration-limit stack.
func (r *Repository) ListDurationLimit(ctx context.Context) ([]models.CourseDurationLimitConfig, error) {
	var rows []models.CourseDurationLimitConfig
	err := r.db.WithContext(ctx).
		Order("CASE scope WHEN 'global' THEN 0 WHEN 'site' THEN 1 WHEN 'org' THEN 2 ELSE 3 END ASC").
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
