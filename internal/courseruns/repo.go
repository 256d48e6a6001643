package courseruns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// Repository encapsulates course run persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a course run repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts a new run inside the caller's transaction.
func (r *Repository) CreateTx(tx *gorm.DB, run *models.CourseRun) error {
	return tx.Create(run).Error
}

// FindByID loads a run by key. Soft-deleted runs are excluded unless
// includeDeleted is set.
func (r *Repository) FindByID(ctx context.Context, id coursekey.CourseKey, includeDeleted bool) (*models.CourseRun, error) {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	if !includeDeleted {
		query = query.Where("deleted_at IS NULL")
	}
	var run models.CourseRun
	if err := query.First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ExistsFold reports whether any non-deleted run matches the triple under
// case folding. Two keys differing only in case collide.
func (r *Repository) ExistsFold(ctx context.Context, org, number, runName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CourseRun{}).
		Where("LOWER(org) = LOWER(?) AND LOWER(number) = LOWER(?) AND LOWER(run) = LOWER(?)", org, number, runName).
		Where("deleted_at IS NULL").
		Count(&count).Error
	return count > 0, err
}

// SaveTx persists run mutations inside the caller's transaction.
func (r *Repository) SaveTx(tx *gorm.DB, run *models.CourseRun) error {
	return tx.Save(run).Error
}

// SoftDeleteTx marks the run removed without dropping enrollment history.
func (r *Repository) SoftDeleteTx(tx *gorm.DB, id coursekey.CourseKey, at time.Time) error {
	return tx.Model(&models.CourseRun{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at).Error
}

// ListByOrg returns non-deleted runs for an org ordered by key.
func (r *Repository) ListByOrg(ctx context.Context, org string) ([]models.CourseRun, error) {
	var runs []models.CourseRun
	err := r.db.WithContext(ctx).
		Where("LOWER(org) = LOWER(?) AND deleted_at IS NULL", org).
		Order("id ASC").
		Find(&runs).Error
	return runs, err
}

// ListAll returns every non-deleted run ordered by key.
func (r *Repository) ListAll(ctx context.Context) ([]models.CourseRun, error) {
	var runs []models.CourseRun
	err := r.db.WithContext(ctx).
		Where("deleted_at IS NULL").
		Order("id ASC").
		Find(&runs).Error
	return runs, err
}

// ListByIDs returns the non-deleted runs among the given keys, ordered by key.
func (r *Repository) ListByIDs(ctx context.Context, ids []coursekey.CourseKey) ([]models.CourseRun, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var runs []models.CourseRun
	err := r.db.WithContext(ctx).
		Where("id IN ? AND deleted_at IS NULL", ids).
		Order("id ASC").
		Find(&runs).Error
	return runs, err
}

// SeedDefaultModeTx inserts the default audit mode for a fresh run, ignoring
// a pre-existing row.
func (r *Repository) SeedDefaultModeTx(tx *gorm.DB, id coursekey.CourseKey) error {
	mode := models.CourseMode{
		CourseID: id,
		Slug:     enums.DefaultModeSlug,
		Name:     "Audit",
	}
	return tx.Where("course_id = ? AND slug = ?", id, enums.DefaultModeSlug).
		FirstOrCreate(&mode).Error
}

// RerunRepository persists rerun state rows.
type RerunRepository struct {
	db *gorm.DB
}

// NewRerunRepository constructs a rerun state repository.
func NewRerunRepository(db *gorm.DB) *RerunRepository {
	return &RerunRepository{db: db}
}

// CreateTx inserts a new rerun state inside the caller's transaction.
func (r *RerunRepository) CreateTx(tx *gorm.DB, state *models.CourseRerunState) error {
	return tx.Create(state).Error
}

// FindByID loads a rerun state row.
func (r *RerunRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.CourseRerunState, error) {
	var state models.CourseRerunState
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// FindByDestination loads the rerun state targeting the given run.
func (r *RerunRepository) FindByDestination(ctx context.Context, dest coursekey.CourseKey) (*models.CourseRerunState, error) {
	var state models.CourseRerunState
	if err := r.db.WithContext(ctx).Where("destination_id = ?", dest).First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// UpdateState transitions the row and records an optional message.
func (r *RerunRepository) UpdateState(ctx context.Context, id uuid.UUID, state enums.RerunStatus, message *string) error {
	updates := map[string]any{"state": state}
	if message != nil {
		updates["message"] = *message
	}
	return r.db.WithContext(ctx).
		Model(&models.CourseRerunState{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListUnsucceeded returns rerun rows that have not reached the succeeded
// state, newest first. Instructor dashboards surface these.
func (r *RerunRepository) ListUnsucceeded(ctx context.Context, limit int) ([]models.CourseRerunState, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.CourseRerunState
	err := r.db.WithContext(ctx).
		Where("state <> ?", enums.RerunStatusSucceeded).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
