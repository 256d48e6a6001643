package enrollment

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/pagination"
)

// Repository encapsulates enrollment ledger persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an enrollment repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByUserAndCourse loads the ledger row for a pair, active or not.
func (r *Repository) FindByUserAndCourse(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*models.Enrollment, error) {
	var row models.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByID loads one enrollment.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	var row models.Enrollment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateTx inserts a ledger row inside the caller's transaction. The unique
// constraint on (user_id, course_id) backstops concurrent enrolls.
func (r *Repository) CreateTx(tx *gorm.DB, row *models.Enrollment) error {
	return tx.Create(row).Error
}

// SaveTx persists mutations inside the caller's transaction.
func (r *Repository) SaveTx(tx *gorm.DB, row *models.Enrollment) error {
	return tx.Save(row).Error
}

// CountActive returns the active-enrollment count for a run.
func (r *Repository) CountActive(ctx context.Context, courseID coursekey.CourseKey) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND is_active = ?", courseID, true).
		Count(&count).Error
	return count, err
}

// ListActiveByUser returns the learner's active enrollments ordered by the
// original enrollment time, resuming after the cursor when one is given.
func (r *Repository) ListActiveByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Enrollment, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true)
	if cursor != nil {
		q = q.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []models.Enrollment
	err := q.
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// UpsertAttributeTx writes one attribute keyed by (enrollment, namespace, name).
func (r *Repository) UpsertAttributeTx(tx *gorm.DB, attr *models.EnrollmentAttribute) error {
	var existing models.EnrollmentAttribute
	err := tx.
		Where("enrollment_id = ? AND namespace = ? AND name = ?", attr.EnrollmentID, attr.Namespace, attr.Name).
		First(&existing).Error
	if err == nil {
		attr.ID = existing.ID
		attr.CreatedAt = existing.CreatedAt
		return tx.Save(attr).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return tx.Create(attr).Error
}

// ListAttributes returns every attribute of an enrollment ordered by namespace
// then name.
func (r *Repository) ListAttributes(ctx context.Context, enrollmentID uuid.UUID) ([]models.EnrollmentAttribute, error) {
	var rows []models.EnrollmentAttribute
	err := r.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("namespace ASC").
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}
