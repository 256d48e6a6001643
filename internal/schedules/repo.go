package schedules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// CourseScheduleRow is a schedule joined with the enrollment it derives from,
// used when rebasing a whole course.
type CourseScheduleRow struct {
	models.Schedule
	EnrollmentUserID    uuid.UUID      `gorm:"column:enrollment_user_id"`
	EnrollmentMode      enums.ModeSlug `gorm:"column:enrollment_mode"`
	EnrollmentCreatedAt time.Time      `gorm:"column:enrollment_created_at"`
}

// Repository encapsulates schedule persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a schedule repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByEnrollment loads the 1:1 schedule row.
func (r *Repository) FindByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*models.Schedule, error) {
	var row models.Schedule
	err := r.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertTx writes the schedule row keyed by enrollment inside the caller's
// transaction.
func (r *Repository) UpsertTx(tx *gorm.DB, row *models.Schedule) error {
	var existing models.Schedule
	err := tx.Where("enrollment_id = ?", row.EnrollmentID).First(&existing).Error
	if err == nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		return tx.Save(row).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return tx.Create(row).Error
}

// Save persists mutations to an existing row.
func (r *Repository) Save(ctx context.Context, row *models.Schedule) error {
	return r.db.WithContext(ctx).Save(row).Error
}

// ListForCourse returns every schedule of a run's active enrollments together
// with the enrollment fields the rebase needs.
func (r *Repository) ListForCourse(ctx context.Context, courseID coursekey.CourseKey) ([]CourseScheduleRow, error) {
	var rows []CourseScheduleRow
	err := r.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Select("schedules.*, enrollments.user_id AS enrollment_user_id, enrollments.mode AS enrollment_mode, enrollments.created_at AS enrollment_created_at").
		Joins("JOIN enrollments ON enrollments.id = schedules.enrollment_id").
		Where("enrollments.course_id = ? AND enrollments.is_active = ?", courseID, true).
		Find(&rows).Error
	return rows, err
}
