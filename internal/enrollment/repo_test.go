package enrollment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	"github.com/openlearnhq/courseware-backend/pkg/pagination"
)

func setupEnrollmentTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	enrollments := `
CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  mode TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (user_id, course_id)
);`
	attributes := `
CREATE TABLE IF NOT EXISTS enrollment_attributes (
  id TEXT PRIMARY KEY,
  enrollment_id TEXT NOT NULL,
  namespace TEXT NOT NULL,
  name TEXT NOT NULL,
  value TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (enrollment_id, namespace, name)
);`
	require.NoError(t, db.Exec(enrollments).Error)
	require.NoError(t, db.Exec(attributes).Error)
	return db
}

func mustCourseKey(t *testing.T, s string) coursekey.CourseKey {
	t.Helper()
	key, err := coursekey.Parse(s)
	require.NoError(t, err)
	return key
}

func seedEnrollment(t *testing.T, db *gorm.DB, userID uuid.UUID, course string, active bool, createdAt time.Time) models.Enrollment {
	t.Helper()
	row := models.Enrollment{
		ID:        uuid.New(),
		UserID:    userID,
		CourseID:  mustCourseKey(t, course),
		Mode:      enums.ModeAudit,
		IsActive:  active,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestListActiveByUserCursorPagination(t *testing.T) {
	db := setupEnrollmentTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	var seeded []models.Enrollment
	for i, course := range []string{
		"course-v1:OpenLearnX+CS101+2026_T1",
		"course-v1:OpenLearnX+CS102+2026_T1",
		"course-v1:OpenLearnX+CS103+2026_T1",
		"course-v1:OpenLearnX+CS104+2026_T1",
	} {
		seeded = append(seeded, seedEnrollment(t, db, userID, course, true, base.Add(time.Duration(i)*time.Minute)))
	}
	// Noise: an inactive row and another learner's row.
	seedEnrollment(t, db, userID, "course-v1:OpenLearnX+HIST1+2026_T1", false, base)
	seedEnrollment(t, db, uuid.New(), "course-v1:OpenLearnX+CS101+2026_T1", true, base)

	first, err := repo.ListActiveByUser(context.Background(), userID, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, seeded[0].ID, first[0].ID)
	assert.Equal(t, seeded[1].ID, first[1].ID)

	cursor := &pagination.Cursor{CreatedAt: first[1].CreatedAt, ID: first[1].ID}
	second, err := repo.ListActiveByUser(context.Background(), userID, cursor, 10)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, seeded[2].ID, second[0].ID)
	assert.Equal(t, seeded[3].ID, second[1].ID)
}

func TestCountActiveIgnoresInactiveRows(t *testing.T) {
	db := setupEnrollmentTestDB(t)
	repo := NewRepository(db)
	course := "course-v1:OpenLearnX+CS101+2026_T1"
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	seedEnrollment(t, db, uuid.New(), course, true, base)
	seedEnrollment(t, db, uuid.New(), course, true, base)
	seedEnrollment(t, db, uuid.New(), course, false, base)

	count, err := repo.CountActive(context.Background(), mustCourseKey(t, course))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUpsertAttributeTxReplacesValue(t *testing.T) {
	db := setupEnrollmentTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	row := seedEnrollment(t, db, userID, "course-v1:OpenLearnX+CS101+2026_T1", true, time.Now().UTC())

	attr := models.EnrollmentAttribute{
		ID:           uuid.New(),
		EnrollmentID: row.ID,
		Namespace:    "credit",
		Name:         "provider_id",
		Value:        "hogwarts",
	}
	require.NoError(t, repo.UpsertAttributeTx(db, &attr))

	replacement := models.EnrollmentAttribute{
		ID:           uuid.New(),
		EnrollmentID: row.ID,
		Namespace:    "credit",
		Name:         "provider_id",
		Value:        "mit",
	}
	require.NoError(t, repo.UpsertAttributeTx(db, &replacement))

	stored, err := repo.ListAttributes(context.Background(), row.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, attr.ID, stored[0].ID)
	assert.Equal(t, "mit", stored[0].Value)
}
