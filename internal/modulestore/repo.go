package modulestore

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// Repository encapsulates course block persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a block repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts a block inside the caller's transaction.
func (r *Repository) CreateTx(tx *gorm.DB, block *models.CourseBlock) error {
	return tx.Create(block).Error
}

// SaveTx persists block mutations inside the caller's transaction.
func (r *Repository) SaveTx(tx *gorm.DB, block *models.CourseBlock) error {
	return tx.Save(block).Error
}

// FindByUsageID loads one block.
func (r *Repository) FindByUsageID(ctx context.Context, id coursekey.UsageKey) (*models.CourseBlock, error) {
	var block models.CourseBlock
	if err := r.db.WithContext(ctx).Where("usage_id = ?", id).First(&block).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

// ListByCourse returns every block for a run ordered parent-first, then by
// position within siblings.
func (r *Repository) ListByCourse(ctx context.Context, courseID coursekey.CourseKey) ([]models.CourseBlock, error) {
	var blocks []models.CourseBlock
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("parent_id ASC NULLS FIRST").
		Order("position ASC").
		Find(&blocks).Error
	return blocks, err
}

// ListChildren returns the direct children of a block ordered by position.
func (r *Repository) ListChildren(ctx context.Context, parent coursekey.UsageKey) ([]models.CourseBlock, error) {
	var blocks []models.CourseBlock
	err := r.db.WithContext(ctx).
		Where("parent_id = ?", parent).
		Order("position ASC").
		Find(&blocks).Error
	return blocks, err
}

// CourseRoot returns the single course-category block of a run.
func (r *Repository) CourseRoot(ctx context.Context, courseID coursekey.CourseKey) (*models.CourseBlock, error) {
	var block models.CourseBlock
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND category = ?", courseID, enums.BlockCourse).
		First(&block).Error
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// CourseIDFold resolves a stored course id matching the key under case
// folding. Returns gorm.ErrRecordNotFound when no run has content.
func (r *Repository) CourseIDFold(ctx context.Context, courseID coursekey.CourseKey) (coursekey.CourseKey, error) {
	var block models.CourseBlock
	err := r.db.WithContext(ctx).
		Where("LOWER(course_id) = LOWER(?) AND category = ?", courseID, enums.BlockCourse).
		First(&block).Error
	if err != nil {
		return coursekey.CourseKey{}, err
	}
	return block.CourseID, nil
}

// DeleteSubtreeTx removes the block and all descendants inside the caller's
// transaction. Walks breadth first; course trees are shallow.
func (r *Repository) DeleteSubtreeTx(tx *gorm.DB, root coursekey.UsageKey) error {
	frontier := []coursekey.UsageKey{root}
	for len(frontier) > 0 {
		var children []models.CourseBlock
		if err := tx.Where("parent_id IN ?", frontier).Find(&children).Error; err != nil {
			return err
		}
		if err := tx.Where("usage_id IN ?", frontier).Delete(&models.CourseBlock{}).Error; err != nil {
			return err
		}
		frontier = frontier[:0]
		for _, child := range children {
			frontier = append(frontier, child.UsageID)
		}
	}
	return nil
}

// DeleteCourseTx removes every block of a run.
func (r *Repository) DeleteCourseTx(tx *gorm.DB, courseID coursekey.CourseKey) error {
	return tx.Where("course_id = ?", courseID).Delete(&models.CourseBlock{}).Error
}
