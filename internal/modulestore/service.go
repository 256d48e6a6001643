package modulestore

import (
	"context"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/events"
)

const defaultTreeCacheSize = 256

type blockRepository interface {
	CreateTx(tx *gorm.DB, block *models.CourseBlock) error
	SaveTx(tx *gorm.DB, block *models.CourseBlock) error
	FindByUsageID(ctx context.Context, id coursekey.UsageKey) (*models.CourseBlock, error)
	ListByCourse(ctx context.Context, courseID coursekey.CourseKey) ([]models.CourseBlock, error)
	ListChildren(ctx context.Context, parent coursekey.UsageKey) ([]models.CourseBlock, error)
	CourseRoot(ctx context.Context, courseID coursekey.CourseKey) (*models.CourseBlock, error)
	CourseIDFold(ctx context.Context, courseID coursekey.CourseKey) (coursekey.CourseKey, error)
	DeleteSubtreeTx(tx *gorm.DB, root coursekey.UsageKey) error
	DeleteCourseTx(tx *gorm.DB, courseID coursekey.CourseKey) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventBus interface {
	Publish(ctx context.Context, evt events.Event)
	Flush(ctx context.Context, buf *events.Buffer)
}

// ServiceParams groups dependencies for the block store service.
type ServiceParams struct {
	DB            txRunner
	Repo          blockRepository
	Bus           eventBus
	TreeCacheSize int
}

// CreateBlockParams describes a new tree node. Course roots have no parent.
type CreateBlockParams struct {
	CourseID           coursekey.CourseKey
	Category           enums.BlockCategory
	BlockID            string
	DisplayName        string
	ParentID           *coursekey.UsageKey
	Position           int
	GroupAccess        dbtypes.GroupAccessMap
	VisibleToStaffOnly bool
}

// UpdateBlockParams mutates an existing node. Nil fields keep stored values.
type UpdateBlockParams struct {
	DisplayName        *string
	Position           *int
	GroupAccess        dbtypes.GroupAccessMap
	VisibleToStaffOnly *bool
}

// Service exposes the content tree operations.
type Service interface {
	HasCourse(ctx context.Context, courseID coursekey.CourseKey, ignoreCase bool) (coursekey.CourseKey, bool, error)
	GetItem(ctx context.Context, id coursekey.UsageKey) (BlockDTO, error)
	GetCourseRoot(ctx context.Context, courseID coursekey.CourseKey) (BlockDTO, error)
	GetChildren(ctx context.Context, id coursekey.UsageKey) ([]BlockDTO, error)
	GetParent(ctx context.Context, id coursekey.UsageKey) (*BlockDTO, error)
	GetCourseBlocks(ctx context.Context, courseID coursekey.CourseKey) ([]BlockDTO, error)
	CreateItem(ctx context.Context, params CreateBlockParams) (BlockDTO, error)
	UpdateItem(ctx context.Context, id coursekey.UsageKey, params UpdateBlockParams) (BlockDTO, error)
	DeleteItem(ctx context.Context, id coursekey.UsageKey) error
	BulkOperations(ctx context.Context, courseID coursekey.CourseKey, fn func(ctx context.Context) error) error
	CopyCourseContent(ctx context.Context, source, dest coursekey.CourseKey) error
}

type service struct {
	dbClient  txRunner
	repo      blockRepository
	bus       eventBus
	treeCache *lru.Cache[string, []models.CourseBlock]
}

// NewService builds a block store service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db client is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "block repo is required")
	}
	if params.Bus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event bus is required")
	}
	size := params.TreeCacheSize
	if size <= 0 {
		size = defaultTreeCacheSize
	}
	cache, err := lru.New[string, []models.CourseBlock](size)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build tree cache")
	}
	return &service{
		dbClient:  params.DB,
		repo:      params.Repo,
		bus:       params.Bus,
		treeCache: cache,
	}, nil
}

// HasCourse reports whether the run has a content tree. With ignoreCase the
// stored key is returned even when its case differs from the query.
func (s *service) HasCourse(ctx context.Context, courseID coursekey.CourseKey, ignoreCase bool) (coursekey.CourseKey, bool, error) {
	if courseID.IsZero() {
		return coursekey.CourseKey{}, false, pkgerrors.New(pkgerrors.CodeInvalidKey, "course key is required")
	}
	if !ignoreCase {
		_, err := s.repo.CourseRoot(ctx, courseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return coursekey.CourseKey{}, false, nil
			}
			return coursekey.CourseKey{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check course")
		}
		return courseID, true, nil
	}

	stored, err := s.repo.CourseIDFold(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return coursekey.CourseKey{}, false, nil
		}
		return coursekey.CourseKey{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check course")
	}
	return stored, true, nil
}

// GetItem returns one block by usage key.
func (s *service) GetItem(ctx context.Context, id coursekey.UsageKey) (BlockDTO, error) {
	block, err := s.loadBlock(ctx, id)
	if err != nil {
		return BlockDTO{}, err
	}
	return toBlockDTO(*block), nil
}

// GetCourseRoot returns the run's course block.
func (s *service) GetCourseRoot(ctx context.Context, courseID coursekey.CourseKey) (BlockDTO, error) {
	block, err := s.repo.CourseRoot(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return BlockDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "course content not found")
		}
		return BlockDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load course root")
	}
	return toBlockDTO(*block), nil
}

// GetChildren returns direct children in position order.
func (s *service) GetChildren(ctx context.Context, id coursekey.UsageKey) ([]BlockDTO, error) {
	if _, err := s.loadBlock(ctx, id); err != nil {
		return nil, err
	}
	children, err := s.repo.ListChildren(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list children")
	}
	return toBlockDTOs(children), nil
}

// GetParent returns the parent block, or nil for a course root.
func (s *service) GetParent(ctx context.Context, id coursekey.UsageKey) (*BlockDTO, error) {
	block, err := s.loadBlock(ctx, id)
	if err != nil {
		return nil, err
	}
	if block.ParentID == nil {
		return nil, nil
	}
	parent, err := s.loadBlock(ctx, *block.ParentID)
	if err != nil {
		return nil, err
	}
	dto := toBlockDTO(*parent)
	return &dto, nil
}

// GetCourseBlocks returns the whole tree for a run. Reads hit an in-process
// LRU keyed by course id; any write to the course invalidates it.
func (s *service) GetCourseBlocks(ctx context.Context, courseID coursekey.CourseKey) ([]BlockDTO, error) {
	key := courseID.String()
	if cached, ok := s.treeCache.Get(key); ok {
		return toBlockDTOs(cached), nil
	}
	blocks, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list course blocks")
	}
	s.treeCache.Add(key, blocks)
	return toBlockDTOs(blocks), nil
}

// CreateItem adds a node to the tree and signals a course publish.
func (s *service) CreateItem(ctx context.Context, params CreateBlockParams) (BlockDTO, error) {
	if params.CourseID.IsZero() {
		return BlockDTO{}, pkgerrors.New(pkgerrors.CodeInvalidKey, "course key is required")
	}
	if strings.TrimSpace(params.BlockID) == "" {
		return BlockDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "block id is required")
	}
	if params.Category.String() == "" {
		return BlockDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}
	if params.Category == enums.BlockCourse && params.ParentID != nil {
		return BlockDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "course block cannot have a parent")
	}
	if params.Category != enums.BlockCourse && params.ParentID == nil {
		return BlockDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "parent is required")
	}
	if params.ParentID != nil {
		parent, err := s.loadBlock(ctx, *params.ParentID)
		if err != nil {
			return BlockDTO{}, err
		}
		if !parent.Category.IsContainer() {
			return BlockDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "parent cannot hold children")
		}
		if !parent.CourseID.Equal(params.CourseID) {
			return BlockDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "parent belongs to another course")
		}
	}

	usageID, err := coursekey.NewUsageKey(params.CourseID, params.Category.String(), params.BlockID)
	if err != nil {
		return BlockDTO{}, pkgerrors.Wrap(pkgerrors.CodeInvalidKey, err, "invalid usage key")
	}

	groupAccess := params.GroupAccess
	if groupAccess == nil {
		groupAccess = dbtypes.GroupAccessMap{}
	}
	block := models.CourseBlock{
		UsageID:            usageID,
		CourseID:           params.CourseID,
		Category:           params.Category,
		DisplayName:        params.DisplayName,
		ParentID:           params.ParentID,
		Position:           params.Position,
		GroupAccess:        groupAccess,
		VisibleToStaffOnly: params.VisibleToStaffOnly,
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.CreateTx(tx, &block)
	})
	if err != nil {
		return BlockDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create block")
	}

	s.afterWrite(ctx, params.CourseID)
	return toBlockDTO(block), nil
}

// UpdateItem mutates one node and signals a course publish. Group access
// assignments replace wholesale; merging across ancestors happens at read
// time in the partition resolver.
func (s *service) UpdateItem(ctx context.Context, id coursekey.UsageKey, params UpdateBlockParams) (BlockDTO, error) {
	block, err := s.loadBlock(ctx, id)
	if err != nil {
		return BlockDTO{}, err
	}
	if params.DisplayName != nil {
		block.DisplayName = *params.DisplayName
	}
	if params.Position != nil {
		block.Position = *params.Position
	}
	if params.GroupAccess != nil {
		block.GroupAccess = params.GroupAccess
	}
	if params.VisibleToStaffOnly != nil {
		block.VisibleToStaffOnly = *params.VisibleToStaffOnly
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.SaveTx(tx, block)
	})
	if err != nil {
		return BlockDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update block")
	}

	s.afterWrite(ctx, block.CourseID)
	return toBlockDTO(*block), nil
}

// DeleteItem removes a node and its subtree.
func (s *service) DeleteItem(ctx context.Context, id coursekey.UsageKey) error {
	block, err := s.loadBlock(ctx, id)
	if err != nil {
		return err
	}
	if block.Category == enums.BlockCourse {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot delete the course root")
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.DeleteSubtreeTx(tx, id)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete block")
	}

	s.afterWrite(ctx, block.CourseID)
	return nil
}

// BulkOperations runs fn inside a buffered event scope. Publish signals for
// the course coalesce and fire once when the scope closes; errors from fn and
// from the flush path accumulate.
func (s *service) BulkOperations(ctx context.Context, courseID coursekey.CourseKey, fn func(ctx context.Context) error) error {
	scopeCtx, buf := events.WithBuffer(ctx)

	var errs error
	if err := fn(scopeCtx); err != nil {
		errs = multierr.Append(errs, err)
	}

	s.treeCache.Remove(courseID.String())
	s.bus.Flush(ctx, buf)
	return errs
}

// CopyCourseContent clones the source tree under the destination run,
// rewriting usage keys. Group access carries over; experiment partitions
// referenced by id stay valid because ids are course-local.
func (s *service) CopyCourseContent(ctx context.Context, source, dest coursekey.CourseKey) error {
	blocks, err := s.repo.ListByCourse(ctx, source)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load source content")
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.DeleteCourseTx(tx, dest); err != nil {
			return err
		}
		for _, block := range blocks {
			copied := block
			copied.UsageID = coursekey.MustNewUsageKey(dest, block.Category.String(), block.UsageID.BlockID())
			copied.CourseID = dest
			if block.ParentID != nil {
				parent := coursekey.MustNewUsageKey(dest, block.ParentID.Category(), block.ParentID.BlockID())
				copied.ParentID = &parent
			}
			copied.GroupAccess = block.GroupAccess.Clone()
			copied.CreatedAt = time.Time{}
			copied.UpdatedAt = time.Time{}
			if err := s.repo.CreateTx(tx, &copied); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "copy course content")
	}

	s.afterWrite(ctx, dest)
	return nil
}

func (s *service) afterWrite(ctx context.Context, courseID coursekey.CourseKey) {
	s.treeCache.Remove(courseID.String())
	s.bus.Publish(ctx, events.CoursePublished{CourseID: courseID})
}

func (s *service) loadBlock(ctx context.Context, id coursekey.UsageKey) (*models.CourseBlock, error) {
	if id.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidKey, "usage key is required")
	}
	block, err := s.repo.FindByUsageID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "block not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load block")
	}
	return block, nil
}

func toBlockDTO(block models.CourseBlock) BlockDTO {
	var parent *string
	if block.ParentID != nil {
		str := block.ParentID.String()
		parent = &str
	}
	return BlockDTO{
		UsageID:            block.UsageID.String(),
		CourseID:           block.CourseID.String(),
		Category:           block.Category,
		DisplayName:        block.DisplayName,
		ParentID:           parent,
		Position:           block.Position,
		GroupAccess:        block.GroupAccess,
		VisibleToStaffOnly: block.VisibleToStaffOnly,
		UpdatedAt:          block.UpdatedAt,
	}
}

func toBlockDTOs(blocks []models.CourseBlock) []BlockDTO {
	out := make([]BlockDTO, 0, len(blocks))
	for _, block := range blocks {
		out = append(out, toBlockDTO(block))
	}
	return out
}
