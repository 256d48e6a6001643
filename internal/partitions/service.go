package partitions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/internal/gating"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

type partitionRepository interface {
	ListByCourse(ctx context.Context, courseID coursekey.CourseKey) ([]models.UserPartitionDef, error)
	FindByID(ctx context.Context, courseID coursekey.CourseKey, partitionID int64) (*models.UserPartitionDef, error)
	Create(ctx context.Context, row *models.UserPartitionDef) error
	FindAssignment(ctx context.Context, courseID coursekey.CourseKey, partitionID int64, userID string) (*models.UserPartitionAssignment, error)
	UpsertAssignment(ctx context.Context, row *models.UserPartitionAssignment) error
}

type enrollmentReader interface {
	FindByUserAndCourse(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*models.Enrollment, error)
}

type gateChecker interface {
	EnabledForEnrollment(ctx context.Context, ref gating.ScopeRef, enrollmentCreated time.Time) (bool, error)
}

type holdbackChecker interface {
	InHoldback(ctx context.Context, userID uuid.UUID) (bool, error)
}

// CreatePartitionParams carries one course-authored partition definition.
type CreatePartitionParams struct {
	ID     int64
	Name   string
	Scheme string
	Groups []Group
}

// ServiceParams groups dependencies for the partition resolver.
type ServiceParams struct {
	Repo        partitionRepository
	Enrollments enrollmentReader
	Gating      gateChecker
	Experiments holdbackChecker
	SiteName    string
}

// Service maps learners onto partition groups.
type Service interface {
	PartitionsForCourse(ctx context.Context, courseID coursekey.CourseKey) ([]Partition, error)
	// GroupFor resolves the learner's group within one partition. A nil
	// group means the learner is in no group there, which fails any
	// group_access restriction on that partition.
	GroupFor(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, partitionID int64) (*Group, error)
	CreatePartition(ctx context.Context, courseID coursekey.CourseKey, params CreatePartitionParams) (Partition, error)
	AssignToGroup(ctx context.Context, courseID coursekey.CourseKey, partitionID int64, userID uuid.UUID, groupID int64) error
}

type service struct {
	repo        partitionRepository
	enrollments enrollmentReader
	gating      gateChecker
	experiments holdbackChecker
	siteName    string
}

// NewService builds a partition resolver.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partition repo is required")
	}
	if params.Enrollments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment reader is required")
	}
	if params.Gating == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gating service is required")
	}
	siteName := params.SiteName
	if siteName == "" {
		siteName = "default"
	}
	return &service{
		repo:        params.Repo,
		enrollments: params.Enrollments,
		gating:      params.Gating,
		experiments: params.Experiments,
		siteName:    siteName,
	}, nil
}

// PartitionsForCourse returns the two scheme-backed partitions followed by
// the course's stored ones.
func (s *service) PartitionsForCourse(ctx context.Context, courseID coursekey.CourseKey) ([]Partition, error) {
	out := []Partition{enrollmentTrackPartition(), contentGatePartition()}
	rows, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list partitions")
	}
	for _, row := range rows {
		out = append(out, toPartition(row))
	}
	return out, nil
}

// GroupFor resolves one learner's group in one partition.
func (s *service) GroupFor(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, partitionID int64) (*Group, error) {
	switch partitionID {
	case EnrollmentTrackPartitionID:
		return s.enrollmentTrackGroup(ctx, userID, courseID)
	case ContentGatePartitionID:
		return s.contentGateGroup(ctx, userID, courseID)
	default:
		return s.storedGroup(ctx, userID, courseID, partitionID)
	}
}

// enrollmentTrackGroup derives the group from the active enrollment's mode.
// No active enrollment means no group.
func (s *service) enrollmentTrackGroup(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*Group, error) {
	enrollment, err := s.activeEnrollment(ctx, userID, courseID)
	if err != nil || enrollment == nil {
		return nil, err
	}
	group, ok := enrollmentTrackGroupFor(enrollment.Mode)
	if !ok {
		return nil, nil
	}
	return &group, nil
}

// contentGateGroup puts the learner in full_access unless the gate is in
// effect for their enrollment: paid tracks, held-back users and enrollments
// predating the cutover all keep full access.
func (s *service) contentGateGroup(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*Group, error) {
	enrollment, err := s.activeEnrollment(ctx, userID, courseID)
	if err != nil || enrollment == nil {
		return nil, err
	}

	full := Group{ID: FullAccessGroupID, Name: "Full-access Users"}
	if enrollment.Mode.IsVerifiedLike() {
		return &full, nil
	}
	if s.experiments != nil {
		held, err := s.experiments.InHoldback(ctx, userID)
		if err != nil {
			return nil, err
		}
		if held {
			return &full, nil
		}
	}

	ref := gating.ScopeRef{Site: s.siteName, Org: courseID.Org(), CourseID: courseID}
	gated, err := s.gating.EnabledForEnrollment(ctx, ref, enrollment.CreatedAt)
	if err != nil {
		return nil, err
	}
	if !gated {
		return &full, nil
	}
	return &Group{ID: LimitedAccessGroupID, Name: "Limited-access Users"}, nil
}

// storedGroup looks up the learner's pinned assignment in a stored partition.
func (s *service) storedGroup(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, partitionID int64) (*Group, error) {
	def, err := s.repo.FindByID(ctx, courseID, partitionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "partition not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load partition")
	}
	if !def.Active {
		return nil, nil
	}

	assignment, err := s.repo.FindAssignment(ctx, courseID, partitionID, userID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
	}
	for _, group := range def.Groups {
		if group.ID == assignment.GroupID {
			return &Group{ID: group.ID, Name: group.Name}, nil
		}
	}
	// The pinned group was removed from the definition.
	return nil, nil
}

// CreatePartition stores a course-authored partition definition.
func (s *service) CreatePartition(ctx context.Context, courseID coursekey.CourseKey, params CreatePartitionParams) (Partition, error) {
	if params.ID < MinCoursePartitionID {
		return Partition{}, pkgerrors.New(pkgerrors.CodeValidation, "course partition ids start at 100")
	}
	if strings.TrimSpace(params.Name) == "" {
		return Partition{}, pkgerrors.New(pkgerrors.CodeValidation, "partition name is required")
	}
	if params.Scheme != SchemeCohort && params.Scheme != SchemeRandom {
		return Partition{}, pkgerrors.New(pkgerrors.CodeValidation, "course partitions use the cohort or random scheme")
	}
	if len(params.Groups) == 0 {
		return Partition{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one group is required")
	}
	seen := make(map[int64]bool, len(params.Groups))
	groups := make(dbtypes.PartitionGroupList, 0, len(params.Groups))
	for _, group := range params.Groups {
		if seen[group.ID] {
			return Partition{}, pkgerrors.New(pkgerrors.CodeValidation, "group ids must be unique")
		}
		seen[group.ID] = true
		groups = append(groups, dbtypes.PartitionGroup{ID: group.ID, Name: group.Name})
	}

	row := models.UserPartitionDef{
		ID:       params.ID,
		CourseID: courseID,
		Scheme:   params.Scheme,
		Name:     params.Name,
		Active:   true,
		Groups:   groups,
	}
	if err := s.repo.Create(ctx, &row); err != nil {
		return Partition{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create partition")
	}
	return toPartition(row), nil
}

// AssignToGroup pins a learner into a stored partition group.
func (s *service) AssignToGroup(ctx context.Context, courseID coursekey.CourseKey, partitionID int64, userID uuid.UUID, groupID int64) error {
	if partitionID < MinCoursePartitionID {
		return pkgerrors.New(pkgerrors.CodeValidation, "scheme-backed partitions cannot take assignments")
	}
	def, err := s.repo.FindByID(ctx, courseID, partitionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "partition not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load partition")
	}
	found := false
	for _, group := range def.Groups {
		if group.ID == groupID {
			found = true
			break
		}
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeValidation, "group does not exist in the partition")
	}

	row := models.UserPartitionAssignment{
		CourseID:    courseID,
		PartitionID: partitionID,
		UserID:      userID.String(),
		GroupID:     groupID,
	}
	if err := s.repo.UpsertAssignment(ctx, &row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save assignment")
	}
	return nil
}

func (s *service) activeEnrollment(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	if !enrollment.IsActive {
		return nil, nil
	}
	return enrollment, nil
}

func toPartition(row models.UserPartitionDef) Partition {
	groups := make([]Group, 0, len(row.Groups))
	for _, group := range row.Groups {
		groups = append(groups, Group{ID: group.ID, Name: group.Name})
	}
	return Partition{
		ID:     row.ID,
		Name:   row.Name,
		Scheme: row.Scheme,
		Active: row.Active,
		Groups: groups,
	}
}
