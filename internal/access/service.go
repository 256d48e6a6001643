package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/internal/masquerade"
	"github.com/openlearnhq/courseware-backend/internal/modulestore"
	"github.com/openlearnhq/courseware-backend/internal/partitions"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
	"github.com/openlearnhq/courseware-backend/pkg/metrics"
)

type blockReader interface {
	GetItem(ctx context.Context, id coursekey.UsageKey) (modulestore.BlockDTO, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id coursekey.CourseKey, includeDeleted bool) (*models.CourseRun, error)
}

type enrollmentReader interface {
	FindByUserAndCourse(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*models.Enrollment, error)
}

type scheduleEngine interface {
	ExpirationFor(ctx context.Context, enrollment *models.Enrollment, run *models.CourseRun) (*time.Time, error)
}

type groupResolver interface {
	GroupFor(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, partitionID int64) (*partitions.Group, error)
	PartitionsForCourse(ctx context.Context, courseID coursekey.CourseKey) ([]partitions.Partition, error)
}

type roleChecker interface {
	HasStaffAccess(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error)
	IsBetaTester(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error)
}

type spoofReader interface {
	Get(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*masquerade.Directive, error)
}

type accountReader interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// ServiceParams groups dependencies for the access decision service.
type ServiceParams struct {
	Blocks      blockReader
	Courses     courseReader
	Enrollments enrollmentReader
	Schedules   scheduleEngine
	Partitions  groupResolver
	Roles       roleChecker
	Masquerade  spoofReader
	Users       accountReader
	Logger      *logger.Logger
	Metrics     *metrics.AccessMetrics
}

// Service answers whether a learner may see a block at an instant. One
// request takes one snapshot of enrollment, schedule and partition state, so
// batch answers are mutually consistent.
type Service interface {
	CanAccess(ctx context.Context, req Request) (Decision, error)
	// CanAccessBatch answers for many blocks of one course against a single
	// snapshot. The result is keyed by usage key string.
	CanAccessBatch(ctx context.Context, req Request, usageIDs []coursekey.UsageKey) (map[string]Decision, error)
}

type service struct {
	blocks      blockReader
	courses     courseReader
	enrollments enrollmentReader
	schedules   scheduleEngine
	partitions  groupResolver
	roles       roleChecker
	spoofs      spoofReader
	accounts    accountReader
	logg        *logger.Logger
	metrics     *metrics.AccessMetrics
}

// NewService builds the access decision service.
func NewService(params ServiceParams) (Service, error) {
	if params.Blocks == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "block reader is required")
	}
	if params.Courses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course reader is required")
	}
	if params.Enrollments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment reader is required")
	}
	if params.Schedules == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "schedule engine is required")
	}
	if params.Partitions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partition resolver is required")
	}
	if params.Roles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role checker is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &service{
		blocks:      params.Blocks,
		courses:     params.Courses,
		enrollments: params.Enrollments,
		schedules:   params.Schedules,
		partitions:  params.Partitions,
		roles:       params.Roles,
		spoofs:      params.Masquerade,
		accounts:    params.Users,
		logg:        params.Logger,
		metrics:     params.Metrics,
	}, nil
}

// snapshot is the per-request view of everything a decision depends on. It
// is taken once so every block in a batch sees the same state.
type snapshot struct {
	at         time.Time
	course     *models.CourseRun
	userID     uuid.UUID
	staff      bool
	beta       bool
	enrollment *models.Enrollment
	expiration *time.Time
	spoof      *masquerade.Directive
	schemes    map[int64]string
	blocks     map[string]modulestore.BlockDTO
	groups     map[int64]*partitions.Group
}

// CanAccess answers one access question.
func (s *service) CanAccess(ctx context.Context, req Request) (Decision, error) {
	out, err := s.CanAccessBatch(ctx, req, []coursekey.UsageKey{req.UsageID})
	if err != nil {
		return Decision{}, err
	}
	return out[req.UsageID.String()], nil
}

// CanAccessBatch evaluates many blocks of one course against one snapshot.
func (s *service) CanAccessBatch(ctx context.Context, req Request, usageIDs []coursekey.UsageKey) (map[string]Decision, error) {
	started := time.Now()
	view := req.View
	if view == "" {
		view = ViewStudent
	}
	if view != ViewStudent && view != ViewPublic {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("view %q is not available to learners", view))
	}
	if len(usageIDs) == 0 {
		return map[string]Decision{}, nil
	}
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	courseID := usageIDs[0].CourseKey()
	for _, id := range usageIDs[1:] {
		if !id.CourseKey().Equal(courseID) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch blocks must share one course")
		}
	}

	snap, err := s.takeSnapshot(ctx, req.UserID, courseID, at)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Decision, len(usageIDs))
	for _, id := range usageIDs {
		decision, err := s.decide(ctx, snap, id, req.RequireEnrollment)
		if err != nil {
			return nil, err
		}
		out[id.String()] = decision
		s.record(view, decision)
	}
	if s.metrics != nil {
		s.metrics.ObserveDuration(view, time.Since(started))
	}
	return out, nil
}

func (s *service) takeSnapshot(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, at time.Time) (*snapshot, error) {
	course, err := s.courses.FindByID(ctx, courseID, false)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load course")
	}

	snap := &snapshot{
		at:     at,
		course: course,
		userID: userID,
		blocks: make(map[string]modulestore.BlockDTO),
		groups: make(map[int64]*partitions.Group),
	}

	staff, err := s.roles.HasStaffAccess(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	snap.staff = staff

	if s.spoofs != nil {
		spoof, err := s.spoofs.Get(ctx, userID, courseID)
		if err != nil {
			return nil, err
		}
		snap.spoof = spoof
	}
	// Any student spoof drops the blanket staff override; that is the whole
	// point of previewing.
	if snap.spoof != nil {
		snap.staff = false
		if snap.spoof.AsSpecificLearner() {
			target, err := s.resolveTarget(ctx, snap.spoof.Username)
			if err != nil {
				return nil, err
			}
			snap.userID = target.ID
		}
	}

	beta, err := s.roles.IsBetaTester(ctx, snap.userID, courseID)
	if err != nil {
		return nil, err
	}
	snap.beta = beta

	enrollment, err := s.loadActiveEnrollment(ctx, snap.userID, courseID)
	if err != nil {
		return nil, err
	}
	snap.enrollment = enrollment

	if enrollment != nil {
		expiration, err := s.schedules.ExpirationFor(ctx, enrollment, course)
		if err != nil {
			return nil, err
		}
		snap.expiration = expiration
	}

	defs, err := s.partitions.PartitionsForCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	snap.schemes = make(map[int64]string, len(defs))
	for _, def := range defs {
		snap.schemes[def.ID] = def.Scheme
	}
	return snap, nil
}

func (s *service) decide(ctx context.Context, snap *snapshot, usageID coursekey.UsageKey, requireEnrollment bool) (Decision, error) {
	chain, err := s.ancestorChain(ctx, snap, usageID)
	if err != nil {
		return Decision{}, err
	}

	if snap.staff {
		return Allow(), nil
	}

	for _, block := range chain {
		if block.VisibleToStaffOnly {
			return Deny(enums.AccessReasonHiddenForNonstaff,
				fmt.Sprintf("block %s is limited to course staff", block.UsageID)), nil
		}
	}

	if decision, open := s.checkCourseWindow(snap, requireEnrollment); !open {
		return decision, nil
	}

	if requireEnrollment && snap.enrollment == nil {
		return Deny(enums.AccessReasonUnenrolled, "no active enrollment"), nil
	}

	if snap.enrollment != nil && snap.expiration != nil && !snap.at.Before(*snap.expiration) {
		return Deny(enums.AccessReasonDurationExpired,
			fmt.Sprintf("audit access expired at %s", snap.expiration.Format(time.RFC3339))), nil
	}

	merged := mergeGroupAccess(chain)
	for _, pid := range merged.PartitionIDs() {
		allowed := merged[pid]
		group, err := s.resolveGroup(ctx, snap, int64(pid))
		if err != nil {
			return Decision{}, err
		}
		if group != nil && containsGroup(allowed, group.ID) {
			continue
		}
		return s.partitionDenial(snap, int64(pid)), nil
	}
	return Allow(), nil
}

// checkCourseWindow applies the time gates on the run itself. Beta testers
// enter days_early_for_beta days ahead of the advertised start.
func (s *service) checkCourseWindow(snap *snapshot, requireEnrollment bool) (Decision, bool) {
	start := snap.course.Start
	if snap.beta && snap.course.DaysEarlyForBeta != nil {
		start = start.AddDate(0, 0, -*snap.course.DaysEarlyForBeta)
	}
	if start.After(snap.at) {
		return Deny(enums.AccessReasonNotStarted,
			fmt.Sprintf("course starts %s", start.Format(time.RFC3339))), false
	}
	if requireEnrollment && snap.course.HasEnded(snap.at) {
		return Deny(enums.AccessReasonEnded,
			fmt.Sprintf("course ended %s", snap.course.End.Format(time.RFC3339))), false
	}
	return Decision{}, true
}

// ancestorChain returns the block and its ancestors, block first. Blocks are
// memoized on the snapshot so batch walks share reads.
func (s *service) ancestorChain(ctx context.Context, snap *snapshot, usageID coursekey.UsageKey) ([]modulestore.BlockDTO, error) {
	var chain []modulestore.BlockDTO
	current := usageID
	for i := 0; ; i++ {
		if i > maxTreeDepth {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "content tree too deep or cyclic")
		}
		block, err := s.loadBlock(ctx, snap, current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, block)
		if block.ParentID == nil {
			return chain, nil
		}
		parent, err := coursekey.ParseUsage(*block.ParentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "bad parent reference")
		}
		current = parent
	}
}

const maxTreeDepth = 64

func (s *service) loadBlock(ctx context.Context, snap *snapshot, usageID coursekey.UsageKey) (modulestore.BlockDTO, error) {
	key := usageID.String()
	if block, ok := snap.blocks[key]; ok {
		return block, nil
	}
	block, err := s.blocks.GetItem(ctx, usageID)
	if err != nil {
		return modulestore.BlockDTO{}, err
	}
	snap.blocks[key] = block
	return block, nil
}

// resolveGroup memoizes the learner's group per partition and applies any
// group spoof from the masquerade directive.
func (s *service) resolveGroup(ctx context.Context, snap *snapshot, partitionID int64) (*partitions.Group, error) {
	if snap.spoof != nil && snap.spoof.GroupID != nil &&
		snap.spoof.PartitionID != nil && *snap.spoof.PartitionID == partitionID {
		return &partitions.Group{ID: *snap.spoof.GroupID}, nil
	}
	if group, ok := snap.groups[partitionID]; ok {
		return group, nil
	}
	group, err := s.partitions.GroupFor(ctx, snap.userID, snap.course.ID, partitionID)
	if err != nil {
		return nil, err
	}
	snap.groups[partitionID] = group
	return group, nil
}

func (s *service) partitionDenial(snap *snapshot, partitionID int64) Decision {
	developerMessage := fmt.Sprintf("not a member of an allowed group in partition %d", partitionID)
	switch {
	case partitionID == partitions.EnrollmentTrackPartitionID:
		return Deny(enums.AccessReasonModeRestricted, developerMessage)
	case snap.schemes[partitionID] == partitions.SchemeCohort:
		return Deny(enums.AccessReasonCohortGated, developerMessage)
	default:
		return Deny(enums.AccessReasonGroupRestricted, developerMessage)
	}
}

func (s *service) loadActiveEnrollment(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	if !enrollment.IsActive {
		return nil, nil
	}
	return enrollment, nil
}

func (s *service) resolveTarget(ctx context.Context, username string) (*models.User, error) {
	if s.accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account reader not configured")
	}
	target, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no user named %q", username))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load masquerade target")
	}
	return target, nil
}

func (s *service) record(view string, decision Decision) {
	if s.metrics == nil {
		return
	}
	if decision.Allowed {
		s.metrics.IncAllowed(view)
		return
	}
	s.metrics.IncDenied(view, decision.Reason.String())
}

// mergeGroupAccess folds the chain's restrictions into one map. A partition
// absent from a block restricts nothing; present keys intersect down the
// chain.
func mergeGroupAccess(chain []modulestore.BlockDTO) dbtypes.GroupAccessMap {
	merged := make(dbtypes.GroupAccessMap)
	for _, block := range chain {
		for pid, allowed := range block.GroupAccess {
			if existing, ok := merged[pid]; ok {
				merged[pid] = intersectGroups(existing, allowed)
			} else {
				merged[pid] = append([]int64(nil), allowed...)
			}
		}
	}
	return merged
}

func intersectGroups(a, b []int64) []int64 {
	inA := make(map[int64]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	out := make([]int64, 0, len(b))
	for _, id := range b {
		if inA[id] {
			out = append(out, id)
		}
	}
	return out
}

func containsGroup(allowed []int64, groupID int64) bool {
	for _, id := range allowed {
		if id == groupID {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
		return true
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}
