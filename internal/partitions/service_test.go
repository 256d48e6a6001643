package partitions

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/internal/gating"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

var partitionTestCourse = coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")

type stubPartitionRepo struct {
	defs        map[int64]*models.UserPartitionDef
	assignments map[string]*models.UserPartitionAssignment
	created     []models.UserPartitionDef
}

func newStubPartitionRepo() *stubPartitionRepo {
	return &stubPartitionRepo{
		defs:        make(map[int64]*models.UserPartitionDef),
		assignments: make(map[string]*models.UserPartitionAssignment),
	}
}

func (s *stubPartitionRepo) ListByCourse(_ context.Context, _ coursekey.CourseKey) ([]models.UserPartitionDef, error) {
	var rows []models.UserPartitionDef
	for _, def := range s.defs {
		if def.Active {
			rows = append(rows, *def)
		}
	}
	return rows, nil
}

func (s *stubPartitionRepo) FindByID(_ context.Context, _ coursekey.CourseKey, partitionID int64) (*models.UserPartitionDef, error) {
	def, ok := s.defs[partitionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return def, nil
}

func (s *stubPartitionRepo) Create(_ context.Context, row *models.UserPartitionDef) error {
	s.defs[row.ID] = row
	s.created = append(s.created, *row)
	return nil
}

func (s *stubPartitionRepo) FindAssignment(_ context.Context, _ coursekey.CourseKey, partitionID int64, userID string) (*models.UserPartitionAssignment, error) {
	row, ok := s.assignments[assignmentKey(partitionID, userID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (s *stubPartitionRepo) UpsertAssignment(_ context.Context, row *models.UserPartitionAssignment) error {
	s.assignments[assignmentKey(row.PartitionID, row.UserID)] = row
	return nil
}

func assignmentKey(partitionID int64, userID string) string {
	return userID + "|" + strconv.FormatInt(partitionID, 10)
}

type stubEnrollReader struct {
	rows map[uuid.UUID]*models.Enrollment
}

func (s *stubEnrollReader) FindByUserAndCourse(_ context.Context, userID uuid.UUID, _ coursekey.CourseKey) (*models.Enrollment, error) {
	row, ok := s.rows[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

type stubGateChecker struct {
	enabledBefore time.Time
}

func (s *stubGateChecker) EnabledForEnrollment(_ context.Context, _ gating.ScopeRef, created time.Time) (bool, error) {
	return !created.Before(s.enabledBefore), nil
}

type stubHoldbackChecker struct {
	held map[uuid.UUID]bool
}

func (s *stubHoldbackChecker) InHoldback(_ context.Context, userID uuid.UUID) (bool, error) {
	return s.held[userID], nil
}

type partitionFixture struct {
	repo        *stubPartitionRepo
	enrollments *stubEnrollReader
	gate        *stubGateChecker
	holdback    *stubHoldbackChecker
	svc         Service
}

func newPartitionFixture(t *testing.T) *partitionFixture {
	t.Helper()
	f := &partitionFixture{
		repo:        newStubPartitionRepo(),
		enrollments: &stubEnrollReader{rows: make(map[uuid.UUID]*models.Enrollment)},
		gate:        &stubGateChecker{enabledBefore: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)},
		holdback:    &stubHoldbackChecker{held: make(map[uuid.UUID]bool)},
	}
	svc, err := NewService(ServiceParams{
		Repo:        f.repo,
		Enrollments: f.enrollments,
		Gating:      f.gate,
		Experiments: f.holdback,
		SiteName:    "default",
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *partitionFixture) enroll(userID uuid.UUID, mode enums.ModeSlug, active bool, created time.Time) {
	f.enrollments.rows[userID] = &models.Enrollment{
		UserID:    userID,
		CourseID:  partitionTestCourse,
		Mode:      mode,
		IsActive:  active,
		CreatedAt: created,
	}
}

func assertPartitionErrCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

func TestEnrollmentTrackGroupPerMode(t *testing.T) {
	ctx := context.Background()
	f := newPartitionFixture(t)
	created := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		mode enums.ModeSlug
		want int64
	}{
		{enums.ModeAudit, 1},
		{enums.ModeVerified, 3},
		{enums.ModeCredit, 3},
		{enums.ModeMasters, 6},
	}
	for _, tc := range cases {
		userID := uuid.New()
		f.enroll(userID, tc.mode, true, created)
		group, err := f.svc.GroupFor(ctx, userID, partitionTestCourse, EnrollmentTrackPartitionID)
		if err != nil {
			t.Fatalf("GroupFor(%s): %v", tc.mode, err)
		}
		if group == nil || group.ID != tc.want {
			t.Fatalf("mode %s: expected group %d, got %+v", tc.mode, tc.want, group)
		}
	}
}

func TestEnrollmentTrackNoGroupWithoutActiveEnrollment(t *testing.T) {
	ctx := context.Background()
	f := newPartitionFixture(t)

	unenrolled := uuid.New()
	group, err := f.svc.GroupFor(ctx, unenrolled, partitionTestCourse, EnrollmentTrackPartitionID)
	if err != nil {
		t.Fatalf("GroupFor: %v", err)
	}
	if group != nil {
		t.Fatalf("expected no group for unenrolled user, got %+v", group)
	}

	inactive := uuid.New()
	f.enroll(inactive, enums.ModeVerified, false, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	group, err = f.svc.GroupFor(ctx, inactive, partitionTestCourse, EnrollmentTrackPartitionID)
	if err != nil {
		t.Fatalf("GroupFor: %v", err)
	}
	if group != nil {
		t.Fatalf("expected no group for inactive enrollment, got %+v", group)
	}
}

func TestContentGateGroupResolution(t *testing.T) {
	ctx := context.Background()
	f := newPartitionFixture(t)
	afterCutover := time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)

	gatedAudit := uuid.New()
	f.enroll(gatedAudit, enums.ModeAudit, true, afterCutover)
	group, err := f.svc.GroupFor(ctx, gatedAudit, partitionTestCourse, ContentGatePartitionID)
	if err != nil {
		t.Fatalf("GroupFor: %v", err)
	}
	if group == nil || group.ID != LimitedAccessGroupID {
		t.Fatalf("expected limited access for gated audit learner, got %+v", group)
	}

	verified := uuid.New()
	f.enroll(verified, enums.ModeVerified, true, afterCutover)
	group, err = f.svc.GroupFor(ctx, verified, partitionTestCourse, ContentGatePartitionID)
	if err != nil {
		t.Fatalf("GroupFor: %v", err)
	}
	if group == nil || group.ID != FullAccessGroupID {
		t.Fatalf("expected full access for verified learner, got %+v", group)
	}

	held := uuid.New()
	f.enroll(held, enums.ModeAudit, true, afterCutover)
	f.holdback.held[held] = true
	group, err = f.svc.GroupFor(ctx, held, partitionTestCourse, ContentGatePartitionID)
	if err != nil {
		t.Fatalf("GroupFor: %v", err)
	}
	if group == nil || group.ID != FullAccessGroupID {
		t.Fatalf("expected full access for held-back learner, got %+v", group)
	}
}

func TestContentGateEnrollmentBeforeCutoverKeepsFullAccess(t *testing.T) {
	ctx := context.Background()
	f := newPartitionFixture(t)

	userID := uuid.New()
	f.enroll(userID, enums.ModeAudit, true, time.Date(2020, 5, 31, 0, 0, 0, 0, time.UTC))
	group, err := f.svc.GroupFor(ctx, userID, partitionTestCourse, ContentGatePartitionID)
	if err != nil {
		t.Fatalf("GroupFor: %v", err)
	}
	if group == nil || group.ID != FullAccessGroupID {
		t.Fatalf("expected full access for pre-cutover enrollment, got %+v", group)
	}
}

func TestStoredPartitionAssignment(t *testing.T) {
	ctx := context.Background()
	f := newPartitionFixture(t)

	f.repo.defs[100] = &models.UserPartitionDef{
		ID:       100,
		CourseID: partitionTestCourse,
		Scheme:   SchemeCohort,
		Name:     "Cohorts",
		Active:   true,
		Groups: dbtypes.PartitionGroupList{
			{ID: 10, Name: "Alpha"},
			{ID: 11, Name: "Beta"},
		},
	}

	userID := uuid.New()
	if err := f.svc.AssignToGroup(ctx, partitionTestCourse, 100, userID, 11); err != nil {
		t.Fatalf("AssignToGroup: %v", err)
	}
	group, err := f.svc.GroupFor(ctx, userID, partitionTestCourse, 100)
	if err != nil {
		t.Fatalf("GroupFor: %v", err)
	}
	if group == nil || group.ID != 11 || group.Name != "Beta" {
		t.Fatalf("expected pinned group Beta, got %+v", group)
	}

	unassigned := uuid.New()
	group, err = f.svc.GroupFor(ctx, unassigned, partitionTestCourse, 100)
	if err != nil {
		t.Fatalf("GroupFor: %v", err)
	}
	if group != nil {
		t.Fatalf("expected no group for unassigned user, got %+v", group)
	}

	_, err = f.svc.GroupFor(ctx, userID, partitionTestCourse, 999)
	assertPartitionErrCode(t, err, pkgerrors.CodeNotFound)
}

func TestStoredGroupDropsRemovedGroup(t *testing.T) {
	ctx := context.Background()
	f := newPartitionFixture(t)

	f.repo.defs[100] = &models.UserPartitionDef{
		ID:       100,
		CourseID: partitionTestCourse,
		Scheme:   SchemeCohort,
		Name:     "Cohorts",
		Active:   true,
		Groups:   dbtypes.PartitionGroupList{{ID: 10, Name: "Alpha"}},
	}
	userID := uuid.New()
	f.repo.assignments[assignmentKey(100, userID.String())] = &models.UserPartitionAssignment{
		CourseID:    partitionTestCourse,
		PartitionID: 100,
		UserID:      userID.String(),
		GroupID:     99,
	}

	group, err := f.svc.GroupFor(ctx, userID, partitionTestCourse, 100)
	if err != nil {
		t.Fatalf("GroupFor: %v", err)
	}
	if group != nil {
		t.Fatalf("expected no group when the pinned group is gone, got %+v", group)
	}
}

func TestPartitionsForCourseIncludesSchemeBacked(t *testing.T) {
	ctx := context.Background()
	f := newPartitionFixture(t)

	f.repo.defs[100] = &models.UserPartitionDef{
		ID:       100,
		CourseID: partitionTestCourse,
		Scheme:   SchemeCohort,
		Name:     "Cohorts",
		Active:   true,
		Groups:   dbtypes.PartitionGroupList{{ID: 10, Name: "Alpha"}},
	}

	rows, err := f.svc.PartitionsForCourse(ctx, partitionTestCourse)
	if err != nil {
		t.Fatalf("PartitionsForCourse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 partitions, got %d", len(rows))
	}
	if rows[0].ID != EnrollmentTrackPartitionID || rows[0].Scheme != SchemeEnrollmentTrack {
		t.Fatalf("expected enrollment track partition first, got %+v", rows[0])
	}
	if rows[1].ID != ContentGatePartitionID || len(rows[1].Groups) != 2 {
		t.Fatalf("expected content gate partition second, got %+v", rows[1])
	}
	if rows[2].ID != 100 {
		t.Fatalf("expected stored partition last, got %+v", rows[2])
	}
}

func TestCreatePartitionValidation(t *testing.T) {
	ctx := context.Background()
	f := newPartitionFixture(t)

	groups := []Group{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}

	_, err := f.svc.CreatePartition(ctx, partitionTestCourse, CreatePartitionParams{ID: 51, Name: "X", Scheme: SchemeCohort, Groups: groups})
	assertPartitionErrCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.CreatePartition(ctx, partitionTestCourse, CreatePartitionParams{ID: 100, Name: "X", Scheme: SchemeEnrollmentTrack, Groups: groups})
	assertPartitionErrCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.CreatePartition(ctx, partitionTestCourse, CreatePartitionParams{ID: 100, Name: "X", Scheme: SchemeCohort, Groups: []Group{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}}})
	assertPartitionErrCode(t, err, pkgerrors.CodeValidation)

	created, err := f.svc.CreatePartition(ctx, partitionTestCourse, CreatePartitionParams{ID: 100, Name: "Cohorts", Scheme: SchemeCohort, Groups: groups})
	if err != nil {
		t.Fatalf("CreatePartition: %v", err)
	}
	if created.ID != 100 || !created.Active || len(created.Groups) != 2 {
		t.Fatalf("unexpected created partition: %+v", created)
	}
}

func TestAssignToGroupValidatesTarget(t *testing.T) {
	ctx := context.Background()
	f := newPartitionFixture(t)
	userID := uuid.New()

	err := f.svc.AssignToGroup(ctx, partitionTestCourse, EnrollmentTrackPartitionID, userID, 1)
	assertPartitionErrCode(t, err, pkgerrors.CodeValidation)

	err = f.svc.AssignToGroup(ctx, partitionTestCourse, 100, userID, 1)
	assertPartitionErrCode(t, err, pkgerrors.CodeNotFound)

	f.repo.defs[100] = &models.UserPartitionDef{
		ID:       100,
		CourseID: partitionTestCourse,
		Scheme:   SchemeCohort,
		Name:     "Cohorts",
		Active:   true,
		Groups:   dbtypes.PartitionGroupList{{ID: 10, Name: "Alpha"}},
	}
	err = f.svc.AssignToGroup(ctx, partitionTestCourse, 100, userID, 99)
	assertPartitionErrCode(t, err, pkgerrors.CodeValidation)
}
