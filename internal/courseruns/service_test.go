package courseruns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/events"
	"github.com/openlearnhq/courseware-backend/pkg/outbox"
	"github.com/openlearnhq/courseware-backend/pkg/visibility"
)

type stubRunRepo struct {
	runs       map[string]*models.CourseRun
	existsFold bool
	existsErr  error
	created    []*models.CourseRun
	saved      []*models.CourseRun
	deleted    []coursekey.CourseKey
	seeded     []coursekey.CourseKey
	listByOrg  []models.CourseRun
	listByIDs  []models.CourseRun
	lastIDs    []coursekey.CourseKey
}

func (s *stubRunRepo) CreateTx(tx *gorm.DB, run *models.CourseRun) error {
	s.created = append(s.created, run)
	return nil
}

func (s *stubRunRepo) FindByID(ctx context.Context, id coursekey.CourseKey, includeDeleted bool) (*models.CourseRun, error) {
	run, ok := s.runs[id.String()]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if run.IsDeleted() && !includeDeleted {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *stubRunRepo) ExistsFold(ctx context.Context, org, number, runName string) (bool, error) {
	return s.existsFold, s.existsErr
}

func (s *stubRunRepo) SaveTx(tx *gorm.DB, run *models.CourseRun) error {
	s.saved = append(s.saved, run)
	return nil
}

func (s *stubRunRepo) SoftDeleteTx(tx *gorm.DB, id coursekey.CourseKey, at time.Time) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRunRepo) ListByOrg(ctx context.Context, org string) ([]models.CourseRun, error) {
	return s.listByOrg, nil
}

func (s *stubRunRepo) ListByIDs(ctx context.Context, ids []coursekey.CourseKey) ([]models.CourseRun, error) {
	s.lastIDs = ids
	return s.listByIDs, nil
}

func (s *stubRunRepo) SeedDefaultModeTx(tx *gorm.DB, id coursekey.CourseKey) error {
	s.seeded = append(s.seeded, id)
	return nil
}

type stubRerunRepo struct {
	created     []*models.CourseRerunState
	transitions []enums.RerunStatus
	byDest      *models.CourseRerunState
}

func (s *stubRerunRepo) CreateTx(tx *gorm.DB, state *models.CourseRerunState) error {
	state.ID = uuid.New()
	s.created = append(s.created, state)
	return nil
}

func (s *stubRerunRepo) FindByDestination(ctx context.Context, dest coursekey.CourseKey) (*models.CourseRerunState, error) {
	if s.byDest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.byDest, nil
}

func (s *stubRerunRepo) UpdateState(ctx context.Context, id uuid.UUID, state enums.RerunStatus, message *string) error {
	s.transitions = append(s.transitions, state)
	return nil
}

func (s *stubRerunRepo) ListUnsucceeded(ctx context.Context, limit int) ([]models.CourseRerunState, error) {
	return nil, nil
}

type stubTx struct{ err error }

func (s *stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.err != nil {
		return s.err
	}
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubBus struct {
	published []events.Event
}

func (s *stubBus) Publish(ctx context.Context, evt events.Event) {
	s.published = append(s.published, evt)
}

type stubCopier struct {
	err    error
	copies int
}

func (s *stubCopier) CopyCourseContent(ctx context.Context, source, dest coursekey.CourseKey) error {
	s.copies++
	return s.err
}

func newTestService(t *testing.T, repo *stubRunRepo, rerun *stubRerunRepo, ob *stubOutbox, bus *stubBus, copier ContentCopier) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		DB:        &stubTx{},
		Repo:      repo,
		RerunRepo: rerun,
		Outbox:    ob,
		Bus:       bus,
		Copier:    copier,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func validCreateParams() CreateParams {
	return CreateParams{
		Org:         "OpenLearnX",
		Number:      "CS101",
		Run:         "2026_T1",
		DisplayName: "Intro to Computer Science",
		Start:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		ActorID:     uuid.New(),
	}
}

func TestCreate_SeedsAuditModeAndEmits(t *testing.T) {
	repo := &stubRunRepo{runs: map[string]*models.CourseRun{}}
	ob := &stubOutbox{}
	bus := &stubBus{}
	svc := newTestService(t, repo, &stubRerunRepo{}, ob, bus, nil)

	dto, err := svc.Create(context.Background(), validCreateParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dto.ID != "course-v1:OpenLearnX+CS101+2026_T1" {
		t.Fatalf("unexpected id %q", dto.ID)
	}
	if dto.CatalogVisibility != enums.CatalogVisibilityBoth {
		t.Fatalf("expected default visibility both, got %s", dto.CatalogVisibility)
	}
	if len(repo.seeded) != 1 {
		t.Fatalf("expected default mode seeded once, got %d", len(repo.seeded))
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventCourseRunCreated {
		t.Fatalf("expected course_run_created outbox event")
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected course published signal")
	}
}

func TestCreate_CaseInsensitiveCollision(t *testing.T) {
	repo := &stubRunRepo{runs: map[string]*models.CourseRun{}, existsFold: true}
	svc := newTestService(t, repo, &stubRerunRepo{}, &stubOutbox{}, &stubBus{}, nil)

	_, err := svc.Create(context.Background(), validCreateParams())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDuplicateKey {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("run should not be created on collision")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(t, &stubRunRepo{runs: map[string]*models.CourseRun{}}, &stubRerunRepo{}, &stubOutbox{}, &stubBus{}, nil)

	bad := validCreateParams()
	bad.Org = "Open/LearnX"
	if _, err := svc.Create(context.Background(), bad); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeInvalidKey {
		t.Fatalf("expected invalid key, got %v", err)
	}

	bad = validCreateParams()
	bad.DisplayName = "  "
	if _, err := svc.Create(context.Background(), bad); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	bad = validCreateParams()
	end := bad.Start.Add(-time.Hour)
	bad.End = &end
	if _, err := svc.Create(context.Background(), bad); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for end before start, got %v", err)
	}
}

func storedRun(key coursekey.CourseKey) *models.CourseRun {
	return &models.CourseRun{
		ID:                key,
		Org:               key.Org(),
		Number:            key.Course(),
		Run:               key.Run(),
		DisplayName:       "Intro",
		Start:             time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		CatalogVisibility: enums.CatalogVisibilityBoth,
	}
}

func TestGet_ExcludesDeleted(t *testing.T) {
	key := coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")
	run := storedRun(key)
	deletedAt := time.Now()
	run.DeletedAt = &deletedAt
	repo := &stubRunRepo{runs: map[string]*models.CourseRun{key.String(): run}}
	svc := newTestService(t, repo, &stubRerunRepo{}, &stubOutbox{}, &stubBus{}, nil)

	_, err := svc.Get(context.Background(), key)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for deleted run, got %v", err)
	}
}

func TestUpdate_PartialAndPublish(t *testing.T) {
	key := coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")
	repo := &stubRunRepo{runs: map[string]*models.CourseRun{key.String(): storedRun(key)}}
	bus := &stubBus{}
	svc := newTestService(t, repo, &stubRerunRepo{}, &stubOutbox{}, bus, nil)

	selfPaced := true
	newStart := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	dto, err := svc.Update(context.Background(), key, UpdateParams{SelfPaced: &selfPaced, Start: &newStart})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !dto.SelfPaced || !dto.Start.Equal(newStart) {
		t.Fatalf("update not applied: %+v", dto)
	}
	if dto.DisplayName != "Intro" {
		t.Fatalf("untouched field changed: %q", dto.DisplayName)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected publish signal after update")
	}
}

func TestDelete_EmitsAndSignals(t *testing.T) {
	key := coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")
	repo := &stubRunRepo{runs: map[string]*models.CourseRun{key.String(): storedRun(key)}}
	ob := &stubOutbox{}
	bus := &stubBus{}
	svc := newTestService(t, repo, &stubRerunRepo{}, ob, bus, nil)

	if err := svc.Delete(context.Background(), key, uuid.New()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.deleted) != 1 {
		t.Fatalf("expected soft delete")
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventCourseRunDeleted {
		t.Fatalf("expected course_run_deleted outbox event")
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected course deleted signal")
	}
}

func TestListByKeys_DropsCCX(t *testing.T) {
	base := coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")
	ccx, err := base.WithCCX(7)
	if err != nil {
		t.Fatalf("with ccx: %v", err)
	}
	repo := &stubRunRepo{}
	svc := newTestService(t, repo, &stubRerunRepo{}, &stubOutbox{}, &stubBus{}, nil)

	if _, err := svc.ListByKeys(context.Background(), []coursekey.CourseKey{base, ccx}); err != nil {
		t.Fatalf("list by keys: %v", err)
	}
	if len(repo.lastIDs) != 1 || !repo.lastIDs[0].Equal(base) {
		t.Fatalf("ccx key should be filtered, got %v", repo.lastIDs)
	}
}

func TestRerun_CopiesAndSucceeds(t *testing.T) {
	key := coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")
	repo := &stubRunRepo{runs: map[string]*models.CourseRun{key.String(): storedRun(key)}}
	rerun := &stubRerunRepo{}
	copier := &stubCopier{}
	svc := newTestService(t, repo, rerun, &stubOutbox{}, &stubBus{}, copier)

	dto, err := svc.Rerun(context.Background(), key, RerunParams{
		Run:     "2027_T1",
		Start:   time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC),
		ActorID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if dto.DestinationID != "course-v1:OpenLearnX+CS101+2027_T1" {
		t.Fatalf("unexpected destination %q", dto.DestinationID)
	}
	if dto.State != enums.RerunStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", dto.State)
	}
	if copier.copies != 1 {
		t.Fatalf("expected one content copy")
	}
	want := []enums.RerunStatus{enums.RerunStatusInProgress, enums.RerunStatusSucceeded}
	if len(rerun.transitions) != 2 || rerun.transitions[0] != want[0] || rerun.transitions[1] != want[1] {
		t.Fatalf("unexpected transitions %v", rerun.transitions)
	}
}

func TestRerun_CopyFailureMarksFailed(t *testing.T) {
	key := coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")
	repo := &stubRunRepo{runs: map[string]*models.CourseRun{key.String(): storedRun(key)}}
	rerun := &stubRerunRepo{}
	copier := &stubCopier{err: errors.New("copy blew up")}
	svc := newTestService(t, repo, rerun, &stubOutbox{}, &stubBus{}, copier)

	dto, err := svc.Rerun(context.Background(), key, RerunParams{
		Run:     "2027_T1",
		Start:   time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC),
		ActorID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("rerun request should not fail: %v", err)
	}
	if dto.State != enums.RerunStatusFailed {
		t.Fatalf("expected failed state, got %s", dto.State)
	}
	if dto.Message == nil || *dto.Message != "copy blew up" {
		t.Fatalf("expected failure message, got %v", dto.Message)
	}
}

func TestRerun_DestinationCollision(t *testing.T) {
	key := coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")
	repo := &stubRunRepo{
		runs:       map[string]*models.CourseRun{key.String(): storedRun(key)},
		existsFold: true,
	}
	svc := newTestService(t, repo, &stubRerunRepo{}, &stubOutbox{}, &stubBus{}, nil)

	_, err := svc.Rerun(context.Background(), key, RerunParams{
		Run:     "2026_t1",
		Start:   time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC),
		ActorID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDuplicateKey {
		t.Fatalf("expected duplicate key, got %v", err)
	}
}

func TestCatalog_FiltersByVisibility(t *testing.T) {
	repo := &stubRunRepo{
		listByOrg: []models.CourseRun{
			{ID: coursekey.MustNew("OpenLearnX", "CS101", "2026_T1"), CatalogVisibility: enums.CatalogVisibilityBoth},
			{ID: coursekey.MustNew("OpenLearnX", "CS102", "2026_T1"), CatalogVisibility: enums.CatalogVisibilityAbout},
			{ID: coursekey.MustNew("OpenLearnX", "CS103", "2026_T1"), CatalogVisibility: enums.CatalogVisibilityNone},
		},
	}
	svc := newTestService(t, repo, &stubRerunRepo{}, &stubOutbox{}, &stubBus{}, nil)

	listed, err := svc.Catalog(context.Background(), "OpenLearnX", false)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(listed) != 1 || listed[0].Number != "CS101" {
		t.Fatalf("expected only the both-visible run, got %+v", listed)
	}

	staffListed, err := svc.Catalog(context.Background(), "OpenLearnX", true)
	if err != nil {
		t.Fatalf("Catalog staff: %v", err)
	}
	if len(staffListed) != 3 {
		t.Fatalf("staff should see every run, got %d", len(staffListed))
	}
}

func TestGetVisible_AboutSurface(t *testing.T) {
	key := coursekey.MustNew("OpenLearnX", "CS102", "2026_T1")
	repo := &stubRunRepo{runs: map[string]*models.CourseRun{
		key.String(): {ID: key, CatalogVisibility: enums.CatalogVisibilityAbout},
	}}
	svc := newTestService(t, repo, &stubRerunRepo{}, &stubOutbox{}, &stubBus{}, nil)

	if _, err := svc.GetVisible(context.Background(), key, visibility.SurfaceAbout, false); err != nil {
		t.Fatalf("about surface should show the run: %v", err)
	}

	_, err := svc.GetVisible(context.Background(), key, visibility.SurfaceCatalog, false)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("catalog surface should hide the run, got %v", err)
	}
}
