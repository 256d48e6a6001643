package courseruns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/events"
	"github.com/openlearnhq/courseware-backend/pkg/outbox"
	"github.com/openlearnhq/courseware-backend/pkg/visibility"
)

// ContentCopier clones course content from one run into another. The block
// store implements this; the indirection keeps the registry free of a direct
// dependency on it.
type ContentCopier interface {
	CopyCourseContent(ctx context.Context, source, dest coursekey.CourseKey) error
}

type courseRunRepository interface {
	CreateTx(tx *gorm.DB, run *models.CourseRun) error
	FindByID(ctx context.Context, id coursekey.CourseKey, includeDeleted bool) (*models.CourseRun, error)
	ExistsFold(ctx context.Context, org, number, runName string) (bool, error)
	SaveTx(tx *gorm.DB, run *models.CourseRun) error
	SoftDeleteTx(tx *gorm.DB, id coursekey.CourseKey, at time.Time) error
	ListByOrg(ctx context.Context, org string) ([]models.CourseRun, error)
	ListByIDs(ctx context.Context, ids []coursekey.CourseKey) ([]models.CourseRun, error)
	SeedDefaultModeTx(tx *gorm.DB, id coursekey.CourseKey) error
}

type rerunRepository interface {
	CreateTx(tx *gorm.DB, state *models.CourseRerunState) error
	FindByDestination(ctx context.Context, dest coursekey.CourseKey) (*models.CourseRerunState, error)
	UpdateState(ctx context.Context, id uuid.UUID, state enums.RerunStatus, message *string) error
	ListUnsucceeded(ctx context.Context, limit int) ([]models.CourseRerunState, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type eventPublisher interface {
	Publish(ctx context.Context, evt events.Event)
}

// ServiceParams groups dependencies for the course run service.
type ServiceParams struct {
	DB        txRunner
	Repo      courseRunRepository
	RerunRepo rerunRepository
	Outbox    outboxEmitter
	Bus       eventPublisher
	Copier    ContentCopier
}

// Service exposes lifecycle operations on the course run registry.
type Service interface {
	Create(ctx context.Context, params CreateParams) (CourseRunDTO, error)
	Get(ctx context.Context, id coursekey.CourseKey) (CourseRunDTO, error)
	// GetVisible applies the learner-facing visibility rules for about pages;
	// staff bypass catalog visibility but never soft deletion.
	GetVisible(ctx context.Context, id coursekey.CourseKey, surface visibility.Surface, isStaff bool) (CourseRunDTO, error)
	Update(ctx context.Context, id coursekey.CourseKey, params UpdateParams) (CourseRunDTO, error)
	Delete(ctx context.Context, id coursekey.CourseKey, actorID uuid.UUID) error
	ListByOrg(ctx context.Context, org string) ([]CourseRunDTO, error)
	// Catalog lists the org's runs a given audience may browse.
	Catalog(ctx context.Context, org string, isStaff bool) ([]CourseRunDTO, error)
	ListByKeys(ctx context.Context, ids []coursekey.CourseKey) ([]CourseRunDTO, error)
	Rerun(ctx context.Context, source coursekey.CourseKey, params RerunParams) (RerunStateDTO, error)
	RerunState(ctx context.Context, dest coursekey.CourseKey) (RerunStateDTO, error)
	UnsucceededReruns(ctx context.Context, limit int) ([]RerunStateDTO, error)
}

type service struct {
	dbClient  txRunner
	repo      courseRunRepository
	rerunRepo rerunRepository
	outboxSvc outboxEmitter
	bus       eventPublisher
	copier    ContentCopier
}

// NewService builds a course run service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db client is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course run repo is required")
	}
	if params.RerunRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rerun repo is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox service is required")
	}
	if params.Bus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event bus is required")
	}
	return &service{
		dbClient:  params.DB,
		repo:      params.Repo,
		rerunRepo: params.RerunRepo,
		outboxSvc: params.Outbox,
		bus:       params.Bus,
		copier:    params.Copier,
	}, nil
}

// Create registers a run and seeds its default audit mode. Key collisions
// are checked under case folding so "CS101" and "cs101" cannot coexist.
func (s *service) Create(ctx context.Context, params CreateParams) (CourseRunDTO, error) {
	key, err := coursekey.New(params.Org, params.Number, params.Run)
	if err != nil {
		return CourseRunDTO{}, pkgerrors.Wrap(pkgerrors.CodeInvalidKey, err, "invalid course key")
	}
	if strings.TrimSpace(params.DisplayName) == "" {
		return CourseRunDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}
	if params.Start.IsZero() {
		return CourseRunDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "start is required")
	}
	if params.End != nil && !params.End.After(params.Start) {
		return CourseRunDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	visibility := params.CatalogVisibility
	if visibility == "" {
		visibility = enums.CatalogVisibilityBoth
	}
	if !visibility.IsValid() {
		return CourseRunDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid catalog visibility")
	}

	taken, err := s.repo.ExistsFold(ctx, params.Org, params.Number, params.Run)
	if err != nil {
		return CourseRunDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check key collision")
	}
	if taken {
		return CourseRunDTO{}, pkgerrors.New(pkgerrors.CodeDuplicateKey, fmt.Sprintf("course run %s already exists", key))
	}

	run := models.CourseRun{
		ID:                key,
		Org:               params.Org,
		Number:            params.Number,
		Run:               params.Run,
		DisplayName:       params.DisplayName,
		Start:             params.Start,
		End:               params.End,
		EnrollmentStart:   params.EnrollmentStart,
		EnrollmentEnd:     params.EnrollmentEnd,
		SelfPaced:         params.SelfPaced,
		InvitationOnly:    params.InvitationOnly,
		CatalogVisibility: visibility,
		WeeksToComplete:   params.WeeksToComplete,
		MaxEnrollments:    params.MaxEnrollments,
		DaysEarlyForBeta:  params.DaysEarlyForBeta,
		CreatedBy:         params.ActorID,
		UpdatedBy:         params.ActorID,
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, &run); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeDuplicateKey, fmt.Sprintf("course run %s already exists", key))
			}
			return err
		}
		if err := s.repo.SeedDefaultModeTx(tx, key); err != nil {
			return err
		}
		return s.outboxSvc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCourseRunCreated,
			AggregateType: enums.AggregateCourseRun,
			AggregateID:   key.String(),
			Actor:         &outbox.ActorRef{UserID: params.ActorID},
			Data:          toDTO(run),
			Version:       1,
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return CourseRunDTO{}, typed
		}
		return CourseRunDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create course run")
	}

	s.bus.Publish(ctx, events.CoursePublished{CourseID: key})
	return toDTO(run), nil
}

// Get returns a run by key, excluding soft-deleted rows.
func (s *service) Get(ctx context.Context, id coursekey.CourseKey) (CourseRunDTO, error) {
	run, err := s.loadRun(ctx, id)
	if err != nil {
		return CourseRunDTO{}, err
	}
	return toDTO(*run), nil
}

// GetVisible returns a run only when the surface may show it to the caller.
func (s *service) GetVisible(ctx context.Context, id coursekey.CourseKey, surface visibility.Surface, isStaff bool) (CourseRunDTO, error) {
	run, err := s.loadRun(ctx, id)
	if err != nil {
		return CourseRunDTO{}, err
	}
	if err := visibility.EnsureCourseVisible(visibility.CourseVisibilityInput{
		Course:  run,
		Surface: surface,
		IsStaff: isStaff,
		At:      time.Now().UTC(),
	}); err != nil {
		return CourseRunDTO{}, err
	}
	return toDTO(*run), nil
}

// Update applies partial settings changes and republishes the run. A start
// change ripples to schedules via the published event.
func (s *service) Update(ctx context.Context, id coursekey.CourseKey, params UpdateParams) (CourseRunDTO, error) {
	run, err := s.loadRun(ctx, id)
	if err != nil {
		return CourseRunDTO{}, err
	}

	applyUpdate(run, params)
	if run.End != nil && !run.End.After(run.Start) {
		return CourseRunDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	run.UpdatedBy = params.ActorID

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.SaveTx(tx, run)
	})
	if err != nil {
		return CourseRunDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update course run")
	}

	s.bus.Publish(ctx, events.CoursePublished{CourseID: id})
	return toDTO(*run), nil
}

func applyUpdate(run *models.CourseRun, params UpdateParams) {
	if params.DisplayName != nil {
		run.DisplayName = *params.DisplayName
	}
	if params.Start != nil {
		run.Start = *params.Start
	}
	if params.ClearEnd {
		run.End = nil
	} else if params.End != nil {
		run.End = params.End
	}
	if params.ClearEnrollStart {
		run.EnrollmentStart = nil
	} else if params.EnrollmentStart != nil {
		run.EnrollmentStart = params.EnrollmentStart
	}
	if params.ClearEnrollEnd {
		run.EnrollmentEnd = nil
	} else if params.EnrollmentEnd != nil {
		run.EnrollmentEnd = params.EnrollmentEnd
	}
	if params.SelfPaced != nil {
		run.SelfPaced = *params.SelfPaced
	}
	if params.InvitationOnly != nil {
		run.InvitationOnly = *params.InvitationOnly
	}
	if params.CatalogVisibility != nil {
		run.CatalogVisibility = *params.CatalogVisibility
	}
	if params.AdvertisedStart != nil {
		run.AdvertisedStart = params.AdvertisedStart
	}
	if params.WeeksToComplete != nil {
		run.WeeksToComplete = params.WeeksToComplete
	}
	if params.MaxEnrollments != nil {
		run.MaxEnrollments = params.MaxEnrollments
	}
	if params.DaysEarlyForBeta != nil {
		run.DaysEarlyForBeta = params.DaysEarlyForBeta
	}
}

// Delete soft-removes a run. Enrollment rows survive so re-creation of the
// same key later does not resurrect old access.
func (s *service) Delete(ctx context.Context, id coursekey.CourseKey, actorID uuid.UUID) error {
	if _, err := s.loadRun(ctx, id); err != nil {
		return err
	}

	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.SoftDeleteTx(tx, id, time.Now().UTC()); err != nil {
			return err
		}
		return s.outboxSvc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCourseRunDeleted,
			AggregateType: enums.AggregateCourseRun,
			AggregateID:   id.String(),
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data:          map[string]string{"course_id": id.String()},
			Version:       1,
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete course run")
	}

	s.bus.Publish(ctx, events.CourseDeleted{CourseID: id})
	return nil
}

// ListByOrg returns the org's runs ordered by key.
func (s *service) ListByOrg(ctx context.Context, org string) ([]CourseRunDTO, error) {
	if strings.TrimSpace(org) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org is required")
	}
	runs, err := s.repo.ListByOrg(ctx, org)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list courses by org")
	}
	return toDTOs(runs), nil
}

// Catalog filters the org listing down to what the audience may browse.
func (s *service) Catalog(ctx context.Context, org string, isStaff bool) ([]CourseRunDTO, error) {
	if strings.TrimSpace(org) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "org is required")
	}
	runs, err := s.repo.ListByOrg(ctx, org)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list catalog")
	}
	now := time.Now().UTC()
	out := make([]CourseRunDTO, 0, len(runs))
	for i := range runs {
		err := visibility.EnsureCourseVisible(visibility.CourseVisibilityInput{
			Course:  &runs[i],
			Surface: visibility.SurfaceCatalog,
			IsStaff: isStaff,
			At:      now,
		})
		if err != nil {
			continue
		}
		out = append(out, toDTO(runs[i]))
	}
	return out, nil
}

// ListByKeys resolves a key set to its surviving runs, dropping CCX keys.
// Role-grant driven listings and direct listings both route through here so
// the two agree on ordering and filtering.
func (s *service) ListByKeys(ctx context.Context, ids []coursekey.CourseKey) ([]CourseRunDTO, error) {
	filtered := make([]coursekey.CourseKey, 0, len(ids))
	for _, id := range ids {
		if id.IsCCX() {
			continue
		}
		filtered = append(filtered, id)
	}
	runs, err := s.repo.ListByIDs(ctx, filtered)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list courses by keys")
	}
	return toDTOs(runs), nil
}

func toDTOs(runs []models.CourseRun) []CourseRunDTO {
	out := make([]CourseRunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toDTO(run))
	}
	return out
}

// Rerun clones the source run into a new run under the same org and number.
// The state machine records progress; a copy failure leaves the state failed
// with a message rather than failing the request.
func (s *service) Rerun(ctx context.Context, source coursekey.CourseKey, params RerunParams) (RerunStateDTO, error) {
	src, err := s.loadRun(ctx, source)
	if err != nil {
		return RerunStateDTO{}, err
	}
	destKey, err := coursekey.New(src.Org, src.Number, params.Run)
	if err != nil {
		return RerunStateDTO{}, pkgerrors.Wrap(pkgerrors.CodeInvalidKey, err, "invalid rerun key")
	}
	if params.Start.IsZero() {
		return RerunStateDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "start is required")
	}
	displayName := params.DisplayName
	if strings.TrimSpace(displayName) == "" {
		displayName = src.DisplayName
	}

	taken, err := s.repo.ExistsFold(ctx, src.Org, src.Number, params.Run)
	if err != nil {
		return RerunStateDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check key collision")
	}
	if taken {
		return RerunStateDTO{}, pkgerrors.New(pkgerrors.CodeDuplicateKey, fmt.Sprintf("course run %s already exists", destKey))
	}

	state := models.CourseRerunState{
		SourceID:      source,
		DestinationID: destKey,
		State:         enums.RerunStatusInitiated,
		DisplayName:   displayName,
		RequestedBy:   params.ActorID,
	}

	dest := *src
	dest.ID = destKey
	dest.Run = params.Run
	dest.DisplayName = displayName
	dest.Start = params.Start
	dest.End = nil
	dest.EnrollmentStart = nil
	dest.EnrollmentEnd = nil
	dest.CreatedBy = params.ActorID
	dest.UpdatedBy = params.ActorID
	dest.CreatedAt = time.Time{}
	dest.UpdatedAt = time.Time{}
	dest.DeletedAt = nil

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.rerunRepo.CreateTx(tx, &state); err != nil {
			return err
		}
		if err := s.repo.CreateTx(tx, &dest); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeDuplicateKey, fmt.Sprintf("course run %s already exists", destKey))
			}
			return err
		}
		if err := s.repo.SeedDefaultModeTx(tx, destKey); err != nil {
			return err
		}
		return s.outboxSvc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCourseRunRerun,
			AggregateType: enums.AggregateCourseRun,
			AggregateID:   destKey.String(),
			Actor:         &outbox.ActorRef{UserID: params.ActorID},
			Data: map[string]string{
				"source_id":      source.String(),
				"destination_id": destKey.String(),
			},
			Version: 1,
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return RerunStateDTO{}, typed
		}
		return RerunStateDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initiate rerun")
	}

	s.advanceRerun(ctx, &state, source, destKey)
	s.bus.Publish(ctx, events.CoursePublished{CourseID: destKey})
	return toRerunDTO(state), nil
}

func (s *service) advanceRerun(ctx context.Context, state *models.CourseRerunState, source, dest coursekey.CourseKey) {
	s.transitionRerun(ctx, state, enums.RerunStatusInProgress, nil)

	if s.copier != nil {
		if err := s.copier.CopyCourseContent(ctx, source, dest); err != nil {
			msg := err.Error()
			s.transitionRerun(ctx, state, enums.RerunStatusFailed, &msg)
			return
		}
	}
	s.transitionRerun(ctx, state, enums.RerunStatusSucceeded, nil)
}

func (s *service) transitionRerun(ctx context.Context, state *models.CourseRerunState, next enums.RerunStatus, message *string) {
	if !state.State.CanTransitionTo(next) {
		return
	}
	if err := s.rerunRepo.UpdateState(ctx, state.ID, next, message); err != nil {
		return
	}
	state.State = next
	state.Message = message
}

// RerunState reports the rerun progress for a destination run.
func (s *service) RerunState(ctx context.Context, dest coursekey.CourseKey) (RerunStateDTO, error) {
	state, err := s.rerunRepo.FindByDestination(ctx, dest)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RerunStateDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "rerun not found")
		}
		return RerunStateDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rerun state")
	}
	return toRerunDTO(*state), nil
}

// UnsucceededReruns lists in-flight and failed reruns for dashboards.
func (s *service) UnsucceededReruns(ctx context.Context, limit int) ([]RerunStateDTO, error) {
	rows, err := s.rerunRepo.ListUnsucceeded(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reruns")
	}
	out := make([]RerunStateDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRerunDTO(row))
	}
	return out, nil
}

func (s *service) loadRun(ctx context.Context, id coursekey.CourseKey) (*models.CourseRun, error) {
	if id.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidKey, "course key is required")
	}
	run, err := s.repo.FindByID(ctx, id, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load course run")
	}
	return run, nil
}
