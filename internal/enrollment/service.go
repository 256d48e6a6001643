package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/internal/modes"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/events"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
	"github.com/openlearnhq/courseware-backend/pkg/metrics"
	"github.com/openlearnhq/courseware-backend/pkg/outbox"
	"github.com/openlearnhq/courseware-backend/pkg/pagination"
)

// ScheduleBuilder derives the schedule row for a freshly active enrollment
// inside the same transaction, so a schedule failure rolls the enrollment
// back instead of leaving an orphan active row. The schedule engine
// implements this; the indirection keeps the ledger free of a direct
// dependency on it.
type ScheduleBuilder interface {
	BuildForEnrollmentTx(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, run *models.CourseRun) error
}

type enrollmentRepository interface {
	FindByUserAndCourse(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*models.Enrollment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error)
	CreateTx(tx *gorm.DB, row *models.Enrollment) error
	SaveTx(tx *gorm.DB, row *models.Enrollment) error
	CountActive(ctx context.Context, courseID coursekey.CourseKey) (int64, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Enrollment, error)
	UpsertAttributeTx(tx *gorm.DB, attr *models.EnrollmentAttribute) error
	ListAttributes(ctx context.Context, enrollmentID uuid.UUID) ([]models.EnrollmentAttribute, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id coursekey.CourseKey, includeDeleted bool) (*models.CourseRun, error)
}

type modeCatalog interface {
	ModeForCourse(ctx context.Context, courseID coursekey.CourseKey, slug enums.ModeSlug) (modes.ModeDTO, error)
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

// ServiceParams groups dependencies for the enrollment ledger service.
type ServiceParams struct {
	DB        txRunner
	Repo      enrollmentRepository
	Courses   courseReader
	Modes     modeCatalog
	Schedules ScheduleBuilder
	Outbox    outboxEmitter
	Bus       eventPublisher
	Logger    *logger.Logger
	Metrics   *metrics.EnrollmentMetrics
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service exposes the enrollment ledger.
type Service interface {
	Enroll(ctx context.Context, params EnrollParams) (EnrollmentDTO, error)
	Unenroll(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) error
	ChangeMode(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, mode enums.ModeSlug) (EnrollmentDTO, error)
	Get(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (EnrollmentDTO, error)
	IsEnrolled(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error)
	ModeForUser(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (enums.ModeSlug, bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page pagination.Params) (EnrollmentPage, error)
	CountActive(ctx context.Context, courseID coursekey.CourseKey) (int64, error)
	SetAttributes(ctx context.Context, enrollmentID uuid.UUID, attrs []AttributeDTO) error
	Attributes(ctx context.Context, enrollmentID uuid.UUID) ([]AttributeDTO, error)
}

type service struct {
	dbClient  txRunner
	repo      enrollmentRepository
	courses   courseReader
	modes     modeCatalog
	schedules ScheduleBuilder
	outboxSvc outboxEmitter
	bus       eventPublisher
	log       *logger.Logger
	metrics   *metrics.EnrollmentMetrics
	now       func() time.Time
}

// NewService builds an enrollment service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db client is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment repo is required")
	}
	if params.Courses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course reader is required")
	}
	if params.Modes == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mode catalog is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox service is required")
	}
	if params.Bus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event bus is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "enrollment"})
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		dbClient:  params.DB,
		repo:      params.Repo,
		courses:   params.Courses,
		modes:     params.Modes,
		schedules: params.Schedules,
		outboxSvc: params.Outbox,
		bus:       params.Bus,
		log:       logg,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// Enroll activates a (user, course) ledger row. A previously deactivated row
// is reactivated in place, preserving the original created timestamp so
// schedules stay anchored to the first enrollment.
func (s *service) Enroll(ctx context.Context, params EnrollParams) (EnrollmentDTO, error) {
	dto, err := s.enroll(ctx, params)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.IncRejected(string(typed.Code()))
		}
		return EnrollmentDTO{}, err
	}
	s.metrics.IncEnrolled(string(dto.Mode))
	return dto, nil
}

func (s *service) enroll(ctx context.Context, params EnrollParams) (EnrollmentDTO, error) {
	if params.UserID == uuid.Nil {
		return EnrollmentDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	run, err := s.loadRun(ctx, params.CourseID)
	if err != nil {
		return EnrollmentDTO{}, err
	}

	mode := params.Mode
	if mode == "" {
		mode = enums.DefaultModeSlug
	}
	if !mode.IsValid() {
		return EnrollmentDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid mode slug")
	}
	// Every ledger row must point at a catalog row, expired or not.
	if _, err := s.modes.ModeForCourse(ctx, run.ID, mode); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return EnrollmentDTO{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("course does not offer mode %s", mode))
		}
		return EnrollmentDTO{}, err
	}

	if params.CheckAccess {
		if err := s.checkOpen(run, params.HasInvitation); err != nil {
			return EnrollmentDTO{}, err
		}
	}

	existing, err := s.repo.FindByUserAndCourse(ctx, params.UserID, run.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return EnrollmentDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	if existing != nil && existing.IsActive {
		return EnrollmentDTO{}, pkgerrors.New(pkgerrors.CodeAlreadyEnrolled, "already enrolled")
	}

	if params.CheckAccess && run.MaxEnrollments != nil {
		count, err := s.repo.CountActive(ctx, run.ID)
		if err != nil {
			return EnrollmentDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count enrollments")
		}
		if count >= int64(*run.MaxEnrollments) {
			return EnrollmentDTO{}, pkgerrors.New(pkgerrors.CodeCourseFull, "course is full")
		}
	}

	reactivated := existing != nil
	var row *models.Enrollment
	if reactivated {
		row = existing
		row.Mode = mode
		row.IsActive = true
	} else {
		row = &models.Enrollment{
			ID:       uuid.New(),
			UserID:   params.UserID,
			CourseID: run.ID,
			Mode:     mode,
			IsActive: true,
		}
	}

	eventType := enums.EventEnrollmentCreated
	if reactivated {
		eventType = enums.EventEnrollmentReactivated
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if reactivated {
			if err := s.repo.SaveTx(tx, row); err != nil {
				return err
			}
		} else if err := s.repo.CreateTx(tx, row); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeAlreadyEnrolled, "already enrolled")
			}
			return err
		}
		if s.schedules != nil {
			if err := s.schedules.BuildForEnrollmentTx(ctx, tx, row, run); err != nil {
				return err
			}
		}
		return s.outboxSvc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateEnrollment,
			AggregateID:   row.ID.String(),
			Actor:         &outbox.ActorRef{UserID: params.UserID},
			Data:          toEnrollmentDTO(*row),
			Version:       1,
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return EnrollmentDTO{}, typed
		}
		return EnrollmentDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enroll")
	}

	s.bus.Publish(ctx, events.EnrollmentCreated{
		EnrollmentID: row.ID,
		UserID:       row.UserID,
		CourseID:     row.CourseID,
		Mode:         row.Mode,
		CreatedAt:    row.CreatedAt,
		Reactivated:  reactivated,
	})
	return toEnrollmentDTO(*row), nil
}

// checkOpen enforces the enrollment window and the invitation flag.
// enrollment_end is exclusive on both sides of the boundary: a request at
// exactly enrollment_end is closed.
func (s *service) checkOpen(run *models.CourseRun, hasInvitation bool) error {
	now := s.now().UTC()
	if run.EnrollmentStart != nil && now.Before(*run.EnrollmentStart) {
		return pkgerrors.New(pkgerrors.CodeEnrollmentClosed, "enrollment has not opened")
	}
	if run.EnrollmentEnd != nil && !now.Before(*run.EnrollmentEnd) {
		return pkgerrors.New(pkgerrors.CodeEnrollmentClosed, "enrollment has closed")
	}
	if run.InvitationOnly && !hasInvitation {
		return pkgerrors.New(pkgerrors.CodeEnrollmentClosed, "course is invitation only")
	}
	return nil
}

// Unenroll deactivates the ledger row. The row survives so a later re-enroll
// keeps the original created timestamp.
func (s *service) Unenroll(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) error {
	row, err := s.loadActive(ctx, userID, courseID)
	if err != nil {
		return err
	}

	row.IsActive = false
	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.SaveTx(tx, row); err != nil {
			return err
		}
		return s.outboxSvc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEnrollmentDeactivated,
			AggregateType: enums.AggregateEnrollment,
			AggregateID:   row.ID.String(),
			Actor:         &outbox.ActorRef{UserID: userID},
			Data:          toEnrollmentDTO(*row),
			Version:       1,
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unenroll")
	}

	s.metrics.IncUnenrolled(string(row.Mode))
	s.bus.Publish(ctx, events.EnrollmentDeactivated{
		EnrollmentID: row.ID,
		UserID:       row.UserID,
		CourseID:     row.CourseID,
		Mode:         row.Mode,
	})
	return nil
}

// ChangeMode switches the track of an active enrollment. Setting the current
// mode again is a no-op.
func (s *service) ChangeMode(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, mode enums.ModeSlug) (EnrollmentDTO, error) {
	if !mode.IsValid() {
		return EnrollmentDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid mode slug")
	}
	row, err := s.loadActive(ctx, userID, courseID)
	if err != nil {
		return EnrollmentDTO{}, err
	}
	if row.Mode == mode {
		return toEnrollmentDTO(*row), nil
	}
	if _, err := s.modes.ModeForCourse(ctx, row.CourseID, mode); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return EnrollmentDTO{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("course does not offer mode %s", mode))
		}
		return EnrollmentDTO{}, err
	}

	fromMode := row.Mode
	row.Mode = mode
	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.SaveTx(tx, row); err != nil {
			return err
		}
		return s.outboxSvc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEnrollmentModeChanged,
			AggregateType: enums.AggregateEnrollment,
			AggregateID:   row.ID.String(),
			Actor:         &outbox.ActorRef{UserID: userID},
			Data: map[string]string{
				"enrollment_id": row.ID.String(),
				"course_id":     row.CourseID.String(),
				"from_mode":     fromMode.String(),
				"to_mode":       mode.String(),
			},
			Version: 1,
		})
	})
	if err != nil {
		return EnrollmentDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "change mode")
	}

	s.bus.Publish(ctx, events.EnrollmentModeChanged{
		EnrollmentID: row.ID,
		UserID:       row.UserID,
		CourseID:     row.CourseID,
		FromMode:     fromMode,
		ToMode:       mode,
	})
	return toEnrollmentDTO(*row), nil
}

// Get returns the ledger row for a pair, active or not.
func (s *service) Get(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (EnrollmentDTO, error) {
	row, err := s.repo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return EnrollmentDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "enrollment not found")
		}
		return EnrollmentDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	return toEnrollmentDTO(*row), nil
}

// IsEnrolled reports whether the learner has an active enrollment.
func (s *service) IsEnrolled(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error) {
	row, err := s.repo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	return row.IsActive, nil
}

// ModeForUser returns (mode, is_active) for the pair. Absent pairs report
// ("", false) without error, matching the read path's tolerance.
func (s *service) ModeForUser(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (enums.ModeSlug, bool, error) {
	row, err := s.repo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	return row.Mode, row.IsActive, nil
}

// ListForUser returns one cursor page of the learner's active enrollments
// with course details, ordered by enrollment time. Rows pointing at deleted
// runs are dropped with a warning so stale ledgers never surface ghost
// courses.
func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, page pagination.Params) (EnrollmentPage, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return EnrollmentPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(page.Limit)

	rows, err := s.repo.ListActiveByUser(ctx, userID, cursor, pagination.LimitWithBuffer(page.Limit))
	if err != nil {
		return EnrollmentPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list enrollments")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	out := make([]ListedEnrollment, 0, len(rows))
	for _, row := range rows {
		run, err := s.courses.FindByID(ctx, row.CourseID, false)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				warnCtx := s.log.WithFields(ctx, map[string]any{
					"user_id":   userID.String(),
					"course_id": row.CourseID.String(),
				})
				s.log.Warn(warnCtx, "enrollment references a deleted course, omitting from listing")
				continue
			}
			return EnrollmentPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load course for listing")
		}
		out = append(out, ListedEnrollment{
			CourseDetails: toCourseDetails(*run),
			Mode:          row.Mode,
			IsActive:      row.IsActive,
			CreatedAt:     row.CreatedAt,
		})
	}
	return EnrollmentPage{Enrollments: out, NextCursor: next}, nil
}

// CountActive returns the active-enrollment count for a run.
func (s *service) CountActive(ctx context.Context, courseID coursekey.CourseKey) (int64, error) {
	count, err := s.repo.CountActive(ctx, courseID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count enrollments")
	}
	return count, nil
}

// SetAttributes writes namespaced key/values on an enrollment. Every field of
// every attribute is required.
func (s *service) SetAttributes(ctx context.Context, enrollmentID uuid.UUID, attrs []AttributeDTO) error {
	for _, attr := range attrs {
		if strings.TrimSpace(attr.Namespace) == "" ||
			strings.TrimSpace(attr.Name) == "" ||
			strings.TrimSpace(attr.Value) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "attribute namespace, name and value are required")
		}
	}
	if _, err := s.repo.FindByID(ctx, enrollmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "enrollment not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}

	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		for _, attr := range attrs {
			row := models.EnrollmentAttribute{
				EnrollmentID: enrollmentID,
				Namespace:    attr.Namespace,
				Name:         attr.Name,
				Value:        attr.Value,
			}
			if err := s.repo.UpsertAttributeTx(tx, &row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save attributes")
	}
	return nil
}

// Attributes lists the attributes of an enrollment.
func (s *service) Attributes(ctx context.Context, enrollmentID uuid.UUID) ([]AttributeDTO, error) {
	rows, err := s.repo.ListAttributes(ctx, enrollmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list attributes")
	}
	return toAttributeDTOs(rows), nil
}

func (s *service) loadRun(ctx context.Context, id coursekey.CourseKey) (*models.CourseRun, error) {
	if id.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidKey, "course key is required")
	}
	run, err := s.courses.FindByID(ctx, id, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load course run")
	}
	return run, nil
}

func (s *service) loadActive(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*models.Enrollment, error) {
	row, err := s.repo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "enrollment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	if !row.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "enrollment is not active")
	}
	return row, nil
}
