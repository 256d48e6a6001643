package schedules

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/internal/gating"
	"github.com/openlearnhq/courseware-backend/internal/modes"
	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/events"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
	"github.com/openlearnhq/courseware-backend/pkg/outbox"
)

// ScheduleDTO is the read projection of a learner's schedule. Expiration is
// computed, never stored, so clock-driven transitions need no writes.
type ScheduleDTO struct {
	EnrollmentID     uuid.UUID  `json:"enrollment_id"`
	CourseID         string     `json:"course_id"`
	Start            time.Time  `json:"start"`
	UpgradeDeadline  *time.Time `json:"upgrade_deadline,omitempty"`
	AccessExpiration *time.Time `json:"access_expiration,omitempty"`
}

type scheduleRepository interface {
	FindByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*models.Schedule, error)
	UpsertTx(tx *gorm.DB, row *models.Schedule) error
	Save(ctx context.Context, row *models.Schedule) error
	ListForCourse(ctx context.Context, courseID coursekey.CourseKey) ([]CourseScheduleRow, error)
}

type enrollmentReader interface {
	FindByUserAndCourse(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*models.Enrollment, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id coursekey.CourseKey, includeDeleted bool) (*models.CourseRun, error)
}

type modeCatalog interface {
	VerifiedModeForCourse(ctx context.Context, courseID coursekey.CourseKey) (*modes.ModeDTO, error)
	HasVerifiedMode(ctx context.Context, courseID coursekey.CourseKey) (bool, error)
}

type durationLimitChecker interface {
	DurationLimitEnabledForEnrollment(ctx context.Context, ref gating.ScopeRef, enrollmentCreated time.Time) (bool, error)
}

type holdbackChecker interface {
	InHoldback(ctx context.Context, userID uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the schedule engine.
type ServiceParams struct {
	DB          txRunner
	Repo        scheduleRepository
	Enrollments enrollmentReader
	Courses     courseReader
	Modes       modeCatalog
	Gating      durationLimitChecker
	Experiments holdbackChecker
	Outbox      outboxEmitter
	Logger      *logger.Logger
	Durations   config.DurationLimitConfig
	SiteName    string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service derives content-availability dates and audit-access expirations.
type Service interface {
	// BuildForEnrollmentTx writes the schedule row inside the enroll
	// transaction; a failure rolls the enrollment back with it.
	BuildForEnrollmentTx(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, run *models.CourseRun) error
	ForUserCourse(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (ScheduleDTO, error)
	// ExpirationFor computes the audit-access expiration from already
	// loaded rows, or nil when duration limits do not apply.
	ExpirationFor(ctx context.Context, enrollment *models.Enrollment, run *models.CourseRun) (*time.Time, error)
	// RebaseCourse rebinds every schedule of a run to its current start.
	RebaseCourse(ctx context.Context, courseID coursekey.CourseKey) error
}

type service struct {
	dbClient    txRunner
	repo        scheduleRepository
	enrollments enrollmentReader
	courses     courseReader
	modes       modeCatalog
	gating      durationLimitChecker
	experiments holdbackChecker
	outboxSvc   outboxEmitter
	log         *logger.Logger
	durations   config.DurationLimitConfig
	siteName    string
	now         func() time.Time
}

// NewService builds a schedule engine with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db client is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "schedule repo is required")
	}
	if params.Enrollments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment reader is required")
	}
	if params.Courses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course reader is required")
	}
	if params.Modes == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mode catalog is required")
	}
	if params.Gating == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration-limit checker is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox service is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "schedules"})
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	siteName := params.SiteName
	if siteName == "" {
		siteName = "default"
	}
	return &service{
		dbClient:    params.DB,
		repo:        params.Repo,
		enrollments: params.Enrollments,
		courses:     params.Courses,
		modes:       params.Modes,
		gating:      params.Gating,
		experiments: params.Experiments,
		outboxSvc:   params.Outbox,
		log:         logg,
		durations:   params.Durations,
		siteName:    siteName,
		now:         now,
	}, nil
}

// Subscribe wires the engine to course lifecycle signals: a published run may
// have moved its start, which rebinds every derived schedule.
func Subscribe(bus *events.Bus, svc Service) {
	bus.Subscribe(events.NameCoursePublished, func(ctx context.Context, evt events.Event) error {
		published, ok := evt.(events.CoursePublished)
		if !ok {
			return nil
		}
		return svc.RebaseCourse(ctx, published.CourseID)
	})
}

// BuildForEnrollmentTx derives and writes the schedule row for an enrollment
// becoming active.
func (s *service) BuildForEnrollmentTx(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, run *models.CourseRun) error {
	created := enrollment.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	deadline, err := s.upgradeDeadline(ctx, run.ID)
	if err != nil {
		return err
	}
	row := models.Schedule{
		EnrollmentID:    enrollment.ID,
		Start:           contentAvailability(run.Start, created),
		UpgradeDeadline: deadline,
	}
	return s.repo.UpsertTx(tx, &row)
}

// ForUserCourse returns the learner's schedule for a run, recomputing the
// content-availability date against the run's current start. A stale stored
// start is rebound in place.
func (s *service) ForUserCourse(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (ScheduleDTO, error) {
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ScheduleDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "enrollment not found")
		}
		return ScheduleDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	run, err := s.courses.FindByID(ctx, courseID, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ScheduleDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
		}
		return ScheduleDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load course run")
	}

	row, err := s.repo.FindByEnrollment(ctx, enrollment.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return ScheduleDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load schedule")
	}

	start := contentAvailability(run.Start, enrollment.CreatedAt)
	if row == nil {
		row = &models.Schedule{EnrollmentID: enrollment.ID, Start: start}
	} else if !row.Start.Equal(start) {
		row.Start = start
		if err := s.repo.Save(ctx, row); err != nil {
			return ScheduleDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rebind schedule")
		}
	}

	deadline, err := s.upgradeDeadline(ctx, run.ID)
	if err != nil {
		return ScheduleDTO{}, err
	}
	expiration, err := s.ExpirationFor(ctx, enrollment, run)
	if err != nil {
		return ScheduleDTO{}, err
	}
	return ScheduleDTO{
		EnrollmentID:     enrollment.ID,
		CourseID:         run.ID.String(),
		Start:            start,
		UpgradeDeadline:  deadline,
		AccessExpiration: expiration,
	}, nil
}

// ExpirationFor applies the duration-limit rules: the window exists only when
// the run ever offered a verified-like track, the enrollment's mode expires,
// the stacked config covers the enrollment, and the learner is not held back.
func (s *service) ExpirationFor(ctx context.Context, enrollment *models.Enrollment, run *models.CourseRun) (*time.Time, error) {
	if enrollment.Mode.IsNonExpiring() {
		return nil, nil
	}
	enabled, err := s.gating.DurationLimitEnabledForEnrollment(ctx, s.scopeRef(run), enrollment.CreatedAt)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}
	upgradeable, err := s.modes.HasVerifiedMode(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if !upgradeable {
		return nil, nil
	}
	if s.experiments != nil {
		held, err := s.experiments.InHoldback(ctx, enrollment.UserID)
		if err != nil {
			return nil, err
		}
		if held {
			return nil, nil
		}
	}

	start := contentAvailability(run.Start, enrollment.CreatedAt)
	expiration := start.Add(s.accessDuration(run.WeeksToComplete))
	return &expiration, nil
}

// accessDuration turns weeks_to_complete into the clamped access window. A
// missing value defaults to the minimum.
func (s *service) accessDuration(weeks *int) time.Duration {
	duration := s.durations.Min()
	if weeks != nil {
		duration = time.Duration(*weeks) * 7 * 24 * time.Hour
	}
	if duration < s.durations.Min() {
		duration = s.durations.Min()
	}
	if duration > s.durations.Max() {
		duration = s.durations.Max()
	}
	return duration
}

// RebaseCourse rebinds stored schedule starts after a run's settings change.
// Each rebound row emits a schedule_rebased event for downstream consumers.
func (s *service) RebaseCourse(ctx context.Context, courseID coursekey.CourseKey) error {
	run, err := s.courses.FindByID(ctx, courseID, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load course run")
	}
	rows, err := s.repo.ListForCourse(ctx, courseID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list schedules")
	}

	deadline, err := s.upgradeDeadline(ctx, run.ID)
	if err != nil {
		return err
	}

	for i := range rows {
		row := rows[i]
		start := contentAvailability(run.Start, row.EnrollmentCreatedAt)
		sameDeadline := equalTimePtr(row.UpgradeDeadline, deadline)
		if row.Start.Equal(start) && sameDeadline {
			continue
		}
		updated := row.Schedule
		updated.Start = start
		updated.UpgradeDeadline = deadline

		err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.UpsertTx(tx, &updated); err != nil {
				return err
			}
			return s.outboxSvc.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventScheduleRebased,
				AggregateType: enums.AggregateSchedule,
				AggregateID:   updated.ID.String(),
				Data: map[string]string{
					"enrollment_id": updated.EnrollmentID.String(),
					"course_id":     courseID.String(),
					"start":         start.UTC().Format(time.RFC3339),
				},
				Version: 1,
			})
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rebase schedule")
		}
	}
	return nil
}

func (s *service) upgradeDeadline(ctx context.Context, courseID coursekey.CourseKey) (*time.Time, error) {
	verified, err := s.modes.VerifiedModeForCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if verified == nil {
		return nil, nil
	}
	return verified.ExpirationDatetime, nil
}

func (s *service) scopeRef(run *models.CourseRun) gating.ScopeRef {
	return gating.ScopeRef{Site: s.siteName, Org: run.Org, CourseID: run.ID}
}

// contentAvailability is the later of the run start and the enrollment time,
// in UTC.
func contentAvailability(courseStart, enrollmentCreated time.Time) time.Time {
	start := courseStart.UTC()
	created := enrollmentCreated.UTC()
	if created.After(start) {
		return created
	}
	return start
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
