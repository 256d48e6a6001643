package gating

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

const (
	contentGatingTable = "content_gating"
	durationLimitTable = "duration_limits"

	cacheTTL = 5 * time.Minute
)

type gatingRepository interface {
	ContentGatingChain(ctx context.Context, ref ScopeRef) ([]models.ContentTypeGatingConfig, error)
	DurationLimitChain(ctx context.Context, ref ScopeRef) ([]models.CourseDurationLimitConfig, error)
	InsertContentGating(ctx context.Context, row *models.ContentTypeGatingConfig) error
	InsertDurationLimit(ctx context.Context, row *models.CourseDurationLimitConfig) error
	ListContentGating(ctx context.Context) ([]models.ContentTypeGatingConfig, error)
	ListDurationLimit(ctx context.Context) ([]models.CourseDurationLimitConfig, error)
}

type configCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	ConfigKey(table string, parts ...string) string
	ConfigKeyPattern(table string) string
	DelPattern(ctx context.Context, pattern string) error
}

// ServiceParams groups dependencies for the stacked-config service. Cache is
// optional; without it every resolution hits the database.
type ServiceParams struct {
	Repo        gatingRepository
	Cache       configCache
	Logger      *logger.Logger
	Flags       config.FeatureFlagsConfig
	Experiments config.ExperimentsConfig
}

// Service resolves and administers the content gating and duration-limit
// configuration stacks.
type Service interface {
	ResolveContentGating(ctx context.Context, ref ScopeRef) (ResolvedGating, error)
	ResolveDurationLimit(ctx context.Context, ref ScopeRef) (ResolvedDurationLimit, error)
	EnabledForEnrollment(ctx context.Context, ref ScopeRef, enrollmentCreated time.Time) (bool, error)
	DurationLimitEnabledForEnrollment(ctx context.Context, ref ScopeRef, enrollmentCreated time.Time) (bool, error)
	StudioOverrideEnabled(ctx context.Context, ref ScopeRef) (bool, error)
	SetContentGating(ctx context.Context, params SetParams) error
	SetDurationLimit(ctx context.Context, params SetParams) error
	ListContentGating(ctx context.Context) ([]ConfigRowDTO, error)
	ListDurationLimit(ctx context.Context) ([]ConfigRowDTO, error)
}

type service struct {
	repo        gatingRepository
	cache       configCache
	log         *logger.Logger
	flags       config.FeatureFlagsConfig
	experiments config.ExperimentsConfig
}

// NewService builds a stacked-config service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gating repo is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "gating"})
	}
	return &service{
		repo:        params.Repo,
		cache:       params.Cache,
		log:         logg,
		flags:       params.Flags,
		experiments: params.Experiments,
	}, nil
}

// ResolveContentGating folds the gating stack for the ref: per field, the
// newest row of the most specific scope with a non-null value wins.
func (s *service) ResolveContentGating(ctx context.Context, ref ScopeRef) (ResolvedGating, error) {
	var cached ResolvedGating
	if s.cacheGet(ctx, contentGatingTable, ref, &cached) {
		return cached, nil
	}

	rows, err := s.repo.ContentGatingChain(ctx, ref)
	if err != nil {
		return ResolvedGating{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gating config")
	}

	var resolved ResolvedGating
	for _, row := range rows {
		if row.Enabled != nil {
			resolved.Enabled = *row.Enabled
			resolved.Provenance.Enabled = row.Scope
		}
		if row.EnabledAsOf != nil {
			asOf := *row.EnabledAsOf
			resolved.EnabledAsOf = &asOf
			resolved.Provenance.EnabledAsOf = row.Scope
		}
		if row.StudioEnabled != nil {
			resolved.StudioEnabled = *row.StudioEnabled
			resolved.Provenance.StudioEnabled = row.Scope
		}
	}
	if resolved.Enabled && resolved.EnabledAsOf == nil {
		// Write validation should make this unreachable; never gate
		// without a cutover date.
		s.log.Warn(ctx, "gating config resolved enabled without enabled_as_of, treating as disabled")
		resolved.Enabled = false
	}

	s.cachePut(ctx, contentGatingTable, ref, resolved)
	return resolved, nil
}

// ResolveDurationLimit folds the duration-limit stack for the ref.
func (s *service) ResolveDurationLimit(ctx context.Context, ref ScopeRef) (ResolvedDurationLimit, error) {
	var cached ResolvedDurationLimit
	if s.cacheGet(ctx, durationLimitTable, ref, &cached) {
		return cached, nil
	}

	rows, err := s.repo.DurationLimitChain(ctx, ref)
	if err != nil {
		return ResolvedDurationLimit{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load duration-limit config")
	}

	var resolved ResolvedDurationLimit
	for _, row := range rows {
		if row.Enabled != nil {
			resolved.Enabled = *row.Enabled
			resolved.Provenance.Enabled = row.Scope
		}
		if row.EnabledAsOf != nil {
			asOf := *row.EnabledAsOf
			resolved.EnabledAsOf = &asOf
			resolved.Provenance.EnabledAsOf = row.Scope
		}
	}
	if resolved.Enabled && resolved.EnabledAsOf == nil {
		s.log.Warn(ctx, "duration-limit config resolved enabled without enabled_as_of, treating as disabled")
		resolved.Enabled = false
	}

	s.cachePut(ctx, durationLimitTable, ref, resolved)
	return resolved, nil
}

// EnabledForEnrollment reports whether the content gate applies to an
// enrollment created at the given instant. Enrollments older than the
// cutover date are grandfathered out.
func (s *service) EnabledForEnrollment(ctx context.Context, ref ScopeRef, enrollmentCreated time.Time) (bool, error) {
	if !s.flags.ContentTypeGating {
		return false, nil
	}
	if s.experiments.GatingForceEnabled {
		return true, nil
	}
	resolved, err := s.ResolveContentGating(ctx, ref)
	if err != nil {
		return false, err
	}
	if !resolved.Enabled || resolved.EnabledAsOf == nil {
		return false, nil
	}
	return !enrollmentCreated.Before(*resolved.EnabledAsOf), nil
}

// DurationLimitEnabledForEnrollment reports whether the audit-access window
// applies to an enrollment created at the given instant.
func (s *service) DurationLimitEnabledForEnrollment(ctx context.Context, ref ScopeRef, enrollmentCreated time.Time) (bool, error) {
	if !s.flags.CourseDurationLimits {
		return false, nil
	}
	resolved, err := s.ResolveDurationLimit(ctx, ref)
	if err != nil {
		return false, err
	}
	if !resolved.Enabled || resolved.EnabledAsOf == nil {
		return false, nil
	}
	return !enrollmentCreated.Before(*resolved.EnabledAsOf), nil
}

// StudioOverrideEnabled reports whether studio authors may hand-pick gated
// blocks for the ref.
func (s *service) StudioOverrideEnabled(ctx context.Context, ref ScopeRef) (bool, error) {
	resolved, err := s.ResolveContentGating(ctx, ref)
	if err != nil {
		return false, err
	}
	return resolved.Enabled && resolved.StudioEnabled, nil
}

// SetContentGating appends a gating row and drops the affected cache keys.
func (s *service) SetContentGating(ctx context.Context, params SetParams) error {
	if err := validateSetParams(params); err != nil {
		return err
	}
	row := models.ContentTypeGatingConfig{
		Scope:         params.Scope,
		Site:          optional(params.Site),
		Org:           optional(params.Org),
		Enabled:       params.Enabled,
		EnabledAsOf:   params.EnabledAsOf,
		StudioEnabled: params.StudioEnabled,
		ChangedBy:     params.ActorID,
	}
	if !params.CourseID.IsZero() {
		courseID := params.CourseID
		row.CourseID = &courseID
	}
	if err := s.repo.InsertContentGating(ctx, &row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save gating config")
	}
	s.invalidate(ctx, contentGatingTable, params)
	return nil
}

// SetDurationLimit appends a duration-limit row and drops the affected cache keys.
func (s *service) SetDurationLimit(ctx context.Context, params SetParams) error {
	if err := validateSetParams(params); err != nil {
		return err
	}
	row := models.CourseDurationLimitConfig{
		Scope:       params.Scope,
		Site:        optional(params.Site),
		Org:         optional(params.Org),
		Enabled:     params.Enabled,
		EnabledAsOf: params.EnabledAsOf,
		ChangedBy:   params.ActorID,
	}
	if !params.CourseID.IsZero() {
		courseID := params.CourseID
		row.CourseID = &courseID
	}
	if err := s.repo.InsertDurationLimit(ctx, &row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save duration-limit config")
	}
	s.invalidate(ctx, durationLimitTable, params)
	return nil
}

// ListContentGating returns the gating stack for the admin surface.
func (s *service) ListContentGating(ctx context.Context) ([]ConfigRowDTO, error) {
	rows, err := s.repo.ListContentGating(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list gating config")
	}
	out := make([]ConfigRowDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ConfigRowDTO{
			ID:            row.ID,
			Scope:         row.Scope,
			Site:          deref(row.Site),
			Org:           deref(row.Org),
			CourseID:      courseString(row.CourseID),
			Enabled:       row.Enabled,
			EnabledAsOf:   row.EnabledAsOf,
			StudioEnabled: row.StudioEnabled,
			ChangedBy:     row.ChangedBy,
			CreatedAt:     row.CreatedAt,
		})
	}
	return out, nil
}

// ListDurationLimit returns the duration-limit stack for the admin surface.
func (s *service) ListDurationLimit(ctx context.Context) ([]ConfigRowDTO, error) {
	rows, err := s.repo.ListDurationLimit(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list duration-limit config")
	}
	out := make([]ConfigRowDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ConfigRowDTO{
			ID:          row.ID,
			Scope:       row.Scope,
			Site:        deref(row.Site),
			Org:         deref(row.Org),
			CourseID:    courseString(row.CourseID),
			Enabled:     row.Enabled,
			EnabledAsOf: row.EnabledAsOf,
			ChangedBy:   row.ChangedBy,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, nil
}

func validateSetParams(params SetParams) error {
	if !params.Scope.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid config scope")
	}
	switch params.Scope {
	case enums.ScopeGlobal:
		if params.Site != "" || params.Org != "" || !params.CourseID.IsZero() {
			return pkgerrors.New(pkgerrors.CodeValidation, "global rows cannot name a site, org or course")
		}
	case enums.ScopeSite:
		if params.Site == "" || params.Org != "" || !params.CourseID.IsZero() {
			return pkgerrors.New(pkgerrors.CodeValidation, "site rows name exactly a site")
		}
	case enums.ScopeOrg:
		if params.Org == "" || params.Site != "" || !params.CourseID.IsZero() {
			return pkgerrors.New(pkgerrors.CodeValidation, "org rows name exactly an org")
		}
	case enums.ScopeCourse:
		if params.CourseID.IsZero() || params.Site != "" || params.Org != "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "course rows name exactly a course")
		}
	}
	if params.Enabled != nil && *params.Enabled && params.EnabledAsOf == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "enabled_as_of is required when enabling")
	}
	return nil
}

func (s *service) cacheGet(ctx context.Context, table string, ref ScopeRef, out any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, s.cacheKey(table, ref))
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.log.Warn(ctx, "dropping unreadable cached config entry")
		return false
	}
	return true
}

func (s *service) cachePut(ctx context.Context, table string, ref ScopeRef, value any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(table, ref), string(raw), cacheTTL); err != nil {
		s.log.Warn(ctx, "config cache write failed")
	}
}

func (s *service) cacheKey(table string, ref ScopeRef) string {
	course := "-"
	if !ref.CourseID.IsZero() {
		course = ref.CourseID.String()
	}
	return s.cache.ConfigKey(table, keyPart(ref.Site), keyPart(ref.Org), course)
}

// invalidate drops the write's scope key and every narrower key under it.
// Broader scopes stay cached; their resolution did not change.
func (s *service) invalidate(ctx context.Context, table string, params SetParams) {
	if s.cache == nil {
		return
	}
	var pattern string
	switch params.Scope {
	case enums.ScopeGlobal:
		pattern = s.cache.ConfigKeyPattern(table)
	case enums.ScopeSite:
		pattern = s.cache.ConfigKey(table, params.Site) + ":*"
	case enums.ScopeOrg:
		pattern = s.cache.ConfigKey(table, "*", params.Org) + ":*"
	case enums.ScopeCourse:
		pattern = s.cache.ConfigKey(table, "*", "*", params.CourseID.String())
	}
	if err := s.cache.DelPattern(ctx, pattern); err != nil {
		s.log.Warn(ctx, "config cache invalidation failed")
	}
}

func keyPart(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func courseString(key *coursekey.CourseKey) string {
	if key == nil {
		return ""
	}
	return key.String()
}
