package gating

import (
	"context"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

var gatingTestCourse = coursekey.MustNew("OpenLearnX", "CS101", "2026_T1")

type stubGatingRepo struct {
	gatingRows   []models.ContentTypeGatingConfig
	durationRows []models.CourseDurationLimitConfig
	chainCalls   int
}

func (s *stubGatingRepo) ContentGatingChain(_ context.Context, _ ScopeRef) ([]models.ContentTypeGatingConfig, error) {
	s.chainCalls++
	return s.gatingRows, nil
}

func (s *stubGatingRepo) DurationLimitChain(_ context.Context, _ ScopeRef) ([]models.CourseDurationLimitConfig, error) {
	s.chainCalls++
	return s.durationRows, nil
}

func (s *stubGatingRepo) InsertContentGating(_ context.Context, row *models.ContentTypeGatingConfig) error {
	s.gatingRows = append(s.gatingRows, *row)
	return nil
}

func (s *stubGatingRepo) InsertDurationLimit(_ context.Context, row *models.CourseDurationLimitConfig) error {
	s.durationRows = append(s.durationRows, *row)
	return nil
}

func (s *stubGatingRepo) ListContentGating(_ context.Context) ([]models.ContentTypeGatingConfig, error) {
	return s.gatingRows, nil
}

func (s *stubGatingRepo) ListDurationLimit(_ context.Context) ([]models.CourseDurationLimitConfig, error) {
	return s.durationRows, nil
}

type fakeCache struct {
	store map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: map[string]string{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	if value, ok := f.store[key]; ok {
		return value, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeNotFound, "cache miss")
}

func (f *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.store[key] = value.(string)
	return nil
}

func (f *fakeCache) ConfigKey(table string, parts ...string) string {
	segments := append([]string{"cw", "config", table}, parts...)
	return strings.Join(segments, ":")
}

func (f *fakeCache) ConfigKeyPattern(table string) string {
	return f.ConfigKey(table) + ":*"
}

func (f *fakeCache) DelPattern(_ context.Context, pattern string) error {
	for key := range f.store {
		if ok, _ := path.Match(pattern, key); ok {
			delete(f.store, key)
		}
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }

func newGatingService(t *testing.T, repo *stubGatingRepo, cache configCache, flags config.FeatureFlagsConfig, exp config.ExperimentsConfig) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: repo, Cache: cache, Flags: flags, Experiments: exp})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func defaultFlags() config.FeatureFlagsConfig {
	return config.FeatureFlagsConfig{ContentTypeGating: true, CourseDurationLimits: true}
}

func TestResolveMostSpecificFieldWins(t *testing.T) {
	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	org := "OpenLearnX"
	repo := &stubGatingRepo{gatingRows: []models.ContentTypeGatingConfig{
		{Scope: enums.ScopeGlobal, Enabled: boolPtr(false), StudioEnabled: boolPtr(false)},
		{Scope: enums.ScopeOrg, Org: &org, Enabled: boolPtr(true), EnabledAsOf: &asOf},
		{Scope: enums.ScopeCourse, CourseID: &gatingTestCourse, StudioEnabled: boolPtr(true)},
	}}
	svc := newGatingService(t, repo, nil, defaultFlags(), config.ExperimentsConfig{})

	resolved, err := svc.ResolveContentGating(context.Background(), ScopeRef{Site: "default", Org: org, CourseID: gatingTestCourse})
	if err != nil {
		t.Fatalf("ResolveContentGating: %v", err)
	}
	if !resolved.Enabled {
		t.Fatalf("org row should enable the gate")
	}
	if resolved.EnabledAsOf == nil || !resolved.EnabledAsOf.Equal(asOf) {
		t.Fatalf("enabled_as_of should come from the org row, got %v", resolved.EnabledAsOf)
	}
	if !resolved.StudioEnabled {
		t.Fatalf("course row should win the studio field")
	}
	if resolved.Provenance.Enabled != enums.ScopeOrg || resolved.Provenance.StudioEnabled != enums.ScopeCourse {
		t.Fatalf("unexpected provenance %+v", resolved.Provenance)
	}
}

func TestResolveEnabledWithoutCutoverIsDisabled(t *testing.T) {
	repo := &stubGatingRepo{gatingRows: []models.ContentTypeGatingConfig{
		{Scope: enums.ScopeGlobal, Enabled: boolPtr(true)},
	}}
	svc := newGatingService(t, repo, nil, defaultFlags(), config.ExperimentsConfig{})

	resolved, err := svc.ResolveContentGating(context.Background(), ScopeRef{Site: "default"})
	if err != nil {
		t.Fatalf("ResolveContentGating: %v", err)
	}
	if resolved.Enabled {
		t.Fatalf("a gate without enabled_as_of must not take effect")
	}
}

func TestEnabledForEnrollmentCutover(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &stubGatingRepo{gatingRows: []models.ContentTypeGatingConfig{
		{Scope: enums.ScopeGlobal, Enabled: boolPtr(true), EnabledAsOf: &asOf},
	}}
	ref := ScopeRef{Site: "default", Org: "OpenLearnX", CourseID: gatingTestCourse}
	svc := newGatingService(t, repo, nil, defaultFlags(), config.ExperimentsConfig{})

	before, err := svc.EnabledForEnrollment(context.Background(), ref, asOf.Add(-time.Second))
	if err != nil || before {
		t.Fatalf("pre-cutover enrollment must be grandfathered, got %v %v", before, err)
	}
	at, err := svc.EnabledForEnrollment(context.Background(), ref, asOf)
	if err != nil || !at {
		t.Fatalf("enrollment at the cutover is gated, got %v %v", at, err)
	}

	off := newGatingService(t, repo, nil, config.FeatureFlagsConfig{ContentTypeGating: false}, config.ExperimentsConfig{})
	gated, err := off.EnabledForEnrollment(context.Background(), ref, asOf.Add(time.Hour))
	if err != nil || gated {
		t.Fatalf("disabled feature flag must switch the gate off, got %v %v", gated, err)
	}

	forced := newGatingService(t, &stubGatingRepo{}, nil, defaultFlags(), config.ExperimentsConfig{GatingForceEnabled: true})
	gated, err = forced.EnabledForEnrollment(context.Background(), ref, asOf.Add(-time.Hour))
	if err != nil || !gated {
		t.Fatalf("force flag must gate regardless of config, got %v %v", gated, err)
	}
}

func TestResolveUsesCacheUntilInvalidated(t *testing.T) {
	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &stubGatingRepo{gatingRows: []models.ContentTypeGatingConfig{
		{Scope: enums.ScopeGlobal, Enabled: boolPtr(true), EnabledAsOf: &asOf},
	}}
	cache := newFakeCache()
	svc := newGatingService(t, repo, cache, defaultFlags(), config.ExperimentsConfig{})
	ref := ScopeRef{Site: "default", Org: "OpenLearnX", CourseID: gatingTestCourse}

	if _, err := svc.ResolveContentGating(context.Background(), ref); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := svc.ResolveContentGating(context.Background(), ref); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if repo.chainCalls != 1 {
		t.Fatalf("second resolve should come from cache, chain hit %d times", repo.chainCalls)
	}

	err := svc.SetContentGating(context.Background(), SetParams{
		Scope:       enums.ScopeCourse,
		CourseID:    gatingTestCourse,
		Enabled:     boolPtr(false),
		ActorID:     uuid.New(),
		EnabledAsOf: nil,
	})
	if err != nil {
		t.Fatalf("SetContentGating: %v", err)
	}

	resolved, err := svc.ResolveContentGating(context.Background(), ref)
	if err != nil {
		t.Fatalf("resolve after write: %v", err)
	}
	if repo.chainCalls != 2 {
		t.Fatalf("write should invalidate the cached entry, chain hit %d times", repo.chainCalls)
	}
	if resolved.Enabled {
		t.Fatalf("course row should now disable the gate")
	}
}

func TestSetParamsValidation(t *testing.T) {
	svc := newGatingService(t, &stubGatingRepo{}, nil, defaultFlags(), config.ExperimentsConfig{})

	err := svc.SetContentGating(context.Background(), SetParams{
		Scope: enums.ScopeSite,
		Site:  "default",
		Org:   "OpenLearnX",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("site rows naming an org must fail, got %v", err)
	}

	err = svc.SetDurationLimit(context.Background(), SetParams{
		Scope:   enums.ScopeGlobal,
		Enabled: boolPtr(true),
	})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("enabling without enabled_as_of must fail, got %v", err)
	}
}
