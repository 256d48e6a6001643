package masquerade

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
	"github.com/openlearnhq/courseware-backend/pkg/redis"
)

// Spoofable roles. Staff preview either the generic student view or a
// specific learner's view; "staff" clears any student spoof.
const (
	RoleStaff   = "staff"
	RoleStudent = "student"
)

// Directive is one spoof record, stored per (user, course) in redis. A
// directive replaces the viewer's live attributes during access resolution;
// it never grants more than a real user with those attributes would have.
type Directive struct {
	Role        string `json:"role"`
	Username    string `json:"username,omitempty"`
	PartitionID *int64 `json:"user_partition_id,omitempty"`
	GroupID     *int64 `json:"group_id,omitempty"`
}

// AsSpecificLearner reports whether the directive impersonates a named
// learner. Staff overrides never apply in that case.
func (d Directive) AsSpecificLearner() bool {
	return d.Role == RoleStudent && d.Username != ""
}

type sessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	MasqueradeKey(userID, courseID string) string
}

// ServiceParams groups dependencies for the masquerade service.
type ServiceParams struct {
	Store  sessionStore
	Logger *logger.Logger
	Config config.MasqueradeConfig
}

// Service stores and reads per-course spoof directives.
type Service interface {
	Set(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, directive Directive) error
	Get(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*Directive, error)
	Clear(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) error
}

type service struct {
	store sessionStore
	logg  *logger.Logger
	ttl   time.Duration
}

// NewService builds a masquerade service backed by redis.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session store is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	ttl := params.Config.SessionTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &service{store: params.Store, logg: params.Logger, ttl: ttl}, nil
}

// Set validates and stores the directive. Setting the staff role clears any
// existing spoof instead of storing one.
func (s *service) Set(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, directive Directive) error {
	directive.Role = strings.TrimSpace(directive.Role)
	if directive.Role == "" {
		directive.Role = RoleStudent
	}
	if directive.Role != RoleStaff && directive.Role != RoleStudent {
		return pkgerrors.New(pkgerrors.CodeValidation, "role must be staff or student")
	}
	if directive.Role == RoleStaff {
		return s.Clear(ctx, userID, courseID)
	}
	if directive.GroupID != nil && directive.PartitionID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "group_id requires user_partition_id")
	}
	if directive.Username != "" && directive.GroupID != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "username and group_id are mutually exclusive")
	}

	payload, err := json.Marshal(directive)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode directive")
	}
	key := s.store.MasqueradeKey(userID.String(), courseID.String())
	if err := s.store.Set(ctx, key, payload, s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store directive")
	}

	logCtx := s.logg.WithUserID(ctx, userID.String())
	logCtx = s.logg.WithCourse(logCtx, courseID.String())
	s.logg.Info(logCtx, "masquerade directive set")
	return nil
}

// Get returns the active directive, or nil when the viewer is themselves.
func (s *service) Get(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (*Directive, error) {
	key := s.store.MasqueradeKey(userID.String(), courseID.String())
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read directive")
	}

	var directive Directive
	if err := json.Unmarshal([]byte(raw), &directive); err != nil {
		// A corrupt record should not lock the viewer out of their own view.
		logCtx := s.logg.WithUserID(ctx, userID.String())
		s.logg.Warn(logCtx, "dropping unreadable masquerade directive")
		if delErr := s.store.Del(ctx, key); delErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, delErr, "drop directive")
		}
		return nil, nil
	}
	return &directive, nil
}

// Clear removes the directive, restoring the viewer's live attributes.
func (s *service) Clear(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) error {
	key := s.store.MasqueradeKey(userID.String(), courseID.String())
	if err := s.store.Del(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear directive")
	}
	return nil
}
