package users

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/auth"
	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/db"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
	"github.com/openlearnhq/courseware-backend/pkg/security"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{2,150}$`)

const minPasswordLength = 8

type userRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ServiceParams groups dependencies for the account service.
type ServiceParams struct {
	Repo     userRepository
	Logger   *logger.Logger
	JWT      config.JWTConfig
	Password config.PasswordConfig
	Now      func() time.Time
}

// Service covers account creation and credential exchange.
type Service interface {
	Register(ctx context.Context, params RegisterParams) (UserDTO, error)
	Login(ctx context.Context, params LoginParams) (TokenDTO, UserDTO, error)
	Get(ctx context.Context, id uuid.UUID) (UserDTO, error)
}

type service struct {
	repo   userRepository
	logg   *logger.Logger
	jwtCfg config.JWTConfig
	pwCfg  config.PasswordConfig
	now    func() time.Time
}

// NewService builds an account service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user repo is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		logg:   params.Logger,
		jwtCfg: params.JWT,
		pwCfg:  params.Password,
		now:    now,
	}, nil
}

// Register creates an account with a hashed password.
func (s *service) Register(ctx context.Context, params RegisterParams) (UserDTO, error) {
	username := strings.TrimSpace(params.Username)
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if !usernamePattern.MatchString(username) {
		return UserDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "username must be 2-150 word characters")
	}
	if email == "" || !strings.Contains(email, "@") {
		return UserDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if len(params.Password) < minPasswordLength {
		return UserDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := security.HashPassword(params.Password, s.pwCfg)
	if err != nil {
		return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(params.FullName),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, &user); err != nil {
		if db.IsUniqueViolation(err, "") {
			return UserDTO{}, pkgerrors.New(pkgerrors.CodeDuplicateKey, "username or email already taken")
		}
		return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}

	logCtx := s.logg.WithUserID(ctx, user.ID.String())
	s.logg.Info(logCtx, "user registered")
	return toUserDTO(user), nil
}

// Login exchanges credentials for an access token. Lookup failures and bad
// passwords share one error so callers cannot probe for accounts.
func (s *service) Login(ctx context.Context, params LoginParams) (TokenDTO, UserDTO, error) {
	user, err := s.findAccount(ctx, params)
	if err != nil {
		return TokenDTO{}, UserDTO{}, err
	}
	if user == nil {
		return TokenDTO{}, UserDTO{}, invalidCredentials()
	}

	ok, err := security.VerifyPassword(params.Password, user.PasswordHash)
	if err != nil || !ok {
		return TokenDTO{}, UserDTO{}, invalidCredentials()
	}
	if !user.IsActive {
		return TokenDTO{}, UserDTO{}, pkgerrors.New(pkgerrors.CodeForbidden, "account is disabled")
	}

	now := s.now().UTC()
	token, err := auth.MintAccessToken(s.jwtCfg, now, auth.AccessTokenPayload{
		UserID:      user.ID,
		Username:    user.Username,
		GlobalStaff: user.GlobalStaff,
		JTI:         uuid.NewString(),
	})
	if err != nil {
		return TokenDTO{}, UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token")
	}
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Login still succeeds; the timestamp is advisory.
		logCtx := s.logg.WithUserID(ctx, user.ID.String())
		s.logg.Warn(logCtx, "failed to update last login")
	}

	expiresAt := now.Add(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute)
	return TokenDTO{AccessToken: token, ExpiresAt: expiresAt}, toUserDTO(*user), nil
}

// Get loads one account.
func (s *service) Get(ctx context.Context, id uuid.UUID) (UserDTO, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return toUserDTO(*user), nil
}

func (s *service) findAccount(ctx context.Context, params LoginParams) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	switch {
	case params.Username != "":
		user, err = s.repo.FindByUsername(ctx, strings.TrimSpace(params.Username))
	case params.Email != "":
		user, err = s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(params.Email)))
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username or email is required")
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func invalidCredentials() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}
