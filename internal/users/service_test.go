package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/auth"
	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

type stubUserRepo struct {
	byUsername map[string]*models.User
	lastLogin  map[uuid.UUID]time.Time
	createErr  error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byUsername: make(map[string]*models.User),
		lastLogin:  make(map[uuid.UUID]time.Time),
	}
}

func (s *stubUserRepo) Create(_ context.Context, user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.byUsername[user.Username]; ok {
		return errors.New("duplicate key value violates unique constraint")
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	s.byUsername[user.Username] = user
	return nil
}

func (s *stubUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	user, ok := s.byUsername[username]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range s.byUsername {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, user := range s.byUsername {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.lastLogin[id] = at
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret-0123456789",
		Issuer:            "courseware-test",
		ExpirationMinutes: 30,
	}
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    8 * 1024,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func newUserService(t *testing.T) (*stubUserRepo, Service) {
	t.Helper()
	repo := newStubUserRepo()
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		JWT:      testJWTConfig(),
		Password: testPasswordConfig(),
		Now:      func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return repo, svc
}

func assertUserErrCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != code {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	repo, svc := newUserService(t)

	dto, err := svc.Register(ctx, RegisterParams{
		Username: "learner1",
		Email:    "Learner1@Example.org",
		Password: "correct horse",
		FullName: "Learner One",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if dto.Email != "learner1@example.org" {
		t.Fatalf("expected lowercased email, got %q", dto.Email)
	}
	if stored := repo.byUsername["learner1"]; stored.PasswordHash == "correct horse" || stored.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}

	token, user, err := svc.Login(ctx, LoginParams{Username: "learner1", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != dto.ID {
		t.Fatalf("expected user %s, got %s", dto.ID, user.ID)
	}
	claims, err := auth.ParseAccessToken(testJWTConfig(), token.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != dto.ID || claims.Username != "learner1" || claims.GlobalStaff {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, ok := repo.lastLogin[dto.ID]; !ok {
		t.Fatal("expected last login recorded")
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	_, svc := newUserService(t)

	cases := []struct {
		name   string
		params RegisterParams
	}{
		{"bad username", RegisterParams{Username: "no spaces!", Email: "a@b.org", Password: "longenough"}},
		{"bad email", RegisterParams{Username: "learner1", Email: "not-an-email", Password: "longenough"}},
		{"short password", RegisterParams{Username: "learner1", Email: "a@b.org", Password: "short"}},
	}
	for _, tc := range cases {
		_, err := svc.Register(ctx, tc.params)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		assertUserErrCode(t, err, pkgerrors.CodeValidation)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	repo, svc := newUserService(t)

	if _, err := svc.Register(ctx, RegisterParams{Username: "learner1", Email: "a@b.org", Password: "correct horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, _, err := svc.Login(ctx, LoginParams{Username: "learner1", Password: "wrong password"})
	assertUserErrCode(t, err, pkgerrors.CodeUnauthorized)

	_, _, err = svc.Login(ctx, LoginParams{Username: "nobody", Password: "correct horse"})
	assertUserErrCode(t, err, pkgerrors.CodeUnauthorized)

	repo.byUsername["learner1"].IsActive = false
	_, _, err = svc.Login(ctx, LoginParams{Username: "learner1", Password: "correct horse"})
	assertUserErrCode(t, err, pkgerrors.CodeForbidden)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	_, svc := newUserService(t)

	if _, err := svc.Register(ctx, RegisterParams{Username: "learner1", Email: "a@b.org", Password: "correct horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, RegisterParams{Username: "learner1", Email: "c@d.org", Password: "correct horse"})
	assertUserErrCode(t, err, pkgerrors.CodeDuplicateKey)
}

func TestLoginByEmail(t *testing.T) {
	ctx := context.Background()
	_, svc := newUserService(t)

	if _, err := svc.Register(ctx, RegisterParams{Username: "learner1", Email: "a@b.org", Password: "correct horse"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, user, err := svc.Login(ctx, LoginParams{Email: "A@B.org", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Username != "learner1" {
		t.Fatalf("expected learner1, got %q", user.Username)
	}
}
