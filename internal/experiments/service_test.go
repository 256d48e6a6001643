package experiments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

type stubExperimentRepo struct {
	rows map[string]models.ExperimentData
}

func bucketKey(userID uuid.UUID, namespace, key string) string {
	return userID.String() + "|" + namespace + "|" + key
}

func (s *stubExperimentRepo) Find(_ context.Context, userID uuid.UUID, namespace, key string) (*models.ExperimentData, error) {
	if row, ok := s.rows[bucketKey(userID, namespace, key)]; ok {
		return &row, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubExperimentRepo) Upsert(_ context.Context, row *models.ExperimentData) error {
	s.rows[bucketKey(row.UserID, row.Namespace, row.Key)] = *row
	return nil
}

func (s *stubExperimentRepo) ListByNamespace(_ context.Context, userID uuid.UUID, namespace string) ([]models.ExperimentData, error) {
	var out []models.ExperimentData
	for _, row := range s.rows {
		if row.UserID == userID && row.Namespace == namespace {
			out = append(out, row)
		}
	}
	return out, nil
}

func newExperimentService(t *testing.T) (Service, *stubExperimentRepo) {
	t.Helper()
	repo := &stubExperimentRepo{rows: map[string]models.ExperimentData{}}
	svc, err := NewService(ServiceParams{
		Repo: repo,
		Config: config.ExperimentsConfig{
			HoldbackNamespace: "content_type_gating",
			HoldbackKey:       "holdback",
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo
}

func TestSetAndValueRoundtrip(t *testing.T) {
	svc, _ := newExperimentService(t)
	userID := uuid.New()

	if err := svc.Set(context.Background(), userID, "pricing", "variant", "b"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, found, err := svc.Value(context.Background(), userID, "pricing", "variant")
	if err != nil || !found || value != "b" {
		t.Fatalf("Value = %q %v %v", value, found, err)
	}

	_, found, err = svc.Value(context.Background(), userID, "pricing", "missing")
	if err != nil || found {
		t.Fatalf("missing bucket should report found=false, got %v %v", found, err)
	}
}

func TestSetValidatesFields(t *testing.T) {
	svc, _ := newExperimentService(t)

	err := svc.Set(context.Background(), uuid.New(), "", "key", "v")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInHoldback(t *testing.T) {
	svc, _ := newExperimentService(t)
	userID := uuid.New()

	held, err := svc.InHoldback(context.Background(), userID)
	if err != nil || held {
		t.Fatalf("user without bucket should not be held back, got %v %v", held, err)
	}

	if err := svc.Set(context.Background(), userID, "content_type_gating", "holdback", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	held, err = svc.InHoldback(context.Background(), userID)
	if err != nil || !held {
		t.Fatalf("truthy bucket should hold the user back, got %v %v", held, err)
	}

	if err := svc.Set(context.Background(), userID, "content_type_gating", "holdback", "0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	held, err = svc.InHoldback(context.Background(), userID)
	if err != nil || held {
		t.Fatalf("falsy bucket should not hold the user back, got %v %v", held, err)
	}
}
