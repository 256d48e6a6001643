package experiments

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

// Truthy values accepted for boolean-ish experiment buckets.
var truthyValues = map[string]bool{"1": true, "true": true, "yes": true, "on": true}

type experimentRepository interface {
	Find(ctx context.Context, userID uuid.UUID, namespace, key string) (*models.ExperimentData, error)
	Upsert(ctx context.Context, row *models.ExperimentData) error
	ListByNamespace(ctx context.Context, userID uuid.UUID, namespace string) ([]models.ExperimentData, error)
}

// ServiceParams groups dependencies for the experiment data service.
type ServiceParams struct {
	Repo   experimentRepository
	Config config.ExperimentsConfig
}

// Service exposes per-user experiment buckets, notably the gating holdback.
type Service interface {
	Value(ctx context.Context, userID uuid.UUID, namespace, key string) (string, bool, error)
	Set(ctx context.Context, userID uuid.UUID, namespace, key, value string) error
	List(ctx context.Context, userID uuid.UUID, namespace string) (map[string]string, error)
	// InHoldback reports whether the user was held out of content gating
	// and duration limits.
	InHoldback(ctx context.Context, userID uuid.UUID) (bool, error)
}

type service struct {
	repo experimentRepository
	cfg  config.ExperimentsConfig
}

// NewService builds an experiment data service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "experiment repo is required")
	}
	return &service{repo: params.Repo, cfg: params.Config}, nil
}

// Value returns (value, found) for one bucket.
func (s *service) Value(ctx context.Context, userID uuid.UUID, namespace, key string) (string, bool, error) {
	row, err := s.repo.Find(ctx, userID, namespace, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load experiment data")
	}
	return row.Value, true, nil
}

// Set writes one bucket.
func (s *service) Set(ctx context.Context, userID uuid.UUID, namespace, key, value string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(key) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "experiment namespace and key are required")
	}
	row := models.ExperimentData{
		UserID:    userID,
		Namespace: namespace,
		Key:       key,
		Value:     value,
	}
	if err := s.repo.Upsert(ctx, &row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save experiment data")
	}
	return nil
}

// List returns the user's buckets under one namespace as a key/value map.
func (s *service) List(ctx context.Context, userID uuid.UUID, namespace string) (map[string]string, error) {
	rows, err := s.repo.ListByNamespace(ctx, userID, namespace)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list experiment data")
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// InHoldback reads the holdback bucket configured for gating experiments. A
// missing bucket means not held back.
func (s *service) InHoldback(ctx context.Context, userID uuid.UUID) (bool, error) {
	value, found, err := s.Value(ctx, userID, s.cfg.HoldbackNamespace, s.cfg.HoldbackKey)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return truthyValues[strings.ToLower(strings.TrimSpace(value))], nil
}
