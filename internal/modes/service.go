package modes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

// Upgrade preference when several paid tracks coexist. Verified wins over
// professional for the upgrade-path decision.
var verifiedModePreference = []enums.ModeSlug{
	enums.ModeVerified,
	enums.ModeProfessional,
	enums.ModeNoIDProfessional,
	enums.ModeCredit,
	enums.ModeMasters,
}

// ModeDTO is the API projection of one course mode.
type ModeDTO struct {
	CourseID           string          `json:"course_id"`
	Slug               enums.ModeSlug  `json:"slug"`
	Name               string          `json:"name"`
	MinPrice           decimal.Decimal `json:"min_price"`
	Currency           string          `json:"currency"`
	ExpirationDatetime *time.Time      `json:"expiration_datetime,omitempty"`
	SuggestedPrices    []int           `json:"suggested_prices,omitempty"`
	SKU                string          `json:"sku,omitempty"`
	Description        string          `json:"description,omitempty"`
}

// UpsertParams carries the writable fields of a mode.
type UpsertParams struct {
	Slug               enums.ModeSlug
	Name               string
	MinPrice           decimal.Decimal
	Currency           string
	ExpirationDatetime *time.Time
	SuggestedPrices    []int
	SKU                string
	Description        string
	Position           int
}

// ListOptions filters ModesForCourse.
type ListOptions struct {
	// IncludeExpired keeps modes whose expiration passed. Duration-limit
	// checks need this: an expired verified mode still marks the course
	// as upgradeable history.
	IncludeExpired bool
	// OnlySelectable drops modes a learner cannot pick directly (credit).
	OnlySelectable bool
}

type modeRepository interface {
	ListByCourse(ctx context.Context, courseID coursekey.CourseKey) ([]models.CourseMode, error)
	FindBySlug(ctx context.Context, courseID coursekey.CourseKey, slug enums.ModeSlug) (*models.CourseMode, error)
	Upsert(ctx context.Context, mode *models.CourseMode) error
	Delete(ctx context.Context, courseID coursekey.CourseKey, slug enums.ModeSlug) error
}

// ServiceParams groups dependencies for the mode catalog service.
type ServiceParams struct {
	Repo modeRepository
	Now  func() time.Time
}

// Service exposes the mode catalog.
type Service interface {
	ModesForCourse(ctx context.Context, courseID coursekey.CourseKey, opts ListOptions) ([]ModeDTO, error)
	ModeForCourse(ctx context.Context, courseID coursekey.CourseKey, slug enums.ModeSlug) (ModeDTO, error)
	VerifiedModeForCourse(ctx context.Context, courseID coursekey.CourseKey) (*ModeDTO, error)
	HasVerifiedMode(ctx context.Context, courseID coursekey.CourseKey) (bool, error)
	Upsert(ctx context.Context, courseID coursekey.CourseKey, params UpsertParams) (ModeDTO, error)
	Delete(ctx context.Context, courseID coursekey.CourseKey, slug enums.ModeSlug) error
}

type service struct {
	repo modeRepository
	now  func() time.Time
}

// NewService builds a mode catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mode repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, now: now}, nil
}

// ModesForCourse lists the run's modes. Expired modes drop out unless
// IncludeExpired is set; OnlySelectable additionally drops credit.
func (s *service) ModesForCourse(ctx context.Context, courseID coursekey.CourseKey, opts ListOptions) ([]ModeDTO, error) {
	rows, err := s.listModes(ctx, courseID)
	if err != nil {
		return nil, err
	}
	at := s.now()
	out := make([]ModeDTO, 0, len(rows))
	for _, row := range rows {
		if !opts.IncludeExpired && row.IsExpired(at) {
			continue
		}
		if opts.OnlySelectable && row.Slug.IsCredit() {
			continue
		}
		out = append(out, toModeDTO(row))
	}
	return out, nil
}

// ModeForCourse returns the named mode, expired or not.
func (s *service) ModeForCourse(ctx context.Context, courseID coursekey.CourseKey, slug enums.ModeSlug) (ModeDTO, error) {
	if !slug.IsValid() {
		return ModeDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid mode slug")
	}
	row, err := s.repo.FindBySlug(ctx, courseID, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ModeDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "mode not found")
		}
		return ModeDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load mode")
	}
	return toModeDTO(*row), nil
}

// VerifiedModeForCourse returns the current upgrade target, or nil when the
// run has no unexpired verified-like track.
func (s *service) VerifiedModeForCourse(ctx context.Context, courseID coursekey.CourseKey) (*ModeDTO, error) {
	rows, err := s.listModes(ctx, courseID)
	if err != nil {
		return nil, err
	}
	at := s.now()
	bySlug := make(map[enums.ModeSlug]models.CourseMode, len(rows))
	for _, row := range rows {
		if row.IsExpired(at) {
			continue
		}
		bySlug[row.Slug] = row
	}
	for _, slug := range verifiedModePreference {
		if row, ok := bySlug[slug]; ok {
			dto := toModeDTO(row)
			return &dto, nil
		}
	}
	return nil, nil
}

// HasVerifiedMode reports whether the run ever offered a verified-like
// track, counting expired rows.
func (s *service) HasVerifiedMode(ctx context.Context, courseID coursekey.CourseKey) (bool, error) {
	rows, err := s.listModes(ctx, courseID)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.Slug.IsVerifiedLike() {
			return true, nil
		}
	}
	return false, nil
}

// Upsert writes a mode row for the run.
func (s *service) Upsert(ctx context.Context, courseID coursekey.CourseKey, params UpsertParams) (ModeDTO, error) {
	if courseID.IsZero() {
		return ModeDTO{}, pkgerrors.New(pkgerrors.CodeInvalidKey, "course key is required")
	}
	if !params.Slug.IsValid() {
		return ModeDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid mode slug")
	}
	if strings.TrimSpace(params.Name) == "" {
		return ModeDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "mode name is required")
	}
	if params.MinPrice.IsNegative() {
		return ModeDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "min price cannot be negative")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}

	row := models.CourseMode{
		CourseID:           courseID,
		Slug:               params.Slug,
		Name:               params.Name,
		MinPrice:           params.MinPrice,
		Currency:           currency,
		ExpirationDatetime: params.ExpirationDatetime,
		SuggestedPrices:    dbtypes.IntList(params.SuggestedPrices),
		SKU:                params.SKU,
		Description:        params.Description,
		Position:           params.Position,
	}
	if err := s.repo.Upsert(ctx, &row); err != nil {
		return ModeDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert mode")
	}
	return toModeDTO(row), nil
}

// Delete removes a mode row. The audit row of a run must survive.
func (s *service) Delete(ctx context.Context, courseID coursekey.CourseKey, slug enums.ModeSlug) error {
	if slug == enums.DefaultModeSlug {
		return pkgerrors.New(pkgerrors.CodeValidation, "the default mode cannot be removed")
	}
	if err := s.repo.Delete(ctx, courseID, slug); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete mode")
	}
	return nil
}

func (s *service) listModes(ctx context.Context, courseID coursekey.CourseKey) ([]models.CourseMode, error) {
	if courseID.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidKey, "course key is required")
	}
	rows, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list modes")
	}
	return rows, nil
}

func toModeDTO(row models.CourseMode) ModeDTO {
	return ModeDTO{
		CourseID:           row.CourseID.String(),
		Slug:               row.Slug,
		Name:               row.Name,
		MinPrice:           row.MinPrice,
		Currency:           row.Currency,
		ExpirationDatetime: row.ExpirationDatetime,
		SuggestedPrices:    row.SuggestedPrices,
		SKU:                row.SKU,
		Description:        row.Description,
	}
}
