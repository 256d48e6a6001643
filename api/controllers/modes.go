package controllers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlearnhq/courseware-backend/api/responses"
	"github.com/openlearnhq/courseware-backend/api/validators"
	"github.com/openlearnhq/courseware-backend/internal/modes"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

// ModeList returns the selectable modes for a course. ?include_expired=true
// keeps expired modes, which upsell surfaces need.
func ModeList(svc modes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mode service unavailable"))
			return
		}

		courseID, err := validators.CourseKeyParam(r, "courseKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		includeExpired, err := validators.ParseQueryBool(r, "include_expired", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listed, err := svc.ModesForCourse(r.Context(), courseID, modes.ListOptions{
			IncludeExpired: includeExpired,
			OnlySelectable: true,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, listed)
	}
}

type modeUpsertRequest struct {
	Slug               string     `json:"slug" validate:"required"`
	Name               string     `json:"name" validate:"required"`
	MinPrice           string     `json:"min_price,omitempty"`
	Currency           string     `json:"currency,omitempty"`
	ExpirationDatetime *time.Time `json:"expiration_datetime,omitempty"`
	SuggestedPrices    []int      `json:"suggested_prices,omitempty"`
	SKU                string     `json:"sku,omitempty"`
	Description        string     `json:"description,omitempty"`
	Position           int        `json:"position,omitempty"`
}

func ModeUpsert(svc modes.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mode service unavailable"))
			return
		}

		courseID, err := validators.CourseKeyParam(r, "courseKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireCourseInstructor(r.Context(), roleSvc, actor, courseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload modeUpsertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		price := decimal.Zero
		if payload.MinPrice != "" {
			price, err = decimal.NewFromString(payload.MinPrice)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid min price"))
				return
			}
		}

		upserted, err := svc.Upsert(r.Context(), courseID, modes.UpsertParams{
			Slug:               enums.ModeSlug(payload.Slug),
			Name:               payload.Name,
			MinPrice:           price,
			Currency:           payload.Currency,
			ExpirationDatetime: payload.ExpirationDatetime,
			SuggestedPrices:    payload.SuggestedPrices,
			SKU:                payload.SKU,
			Description:        payload.Description,
			Position:           payload.Position,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, upserted)
	}
}

func ModeDelete(svc modes.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "mode service unavailable"))
			return
		}

		courseID, err := validators.CourseKeyParam(r, "courseKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireCourseInstructor(r.Context(), roleSvc, actor, courseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		slug := enums.ModeSlug(r.URL.Query().Get("slug"))
		if slug == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "slug query parameter is required"))
			return
		}

		if err := svc.Delete(r.Context(), courseID, slug); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
