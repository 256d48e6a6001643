package controllers

import (
	"net/http"
	"time"

	"github.com/openlearnhq/courseware-backend/api/responses"
	"github.com/openlearnhq/courseware-backend/api/validators"
	"github.com/openlearnhq/courseware-backend/internal/gating"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

type gatingSetRequest struct {
	Scope         string     `json:"scope" validate:"required,oneof=global site org course"`
	Site          string     `json:"site,omitempty"`
	Org           string     `json:"org,omitempty"`
	CourseID      string     `json:"course_id,omitempty"`
	Enabled       *bool      `json:"enabled,omitempty"`
	EnabledAsOf   *time.Time `json:"enabled_as_of,omitempty"`
	StudioEnabled *bool      `json:"studio_enabled,omitempty"`
}

func (req gatingSetRequest) toParams(r *http.Request) (gating.SetParams, error) {
	actor, err := actorID(r)
	if err != nil {
		return gating.SetParams{}, err
	}
	params := gating.SetParams{
		Scope:         enums.ConfigScope(req.Scope),
		Site:          req.Site,
		Org:           req.Org,
		Enabled:       req.Enabled,
		EnabledAsOf:   req.EnabledAsOf,
		StudioEnabled: req.StudioEnabled,
		ActorID:       actor,
	}
	if req.CourseID != "" {
		key, err := coursekey.Parse(req.CourseID)
		if err != nil {
			return gating.SetParams{}, pkgerrors.Wrap(pkgerrors.CodeInvalidKey, err, "invalid course key")
		}
		params.CourseID = key
	}
	return params, nil
}

// GatingSetContent appends a content-gating config row at some scope.
func GatingSetContent(svc gating.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gating service unavailable"))
			return
		}

		var payload gatingSetRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payload.toParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetContentGating(r.Context(), params); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, nil)
	}
}

// GatingSetDurationLimit appends a duration-limit config row at some scope.
func GatingSetDurationLimit(svc gating.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gating service unavailable"))
			return
		}

		var payload gatingSetRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payload.toParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetDurationLimit(r.Context(), params); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, nil)
	}
}

func GatingListContent(svc gating.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gating service unavailable"))
			return
		}

		rows, err := svc.ListContentGating(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, rows)
	}
}

func GatingListDurationLimit(svc gating.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gating service unavailable"))
			return
		}

		rows, err := svc.ListDurationLimit(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, rows)
	}
}

// GatingResolve reports the effective gating state for one course so staff
// can see which layer a value came from.
func GatingResolve(svc gating.Service, roleSvc roles.Service, siteName string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gating service unavailable"))
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
		if err := requireCourseStaff(r.Context(), roleSvc, actor, courseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ref := gating.ScopeRef{Site: siteName, Org: courseID.Org(), CourseID: courseID}
		content, err := svc.ResolveContentGating(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		duration, err := svc.ResolveDurationLimit(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, struct {
			ContentGating gating.ResolvedGating        `json:"content_gating"`
			DurationLimit gating.ResolvedDurationLimit `json:"duration_limits"`
		}{ContentGating: content, DurationLimit: duration})
	}
}
