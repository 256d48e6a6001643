package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/api/middleware"
	"github.com/openlearnhq/courseware-backend/api/responses"
	"github.com/openlearnhq/courseware-backend/api/validators"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

type roleGrantRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Role     string `json:"role" validate:"required"`
	Org      string `json:"org,omitempty"`
	CourseID string `json:"course_id,omitempty"`
}

func (req roleGrantRequest) toParams() (roles.GrantParams, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return roles.GrantParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	role, err := enums.ParseCourseRole(req.Role)
	if err != nil {
		return roles.GrantParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
	}
	params := roles.GrantParams{UserID: userID, Role: role, Org: req.Org}
	if req.CourseID != "" {
		key, err := coursekey.Parse(req.CourseID)
		if err != nil {
			return roles.GrantParams{}, pkgerrors.Wrap(pkgerrors.CodeInvalidKey, err, "invalid course key")
		}
		params.CourseID = &key
	}
	return params, nil
}

// authorizeGrant decides who may hand out a role. Course-scoped grants need
// instructor access on that course; anything wider needs global staff.
func authorizeGrant(r *http.Request, svc roles.Service, params roles.GrantParams) error {
	actor, err := actorID(r)
	if err != nil {
		return err
	}
	if params.CourseID != nil {
		return requireCourseInstructor(r.Context(), svc, actor, *params.CourseID)
	}
	if !middleware.GlobalStaffFromContext(r.Context()) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "global staff required for org and global grants")
	}
	return nil
}

func RoleGrant(svc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role service unavailable"))
			return
		}

		var payload roleGrantRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payload.toParams()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeGrant(r, svc, params); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		granted, err := svc.Grant(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, granted)
	}
}

func RoleRevoke(svc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role service unavailable"))
			return
		}

		var payload roleGrantRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payload.toParams()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeGrant(r, svc, params); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Revoke(r.Context(), params); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

// RoleListForCourse returns every grant on a course for staff rosters.
func RoleListForCourse(svc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role service unavailable"))
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
		if err := requireCourseStaff(r.Context(), svc, actor, courseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listed, err := svc.RolesForCourse(r.Context(), courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, listed)
	}
}

// RoleListMine returns the caller's own grants.
func RoleListMine(svc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role service unavailable"))
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listed, err := svc.RolesForUser(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, listed)
	}
}
