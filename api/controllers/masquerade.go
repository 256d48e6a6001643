package controllers

import (
	"net/http"

	"github.com/openlearnhq/courseware-backend/api/responses"
	"github.com/openlearnhq/courseware-backend/api/validators"
	"github.com/openlearnhq/courseware-backend/internal/masquerade"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

type masqueradeRequest struct {
	Role        string `json:"role,omitempty" validate:"omitempty,oneof=staff student"`
	Username    string `json:"user_name,omitempty"`
	PartitionID *int64 `json:"user_partition_id,omitempty"`
	GroupID     *int64 `json:"group_id,omitempty"`
}

// MasqueradeSet stores a view-as directive for the staff caller. Setting the
// staff role clears any active spoof.
func MasqueradeSet(svc masquerade.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "masquerade service unavailable"))
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

		var payload masqueradeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		directive := masquerade.Directive{
			Role:        payload.Role,
			Username:    payload.Username,
			PartitionID: payload.PartitionID,
			GroupID:     payload.GroupID,
		}
		if err := svc.Set(r.Context(), actor, courseID, directive); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, directive)
	}
}

func MasqueradeGet(svc masquerade.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "masquerade service unavailable"))
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

		directive, err := svc.Get(r.Context(), actor, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if directive == nil {
			responses.WriteSuccess(w, map[string]string{"role": masquerade.RoleStaff})
			return
		}

		responses.WriteSuccess(w, directive)
	}
}

func MasqueradeClear(svc masquerade.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "masquerade service unavailable"))
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

		if err := svc.Clear(r.Context(), actor, courseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
