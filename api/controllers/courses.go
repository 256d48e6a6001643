package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/openlearnhq/courseware-backend/api/middleware"
	"github.com/openlearnhq/courseware-backend/api/responses"
	"github.com/openlearnhq/courseware-backend/api/validators"
	"github.com/openlearnhq/courseware-backend/internal/courseruns"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
	"github.com/openlearnhq/courseware-backend/pkg/visibility"
)

type courseCreateRequest struct {
	Org               string     `json:"org" validate:"required"`
	Number            string     `json:"number" validate:"required"`
	Run               string     `json:"run" validate:"required"`
	DisplayName       string     `json:"display_name" validate:"required"`
	Start             time.Time  `json:"start" validate:"required"`
	End               *time.Time `json:"end,omitempty"`
	EnrollmentStart   *time.Time `json:"enrollment_start,omitempty"`
	EnrollmentEnd     *time.Time `json:"enrollment_end,omitempty"`
	SelfPaced         bool       `json:"self_paced,omitempty"`
	InvitationOnly    bool       `json:"invitation_only,omitempty"`
	CatalogVisibility string     `json:"catalog_visibility,omitempty" validate:"omitempty,oneof=both about none"`
	WeeksToComplete   *int       `json:"weeks_to_complete,omitempty"`
	MaxEnrollments    *int       `json:"max_enrollments,omitempty"`
	DaysEarlyForBeta  *int       `json:"days_early_for_beta,omitempty"`
}

// CourseCreate registers a new run. The route is guarded by the global staff
// middleware; org-scoped creators go through the same path with a grant.
func CourseCreate(svc courseruns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "course service unavailable"))
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload courseCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), courseruns.CreateParams{
			Org:               payload.Org,
			Number:            payload.Number,
			Run:               payload.Run,
			DisplayName:       payload.DisplayName,
			Start:             payload.Start,
			End:               payload.End,
			EnrollmentStart:   payload.EnrollmentStart,
			EnrollmentEnd:     payload.EnrollmentEnd,
			SelfPaced:         payload.SelfPaced,
			InvitationOnly:    payload.InvitationOnly,
			CatalogVisibility: enums.CatalogVisibility(payload.CatalogVisibility),
			WeeksToComplete:   payload.WeeksToComplete,
			MaxEnrollments:    payload.MaxEnrollments,
			DaysEarlyForBeta:  payload.DaysEarlyForBeta,
			ActorID:           actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// CourseGet serves the about-page view of a run. Staff see hidden runs.
func CourseGet(svc courseruns.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "course service unavailable"))
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

		isStaff := middleware.GlobalStaffFromContext(r.Context())
		if !isStaff && roleSvc != nil {
			isStaff, err = roleSvc.HasStaffAccess(r.Context(), actor, courseID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		course, err := svc.GetVisible(r.Context(), courseID, visibility.SurfaceAbout, isStaff)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, course)
	}
}

// CourseList serves either the org catalog (?org=) or, for staff without an
// org filter, the runs their grants cover.
func CourseList(svc courseruns.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "course service unavailable"))
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org := strings.TrimSpace(r.URL.Query().Get("org"))
		if org != "" {
			courses, err := svc.Catalog(r.Context(), org, middleware.GlobalStaffFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, courses)
			return
		}

		if roleSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role service unavailable"))
			return
		}

		scope, err := roleSvc.StaffScope(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if scope.Global || middleware.GlobalStaffFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "org query parameter is required for global listings"))
			return
		}

		seen := map[string]bool{}
		var courses []courseruns.CourseRunDTO
		for _, scopedOrg := range scope.Orgs {
			orgCourses, err := svc.ListByOrg(r.Context(), scopedOrg)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			for _, course := range orgCourses {
				if !seen[course.ID] {
					seen[course.ID] = true
					courses = append(courses, course)
				}
			}
		}
		if len(scope.CourseIDs) > 0 {
			keyed, err := svc.ListByKeys(r.Context(), scope.CourseIDs)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			for _, course := range keyed {
				if !seen[course.ID] {
					seen[course.ID] = true
					courses = append(courses, course)
				}
			}
		}

		responses.WriteSuccess(w, courses)
	}
}

type courseUpdateRequest struct {
	DisplayName       *string    `json:"display_name,omitempty" validate:"omitempty,min=1"`
	Start             *time.Time `json:"start,omitempty"`
	End               *time.Time `json:"end,omitempty"`
	ClearEnd          bool       `json:"clear_end,omitempty"`
	EnrollmentStart   *time.Time `json:"enrollment_start,omitempty"`
	ClearEnrollStart  bool       `json:"clear_enrollment_start,omitempty"`
	EnrollmentEnd     *time.Time `json:"enrollment_end,omitempty"`
	ClearEnrollEnd    bool       `json:"clear_enrollment_end,omitempty"`
	SelfPaced         *bool      `json:"self_paced,omitempty"`
	InvitationOnly    *bool      `json:"invitation_only,omitempty"`
	CatalogVisibility *string    `json:"catalog_visibility,omitempty" validate:"omitempty,oneof=both about none"`
	AdvertisedStart   *string    `json:"advertised_start,omitempty"`
	WeeksToComplete   *int       `json:"weeks_to_complete,omitempty"`
	MaxEnrollments    *int       `json:"max_enrollments,omitempty"`
	DaysEarlyForBeta  *int       `json:"days_early_for_beta,omitempty"`
}

func CourseUpdate(svc courseruns.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "course service unavailable"))
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

		var payload courseUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := courseruns.UpdateParams{
			DisplayName:      payload.DisplayName,
			Start:            payload.Start,
			End:              payload.End,
			ClearEnd:         payload.ClearEnd,
			EnrollmentStart:  payload.EnrollmentStart,
			ClearEnrollStart: payload.ClearEnrollStart,
			EnrollmentEnd:    payload.EnrollmentEnd,
			ClearEnrollEnd:   payload.ClearEnrollEnd,
			SelfPaced:        payload.SelfPaced,
			InvitationOnly:   payload.InvitationOnly,
			AdvertisedStart:  payload.AdvertisedStart,
			WeeksToComplete:  payload.WeeksToComplete,
			MaxEnrollments:   payload.MaxEnrollments,
			DaysEarlyForBeta: payload.DaysEarlyForBeta,
			ActorID:          actor,
		}
		if payload.CatalogVisibility != nil {
			vis := enums.CatalogVisibility(*payload.CatalogVisibility)
			params.CatalogVisibility = &vis
		}

		updated, err := svc.Update(r.Context(), courseID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, updated)
	}
}

func CourseDelete(svc courseruns.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "course service unavailable"))
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

		if err := svc.Delete(r.Context(), courseID, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

type rerunRequest struct {
	Run         string    `json:"run" validate:"required"`
	DisplayName string    `json:"display_name,omitempty"`
	Start       time.Time `json:"start" validate:"required"`
}

func CourseRerun(svc courseruns.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "course service unavailable"))
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

		var payload rerunRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := svc.Rerun(r.Context(), courseID, courseruns.RerunParams{
			Run:         payload.Run,
			DisplayName: payload.DisplayName,
			Start:       payload.Start,
			ActorID:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, state)
	}
}

// CourseRerunState reports progress for a rerun destination run.
func CourseRerunState(svc courseruns.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "course service unavailable"))
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

		state, err := svc.RerunState(r.Context(), courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, state)
	}
}

// CourseRerunsPending lists unsucceeded reruns for operator dashboards.
func CourseRerunsPending(svc courseruns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "course service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		states, err := svc.UnsucceededReruns(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, states)
	}
}
