package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/api/responses"
	"github.com/openlearnhq/courseware-backend/api/validators"
	"github.com/openlearnhq/courseware-backend/internal/enrollment"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
	"github.com/openlearnhq/courseware-backend/pkg/pagination"
)

// enrollmentSubject resolves whose ledger a request targets. Learners may only
// touch their own; the ?user= override requires staff on the course.
func enrollmentSubject(r *http.Request, roleSvc roles.Service, courseID coursekey.CourseKey) (uuid.UUID, error) {
	actor, err := actorID(r)
	if err != nil {
		return uuid.Nil, err
	}

	raw := strings.TrimSpace(r.URL.Query().Get("user"))
	if raw == "" {
		return actor, nil
	}

	target, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	if target == actor {
		return actor, nil
	}
	if err := requireCourseStaff(r.Context(), roleSvc, actor, courseID); err != nil {
		return uuid.Nil, err
	}
	return target, nil
}

// EnrollmentList returns one page of the caller's enrollments with course
// details. Pages are keyed by an opaque cursor; limit caps the page size.
func EnrollmentList(svc enrollment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollment service unavailable"))
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid limit"))
				return
			}
		}

		page, err := svc.ListForUser(r.Context(), actor, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

type enrollRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Mode     string `json:"mode,omitempty"`
	// UserID lets course staff enroll someone else; it bypasses the
	// enrollment window and cap checks the way an admin roster add does.
	UserID string `json:"user_id,omitempty"`
	// HasInvitation admits the caller to an invitation-only run.
	HasInvitation bool `json:"has_invitation,omitempty"`
}

func Enroll(svc enrollment.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollment service unavailable"))
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload enrollRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		courseID, err := coursekey.Parse(payload.CourseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidKey, err, "invalid course key"))
			return
		}

		subject := actor
		checkAccess := true
		if payload.UserID != "" {
			target, err := uuid.Parse(payload.UserID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
				return
			}
			if target != actor {
				if err := requireCourseStaff(r.Context(), roleSvc, actor, courseID); err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				subject = target
				checkAccess = false
			}
		}

		enrolled, err := svc.Enroll(r.Context(), enrollment.EnrollParams{
			UserID:        subject,
			CourseID:      courseID,
			Mode:          enums.ModeSlug(payload.Mode),
			CheckAccess:   checkAccess,
			HasInvitation: payload.HasInvitation,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, enrolled)
	}
}

func EnrollmentGet(svc enrollment.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollment service unavailable"))
			return
		}

		courseID, err := validators.CourseKeyParam(r, "courseKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subject, err := enrollmentSubject(r, roleSvc, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		enrolled, err := svc.Get(r.Context(), subject, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, enrolled)
	}
}

type changeModeRequest struct {
	Mode string `json:"mode" validate:"required"`
}

func EnrollmentChangeMode(svc enrollment.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollment service unavailable"))
			return
		}

		courseID, err := validators.CourseKeyParam(r, "courseKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subject, err := enrollmentSubject(r, roleSvc, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload changeModeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		changed, err := svc.ChangeMode(r.Context(), subject, courseID, enums.ModeSlug(payload.Mode))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, changed)
	}
}

func Unenroll(svc enrollment.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollment service unavailable"))
			return
		}

		courseID, err := validators.CourseKeyParam(r, "courseKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subject, err := enrollmentSubject(r, roleSvc, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Unenroll(r.Context(), subject, courseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

// EnrollmentAttributes reads the attribute bag attached to an enrollment.
func EnrollmentAttributes(svc enrollment.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollment service unavailable"))
			return
		}

		courseID, err := validators.CourseKeyParam(r, "courseKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subject, err := enrollmentSubject(r, roleSvc, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		enrolled, err := svc.Get(r.Context(), subject, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		attrs, err := svc.Attributes(r.Context(), enrolled.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, attrs)
	}
}

type setAttributesRequest struct {
	Attributes []enrollment.AttributeDTO `json:"attributes" validate:"required,min=1,dive"`
}

// EnrollmentSetAttributes replaces the attribute bag. Staff only, matching the
// administrative provenance of attributes like credit providers.
func EnrollmentSetAttributes(svc enrollment.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollment service unavailable"))
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

		subject, err := enrollmentSubject(r, roleSvc, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setAttributesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		enrolled, err := svc.Get(r.Context(), subject, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetAttributes(r.Context(), enrolled.ID, payload.Attributes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
