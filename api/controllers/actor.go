package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/api/middleware"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

// actorID extracts the authenticated user, failing closed when the auth
// middleware did not run.
func actorID(r *http.Request) (uuid.UUID, error) {
	id := middleware.UserUUIDFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id, nil
}

// requireCourseStaff admits global staff and users holding a staff-like role
// on the course.
func requireCourseStaff(ctx context.Context, svc roles.Service, userID uuid.UUID, courseID coursekey.CourseKey) error {
	if middleware.GlobalStaffFromContext(ctx) {
		return nil
	}
	if svc == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "role service unavailable")
	}
	ok, err := svc.HasStaffAccess(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "course staff access required")
	}
	return nil
}

// requireCourseInstructor admits global staff and instructor-level roles only.
func requireCourseInstructor(ctx context.Context, svc roles.Service, userID uuid.UUID, courseID coursekey.CourseKey) error {
	if middleware.GlobalStaffFromContext(ctx) {
		return nil
	}
	if svc == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "role service unavailable")
	}
	ok, err := svc.HasInstructorAccess(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "course instructor access required")
	}
	return nil
}
