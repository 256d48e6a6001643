package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/api/middleware"
	"github.com/openlearnhq/courseware-backend/internal/enrollment"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

type stubEnrollmentService struct {
	enrollment.Service

	lastEnroll enrollment.EnrollParams
	enrollErr  error
	got        enrollment.EnrollmentDTO
	getErr     error
}

func (s *stubEnrollmentService) Enroll(_ context.Context, params enrollment.EnrollParams) (enrollment.EnrollmentDTO, error) {
	s.lastEnroll = params
	if s.enrollErr != nil {
		return enrollment.EnrollmentDTO{}, s.enrollErr
	}
	return enrollment.EnrollmentDTO{
		ID:       uuid.New(),
		UserID:   params.UserID,
		CourseID: params.CourseID.String(),
		Mode:     params.Mode,
		IsActive: true,
	}, nil
}

func (s *stubEnrollmentService) Get(_ context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (enrollment.EnrollmentDTO, error) {
	if s.getErr != nil {
		return enrollment.EnrollmentDTO{}, s.getErr
	}
	got := s.got
	got.UserID = userID
	got.CourseID = courseID.String()
	return got, nil
}

type stubRoleService struct {
	roles.Service

	staff      bool
	instructor bool
}

func (s *stubRoleService) HasStaffAccess(context.Context, uuid.UUID, coursekey.CourseKey) (bool, error) {
	return s.staff, nil
}

func (s *stubRoleService) HasInstructorAccess(context.Context, uuid.UUID, coursekey.CourseKey) (bool, error) {
	return s.instructor, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func asUser(userID uuid.UUID, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID.String())))
	})
}

func TestEnrollSelfEnforcesAccessChecks(t *testing.T) {
	svc := &stubEnrollmentService{}
	actor := uuid.New()

	router := chi.NewRouter()
	router.Post("/enrollments", Enroll(svc, &stubRoleService{}, testLogger()))

	body := bytes.NewBufferString(`{"course_id":"course-v1:edX+DemoX+2026","mode":"verified"}`)
	req := httptest.NewRequest(http.MethodPost, "/enrollments", body)
	rec := httptest.NewRecorder()
	asUser(actor, router).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastEnroll.UserID != actor {
		t.Fatalf("expected self enrollment for %s, got %s", actor, svc.lastEnroll.UserID)
	}
	if !svc.lastEnroll.CheckAccess {
		t.Fatal("self enrollment must run access checks")
	}
	if svc.lastEnroll.Mode != enums.ModeSlug("verified") {
		t.Fatalf("unexpected mode %q", svc.lastEnroll.Mode)
	}
}

func TestEnrollOtherUserNeedsCourseStaff(t *testing.T) {
	svc := &stubEnrollmentService{}
	actor := uuid.New()
	target := uuid.New()

	router := chi.NewRouter()
	router.Post("/enrollments", Enroll(svc, &stubRoleService{staff: false}, testLogger()))

	payload := `{"course_id":"course-v1:edX+DemoX+2026","user_id":"` + target.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/enrollments", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	asUser(actor, router).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEnrollOtherUserAsStaffSkipsAccessChecks(t *testing.T) {
	svc := &stubEnrollmentService{}
	actor := uuid.New()
	target := uuid.New()

	router := chi.NewRouter()
	router.Post("/enrollments", Enroll(svc, &stubRoleService{staff: true}, testLogger()))

	payload := `{"course_id":"course-v1:edX+DemoX+2026","user_id":"` + target.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/enrollments", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	asUser(actor, router).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastEnroll.UserID != target {
		t.Fatalf("expected enrollment for %s, got %s", target, svc.lastEnroll.UserID)
	}
	if svc.lastEnroll.CheckAccess {
		t.Fatal("roster adds must bypass access checks")
	}
}

func TestEnrollmentGetUserOverrideForbiddenForLearners(t *testing.T) {
	svc := &stubEnrollmentService{}
	actor := uuid.New()
	other := uuid.New()

	router := chi.NewRouter()
	router.Get("/enrollments/{courseKey}", EnrollmentGet(svc, &stubRoleService{staff: false}, testLogger()))

	req := httptest.NewRequest(http.MethodGet,
		"/enrollments/course-v1:edX+DemoX+2026?user="+other.String(), nil)
	rec := httptest.NewRecorder()
	asUser(actor, router).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeForbidden) {
		t.Fatalf("unexpected error code %q", envelope.Error.Code)
	}
}

func TestEnrollmentGetMapsNotFound(t *testing.T) {
	svc := &stubEnrollmentService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "enrollment not found")}
	actor := uuid.New()

	router := chi.NewRouter()
	router.Get("/enrollments/{courseKey}", EnrollmentGet(svc, &stubRoleService{}, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/enrollments/course-v1:edX+DemoX+2026", nil)
	rec := httptest.NewRecorder()
	asUser(actor, router).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
