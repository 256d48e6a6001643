package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/internal/access"
	"github.com/openlearnhq/courseware-backend/internal/modulestore"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

type stubAccessService struct {
	lastReq  access.Request
	decision access.Decision
	batch    map[string]access.Decision
}

func (s *stubAccessService) CanAccess(_ context.Context, req access.Request) (access.Decision, error) {
	s.lastReq = req
	return s.decision, nil
}

func (s *stubAccessService) CanAccessBatch(_ context.Context, req access.Request, _ []coursekey.UsageKey) (map[string]access.Decision, error) {
	s.lastReq = req
	return s.batch, nil
}

type stubBlockService struct {
	modulestore.Service

	blocks []modulestore.BlockDTO
}

func (s *stubBlockService) GetItem(_ context.Context, id coursekey.UsageKey) (modulestore.BlockDTO, error) {
	return modulestore.BlockDTO{UsageID: id.String(), CourseID: id.CourseKey().String(), Category: enums.BlockCategory("html")}, nil
}

func (s *stubBlockService) GetCourseBlocks(context.Context, coursekey.CourseKey) ([]modulestore.BlockDTO, error) {
	return s.blocks, nil
}

const testUsageKey = "block-v1:edX+DemoX+2026+type@html+block@intro"

func TestXBlockRenderAllowedReturnsBlock(t *testing.T) {
	accessSvc := &stubAccessService{decision: access.Allow()}
	blockSvc := &stubBlockService{}

	router := chi.NewRouter()
	router.Get("/xblock/{usageKey}", XBlockRender(accessSvc, blockSvc, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/xblock/"+testUsageKey, nil)
	rec := httptest.NewRecorder()
	asUser(uuid.New(), router).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if accessSvc.lastReq.View != access.ViewStudent {
		t.Fatalf("expected default student view, got %q", accessSvc.lastReq.View)
	}
	if !accessSvc.lastReq.RequireEnrollment {
		t.Fatal("student view must require enrollment")
	}

	var envelope struct {
		Data struct {
			Block modulestore.BlockDTO `json:"block"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data.Block.UsageID != testUsageKey {
		t.Fatalf("unexpected block %q", envelope.Data.Block.UsageID)
	}
}

func TestXBlockRenderDeniedReturnsDecision(t *testing.T) {
	accessSvc := &stubAccessService{decision: access.Deny(enums.AccessReasonNotStarted, "start date in the future")}
	blockSvc := &stubBlockService{}

	router := chi.NewRouter()
	router.Get("/xblock/{usageKey}", XBlockRender(accessSvc, blockSvc, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/xblock/"+testUsageKey, nil)
	rec := httptest.NewRecorder()
	asUser(uuid.New(), router).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Details struct {
				Reason enums.AccessReason `json:"reason"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Message != enums.AccessReasonNotStarted.UserMessage() {
		t.Fatalf("unexpected message %q", envelope.Error.Message)
	}
	if envelope.Error.Details.Reason != enums.AccessReasonNotStarted {
		t.Fatalf("unexpected reason %q", envelope.Error.Details.Reason)
	}
}

func TestXBlockRenderPublicViewSkipsEnrollment(t *testing.T) {
	accessSvc := &stubAccessService{decision: access.Allow()}
	blockSvc := &stubBlockService{}

	router := chi.NewRouter()
	router.Get("/xblock/{usageKey}", XBlockRender(accessSvc, blockSvc, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/xblock/"+testUsageKey+"?view="+access.ViewPublic, nil)
	rec := httptest.NewRecorder()
	asUser(uuid.New(), router).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if accessSvc.lastReq.RequireEnrollment {
		t.Fatal("public view must not require enrollment")
	}
}

func TestCourseOutlinePairsBlocksWithDecisions(t *testing.T) {
	visible := testUsageKey
	hidden := "block-v1:edX+DemoX+2026+type@html+block@secret"

	accessSvc := &stubAccessService{batch: map[string]access.Decision{
		visible: access.Allow(),
		hidden:  access.Deny(enums.AccessReasonHiddenForNonstaff, "staff only"),
	}}
	blockSvc := &stubBlockService{blocks: []modulestore.BlockDTO{
		{UsageID: visible},
		{UsageID: hidden},
	}}

	router := chi.NewRouter()
	router.Get("/courses/{courseKey}/outline", CourseOutline(accessSvc, blockSvc, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/courses/course-v1:edX+DemoX+2026/outline", nil)
	rec := httptest.NewRecorder()
	asUser(uuid.New(), router).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data []struct {
			Block    modulestore.BlockDTO `json:"block"`
			Decision access.Decision      `json:"decision"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(envelope.Data))
	}
	for _, entry := range envelope.Data {
		if entry.Block.UsageID == hidden && entry.Decision.Allowed {
			t.Fatal("hidden block must carry a denial")
		}
	}
}
