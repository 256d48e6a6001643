package controllers

import (
	"net/http"

	"github.com/openlearnhq/courseware-backend/api/responses"
	"github.com/openlearnhq/courseware-backend/api/validators"
	"github.com/openlearnhq/courseware-backend/internal/access"
	"github.com/openlearnhq/courseware-backend/internal/modulestore"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

// XBlockRender answers a single access question and, when allowed, returns
// the block itself. student_view requires enrollment; public_view does not.
// Any other view, author_view included, is rejected here.
func XBlockRender(accessSvc access.Service, blockSvc modulestore.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if accessSvc == nil || blockSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access service unavailable"))
			return
		}

		usageID, err := validators.UsageKeyParam(r, "usageKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		at, err := validators.ParseQueryTime(r, "at")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view := r.URL.Query().Get("view")
		if view == "" {
			view = access.ViewStudent
		}

		decision, err := accessSvc.CanAccess(r.Context(), access.Request{
			UserID:            actor,
			UsageID:           usageID,
			At:                at,
			View:              view,
			RequireEnrollment: view == access.ViewStudent,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !decision.Allowed {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeForbidden, decision.UserMessage).WithDetails(decision))
			return
		}

		block, err := blockSvc.GetItem(r.Context(), usageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, struct {
			Block    modulestore.BlockDTO `json:"block"`
			Decision access.Decision      `json:"decision"`
		}{Block: block, Decision: decision})
	}
}

// CourseOutline evaluates the whole course tree against one snapshot and
// returns each block alongside its decision. Learner outlines hide blocks the
// caller may not see rather than failing the request.
func CourseOutline(accessSvc access.Service, blockSvc modulestore.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if accessSvc == nil || blockSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access service unavailable"))
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

		at, err := validators.ParseQueryTime(r, "at")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view := r.URL.Query().Get("view")
		if view == "" {
			view = access.ViewStudent
		}

		blocks, err := blockSvc.GetCourseBlocks(r.Context(), courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		usageIDs := make([]coursekey.UsageKey, 0, len(blocks))
		for _, block := range blocks {
			id, err := coursekey.ParseUsage(block.UsageID)
			if err != nil {
				continue
			}
			usageIDs = append(usageIDs, id)
		}

		decisions, err := accessSvc.CanAccessBatch(r.Context(), access.Request{
			UserID:            actor,
			At:                at,
			View:              view,
			RequireEnrollment: view == access.ViewStudent,
		}, usageIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		type outlineEntry struct {
			Block    modulestore.BlockDTO `json:"block"`
			Decision access.Decision      `json:"decision"`
		}
		entries := make([]outlineEntry, 0, len(blocks))
		for _, block := range blocks {
			decision, ok := decisions[block.UsageID]
			if !ok {
				continue
			}
			entries = append(entries, outlineEntry{Block: block, Decision: decision})
		}

		responses.WriteSuccess(w, entries)
	}
}
