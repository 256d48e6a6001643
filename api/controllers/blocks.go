package controllers

import (
	"net/http"

	"github.com/openlearnhq/courseware-backend/api/responses"
	"github.com/openlearnhq/courseware-backend/api/validators"
	"github.com/openlearnhq/courseware-backend/internal/modulestore"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

type blockCreateRequest struct {
	Category           string                 `json:"category" validate:"required"`
	BlockID            string                 `json:"block_id" validate:"required"`
	DisplayName        string                 `json:"display_name,omitempty"`
	ParentID           string                 `json:"parent_id,omitempty"`
	Position           int                    `json:"position,omitempty"`
	GroupAccess        dbtypes.GroupAccessMap `json:"group_access,omitempty"`
	VisibleToStaffOnly bool                   `json:"visible_to_staff_only,omitempty"`
}

// BlockCreate adds a block to the course tree. Studio-side, staff only.
func BlockCreate(svc modulestore.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "block service unavailable"))
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

		var payload blockCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := modulestore.CreateBlockParams{
			CourseID:           courseID,
			Category:           enums.BlockCategory(payload.Category),
			BlockID:            payload.BlockID,
			DisplayName:        payload.DisplayName,
			Position:           payload.Position,
			GroupAccess:        payload.GroupAccess,
			VisibleToStaffOnly: payload.VisibleToStaffOnly,
		}
		if payload.ParentID != "" {
			parent, err := coursekey.ParseUsage(payload.ParentID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidKey, err, "invalid parent key"))
				return
			}
			params.ParentID = &parent
		}

		created, err := svc.CreateItem(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

type blockUpdateRequest struct {
	DisplayName        *string                `json:"display_name,omitempty"`
	Position           *int                   `json:"position,omitempty"`
	GroupAccess        dbtypes.GroupAccessMap `json:"group_access,omitempty"`
	VisibleToStaffOnly *bool                  `json:"visible_to_staff_only,omitempty"`
}

func BlockUpdate(svc modulestore.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "block service unavailable"))
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
		if err := requireCourseStaff(r.Context(), roleSvc, actor, usageID.CourseKey()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload blockUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.UpdateItem(r.Context(), usageID, modulestore.UpdateBlockParams{
			DisplayName:        payload.DisplayName,
			Position:           payload.Position,
			GroupAccess:        payload.GroupAccess,
			VisibleToStaffOnly: payload.VisibleToStaffOnly,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, updated)
	}
}

func BlockDelete(svc modulestore.Service, roleSvc roles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "block service unavailable"))
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
		if err := requireCourseStaff(r.Context(), roleSvc, actor, usageID.CourseKey()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteItem(r.Context(), usageID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

// BlockChildren lists a block's direct children in position order.
func BlockChildren(svc modulestore.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "block service unavailable"))
			return
		}

		usageID, err := validators.UsageKeyParam(r, "usageKey")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		children, err := svc.GetChildren(r.Context(), usageID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, children)
	}
}
