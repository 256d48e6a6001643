package gating

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// ScopeRef addresses one point in the scope hierarchy. Site is always set on
// the request path; org and course narrow it further.
type ScopeRef struct {
	Site     string
	Org      string
	CourseID coursekey.CourseKey
}

// FieldProvenance records which scope supplied each resolved field. An empty
// scope means no row anywhere set the field.
type FieldProvenance struct {
	Enabled       enums.ConfigScope `json:"enabled"`
	EnabledAsOf   enums.ConfigScope `json:"enabled_as_of"`
	StudioEnabled enums.ConfigScope `json:"studio_enabled"`
}

// ResolvedGating is the per-field fold of the content-type gating stack.
type ResolvedGating struct {
	Enabled       bool            `json:"enabled"`
	EnabledAsOf   *time.Time      `json:"enabled_as_of,omitempty"`
	StudioEnabled bool            `json:"studio_enabled"`
	Provenance    FieldProvenance `json:"provenance"`
}

// ResolvedDurationLimit is the per-field fold of the duration-limit stack.
type ResolvedDurationLimit struct {
	Enabled     bool            `json:"enabled"`
	EnabledAsOf *time.Time      `json:"enabled_as_of,omitempty"`
	Provenance  FieldProvenance `json:"provenance"`
}

// SetParams carries one stacked-config write. Target fields must match the
// scope: site rows name a site, org rows an org, course rows a course key,
// global rows none of them.
type SetParams struct {
	Scope    enums.ConfigScope
	Site     string
	Org      string
	CourseID coursekey.CourseKey

	Enabled       *bool
	EnabledAsOf   *time.Time
	StudioEnabled *bool

	ActorID uuid.UUID
}

// ConfigRowDTO is the admin projection of one stacked-config row.
type ConfigRowDTO struct {
	ID            uuid.UUID         `json:"id"`
	Scope         enums.ConfigScope `json:"scope"`
	Site          string            `json:"site,omitempty"`
	Org           string            `json:"org,omitempty"`
	CourseID      string            `json:"course_id,omitempty"`
	Enabled       *bool             `json:"enabled"`
	EnabledAsOf   *time.Time        `json:"enabled_as_of"`
	StudioEnabled *bool             `json:"studio_enabled,omitempty"`
	ChangedBy     uuid.UUID         `json:"changed_by"`
	CreatedAt     time.Time         `json:"created"`
}
