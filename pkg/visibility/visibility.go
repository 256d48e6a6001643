package visibility

import (
	"time"

	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

// Surface names the learner-facing page a course may appear on.
type Surface string

const (
	SurfaceCatalog Surface = "catalog"
	SurfaceAbout   Surface = "about"
)

// CourseVisibilityInput drives the shared visibility checks for learner-facing
// catalog and about queries.
type CourseVisibilityInput struct {
	Course  *models.CourseRun
	Surface Surface
	IsStaff bool
	At      time.Time
}

// EnsureCourseVisible enforces canonical rules so hidden runs never leak
// through learner queries. Staff bypass catalog visibility but never soft
// deletion.
func EnsureCourseVisible(input CourseVisibilityInput) error {
	if input.Course == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
	}
	if input.Course.IsDeleted() {
		return pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
	}
	if input.IsStaff {
		return nil
	}

	switch input.Course.CatalogVisibility {
	case enums.CatalogVisibilityBoth:
		return nil
	case enums.CatalogVisibilityAbout:
		if input.Surface == SurfaceAbout {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
	case enums.CatalogVisibilityNone:
		return pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
	default:
		return pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
	}
}
