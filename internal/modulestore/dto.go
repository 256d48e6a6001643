package modulestore

import (
	"time"

	dbtypes "github.com/openlearnhq/courseware-backend/pkg/db/types"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// BlockDTO is the API projection of one content tree node.
type BlockDTO struct {
	UsageID            string                 `json:"usage_id"`
	CourseID           string                 `json:"course_id"`
	Category           enums.BlockCategory    `json:"category"`
	DisplayName        string                 `json:"display_name"`
	ParentID           *string                `json:"parent_id,omitempty"`
	Position           int                    `json:"position"`
	GroupAccess        dbtypes.GroupAccessMap `json:"group_access"`
	VisibleToStaffOnly bool                   `json:"visible_to_staff_only"`
	UpdatedAt          time.Time              `json:"updated_at"`
}
