package access

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
)

// Views a learner may request. Author view is studio-only and rejected at
// the API edge.
const (
	ViewStudent = "student_view"
	ViewPublic  = "public_view"
)

// Request is one access question: may this user see this block at this
// instant. RequireEnrollment marks routes that only enrolled learners may
// use; public routes leave it false.
type Request struct {
	UserID            uuid.UUID
	UsageID           coursekey.UsageKey
	At                time.Time
	View              string
	RequireEnrollment bool
}

// Decision is the outcome of an access question. Reason is empty on allow.
type Decision struct {
	Allowed          bool               `json:"allowed"`
	Reason           enums.AccessReason `json:"reason,omitempty"`
	DeveloperMessage string             `json:"developer_message,omitempty"`
	UserMessage      string             `json:"user_message,omitempty"`
}

// Allow is the positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a denial with the reason's canonical messages.
func Deny(reason enums.AccessReason, developerMessage string) Decision {
	return Decision{
		Allowed:          false,
		Reason:           reason,
		DeveloperMessage: developerMessage,
		UserMessage:      reason.UserMessage(),
	}
}
