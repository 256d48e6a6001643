package enums

// AccessReason explains why an access decision denied a block. Renderers map
// these onto learner-facing banners.
type AccessReason string

const (
	AccessReasonUnenrolled        AccessReason = "unenrolled"
	AccessReasonNotStarted        AccessReason = "not_started"
	AccessReasonEnded             AccessReason = "ended"
	AccessReasonModeRestricted    AccessReason = "mode_restricted"
	AccessReasonGroupRestricted   AccessReason = "group_restricted"
	AccessReasonDurationExpired   AccessReason = "duration_expired"
	AccessReasonHiddenForNonstaff AccessReason = "hidden_for_nonstaff"
	AccessReasonCohortGated       AccessReason = "cohort_gated"
)

var accessReasonMessages = map[AccessReason]string{
	AccessReasonUnenrolled:        "You must be enrolled in this course to see this content.",
	AccessReasonNotStarted:        "This course has not started yet.",
	AccessReasonEnded:             "This course has ended.",
	AccessReasonModeRestricted:    "This content is available on a different enrollment track.",
	AccessReasonGroupRestricted:   "This content is not available to your group.",
	AccessReasonDurationExpired:   "Your access to this course has expired.",
	AccessReasonHiddenForNonstaff: "This content is only visible to course staff.",
	AccessReasonCohortGated:       "This content is not available to your cohort.",
}

// String implements fmt.Stringer.
func (r AccessReason) String() string {
	return string(r)
}

// UserMessage returns the learner-facing explanation for the denial.
func (r AccessReason) UserMessage() string {
	if msg, ok := accessReasonMessages[r]; ok {
		return msg
	}
	return "This content is currently unavailable."
}
