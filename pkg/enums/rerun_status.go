package enums

import "fmt"

// RerunStatus tracks the background course-rerun state machine.
type RerunStatus string

const (
	RerunStatusInitiated  RerunStatus = "initiated"
	RerunStatusInProgress RerunStatus = "in_progress"
	RerunStatusSucceeded  RerunStatus = "succeeded"
	RerunStatusFailed     RerunStatus = "failed"
)

var validRerunStatuses = []RerunStatus{
	RerunStatusInitiated,
	RerunStatusInProgress,
	RerunStatusSucceeded,
	RerunStatusFailed,
}

// rerunTransitions lists the allowed forward edges of the state machine.
var rerunTransitions = map[RerunStatus][]RerunStatus{
	RerunStatusInitiated:  {RerunStatusInProgress, RerunStatusFailed},
	RerunStatusInProgress: {RerunStatusSucceeded, RerunStatusFailed},
}

// String implements fmt.Stringer.
func (r RerunStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RerunStatus.
func (r RerunStatus) IsValid() bool {
	for _, candidate := range validRerunStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (r RerunStatus) IsTerminal() bool {
	return r == RerunStatusSucceeded || r == RerunStatusFailed
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (r RerunStatus) CanTransitionTo(next RerunStatus) bool {
	for _, candidate := range rerunTransitions[r] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseRerunStatus converts raw input into a RerunStatus.
func ParseRerunStatus(value string) (RerunStatus, error) {
	for _, candidate := range validRerunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rerun status %q", value)
}
