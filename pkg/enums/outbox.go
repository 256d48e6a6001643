package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateEnrollment OutboxAggregateType = "enrollment"
	AggregateCourseRun  OutboxAggregateType = "course_run"
	AggregateSchedule   OutboxAggregateType = "schedule"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateEnrollment,
	AggregateCourseRun,
	AggregateSchedule,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventEnrollmentCreated     OutboxEventType = "enrollment_created"
	EventEnrollmentModeChanged OutboxEventType = "enrollment_mode_changed"
	EventEnrollmentDeactivated OutboxEventType = "enrollment_deactivated"
	EventEnrollmentReactivated OutboxEventType = "enrollment_reactivated"
	EventCourseRunCreated      OutboxEventType = "course_run_created"
	EventCourseRunRerun        OutboxEventType = "course_run_rerun"
	EventCourseRunDeleted      OutboxEventType = "course_run_deleted"
	EventScheduleRebased       OutboxEventType = "schedule_rebased"
)

var validOutboxEventTypes = []OutboxEventType{
	EventEnrollmentCreated,
	EventEnrollmentModeChanged,
	EventEnrollmentDeactivated,
	EventEnrollmentReactivated,
	EventCourseRunCreated,
	EventCourseRunRerun,
	EventCourseRunDeleted,
	EventScheduleRebased,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason classifies why an outbox event landed in the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
