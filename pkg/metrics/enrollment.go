package metrics

import "github.com/prometheus/client_golang/prometheus"

// EnrollmentMetrics records enrollment lifecycle activity.
type EnrollmentMetrics struct {
	enrolled   *prometheus.CounterVec
	unenrolled *prometheus.CounterVec
	rejected   *prometheus.CounterVec
}

// NewEnrollmentMetrics registers the enrollment counters on the provided registerer.
func NewEnrollmentMetrics(reg prometheus.Registerer) *EnrollmentMetrics {
	if reg == nil {
		return &EnrollmentMetrics{}
	}
	enrolled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_created",
		Help: "Enrollments created or reactivated, by mode.",
	}, []string{"mode"})
	unenrolled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_deactivated",
		Help: "Enrollments deactivated, by mode.",
	}, []string{"mode"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_rejected",
		Help: "Enrollment attempts rejected, by error code.",
	}, []string{"code"})
	reg.MustRegister(enrolled, unenrolled, rejected)
	return &EnrollmentMetrics{
		enrolled:   enrolled,
		unenrolled: unenrolled,
		rejected:   rejected,
	}
}

// IncEnrolled counts a successful enroll or reactivation.
func (e *EnrollmentMetrics) IncEnrolled(mode string) {
	if e == nil || e.enrolled == nil {
		return
	}
	e.enrolled.WithLabelValues(normalizeLabel(mode)).Inc()
}

// IncUnenrolled counts a deactivation.
func (e *EnrollmentMetrics) IncUnenrolled(mode string) {
	if e == nil || e.unenrolled == nil {
		return
	}
	e.unenrolled.WithLabelValues(normalizeLabel(mode)).Inc()
}

// IncRejected counts a refused enrollment attempt.
func (e *EnrollmentMetrics) IncRejected(code string) {
	if e == nil || e.rejected == nil {
		return
	}
	e.rejected.WithLabelValues(normalizeLabel(code)).Inc()
}
