package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AccessMetrics records outcomes of content access decisions.
type AccessMetrics struct {
	duration *prometheus.HistogramVec
	allowed  *prometheus.CounterVec
	denied   *prometheus.CounterVec
}

// NewAccessMetrics registers the access decision metrics on the provided registerer.
func NewAccessMetrics(reg prometheus.Registerer) *AccessMetrics {
	if reg == nil {
		return &AccessMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "access_decision_duration_seconds",
		Help:    "Duration of content access decisions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"view"})
	allowed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "access_decision_allowed",
		Help: "Content access decisions that granted access.",
	}, []string{"view"})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "access_decision_denied",
		Help: "Content access decisions that denied access, by reason.",
	}, []string{"view", "reason"})
	reg.MustRegister(duration, allowed, denied)
	return &AccessMetrics{
		duration: duration,
		allowed:  allowed,
		denied:   denied,
	}
}

// ObserveDuration records how long one decision took.
func (a *AccessMetrics) ObserveDuration(view string, duration time.Duration) {
	if a == nil || a.duration == nil {
		return
	}
	a.duration.WithLabelValues(normalizeLabel(view)).Observe(duration.Seconds())
}

// IncAllowed increments the allow counter for the named view.
func (a *AccessMetrics) IncAllowed(view string) {
	if a == nil || a.allowed == nil {
		return
	}
	a.allowed.WithLabelValues(normalizeLabel(view)).Inc()
}

// IncDenied increments the deny counter for the named view and reason.
func (a *AccessMetrics) IncDenied(view, reason string) {
	if a == nil || a.denied == nil {
		return
	}
	a.denied.WithLabelValues(normalizeLabel(view), normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
