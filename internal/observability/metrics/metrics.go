package metrics

import "github.com/prometheus/client_golang/prometheus"

// AppointmentMetrics exposes counters/histograms for the status machine.
type AppointmentMetrics struct {
	transitionsTotal  *prometheus.CounterVec
	transitionLatency *prometheus.HistogramVec
}

func NewAppointmentMetrics(reg prometheus.Registerer) *AppointmentMetrics {
	m := &AppointmentMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Total appointment status transition attempts",
		}, []string{"from", "to", "outcome"}),
		transitionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "practice",
			Subsystem: "appointments",
			Name:      "transition_latency_seconds",
			Help:      "Latency of appointment status transitions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.transitionLatency)
	return m
}

func (m *AppointmentMetrics) ObserveTransition(from, to, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to, outcome).Inc()
}

func (m *AppointmentMetrics) ObserveTransitionLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.transitionLatency.WithLabelValues(outcome).Observe(seconds)
}

// SecurityMetrics exposes counters for MFA checks and rate limiting.
type SecurityMetrics struct {
	mfaChecksTotal    *prometheus.CounterVec
	rateLimitRejected prometheus.Counter
}

func NewSecurityMetrics(reg prometheus.Registerer) *SecurityMetrics {
	m := &SecurityMetrics{
		mfaChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "security",
			Name:      "mfa_checks_total",
			Help:      "Total MFA code verifications",
		}, []string{"action", "outcome"}),
		rateLimitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "security",
			Name:      "rate_limit_rejected_total",
			Help:      "Total requests rejected by the rate limiter",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.mfaChecksTotal, m.rateLimitRejected)
	return m
}

func (m *SecurityMetrics) ObserveMFACheck(action, outcome string) {
	if m == nil {
		return
	}
	m.mfaChecksTotal.WithLabelValues(action, outcome).Inc()
}

func (m *SecurityMetrics) ObserveRateLimitRejected() {
	if m == nil {
		return
	}
	m.rateLimitRejected.Inc()
}
