package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the identity core
type Metrics struct {
	// Authentication metrics
	LoginAttemptsTotal   *prometheus.CounterVec
	LoginDuration        prometheus.Histogram
	ImpersonationsTotal  prometheus.Counter
	ActiveSessions       prometheus.Gauge
	SessionRenewalsTotal prometheus.Counter

	// Permission metrics
	PermissionChecksTotal *prometheus.CounterVec

	// Quota metrics
	QuotaRejectionsTotal prometheus.Counter
	QuotaBytesUsed       *prometheus.GaugeVec

	// Cache metrics
	RoleCacheHitsTotal   prometheus.Counter
	RoleCacheMissesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		LoginDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "folio_login_duration_seconds",
				Help:    "Login duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		ImpersonationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "folio_impersonations_total",
				Help: "Total number of login-as identity switches",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "folio_active_sessions",
				Help: "Number of live authenticated sessions",
			},
		),
		SessionRenewalsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "folio_session_renewals_total",
				Help: "Total number of session expiry renewals",
			},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_permission_checks_total",
				Help: "Total number of permission checks by entity and decision",
			},
			[]string{"entity", "decision"},
		),
		QuotaRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "folio_quota_rejections_total",
				Help: "Total number of quota adds rejected for exceeding the limit",
			},
		),
		QuotaBytesUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "folio_quota_bytes_used",
				Help: "Quota bytes in use per institution",
			},
			[]string{"institution"},
		),
		RoleCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "folio_role_cache_hits_total",
				Help: "Group role lookups served from the memoization cache",
			},
		),
		RoleCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "folio_role_cache_misses_total",
				Help: "Group role lookups that hit storage",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.LoginAttemptsTotal,
			m.LoginDuration,
			m.ImpersonationsTotal,
			m.ActiveSessions,
			m.SessionRenewalsTotal,
			m.PermissionChecksTotal,
			m.QuotaRejectionsTotal,
			m.QuotaBytesUsed,
			m.RoleCacheHitsTotal,
			m.RoleCacheMissesTotal,
		)
	}

	return m
}

// RecordLogin records a login attempt with its outcome label.
func (m *Metrics) RecordLogin(outcome string) {
	m.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordPermissionCheck records the decision of one permission predicate.
func (m *Metrics) RecordPermissionCheck(entity string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.PermissionChecksTotal.WithLabelValues(entity, decision).Inc()
}
