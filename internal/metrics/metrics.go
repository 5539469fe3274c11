// Package metrics provides Prometheus metrics for authentication and authorization.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics or one built with a nil
// registerer records nothing.
type Metrics struct {
	enabled bool

	loginsTotal        *prometheus.CounterVec
	tokenRedeemsTotal  *prometheus.CounterVec
	permissionChecks   *prometheus.CounterVec
	permissionDuration prometheus.Histogram
	tokensPurged       prometheus.Counter

	grpcRequestsTotal *prometheus.CounterVec
	grpcDuration      *prometheus.HistogramVec
}

// New registers collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: reg != nil}
	if !m.enabled {
		return m
	}
	f := promauto.With(reg)

	m.loginsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	m.tokenRedeemsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_redeems_total",
		Help: "Refresh and reset token redemptions by kind and result.",
	}, []string{"kind", "result"})

	m.permissionChecks = f.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_permission_checks_total",
		Help: "Permission decisions by result.",
	}, []string{"result"})

	m.permissionDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_permission_check_duration_seconds",
		Help:    "Permission check duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	m.tokensPurged = f.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_purged_total",
		Help: "Expired tokens removed by the purge loop.",
	})

	m.grpcRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_grpc_requests_total",
		Help: "gRPC requests by method and status code.",
	}, []string{"method", "code"})

	m.grpcDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_grpc_request_duration_seconds",
		Help:    "gRPC request latencies in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	return m
}

func (m *Metrics) on() bool { return m != nil && m.enabled }

// RecordLogin records a login outcome ("ok", "invalid", "rate_limited", "error").
func (m *Metrics) RecordLogin(result string) {
	if !m.on() {
		return
	}
	m.loginsTotal.WithLabelValues(result).Inc()
}

// RecordRedeem records a single-use token redemption.
func (m *Metrics) RecordRedeem(kind, result string) {
	if !m.on() {
		return
	}
	m.tokenRedeemsTotal.WithLabelValues(kind, result).Inc()
}

// RecordPermissionCheck records a resolver decision ("allow", "deny", "error").
func (m *Metrics) RecordPermissionCheck(result string, took time.Duration) {
	if !m.on() {
		return
	}
	m.permissionChecks.WithLabelValues(result).Inc()
	m.permissionDuration.Observe(took.Seconds())
}

// RecordPurged adds n purged tokens.
func (m *Metrics) RecordPurged(n int64) {
	if !m.on() || n <= 0 {
		return
	}
	m.tokensPurged.Add(float64(n))
}

// RecordRPC records one finished gRPC call.
func (m *Metrics) RecordRPC(method, code string, took time.Duration) {
	if !m.on() {
		return
	}
	m.grpcRequestsTotal.WithLabelValues(method, code).Inc()
	m.grpcDuration.WithLabelValues(method).Observe(took.Seconds())
}

// Handler exposes the collectors registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
