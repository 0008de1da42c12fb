// Package metrics provides Prometheus metrics for the haplink client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Server call metrics
	serverCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haplink_server_calls_total",
			Help: "Total number of HAP+ API calls",
		},
		[]string{"op", "result"},
	)

	// Content transfer metrics
	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haplink_bytes_downloaded_total",
			Help: "Total bytes downloaded from the server",
		},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haplink_bytes_uploaded_total",
			Help: "Total bytes uploaded to the server",
		},
	)

	// Session metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haplink_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	keepaliveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haplink_keepalive_total",
			Help: "Total keepalive checks",
		},
		[]string{"result"},
	)

	renewalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haplink_session_renewals_total",
			Help: "Total stale-session re-login attempts",
		},
	)

	forcedLogoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "haplink_forced_logouts_total",
			Help: "Total timetable-driven forced logouts",
		},
	)

	// Coordinator metrics
	conflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haplink_conflicts_total",
			Help: "Total name conflicts by resolution",
		},
		[]string{"decision"},
	)

	batchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haplink_batch_items_total",
			Help: "Total batch items by operation and outcome",
		},
		[]string{"op", "outcome"},
	)
)

// RecordServerCall records one API call and its result ("ok" or "error").
func RecordServerCall(op, result string) {
	serverCallsTotal.WithLabelValues(op, result).Inc()
}

// AddBytesDownloaded records downloaded bytes.
func AddBytesDownloaded(n int64) {
	bytesDownloaded.Add(float64(n))
}

// AddBytesUploaded records uploaded bytes.
func AddBytesUploaded(n int64) {
	bytesUploaded.Add(float64(n))
}

// RecordAuthAttempt records a login attempt ("ok", "invalid", "network").
func RecordAuthAttempt(result string) {
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordKeepalive records a keepalive check ("ok" or "error").
func RecordKeepalive(result string) {
	keepaliveTotal.WithLabelValues(result).Inc()
}

// RecordRenewal records a stale-session re-login attempt.
func RecordRenewal() {
	renewalsTotal.Inc()
}

// RecordForcedLogout records a timetable-driven logout.
func RecordForcedLogout() {
	forcedLogoutsTotal.Inc()
}

// RecordConflict records a conflict resolution ("replace", "create_new", "skip").
func RecordConflict(decision string) {
	conflictsTotal.WithLabelValues(decision).Inc()
}

// RecordBatchItem records a batch item outcome.
func RecordBatchItem(op, outcome string) {
	batchItemsTotal.WithLabelValues(op, outcome).Inc()
}

// Handler returns the Prometheus exposition handler for host applications
// that want to expose client metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
