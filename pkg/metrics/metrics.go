package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	SitesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wisp_sites_total",
			Help: "Total number of registered sites by kind and status",
		},
		[]string{"kind", "status"},
	)

	MirrorUsersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wisp_mirror_users_total",
			Help: "Provisioned users in the registry mirror by site",
		},
		[]string{"site_id"},
	)

	// Monitor metrics
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_probes_total",
			Help: "Total connectivity probes by site and result",
		},
		[]string{"site_id", "result"},
	)

	StatusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_status_transitions_total",
			Help: "Site status transitions by new status",
		},
		[]string{"status"},
	)

	// Orchestrator metrics
	FanoutOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_fanout_outcomes_total",
			Help: "Per-site fan-out outcomes by operation and error kind (kind is empty on success)",
		},
		[]string{"operation", "kind"},
	)

	FanoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wisp_fanout_duration_seconds",
			Help:    "Wall time of a whole fan-out by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisp_api_requests_total",
			Help: "Total admin API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wisp_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Register registers all metrics with the default registry.
// Call once at startup.
func Register() {
	prometheus.MustRegister(
		SitesTotal,
		MirrorUsersTotal,
		ProbesTotal,
		StatusTransitionsTotal,
		FanoutOutcomesTotal,
		FanoutDuration,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the HTTP handler serving /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordProbe records one probe result for a site
func RecordProbe(siteID string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	ProbesTotal.WithLabelValues(siteID, result).Inc()
}

// RecordFanoutOutcome records one per-site outcome of a fan-out.
// kind is empty for successes.
func RecordFanoutOutcome(operation, kind string) {
	FanoutOutcomesTotal.WithLabelValues(operation, kind).Inc()
}
