// Package metrics declares the Prometheus collectors shared by the HTTP
// server, the dashboard loader and provider sync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studycal_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studycal_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studycal_http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studycal_stream_clients",
			Help: "Open server-sent event streams",
		},
	)

	DashboardLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studycal_dashboard_loads_total",
			Help: "Dashboard loads by outcome",
		},
		[]string{"result"}, // ok, stale, error
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studycal_cache_lookups_total",
			Help: "Cache lookups by resource and outcome",
		},
		[]string{"resource", "result"}, // hit, miss, error
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studycal_sync_runs_total",
			Help: "Provider sync runs by provider and outcome",
		},
		[]string{"provider", "result"}, // ok, error
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studycal_sync_duration_seconds",
			Help:    "Duration of one provider sync",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)
)
