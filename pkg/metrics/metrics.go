package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RunsInQueue         prometheus.Gauge
	RunsTotal           *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	PagesAnalyzedTotal  prometheus.Counter
	LinksValidatedTotal prometheus.Counter
)

func Init() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RunsInQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runs_in_queue",
			Help: "Current number of analysis runs awaiting execution.",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_runs_total",
			Help: "Total number of analysis run executions.",
		},
		[]string{"status", "error_type"}, // status: success, failure
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_run_duration_seconds",
			Help:    "Duration of whole analysis runs.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"domain"},
	)

	PagesAnalyzedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pages_analyzed_total",
			Help: "Total number of pages fetched and classified across runs.",
		},
	)

	LinksValidatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "links_validated_total",
			Help: "Total number of edge records produced across runs.",
		},
	)
}
