package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Probe metrics
	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	PollAttempts   prometheus.Histogram
	EndpointHealth *prometheus.GaugeVec
}

// New creates a Metrics instance with all metrics registered on the default
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mediaprobe"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "runs_total",
				Help:      "Total number of workflow runs by terminal outcome",
			},
			[]string{"endpoint", "workflow", "outcome"},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "run_duration_seconds",
				Help:      "Workflow run duration in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"endpoint", "workflow"},
		),
		PollAttempts: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "poll_attempts",
				Help:      "Status-check attempts consumed per video run",
				Buckets:   []float64{1, 2, 5, 10, 20, 40, 80, 120},
			},
		),
		EndpointHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "endpoint_health",
				Help:      "Endpoint health status (1=healthy, 0=unhealthy)",
			},
			[]string{"endpoint"},
		),
	}
}

// RecordHTTPRequest records metrics for one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRun records one terminal workflow run.
func (m *Metrics) RecordRun(endpoint, workflow, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(endpoint, workflow, outcome).Inc()
	m.RunDuration.WithLabelValues(endpoint, workflow).Observe(seconds)
}

// ObservePollAttempts records the status-check attempts one video run used.
func (m *Metrics) ObservePollAttempts(n int) {
	if m == nil {
		return
	}
	m.PollAttempts.Observe(float64(n))
}

// SetEndpointHealth records an endpoint health gauge value.
func (m *Metrics) SetEndpointHealth(endpoint string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.EndpointHealth.WithLabelValues(endpoint).Set(v)
}
