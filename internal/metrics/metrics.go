// Package metrics provides Prometheus metrics for the chat proxy
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the proxy.  Each instance owns its
// registry so several can coexist in one process (tests build many servers).
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	PipelineResultsTotal *prometheus.CounterVec
	ModelCallDuration    *prometheus.HistogramVec
	SpecialistsTotal     *prometheus.CounterVec

	// Database metrics
	DbOperationsTotal   *prometheus.CounterVec
	DbOperationDuration *prometheus.HistogramVec

	// Updates announced by other instances on the notify channel
	ConversationUpdatesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medchat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medchat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.PipelineResultsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medchat_pipeline_results_total",
			Help: "Chat pipeline invocations by outcome",
		},
		[]string{"status", "language"},
	)

	// Local models on CPU regularly take tens of seconds.
	m.ModelCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medchat_model_call_duration_seconds",
			Help:    "Duration of model backend calls in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"status"},
	)

	m.SpecialistsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medchat_specialist_recommendations_total",
			Help: "Specialist recommendations appended by the post-processor",
		},
		[]string{"specialist"},
	)

	m.DbOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medchat_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	m.DbOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medchat_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.ConversationUpdatesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "medchat_conversation_updates_total",
			Help: "Conversation updates received on the notify channel",
		},
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request with its status class
func (m *Metrics) RecordHTTPRequest(route string, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordPipelineResult counts one pipeline invocation.
func (m *Metrics) RecordPipelineResult(status, language string) {
	m.PipelineResultsTotal.WithLabelValues(status, language).Inc()
}

// RecordModelCall records the latency of one model backend call.
func (m *Metrics) RecordModelCall(status string, duration time.Duration) {
	m.ModelCallDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordSpecialist counts a recommendation for the given specialist.
func (m *Metrics) RecordSpecialist(label string) {
	m.SpecialistsTotal.WithLabelValues(label).Inc()
}

// RecordDbOperation records a database operation
func (m *Metrics) RecordDbOperation(operation string, status string, duration time.Duration) {
	m.DbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.DbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordConversationUpdate counts one notification from the update channel.
func (m *Metrics) RecordConversationUpdate() {
	m.ConversationUpdatesTotal.Inc()
}
