package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const defaultMetricsPath = "/metrics"

var (
	registry       *prometheus.Registry
	registryOnce   sync.Once
	metricsEnabled = true

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Insights engine metrics
	InsightsAnalysesTotal *prometheus.CounterVec
	InsightsAnalysisTime  *prometheus.HistogramVec
	ModelFallbacksTotal   *prometheus.CounterVec
	ModelRequestsTotal    *prometheus.CounterVec
	ModelRequestLatency   *prometheus.HistogramVec

	// Recommendation metrics
	RecommendationsTotal     *prometheus.CounterVec
	RecommendationLatency    prometheus.Histogram
	RecommendationCorpusSize prometheus.Gauge

	// Recompute scheduler metrics
	RecomputeRunsTotal        *prometheus.CounterVec
	RecomputeRecordsProcessed prometheus.Counter
	RecomputeRecordFailures   prometheus.Counter
	RecomputeRunDuration      prometheus.Histogram
	RecomputeRejectedTotal    prometheus.Counter

	// Stream session metrics
	StreamSessionsActive  prometheus.Gauge
	StreamSnapshotsTotal  *prometheus.CounterVec
	StreamSessionDuration prometheus.Histogram

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		HTTPRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callinsights_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		)

		HTTPRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callinsights_http_request_duration_seconds",
				Help:    "HTTP request processing time",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"path"},
		)

		InsightsAnalysesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callinsights_insights_analyses_total",
				Help: "Total number of transcript analyses",
			},
			[]string{"trigger"},
		)

		InsightsAnalysisTime = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callinsights_insights_analysis_seconds",
				Help:    "Time to derive one call's insights",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"variant"},
		)

		ModelFallbacksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callinsights_model_fallbacks_total",
				Help: "Times a model-backed component degraded to its fallback",
			},
			[]string{"component"},
		)

		ModelRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callinsights_model_requests_total",
				Help: "Requests issued to the model inference service",
			},
			[]string{"endpoint", "status"},
		)

		ModelRequestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callinsights_model_request_seconds",
				Help:    "Latency of model inference requests",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"endpoint"},
		)

		RecommendationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callinsights_recommendations_total",
				Help: "Total recommendation requests",
			},
			[]string{"status"},
		)

		RecommendationLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callinsights_recommendation_seconds",
				Help:    "Time to compute one recommendation (full corpus scan)",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		)

		RecommendationCorpusSize = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callinsights_recommendation_corpus_size",
				Help: "Number of records scanned by the last recommendation",
			},
		)

		RecomputeRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callinsights_recompute_runs_total",
				Help: "Total recompute runs",
			},
			[]string{"trigger", "status"},
		)

		RecomputeRecordsProcessed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "callinsights_recompute_records_processed_total",
				Help: "Records successfully re-analyzed during recompute runs",
			},
		)

		RecomputeRecordFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "callinsights_recompute_record_failures_total",
				Help: "Records skipped during recompute runs due to analysis failures",
			},
		)

		RecomputeRunDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callinsights_recompute_run_seconds",
				Help:    "Duration of full recompute runs",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
			},
		)

		RecomputeRejectedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "callinsights_recompute_rejected_total",
				Help: "Recompute triggers rejected because a run was in progress",
			},
		)

		StreamSessionsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callinsights_stream_sessions_active",
				Help: "Currently open sentiment stream sessions",
			},
		)

		StreamSnapshotsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callinsights_stream_snapshots_total",
				Help: "Sentiment snapshots pushed to stream clients",
			},
			[]string{"status"},
		)

		StreamSessionDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callinsights_stream_session_seconds",
				Help:    "Lifetime of closed stream sessions",
				Buckets: prometheus.ExponentialBuckets(1, 2, 16),
			},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callinsights_amqp_published_messages_total",
				Help: "Insight events published to AMQP",
			},
			[]string{"event", "status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callinsights_amqp_connection_status",
				Help: "AMQP connection status (1 = connected, 0 = disconnected)",
			},
		)

		registry.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			InsightsAnalysesTotal,
			InsightsAnalysisTime,
			ModelFallbacksTotal,
			ModelRequestsTotal,
			ModelRequestLatency,
			RecommendationsTotal,
			RecommendationLatency,
			RecommendationCorpusSize,
			RecomputeRunsTotal,
			RecomputeRecordsProcessed,
			RecomputeRecordFailures,
			RecomputeRunDuration,
			RecomputeRejectedTotal,
			StreamSessionsActive,
			StreamSnapshotsTotal,
			StreamSessionDuration,
			AMQPPublishedMessages,
			AMQPConnectionStatus,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled && registry != nil {
		handler := promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			},
		)
		mux.Handle(defaultMetricsPath, handler)
	}
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}

// RecordHTTPRequest records one served HTTP request
func RecordHTTPRequest(path, method, status string, duration time.Duration) {
	if metricsEnabled && HTTPRequestsTotal != nil {
		HTTPRequestsTotal.WithLabelValues(path, method, status).Inc()
		HTTPRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
	}
}

// RecordAnalysis records one transcript analysis
func RecordAnalysis(trigger, variant string, duration time.Duration) {
	if metricsEnabled && InsightsAnalysesTotal != nil {
		InsightsAnalysesTotal.WithLabelValues(trigger).Inc()
		InsightsAnalysisTime.WithLabelValues(variant).Observe(duration.Seconds())
	}
}

// RecordModelFallback records a degradation to the fallback variant
func RecordModelFallback(component string) {
	if metricsEnabled && ModelFallbacksTotal != nil {
		ModelFallbacksTotal.WithLabelValues(component).Inc()
	}
}

// RecordModelRequest records an inference service request
func RecordModelRequest(endpoint, status string, duration time.Duration) {
	if metricsEnabled && ModelRequestsTotal != nil {
		ModelRequestsTotal.WithLabelValues(endpoint, status).Inc()
		ModelRequestLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

// RecordRecommendation records one recommendation request
func RecordRecommendation(status string, corpusSize int, duration time.Duration) {
	if metricsEnabled && RecommendationsTotal != nil {
		RecommendationsTotal.WithLabelValues(status).Inc()
		RecommendationLatency.Observe(duration.Seconds())
		RecommendationCorpusSize.Set(float64(corpusSize))
	}
}

// RecordRecomputeRun records a finished recompute run
func RecordRecomputeRun(trigger, status string, duration time.Duration) {
	if metricsEnabled && RecomputeRunsTotal != nil {
		RecomputeRunsTotal.WithLabelValues(trigger, status).Inc()
		RecomputeRunDuration.Observe(duration.Seconds())
	}
}

// RecordRecomputeRecord counts per-record recompute outcomes
func RecordRecomputeRecord(failed bool) {
	if !metricsEnabled || RecomputeRecordsProcessed == nil {
		return
	}
	if failed {
		RecomputeRecordFailures.Inc()
	} else {
		RecomputeRecordsProcessed.Inc()
	}
}

// RecordRecomputeRejected counts rejected concurrent triggers
func RecordRecomputeRejected() {
	if metricsEnabled && RecomputeRejectedTotal != nil {
		RecomputeRejectedTotal.Inc()
	}
}

// StartStreamSessionTimer tracks an open stream session and returns a
// function that records its duration when the session closes
func StartStreamSessionTimer() func() {
	if !metricsEnabled || StreamSessionsActive == nil {
		return func() {}
	}

	StreamSessionsActive.Inc()
	start := time.Now()
	return func() {
		StreamSessionsActive.Dec()
		StreamSessionDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordStreamSnapshot counts one pushed sentiment snapshot
func RecordStreamSnapshot(status string) {
	if metricsEnabled && StreamSnapshotsTotal != nil {
		StreamSnapshotsTotal.WithLabelValues(status).Inc()
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(event, status string) {
	if metricsEnabled && AMQPPublishedMessages != nil {
		AMQPPublishedMessages.WithLabelValues(event, status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if metricsEnabled && AMQPConnectionStatus != nil {
		if connected {
			AMQPConnectionStatus.Set(1)
		} else {
			AMQPConnectionStatus.Set(0)
		}
	}
}
