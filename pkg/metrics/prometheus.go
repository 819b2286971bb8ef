// Package metrics provides Prometheus metrics for the risk gating service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scoreBuckets spans the [0,100] risk score range in tier-sized steps.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} //nolint:gochecknoglobals // read-only bucket layout

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Assessment metrics
	assessments        *prometheus.CounterVec
	assessmentFailures *prometheus.CounterVec
	assessmentLatency  prometheus.Histogram
	finalScore         prometheus.Histogram
	invalidScores      *prometheus.CounterVec
	trends             *prometheus.CounterVec
	duplicateTrips     prometheus.Counter

	// History store metrics
	trackedDrivers         prometheus.Gauge
	historyShardCount      prometheus.Gauge
	historyRecordsPerShard *prometheus.GaugeVec
	historyLockTimeouts    prometheus.Counter
	historyConflicts       prometheus.Counter
	historyUpdateLatency   prometheus.Histogram

	// Publication queue metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueue           prometheus.Counter
	queueDequeue           prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	publications            *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager registered on the configured registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "riskgate",
		subsystem:        "gating",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(auto promauto.Factory, name, help string) prometheus.Counter {
	return auto.NewCounter(prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help})
}

func (m *Manager) counterVec(auto promauto.Factory, name, help string, labels ...string) *prometheus.CounterVec {
	return auto.NewCounterVec(prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}, labels)
}

func (m *Manager) gauge(auto promauto.Factory, name, help string) prometheus.Gauge {
	return auto.NewGauge(prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help})
}

func (m *Manager) histogram(auto promauto.Factory, name, help string, buckets []float64) prometheus.Histogram {
	return auto.NewHistogram(prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.assessments = m.counterVec(auto, "assessments_total", "Assessments completed, by tier", "tier")
	m.assessmentFailures = m.counterVec(auto, "assessment_failures_total", "Assessments that failed, by error kind", "kind")
	m.assessmentLatency = m.histogram(auto, "assessment_latency_milliseconds", "End-to-end assessment latency in milliseconds", m.histogramBuckets)
	m.finalScore = m.histogram(auto, "final_score", "Distribution of final risk scores", scoreBuckets)
	m.invalidScores = m.counterVec(auto, "invalid_scores_total", "Expert scores clamped or dropped, by expert", "expert")
	m.trends = m.counterVec(auto, "trends_total", "Trend classifications, by direction", "direction")
	m.duplicateTrips = m.counter(auto, "duplicate_trips_total", "Trips assessed again without a new history append")

	m.trackedDrivers = m.gauge(auto, "tracked_drivers", "Drivers with recorded history")
	m.historyShardCount = m.gauge(auto, "history_shard_count", "Number of history store shards")
	m.historyRecordsPerShard = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "history_drivers_per_shard",
		Help:      "Drivers held per history shard",
	}, []string{"shard_id"})
	m.historyLockTimeouts = m.counter(auto, "history_lock_timeouts_total", "Driver lock acquisitions that timed out")
	m.historyConflicts = m.counter(auto, "history_conflicts_total", "Assessments failed after exhausting lock retries")
	m.historyUpdateLatency = m.histogram(auto, "history_update_latency_milliseconds", "History update latency in milliseconds", m.histogramBuckets)

	m.queueSize = m.gauge(auto, "queue_size", "Publications waiting for delivery")
	m.queueCapacity = m.gauge(auto, "queue_capacity", "Maximum publication queue capacity")
	m.queueUtilization = m.gauge(auto, "queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueue = m.counter(auto, "queue_enqueue_total", "Publications enqueued")
	m.queueDequeue = m.counter(auto, "queue_dequeue_total", "Publications dequeued")
	m.queueEnqueueErrors = m.counter(auto, "queue_enqueue_errors_total", "Publications dropped because the queue was full or closed")
	m.queueProcessingLatency = m.histogram(auto, "queue_processing_latency_milliseconds", "Time publications spend queued in milliseconds", m.histogramBuckets)

	m.workerCount = m.gauge(auto, "worker_count", "Configured publication workers")
	m.workerActiveCount = m.gauge(auto, "worker_active_count", "Workers currently delivering")
	m.workerIdleCount = m.gauge(auto, "worker_idle_count", "Workers waiting for work")
	m.workerProcessingLatency = m.histogram(auto, "worker_processing_latency_milliseconds", "Publication delivery latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter(auto, "worker_errors_total", "Publication deliveries that failed")
	m.publications = m.counterVec(auto, "publications_total", "Publication deliveries, by publisher and status", "publisher", "status")

	m.httpRequests = m.counterVec(auto, "http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = m.counterVec(auto, "errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorsByComponent = m.counterVec(auto, "errors_by_component_total", "Errors by component", "component", "error_type")
	m.rateLimited = m.counterVec(auto, "rate_limited_total", "Requests rejected by the rate limiter", "endpoint")

	m.systemMemoryUsage = m.gauge(auto, "system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge(auto, "system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram(auto, "system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Assessment Metrics Functions.

// RecordAssessment counts a completed assessment in tier.
func RecordAssessment(tier string) {
	globalManager.assessments.WithLabelValues(tier).Inc()
}

// RecordAssessmentFailure counts a failed assessment by error kind.
func RecordAssessmentFailure(kind string) {
	globalManager.assessmentFailures.WithLabelValues(kind).Inc()
}

// RecordAssessmentLatency records assessment latency in milliseconds.
func RecordAssessmentLatency(latencyMs float64) {
	globalManager.assessmentLatency.Observe(latencyMs)
}

// RecordFinalScore observes a final risk score.
func RecordFinalScore(score float64) {
	globalManager.finalScore.Observe(score)
}

// RecordInvalidScore counts a clamped or dropped expert score.
func RecordInvalidScore(expert string) {
	globalManager.invalidScores.WithLabelValues(expert).Inc()
}

// RecordTrend counts a trend classification.
func RecordTrend(direction string) {
	globalManager.trends.WithLabelValues(direction).Inc()
}

// RecordDuplicateTrip counts a trip assessed again.
func RecordDuplicateTrip() {
	globalManager.duplicateTrips.Inc()
}

// History Metrics Functions.

// UpdateTrackedDrivers sets the number of drivers with history.
func UpdateTrackedDrivers(count int) {
	globalManager.trackedDrivers.Set(float64(count))
}

// UpdateHistoryShardCount sets the number of history shards.
func UpdateHistoryShardCount(count int) {
	globalManager.historyShardCount.Set(float64(count))
}

// UpdateHistoryDriversPerShard sets the drivers held by one shard.
func UpdateHistoryDriversPerShard(shardID string, count int) {
	globalManager.historyRecordsPerShard.WithLabelValues(shardID).Set(float64(count))
}

// RecordHistoryLockTimeout counts a timed-out driver lock acquisition.
func RecordHistoryLockTimeout() {
	globalManager.historyLockTimeouts.Inc()
}

// RecordHistoryConflict counts an assessment that exhausted its lock retries.
func RecordHistoryConflict() {
	globalManager.historyConflicts.Inc()
}

// RecordHistoryUpdateLatency records history update latency in milliseconds.
func RecordHistoryUpdateLatency(latencyMs float64) {
	globalManager.historyUpdateLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records how long a publication waited in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordPublication counts a delivery attempt by publisher and status.
func RecordPublication(publisher, status string) {
	globalManager.publications.WithLabelValues(publisher, status).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited(endpoint string) {
	globalManager.rateLimited.WithLabelValues(endpoint).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
