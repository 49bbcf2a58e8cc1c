// Package metrics provides Prometheus metrics for the AquaScan service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Outcome labels for analyses_total.
const (
	OutcomeSuccess      = "success"
	OutcomeNotConnected = "not_connected"
	OutcomeInvalidImage = "invalid_image"
	OutcomeTransport    = "transport_error"
	OutcomeParse        = "parse_error"
)

// confidenceBuckets cover the [0,1] confidence range in tenths.
var confidenceBuckets = prometheus.LinearBuckets(0.1, 0.1, 10) //nolint:gochecknoglobals // shared bucket layout

// uploadBuckets cover 16KiB .. 16MiB.
var uploadBuckets = prometheus.ExponentialBuckets(16<<10, 4, 6) //nolint:gochecknoglobals // shared bucket layout

// Manager owns all Prometheus collectors of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Analysis pipeline
	analyses          *prometheus.CounterVec
	inferenceLatency  prometheus.Histogram
	ensembleDecisions *prometheus.CounterVec
	ensembleConf      prometheus.Histogram
	modelConf         *prometheus.HistogramVec
	uploadBytes       prometheus.Histogram
	imagesResized     prometheus.Counter

	// Remote collaborator
	connectionUp       prometheus.Gauge
	connectionAttempts *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry *prometheus.Registry //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	Init()
}

// Init replaces the global manager and its registry. Call it once at
// startup, before any handler or recorder runs.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// NewManager creates a metrics manager. Without WithPrometheusRegistry the
// collectors go to prometheus.DefaultRegisterer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "aquascan",
		subsystem:        "classifier",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) initializeMetrics() { //nolint:funlen // declarative collector setup
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.analyses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("analyses_total"),
		Help:        "Total number of image analyses by outcome",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	m.inferenceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("inference_latency_milliseconds"),
		Help:        "Latency of the remote inference call in milliseconds",
		Buckets:     prometheus.ExponentialBuckets(50, 2, 10),
		ConstLabels: constLabels,
	})

	m.ensembleDecisions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("ensemble_decisions_total"),
		Help:        "Ensemble decisions by rationale",
		ConstLabels: constLabels,
	}, []string{"rationale"})

	m.ensembleConf = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("ensemble_confidence"),
		Help:        "Distribution of ensemble confidence",
		Buckets:     confidenceBuckets,
		ConstLabels: constLabels,
	})

	m.modelConf = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("model_confidence"),
		Help:        "Distribution of per-model confidence",
		Buckets:     confidenceBuckets,
		ConstLabels: constLabels,
	}, []string{"model"})

	m.uploadBytes = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("upload_bytes"),
		Help:        "Size of uploaded images in bytes",
		Buckets:     uploadBuckets,
		ConstLabels: constLabels,
	})

	m.imagesResized = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("images_resized_total"),
		Help:        "Number of uploads downscaled before inference",
		ConstLabels: constLabels,
	})

	m.connectionUp = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("connection_up"),
		Help:        "1 when the inference space connection was established, 0 otherwise",
		ConstLabels: constLabels,
	})

	m.connectionAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("connection_attempts_total"),
		Help:        "Connection attempts to the inference space by result",
		ConstLabels: constLabels,
	}, []string{"result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_component_total"),
		Help:        "Errors by component and type",
		ConstLabels: constLabels,
	}, []string{"component", "error_type"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_type_total"),
		Help:        "Errors by type and severity",
		ConstLabels: constLabels,
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_endpoint_total"),
		Help:        "Errors by endpoint, method and type",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "error_type"})

	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("error_latency_milliseconds"),
		Help:        "Latency of operations that ended in an error",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        m.name("memory_bytes"),
		Help:        "Allocated heap memory in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        m.name("goroutines"),
		Help:        "Number of goroutines",
		ConstLabels: constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        m.name("gc_pause_milliseconds"),
		Help:        "Average GC pause in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})
}

// Analysis pipeline.

// RecordAnalysis increments the analyses counter for outcome.
func RecordAnalysis(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.analyses.WithLabelValues(outcome).Inc()
}

// RecordInferenceLatency records the remote call latency.
func RecordInferenceLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.inferenceLatency.Observe(latencyMs)
}

// RecordEnsembleDecision records an ensemble outcome and its confidence.
func RecordEnsembleDecision(rationale string, confidence float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.ensembleDecisions.WithLabelValues(rationale).Inc()
	globalManager.ensembleConf.Observe(confidence)
}

// RecordModelConfidence records the confidence one model reported.
func RecordModelConfidence(model string, confidence float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.modelConf.WithLabelValues(model).Observe(confidence)
}

// RecordUpload records the size of an accepted upload.
func RecordUpload(bytes int) {
	if !globalManager.enabled {
		return
	}
	globalManager.uploadBytes.Observe(float64(bytes))
}

// RecordImageResized increments the downscale counter.
func RecordImageResized() {
	if !globalManager.enabled {
		return
	}
	globalManager.imagesResized.Inc()
}

// Remote collaborator.

// RecordConnection records the result of the one-time connection attempt.
func RecordConnection(ok bool) {
	if !globalManager.enabled {
		return
	}
	if ok {
		globalManager.connectionUp.Set(1)
		globalManager.connectionAttempts.WithLabelValues("ok").Inc()
		return
	}
	globalManager.connectionUp.Set(0)
	globalManager.connectionAttempts.WithLabelValues("error").Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

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

// RefreshInterval returns how often gauge updaters should run.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
