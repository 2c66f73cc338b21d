package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture service
type Metrics struct {
	// Capture metrics
	ChunksReceived  prometheus.Counter
	ChunksRecorded  prometheus.Counter
	ChunksDropped   *prometheus.CounterVec
	FramesRecorded  prometheus.Counter
	BufferedFrames  prometheus.Gauge
	QueueDepth      prometheus.Gauge
	RecordingActive prometheus.Gauge

	// Export metrics
	Exports        prometheus.Counter
	ExportFailures prometheus.Counter
	ExportDuration prometheus.Histogram
	ExportSize     prometheus.Histogram

	// Download metrics
	Downloads        prometheus.Counter
	DownloadFailures prometheus.Counter

	// Analysis metrics
	AnalysisRequests  prometheus.Counter
	AnalysisSuccesses prometheus.Counter
	AnalysisFailures  prometheus.Counter
	AnalysisDuration  prometheus.Histogram
	AnalysisRetries   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_chunks_received_total",
			Help: "Total number of sample chunks delivered by the audio source",
		}),
		ChunksRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_chunks_recorded_total",
			Help: "Total number of sample chunks appended to the capture buffer",
		}),
		ChunksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavcap_chunks_dropped_total",
			Help: "Total number of sample chunks dropped, by reason",
		}, []string{"reason"}),
		FramesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_frames_recorded_total",
			Help: "Total number of frames appended to the capture buffer",
		}),
		BufferedFrames: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wavcap_buffered_frames",
			Help: "Current number of frames held by the capture buffer",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wavcap_worker_queue_depth",
			Help: "Current number of commands waiting in the capture worker mailbox",
		}),
		RecordingActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wavcap_recording_active",
			Help: "1 while the recorder is forwarding chunks, 0 while idle",
		}),

		// Export metrics
		Exports: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_exports_total",
			Help: "Total number of WAV exports produced",
		}),
		ExportFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_export_failures_total",
			Help: "Total number of failed WAV exports",
		}),
		ExportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavcap_export_duration_seconds",
			Help:    "Time spent encoding WAV exports",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
		ExportSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavcap_export_size_bytes",
			Help:    "Size of exported WAV files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),

		// Download metrics
		Downloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_downloads_total",
			Help: "Total number of blobs saved by the downloader",
		}),
		DownloadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_download_failures_total",
			Help: "Total number of blobs the downloader failed to save",
		}),

		// Analysis metrics
		AnalysisRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_analysis_requests_total",
			Help: "Total number of analysis requests sent",
		}),
		AnalysisSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_analysis_successes_total",
			Help: "Total number of successful analysis requests",
		}),
		AnalysisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_analysis_failures_total",
			Help: "Total number of failed analysis requests",
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavcap_analysis_duration_seconds",
			Help:    "Duration of analysis requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		AnalysisRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavcap_analysis_retries_total",
			Help: "Total number of analysis request retries",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavcap_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wavcap_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavcap_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkReceived increments the chunks received counter
func (m *Metrics) RecordChunkReceived() {
	m.ChunksReceived.Inc()
}

// RecordChunkDropped counts a chunk dropped for reason
func (m *Metrics) RecordChunkDropped(reason string) {
	m.ChunksDropped.WithLabelValues(reason).Inc()
}

// RecordChunkRecorded records a chunk appended to the buffer and the new buffer size
func (m *Metrics) RecordChunkRecorded(frames, bufferedFrames int) {
	m.ChunksRecorded.Inc()
	m.FramesRecorded.Add(float64(frames))
	m.BufferedFrames.Set(float64(bufferedFrames))
}

// SetBufferedFrames sets the current buffer size
func (m *Metrics) SetBufferedFrames(frames int) {
	m.BufferedFrames.Set(float64(frames))
}

// SetQueueDepth sets the current worker mailbox depth
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// SetRecording sets the recording state gauge
func (m *Metrics) SetRecording(recording bool) {
	if recording {
		m.RecordingActive.Set(1)
		return
	}
	m.RecordingActive.Set(0)
}

// RecordExport records a successful export
func (m *Metrics) RecordExport(durationSeconds float64, sizeBytes int) {
	m.Exports.Inc()
	m.ExportDuration.Observe(durationSeconds)
	m.ExportSize.Observe(float64(sizeBytes))
}

// RecordExportFailure increments the export failures counter
func (m *Metrics) RecordExportFailure() {
	m.ExportFailures.Inc()
}

// RecordDownload records a downloader save attempt
func (m *Metrics) RecordDownload(ok bool) {
	if ok {
		m.Downloads.Inc()
		return
	}
	m.DownloadFailures.Inc()
}

// RecordAnalysisRequest increments analysis requests counter
func (m *Metrics) RecordAnalysisRequest() {
	m.AnalysisRequests.Inc()
}

// RecordAnalysisSuccess records a successful analysis
func (m *Metrics) RecordAnalysisSuccess(durationSeconds float64) {
	m.AnalysisSuccesses.Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordAnalysisFailure records a failed analysis
func (m *Metrics) RecordAnalysisFailure(durationSeconds float64) {
	m.AnalysisFailures.Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordAnalysisRetry increments the retry counter
func (m *Metrics) RecordAnalysisRetry() {
	m.AnalysisRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
