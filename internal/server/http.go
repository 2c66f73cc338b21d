package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AdvaitD04/LiveandLetCode/internal/analysis"
	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
	"github.com/AdvaitD04/LiveandLetCode/internal/config"
	"github.com/AdvaitD04/LiveandLetCode/internal/download"
	"github.com/AdvaitD04/LiveandLetCode/internal/metrics"
	"github.com/AdvaitD04/LiveandLetCode/internal/recorder"
	"github.com/AdvaitD04/LiveandLetCode/internal/source"
	"github.com/AdvaitD04/LiveandLetCode/internal/vad"
	"github.com/AdvaitD04/LiveandLetCode/internal/worker"
)

const (
	ServiceName = "wavcap"
	Version     = "1.0.0"

	// requestTimeout bounds how long a handler waits for the capture worker
	requestTimeout = 30 * time.Second
)

// Dependencies are the components the HTTP API drives
type Dependencies struct {
	Recorder   *recorder.Recorder
	Downloader *download.Downloader
	Analyzer   *analysis.Client  // nil when analysis is disabled
	UDPSource  *source.UDPSource // nil unless the udp source is running
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer // defaults to prometheus.DefaultGatherer
}

// HTTPServer provides the recording API plus monitoring endpoints
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger
	config  *config.Config
	deps    Dependencies

	// requestMu serializes buffer and export requests so that concurrent
	// HTTP clients do not supersede each other's pending request
	requestMu sync.Mutex

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, deps Dependencies) *HTTPServer {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		deps:      deps,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         appConfig.HTTP.ListenAddress(),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // exports and analysis uploads
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Recording control
	mux.HandleFunc("/recording/start", h.withMetrics("/recording/start", h.handleStart))
	mux.HandleFunc("/recording/stop", h.withMetrics("/recording/stop", h.handleStop))
	mux.HandleFunc("/recording/clear", h.withMetrics("/recording/clear", h.handleClear))

	// Recording output
	mux.HandleFunc("/recording/buffer", h.withMetrics("/recording/buffer", h.handleBuffer))
	mux.HandleFunc("/recording/export", h.withMetrics("/recording/export", h.handleExport))
	mux.HandleFunc("/recording/save", h.withMetrics("/recording/save", h.handleSave))
	mux.HandleFunc("/recording/analyze", h.withMetrics("/recording/analyze", h.handleAnalyzeRecording))

	// Analysis proxy for uploaded files
	mux.HandleFunc("/analyze", h.withMetrics("/analyze", h.handleAnalyzeUpload))

	// Chunk ingest; the connection outlives the request so it is not timed
	mux.HandleFunc("/ws/capture", h.handleCapture)

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// ListenAndServe serves until Stop is called
func (h *HTTPServer) ListenAndServe() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec := h.deps.Recorder
	components := map[string]interface{}{
		"recorder": map[string]interface{}{
			"status":      "running",
			"recording":   rec.Recording(),
			"queue_depth": rec.QueueDepth(),
		},
	}

	if h.deps.UDPSource != nil {
		udpStats := h.deps.UDPSource.GetStatistics()
		components["udp_source"] = map[string]interface{}{
			"status":            "running",
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
			"queue_size":        udpStats.QueueSize,
		}
	}

	if h.deps.Analyzer != nil {
		analysisStats := h.deps.Analyzer.GetStats()
		components["analysis"] = map[string]interface{}{
			"status":          "running",
			"total_requests":  analysisStats.TotalRequests,
			"success_rate":    analysisStats.SuccessRate,
			"active_requests": analysisStats.ActiveRequests,
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    ServiceName,
			"version": Version,
		},
		"components": components,
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rc := h.deps.Recorder.Config()

	// API key is intentionally omitted
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":            h.config.HTTP.Port,
			"address":         h.config.HTTP.Address,
			"max_upload_size": h.config.HTTP.MaxUploadSize,
		},
		"audio": map[string]interface{}{
			"sample_rate":        rc.SampleRate,
			"channels":           rc.NumChannels,
			"mime_type":          rc.MimeType,
			"export_sample_rate": rc.Format.SampleRate,
			"export_channels":    rc.Format.NumChannels,
			"queue_limit":        rc.QueueLimit,
			"auto_start":         h.config.Audio.AutoStart,
		},
		"source": map[string]interface{}{
			"type":       h.config.Source.Type,
			"frame_size": h.config.Source.FrameSize,
		},
		"download": map[string]interface{}{
			"directory": h.deps.Downloader.Dir(),
			"filename":  h.config.Download.Filename,
		},
		"analysis": map[string]interface{}{
			"enabled":        h.deps.Analyzer != nil,
			"endpoint":       h.config.Analysis.Endpoint,
			"timeout":        h.config.Analysis.Timeout,
			"max_retries":    h.config.Analysis.MaxRetries,
			"max_concurrent": h.config.Analysis.MaxConcurrent,
		},
		"discovery": map[string]interface{}{
			"enabled":  h.config.Discovery.Enabled,
			"instance": h.config.Discovery.Instance,
			"service":  h.config.Discovery.Service,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	buffer, err := h.buffer(r.Context())
	if err != nil {
		h.writeRecorderError(w, "buffer", err)
		return
	}

	rec := h.deps.Recorder
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"recorder": map[string]interface{}{
			"recording":   rec.Recording(),
			"queue_depth": rec.QueueDepth(),
			"buffer":      audio.StatsOf(buffer, rec.Config().SampleRate),
			"voice":       voiceSummary(buffer, rec.Config().SampleRate),
		},
	}

	if h.deps.UDPSource != nil {
		stats["udp"] = h.deps.UDPSource.GetStatistics()
	}
	if h.deps.Analyzer != nil {
		stats["analysis"] = h.deps.Analyzer.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleStart implements POST /recording/start
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.deps.Recorder.Record()
	h.writeState(w)
}

// handleStop implements POST /recording/stop
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.deps.Recorder.Stop()
	h.writeState(w)
}

// handleClear implements POST /recording/clear
func (h *HTTPServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.deps.Recorder.Clear(); err != nil {
		h.writeRecorderError(w, "clear", err)
		return
	}
	h.writeState(w)
}

func (h *HTTPServer) writeState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recording": h.deps.Recorder.Recording(),
	})
}

// handleBuffer implements GET /recording/buffer
func (h *HTTPServer) handleBuffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	buffer, err := h.buffer(r.Context())
	if err != nil {
		h.writeRecorderError(w, "buffer", err)
		return
	}

	response := map[string]interface{}{
		"stats": audio.StatsOf(buffer, h.deps.Recorder.Config().SampleRate),
		"voice": voiceSummary(buffer, h.deps.Recorder.Config().SampleRate),
	}
	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
		response["channels"] = buffer
	}

	writeJSON(w, http.StatusOK, response)
}

// voiceSummary runs voice activity detection over the mono mix of buffer
func voiceSummary(buffer [][]float32, sampleRate int) *vad.Summary {
	detector, err := vad.ForRate(sampleRate)
	if err != nil {
		return nil
	}
	summary := detector.AnalyzeChannels(buffer)
	return &summary
}

// handleExport implements GET /recording/export. Optional query parameters
// rate and channels override the configured export format.
func (h *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format, err := parseExportFormat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	blob, err := h.export(r.Context(), format)
	if err != nil {
		h.writeRecorderError(w, "export", err)
		return
	}

	if err := download.Attach(w, blob, h.filename(r)); err != nil {
		h.logger.Warn("Failed to send export", slog.String("error", err.Error()))
	}
}

// handleSave implements POST /recording/save, writing the export into the
// download directory
func (h *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format, err := parseExportFormat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	blob, err := h.export(r.Context(), format)
	if err != nil {
		h.writeRecorderError(w, "export", err)
		return
	}

	path, err := h.deps.Downloader.Save(blob, h.filename(r))
	if err != nil {
		h.logger.Error("Failed to save recording", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"path":       path,
		"size_bytes": blob.Size(),
		"mime_type":  blob.MimeType(),
	})
}

// handleAnalyzeRecording implements POST /recording/analyze
func (h *HTTPServer) handleAnalyzeRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is disabled")
		return
	}

	blob, err := h.export(r.Context(), audio.ExportFormat{})
	if err != nil {
		h.writeRecorderError(w, "export", err)
		return
	}

	result, err := h.deps.Analyzer.AnalyzeBlob(r.Context(), blob, h.filename(r))
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleAnalyzeUpload implements POST /analyze. The multipart field "audio"
// must hold a WAV file; it is validated and forwarded to the analysis service.
func (h *HTTPServer) handleAnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is disabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.HTTP.MaxUploadSize)
	file, header, err := r.FormFile(analysis.FormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".wav") {
		writeError(w, http.StatusBadRequest, "Invalid file format. Please upload a WAV file.")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	if _, _, err := audio.DecodeWAV(data); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid WAV file: %v", err))
		return
	}

	result, err := h.deps.Analyzer.Analyze(r.Context(), download.SanitizeFilename(header.Filename), data, audio.DefaultMimeType)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Live Audio Capture Service",
		"version": Version,
		"endpoints": map[string]interface{}{
			"GET /":                   "API documentation",
			"GET /health":             "Service health check",
			"GET /config":             "Get service configuration",
			"GET /stats":              "Get service statistics",
			"GET /metrics":            "Prometheus metrics",
			"POST /recording/start":   "Start recording",
			"POST /recording/stop":    "Stop recording",
			"POST /recording/clear":   "Discard the recorded audio",
			"GET /recording/buffer":   "Buffer statistics (?raw=1 adds samples)",
			"GET /recording/export":   "Download the recording as WAV (?rate=&channels=&filename=)",
			"POST /recording/save":    "Save the recording into the download directory",
			"POST /recording/analyze": "Send the recording to the analysis service",
			"POST /analyze":           "Analyze an uploaded WAV file (multipart field 'audio')",
			"GET /ws/capture":         "WebSocket ingest of audio and control packets",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

// buffer runs a getBuffer request, one at a time
func (h *HTTPServer) buffer(ctx context.Context) ([][]float32, error) {
	h.requestMu.Lock()
	defer h.requestMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	return h.deps.Recorder.Buffer(ctx)
}

// export runs an exportWAV request, one at a time
func (h *HTTPServer) export(ctx context.Context, format audio.ExportFormat) (*audio.Blob, error) {
	h.requestMu.Lock()
	defer h.requestMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	return h.deps.Recorder.Export(ctx, "", format)
}

func (h *HTTPServer) filename(r *http.Request) string {
	if name := r.URL.Query().Get("filename"); name != "" {
		return name
	}
	return h.config.Download.Filename
}

func parseExportFormat(r *http.Request) (audio.ExportFormat, error) {
	var format audio.ExportFormat
	query := r.URL.Query()

	if v := query.Get("rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate < 8000 || rate > 192000 {
			return format, fmt.Errorf("rate must be between 8000 and 192000, got %q", v)
		}
		format.SampleRate = rate
	}

	if v := query.Get("channels"); v != "" {
		channels, err := strconv.Atoi(v)
		if err != nil || channels < 1 || channels > 255 {
			return format, fmt.Errorf("channels must be between 1 and 255, got %q", v)
		}
		format.NumChannels = channels
	}

	return format, nil
}

func (h *HTTPServer) writeRecorderError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, recorder.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, recorder.ErrClosed), errors.Is(err, worker.ErrClosed),
		errors.Is(err, worker.ErrNotInitialized), errors.Is(err, worker.ErrQueueFull):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away
		return
	}

	h.logger.Error("Recorder request failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	writeError(w, status, err.Error())
}

func (h *HTTPServer) writeAnalysisError(w http.ResponseWriter, err error) {
	h.logger.Error("Analysis failed", slog.String("error", err.Error()))

	var serviceErr *analysis.ServiceError
	switch {
	case errors.As(err, &serviceErr) && serviceErr.StatusCode >= 400 && !serviceErr.Retryable():
		// Pass client errors such as a rejected file straight through
		writeError(w, serviceErr.StatusCode, serviceErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// writeJSON encodes v before writing the status so an unencodable value
// becomes a 500 instead of an empty 200
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": "failed to encode response: " + err.Error()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
