package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AdvaitD04/LiveandLetCode/internal/analysis"
	"github.com/AdvaitD04/LiveandLetCode/internal/download"
	"github.com/AdvaitD04/LiveandLetCode/internal/metrics"
	"github.com/AdvaitD04/LiveandLetCode/internal/recorder"
)

var (
	_ recorder.Observer = (*metrics.Metrics)(nil)
	_ download.Observer = (*metrics.Metrics)(nil)
	_ analysis.Observer = (*metrics.Metrics)(nil)
)

func TestCaptureMetrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	m.RecordChunkReceived()
	m.RecordChunkReceived()
	m.RecordChunkRecorded(800, 800)
	m.RecordChunkRecorded(400, 1200)
	m.RecordChunkDropped("idle")
	m.RecordChunkDropped("idle")
	m.RecordChunkDropped("queue_full")

	tests := []struct {
		name      string
		collector prometheus.Collector
		expected  float64
	}{
		{"chunks received", m.ChunksReceived, 2},
		{"chunks recorded", m.ChunksRecorded, 2},
		{"frames recorded", m.FramesRecorded, 1200},
		{"buffered frames", m.BufferedFrames, 1200},
		{"dropped idle", m.ChunksDropped.WithLabelValues("idle"), 2},
		{"dropped queue full", m.ChunksDropped.WithLabelValues("queue_full"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}

	m.SetBufferedFrames(0)
	if got := testutil.ToFloat64(m.BufferedFrames); got != 0 {
		t.Errorf("Expected buffered frames reset to 0, got %v", got)
	}
}

func TestRecordingGauge(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	m.SetRecording(true)
	if got := testutil.ToFloat64(m.RecordingActive); got != 1 {
		t.Errorf("Expected recording gauge 1, got %v", got)
	}

	m.SetRecording(false)
	if got := testutil.ToFloat64(m.RecordingActive); got != 0 {
		t.Errorf("Expected recording gauge 0, got %v", got)
	}
}

func TestExportAndDownloadMetrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	m.RecordExport(0.01, 4844)
	m.RecordExportFailure()
	m.RecordDownload(true)
	m.RecordDownload(false)
	m.RecordDownload(false)

	if got := testutil.ToFloat64(m.Exports); got != 1 {
		t.Errorf("Expected 1 export, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExportFailures); got != 1 {
		t.Errorf("Expected 1 export failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.Downloads); got != 1 {
		t.Errorf("Expected 1 download, got %v", got)
	}
	if got := testutil.ToFloat64(m.DownloadFailures); got != 2 {
		t.Errorf("Expected 2 download failures, got %v", got)
	}
}

func TestAnalysisMetrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	m.RecordAnalysisRequest()
	m.RecordAnalysisRetry()
	m.RecordAnalysisSuccess(0.2)
	m.RecordAnalysisRequest()
	m.RecordAnalysisFailure(1.5)

	if got := testutil.ToFloat64(m.AnalysisRequests); got != 2 {
		t.Errorf("Expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.AnalysisRetries); got != 1 {
		t.Errorf("Expected 1 retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.AnalysisSuccesses); got != 1 {
		t.Errorf("Expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.AnalysisFailures); got != 1 {
		t.Errorf("Expected 1 failure, got %v", got)
	}
}

func TestHTTPMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	m.RecordHTTPRequest("GET", "/health", "200", 0.001)
	m.RecordHTTPRequest("GET", "/health", "200", 0.002)
	m.RecordHTTPError("POST", "/recording/save", "server_error")

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/health", "200")); got != 2 {
		t.Errorf("Expected 2 requests, got %v", got)
	}

	count, err := testutil.GatherAndCount(reg, "wavcap_http_errors_total")
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 error series, got %d", count)
	}
}
