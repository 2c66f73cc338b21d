package vad

import (
	"math"
	"testing"
)

func constant(n int, value float32) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	return samples
}

func concat(parts ...[]float32) []float32 {
	var out []float32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewDetector(t *testing.T) {
	tests := []struct {
		name       string
		threshold  float32
		windowSize int
		sampleRate int
		expectErr  bool
	}{
		{
			name:       "valid parameters",
			threshold:  0.5,
			windowSize: 480,
			sampleRate: 16000,
			expectErr:  false,
		},
		{
			name:       "threshold too high",
			threshold:  1.5,
			windowSize: 480,
			sampleRate: 16000,
			expectErr:  true,
		},
		{
			name:       "negative threshold",
			threshold:  -0.1,
			windowSize: 480,
			sampleRate: 16000,
			expectErr:  true,
		},
		{
			name:       "zero window size",
			threshold:  0.5,
			windowSize: 0,
			sampleRate: 16000,
			expectErr:  true,
		},
		{
			name:       "negative sample rate",
			threshold:  0.5,
			windowSize: 480,
			sampleRate: -1,
			expectErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.threshold, tt.windowSize, tt.sampleRate)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestForRate(t *testing.T) {
	detector, err := ForRate(16000)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	if detector.GetWindowSize() != 480 {
		t.Errorf("Expected window size 480, got %d", detector.GetWindowSize())
	}

	if detector.GetThreshold() != DefaultThreshold {
		t.Errorf("Expected threshold %f, got %f", DefaultThreshold, detector.GetThreshold())
	}
}

func TestProcessWindows(t *testing.T) {
	detector, err := NewDetector(0.5, 10, 1000)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	tests := []struct {
		name        string
		samples     []float32
		windows     int
		expectVoice []bool
	}{
		{
			name:        "empty",
			samples:     nil,
			windows:     0,
			expectVoice: nil,
		},
		{
			name:        "silence",
			samples:     make([]float32, 30),
			windows:     3,
			expectVoice: []bool{false, false, false},
		},
		{
			name:        "low energy",
			samples:     constant(30, 0.05),
			windows:     3,
			expectVoice: []bool{false, false, false},
		},
		{
			name:        "high energy",
			samples:     constant(30, 0.5),
			windows:     3,
			expectVoice: []bool{true, true, true},
		},
		{
			name:        "partial window",
			samples:     constant(25, -0.5),
			windows:     3,
			expectVoice: []bool{true, true, true},
		},
		{
			name:        "onset after silence",
			samples:     concat(make([]float32, 20), constant(20, 0.5)),
			windows:     4,
			expectVoice: []bool{false, false, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := detector.Process(tt.samples)
			if len(results) != tt.windows {
				t.Fatalf("Expected %d windows, got %d", tt.windows, len(results))
			}

			for i, result := range results {
				if result.WindowIndex != i {
					t.Errorf("Expected window index %d, got %d", i, result.WindowIndex)
				}
				if result.Probability < 0 || result.Probability > 1 {
					t.Errorf("Invalid probability: %f", result.Probability)
				}
				if result.HasVoice != tt.expectVoice[i] {
					t.Errorf("Window %d: expected voice %v, got %v (probability %.3f)",
						i, tt.expectVoice[i], result.HasVoice, result.Probability)
				}
			}
		})
	}
}

func TestAnalyzeSegments(t *testing.T) {
	detector, err := NewDetector(0.5, 10, 1000)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	// 50ms silence, 50ms tone, 50ms silence
	summary := detector.Analyze(concat(make([]float32, 50), constant(50, 0.5), make([]float32, 50)))

	if summary.Windows != 15 {
		t.Errorf("Expected 15 windows, got %d", summary.Windows)
	}

	if summary.VoiceWindows != 5 {
		t.Errorf("Expected 5 voice windows, got %d", summary.VoiceWindows)
	}

	if !almostEqual(summary.VoicePercentage, 100.0/3) {
		t.Errorf("Expected voice percentage 33.3, got %f", summary.VoicePercentage)
	}

	if len(summary.Segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(summary.Segments))
	}

	segment := summary.Segments[0]
	if !almostEqual(segment.Start, 0.05) || !almostEqual(segment.End, 0.10) {
		t.Errorf("Expected segment 0.05-0.10, got %f-%f", segment.Start, segment.End)
	}

	if segment.Confidence <= 0 || segment.Confidence > 1 {
		t.Errorf("Invalid confidence: %f", segment.Confidence)
	}

	if !almostEqual(summary.VoiceSeconds, 0.05) {
		t.Errorf("Expected 0.05 voice seconds, got %f", summary.VoiceSeconds)
	}
}

func TestAnalyzeVoiceUntilEnd(t *testing.T) {
	detector, err := NewDetector(0.5, 10, 1000)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	summary := detector.Analyze(concat(make([]float32, 20), constant(25, 0.5)))

	if len(summary.Segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(summary.Segments))
	}

	// The last segment ends at the last sample, not the window boundary
	segment := summary.Segments[0]
	if !almostEqual(segment.Start, 0.02) || !almostEqual(segment.End, 0.045) {
		t.Errorf("Expected segment 0.02-0.045, got %f-%f", segment.Start, segment.End)
	}
}

func TestAnalyzeSilence(t *testing.T) {
	detector, err := ForRate(8000)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	summary := detector.Analyze(make([]float32, 8000))

	if summary.VoiceWindows != 0 {
		t.Errorf("Expected no voice windows, got %d", summary.VoiceWindows)
	}

	if summary.Segments == nil || len(summary.Segments) != 0 {
		t.Errorf("Expected empty segment list, got %v", summary.Segments)
	}

	empty := detector.Analyze(nil)
	if empty.Windows != 0 || empty.VoicePercentage != 0 {
		t.Errorf("Expected empty summary, got %+v", empty)
	}
}

func TestAnalyzeChannels(t *testing.T) {
	detector, err := NewDetector(0.5, 10, 1000)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	// Opposite phase cancels out in the mono mix
	left := constant(30, 0.5)
	right := constant(30, -0.5)
	if summary := detector.AnalyzeChannels([][]float32{left, right}); summary.VoiceWindows != 0 {
		t.Errorf("Expected cancelled mix to be silent, got %d voice windows", summary.VoiceWindows)
	}

	if summary := detector.AnalyzeChannels([][]float32{left, left}); summary.VoiceWindows != 3 {
		t.Errorf("Expected 3 voice windows, got %d", summary.VoiceWindows)
	}

	if summary := detector.AnalyzeChannels(nil); summary.Windows != 0 {
		t.Errorf("Expected no windows, got %d", summary.Windows)
	}
}
