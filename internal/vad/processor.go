package vad

import (
	"fmt"
	"math"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

const (
	// DefaultThreshold is the probability at which a window counts as voiced
	DefaultThreshold = 0.5

	// DefaultWindow is the analysis window length in milliseconds
	DefaultWindow = 30

	// fullScaleRMS maps window RMS onto probability 1
	fullScaleRMS = 0.3

	// smoothing weights the current window against the previous result
	smoothing = 0.6
)

// Detector finds voiced regions in a recording using windowed RMS energy
type Detector struct {
	threshold  float32
	windowSize int // samples per window
	sampleRate int
}

// Result is the outcome for one analysis window
type Result struct {
	Probability float32 `json:"probability"` // Voice probability (0.0 - 1.0)
	HasVoice    bool    `json:"has_voice"`
	WindowIndex int     `json:"window_index"`
}

// Segment is a continuous run of voiced windows
type Segment struct {
	Start      float64 `json:"start_seconds"`
	End        float64 `json:"end_seconds"`
	Confidence float32 `json:"confidence"` // mean distance from the threshold, scaled to 0..1
}

// Duration returns the segment length in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Summary describes voice activity over a whole recording
type Summary struct {
	Windows         int       `json:"windows"`
	VoiceWindows    int       `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	VoiceSeconds    float64   `json:"voice_seconds"`
	Segments        []Segment `json:"segments"`
}

// NewDetector creates a detector. windowSize is in samples.
func NewDetector(threshold float32, windowSize int, sampleRate int) (*Detector, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &Detector{
		threshold:  threshold,
		windowSize: windowSize,
		sampleRate: sampleRate,
	}, nil
}

// ForRate creates a detector with the default threshold and window
func ForRate(sampleRate int) (*Detector, error) {
	window := sampleRate * DefaultWindow / 1000
	if window < 1 {
		window = 1
	}
	return NewDetector(DefaultThreshold, window, sampleRate)
}

// Process classifies samples window by window. A trailing partial window is
// classified on the samples it has.
func (d *Detector) Process(samples []float32) []Result {
	results := make([]Result, 0, (len(samples)+d.windowSize-1)/d.windowSize)

	var last float32
	for start := 0; start < len(samples); start += d.windowSize {
		end := start + d.windowSize
		if end > len(samples) {
			end = len(samples)
		}

		probability := windowProbability(samples[start:end])
		if len(results) > 0 {
			probability = smoothing*probability + (1-smoothing)*last
		}
		last = probability

		results = append(results, Result{
			Probability: probability,
			HasVoice:    probability >= d.threshold,
			WindowIndex: len(results),
		})
	}

	return results
}

// Analyze summarizes voice activity of mono samples
func (d *Detector) Analyze(samples []float32) Summary {
	results := d.Process(samples)
	summary := Summary{
		Windows:  len(results),
		Segments: make([]Segment, 0),
	}

	total := float64(len(samples)) / float64(d.sampleRate)
	var current *Segment
	var voiced int
	var confidence float32

	closeSegment := func(endWindow int) {
		end := math.Min(float64(endWindow*d.windowSize)/float64(d.sampleRate), total)
		current.End = end
		current.Confidence = confidence / float32(voiced)
		summary.VoiceSeconds += current.Duration()
		summary.Segments = append(summary.Segments, *current)
		current = nil
	}

	for _, result := range results {
		if !result.HasVoice {
			if current != nil {
				closeSegment(result.WindowIndex)
			}
			continue
		}

		summary.VoiceWindows++
		if current == nil {
			current = &Segment{Start: float64(result.WindowIndex*d.windowSize) / float64(d.sampleRate)}
			voiced, confidence = 0, 0
		}
		voiced++
		confidence += d.confidence(result.Probability)
	}

	if current != nil {
		closeSegment(len(results))
	}

	if summary.Windows > 0 {
		summary.VoicePercentage = float64(summary.VoiceWindows) / float64(summary.Windows) * 100
	}

	return summary
}

// AnalyzeChannels mixes channels down to mono and analyzes the result
func (d *Detector) AnalyzeChannels(channels [][]float32) Summary {
	if len(channels) == 0 {
		return d.Analyze(nil)
	}
	return d.Analyze(audio.Remix(channels, 1)[0])
}

// confidence is higher when probability is far from the threshold
func (d *Detector) confidence(probability float32) float32 {
	c := float32(math.Abs(float64(probability - d.threshold)))
	if c > 0.5 {
		c = 0.5
	}
	return c * 2
}

// GetThreshold returns the voice detection threshold
func (d *Detector) GetThreshold() float32 {
	return d.threshold
}

// GetWindowSize returns the window size in samples
func (d *Detector) GetWindowSize() int {
	return d.windowSize
}

// windowProbability maps the RMS energy of a window onto 0..1
func windowProbability(samples []float32) float32 {
	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	energy = math.Sqrt(energy / float64(len(samples)))

	probability := energy / fullScaleRMS
	if probability > 1 {
		probability = 1
	}
	return float32(probability)
}
