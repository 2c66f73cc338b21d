package audio

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrChannelMismatch is returned when a chunk carries a different number
	// of channels than the buffer was configured with
	ErrChannelMismatch = errors.New("chunk channel count does not match buffer")

	// ErrRaggedChunk is returned when the channels of one chunk differ in length
	ErrRaggedChunk = errors.New("chunk channels have different frame counts")

	// ErrNonFiniteSample is returned when a chunk carries NaN or infinity
	ErrNonFiniteSample = errors.New("chunk contains a non-finite sample")
)

// Chunk is one callback period of per-channel float samples, shaped
// numChannels x frameCount. Samples are expected in [-1.0, 1.0].
type Chunk [][]float32

// Frames returns the frame count of the chunk (length of its first channel)
func (c Chunk) Frames() int {
	if len(c) == 0 {
		return 0
	}
	return len(c[0])
}

// Validate checks that the chunk has numChannels channels of equal length
// holding only finite samples
func (c Chunk) Validate(numChannels int) error {
	if err := c.validateShape(numChannels); err != nil {
		return err
	}
	for ch, samples := range c {
		for i, s := range samples {
			if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
				return fmt.Errorf("%w: channel %d frame %d is %v", ErrNonFiniteSample, ch, i, s)
			}
		}
	}
	return nil
}

func (c Chunk) validateShape(numChannels int) error {
	if len(c) != numChannels {
		return fmt.Errorf("%w: expected %d channels, got %d", ErrChannelMismatch, numChannels, len(c))
	}
	for ch := 1; ch < len(c); ch++ {
		if len(c[ch]) != len(c[0]) {
			return fmt.Errorf("%w: channel 0 has %d frames, channel %d has %d",
				ErrRaggedChunk, len(c[0]), ch, len(c[ch]))
		}
	}
	return nil
}

// SampleBuffer accumulates time-aligned float chunks for a fixed number of
// channels. It is a plain data structure; the owner serializes access.
type SampleBuffer struct {
	numChannels int
	sampleRate  int

	// chunks[ch] holds the chunks of channel ch in arrival order
	chunks [][][]float32
	frames int
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Channels   int       `json:"channels"`
	SampleRate int       `json:"sample_rate"`
	Chunks     int       `json:"chunks"`
	Frames     int       `json:"frames"`
	Duration   float64   `json:"duration_seconds"`
	Peak       []float64 `json:"peak"`
	RMS        []float64 `json:"rms"`
}

// NewSampleBuffer creates an empty buffer for numChannels channels
func NewSampleBuffer(numChannels, sampleRate int) (*SampleBuffer, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", numChannels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &SampleBuffer{
		numChannels: numChannels,
		sampleRate:  sampleRate,
		chunks:      make([][][]float32, numChannels),
	}, nil
}

// Append copies one chunk into every channel. A chunk that fails validation
// is rejected as a whole so that all channels keep equal length.
func (b *SampleBuffer) Append(chunk Chunk) error {
	if err := chunk.Validate(b.numChannels); err != nil {
		return err
	}

	frames := chunk.Frames()
	if frames == 0 {
		return nil
	}

	// The producer may reuse its slices after handoff
	for ch, samples := range chunk {
		owned := make([]float32, frames)
		copy(owned, samples)
		b.chunks[ch] = append(b.chunks[ch], owned)
	}
	b.frames += frames

	return nil
}

// Clear discards all accumulated data
func (b *SampleBuffer) Clear() {
	for ch := range b.chunks {
		b.chunks[ch] = nil
	}
	b.frames = 0
}

// TotalFrames returns the number of frames held by each channel
func (b *SampleBuffer) TotalFrames() int {
	return b.frames
}

// NumChannels returns the configured channel count
func (b *SampleBuffer) NumChannels() int {
	return b.numChannels
}

// SampleRate returns the capture sample rate
func (b *SampleBuffer) SampleRate() int {
	return b.sampleRate
}

// NumChunks returns the number of chunks held per channel
func (b *SampleBuffer) NumChunks() int {
	return len(b.chunks[0])
}

// Channels flattens the accumulated chunks into one contiguous slice per
// channel. The result does not alias the buffer.
func (b *SampleBuffer) Channels() [][]float32 {
	out := make([][]float32, b.numChannels)
	for ch, chunks := range b.chunks {
		merged := make([]float32, 0, b.frames)
		for _, c := range chunks {
			merged = append(merged, c...)
		}
		out[ch] = merged
	}
	return out
}

// GetStats returns current buffer statistics
func (b *SampleBuffer) GetStats() BufferStats {
	stats := StatsOf(b.Channels(), b.sampleRate)
	stats.Chunks = b.NumChunks()
	return stats
}

// StatsOf computes statistics over flattened per-channel samples, such as the
// result of a getBuffer request. Chunks is left at zero.
func StatsOf(channels [][]float32, sampleRate int) BufferStats {
	stats := BufferStats{
		Channels:   len(channels),
		SampleRate: sampleRate,
		Peak:       make([]float64, len(channels)),
		RMS:        make([]float64, len(channels)),
	}
	if len(channels) > 0 {
		stats.Frames = len(channels[0])
	}
	if sampleRate > 0 {
		stats.Duration = float64(stats.Frames) / float64(sampleRate)
	}

	for ch, samples := range channels {
		var peak, sumSquares float64
		for _, s := range samples {
			v := math.Abs(float64(s))
			if v > peak {
				peak = v
			}
			sumSquares += float64(s) * float64(s)
		}
		stats.Peak[ch] = peak
		if len(samples) > 0 {
			stats.RMS[ch] = math.Sqrt(sumSquares / float64(len(samples)))
		}
	}

	return stats
}
