package audio

import (
	"errors"
	"math"
	"testing"
)

func makeChunk(numChannels, frames int, value float32) Chunk {
	chunk := make(Chunk, numChannels)
	for ch := range chunk {
		chunk[ch] = make([]float32, frames)
		for i := range chunk[ch] {
			chunk[ch][i] = value
		}
	}
	return chunk
}

func TestNewSampleBuffer(t *testing.T) {
	buffer, err := NewSampleBuffer(2, 44100)
	if err != nil {
		t.Fatalf("NewSampleBuffer failed: %v", err)
	}

	if buffer.NumChannels() != 2 {
		t.Errorf("Expected 2 channels, got %d", buffer.NumChannels())
	}

	if buffer.SampleRate() != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", buffer.SampleRate())
	}

	if buffer.TotalFrames() != 0 {
		t.Errorf("Expected initial size 0, got %d", buffer.TotalFrames())
	}
}

func TestNewSampleBufferInvalid(t *testing.T) {
	tests := []struct {
		name       string
		channels   int
		sampleRate int
	}{
		{name: "zero channels", channels: 0, sampleRate: 44100},
		{name: "negative channels", channels: -1, sampleRate: 44100},
		{name: "zero sample rate", channels: 1, sampleRate: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSampleBuffer(tt.channels, tt.sampleRate); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestAppendIsAdditive(t *testing.T) {
	buffer, _ := NewSampleBuffer(2, 44100)

	sizes := []int{4096, 128, 1, 0, 2048}
	expected := 0
	for _, n := range sizes {
		if err := buffer.Append(makeChunk(2, n, 0.25)); err != nil {
			t.Fatalf("Append(%d frames) failed: %v", n, err)
		}
		expected += n
	}

	if buffer.TotalFrames() != expected {
		t.Errorf("Expected %d frames, got %d", expected, buffer.TotalFrames())
	}

	for ch, samples := range buffer.Channels() {
		if len(samples) != expected {
			t.Errorf("Channel %d: expected %d samples, got %d", ch, expected, len(samples))
		}
	}

	// The zero-frame chunk is not stored
	if buffer.NumChunks() != 4 {
		t.Errorf("Expected 4 chunks, got %d", buffer.NumChunks())
	}
}

func TestAppendRejectsChannelMismatch(t *testing.T) {
	buffer, _ := NewSampleBuffer(2, 44100)
	_ = buffer.Append(makeChunk(2, 10, 0.1))

	err := buffer.Append(makeChunk(1, 10, 0.1))
	if !errors.Is(err, ErrChannelMismatch) {
		t.Fatalf("Expected ErrChannelMismatch, got %v", err)
	}

	err = buffer.Append(makeChunk(3, 10, 0.1))
	if !errors.Is(err, ErrChannelMismatch) {
		t.Fatalf("Expected ErrChannelMismatch, got %v", err)
	}

	if buffer.TotalFrames() != 10 {
		t.Errorf("Rejected chunk changed the buffer: %d frames", buffer.TotalFrames())
	}
}

func TestAppendRejectsRaggedChunk(t *testing.T) {
	buffer, _ := NewSampleBuffer(2, 44100)

	chunk := Chunk{make([]float32, 10), make([]float32, 9)}
	if err := buffer.Append(chunk); !errors.Is(err, ErrRaggedChunk) {
		t.Fatalf("Expected ErrRaggedChunk, got %v", err)
	}

	if buffer.TotalFrames() != 0 || buffer.NumChunks() != 0 {
		t.Error("Ragged chunk was partially appended")
	}
}

func TestAppendRejectsNonFiniteSamples(t *testing.T) {
	tests := []struct {
		name  string
		value float32
	}{
		{name: "NaN", value: float32(math.NaN())},
		{name: "positive infinity", value: float32(math.Inf(1))},
		{name: "negative infinity", value: float32(math.Inf(-1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer, _ := NewSampleBuffer(2, 8000)

			chunk := makeChunk(2, 4, 0.5)
			chunk[1][3] = tt.value
			if err := buffer.Append(chunk); !errors.Is(err, ErrNonFiniteSample) {
				t.Fatalf("Expected ErrNonFiniteSample, got %v", err)
			}

			if buffer.TotalFrames() != 0 {
				t.Errorf("Rejected chunk changed the buffer: %d frames", buffer.TotalFrames())
			}
		})
	}
}

func TestAppendCopiesSourceMemory(t *testing.T) {
	buffer, _ := NewSampleBuffer(1, 8000)

	chunk := makeChunk(1, 4, 0.5)
	_ = buffer.Append(chunk)

	// Producer reuses its slice
	chunk[0][0] = -0.75

	if got := buffer.Channels()[0][0]; got != 0.5 {
		t.Errorf("Buffer aliases producer memory: expected 0.5, got %f", got)
	}
}

func TestChannelsDoesNotAlias(t *testing.T) {
	buffer, _ := NewSampleBuffer(1, 8000)
	_ = buffer.Append(makeChunk(1, 4, 0.5))

	out := buffer.Channels()
	out[0][0] = 1

	if got := buffer.Channels()[0][0]; got != 0.5 {
		t.Errorf("Channels result aliases buffer: got %f", got)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	buffer, _ := NewSampleBuffer(2, 44100)
	_ = buffer.Append(makeChunk(2, 512, 0.3))

	buffer.Clear()
	buffer.Clear()

	if buffer.TotalFrames() != 0 {
		t.Errorf("Expected 0 frames after clear, got %d", buffer.TotalFrames())
	}

	channels := buffer.Channels()
	if len(channels) != 2 {
		t.Fatalf("Expected 2 channels after clear, got %d", len(channels))
	}
	for ch, samples := range channels {
		if len(samples) != 0 {
			t.Errorf("Channel %d not empty after clear: %d samples", ch, len(samples))
		}
	}

	// Buffer is usable after clear
	_ = buffer.Append(makeChunk(2, 16, 0.3))
	if buffer.TotalFrames() != 16 {
		t.Errorf("Expected 16 frames, got %d", buffer.TotalFrames())
	}
}

func TestGetStats(t *testing.T) {
	buffer, _ := NewSampleBuffer(2, 8000)

	chunk := Chunk{
		{0.5, -0.5, 0.5, -0.5},
		{0, 0, 0, -1},
	}
	_ = buffer.Append(chunk)

	stats := buffer.GetStats()

	if stats.Frames != 4 || stats.Chunks != 1 || stats.Channels != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	if math.Abs(stats.Duration-4.0/8000) > 1e-9 {
		t.Errorf("Expected duration %f, got %f", 4.0/8000, stats.Duration)
	}

	if math.Abs(stats.Peak[0]-0.5) > 1e-6 || math.Abs(stats.Peak[1]-1) > 1e-6 {
		t.Errorf("Unexpected peaks: %v", stats.Peak)
	}

	if math.Abs(stats.RMS[0]-0.5) > 1e-6 || math.Abs(stats.RMS[1]-0.5) > 1e-6 {
		t.Errorf("Unexpected RMS: %v", stats.RMS)
	}
}

func TestStatsOfEmpty(t *testing.T) {
	stats := StatsOf([][]float32{{}, {}}, 16000)

	if stats.Frames != 0 || stats.Channels != 2 || stats.Duration != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.RMS[0] != 0 || stats.Peak[1] != 0 {
		t.Errorf("Expected zero levels, got peak %v rms %v", stats.Peak, stats.RMS)
	}
}
