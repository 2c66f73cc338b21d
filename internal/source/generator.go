package source

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

// Waveforms produced by Generator
const (
	WaveformSine    = "sine"
	WaveformSilence = "silence"
)

// GeneratorConfig configures a synthetic source
type GeneratorConfig struct {
	SampleRate  int
	NumChannels int
	FrameSize   int     // frames per chunk
	Waveform    string  // sine or silence
	Frequency   float64 // Hz
	Amplitude   float64 // 0..1

	// Realtime paces chunks at the audio period; otherwise chunks are
	// produced as fast as they are consumed
	Realtime bool

	// Chunks stops the generator after this many chunks; zero is unlimited
	Chunks int
}

// Validate checks the generator configuration
func (c GeneratorConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.NumChannels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", c.NumChannels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame size must be positive, got %d", c.FrameSize)
	}
	if c.Waveform != WaveformSine && c.Waveform != WaveformSilence {
		return fmt.Errorf("waveform must be 'sine' or 'silence', got '%s'", c.Waveform)
	}
	if c.Amplitude < 0 || c.Amplitude > 1 {
		return fmt.Errorf("amplitude must be between 0 and 1, got %f", c.Amplitude)
	}
	if c.Chunks < 0 {
		return fmt.Errorf("chunks cannot be negative, got %d", c.Chunks)
	}
	return nil
}

// Generator is a synthetic audio source producing a tone or silence
type Generator struct {
	cfg    GeneratorConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGenerator creates a generator source
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}
	return &Generator{cfg: cfg}, nil
}

// Name returns the source name
func (g *Generator) Name() string {
	return "generator:" + g.cfg.Waveform
}

// Format returns the sample rate and channel count of produced chunks
func (g *Generator) Format() (int, int) {
	return g.cfg.SampleRate, g.cfg.NumChannels
}

// Start begins producing chunks. The channel is closed when the configured
// chunk count is reached, ctx is cancelled or Close is called.
func (g *Generator) Start(ctx context.Context) (<-chan audio.Chunk, error) {
	if g.done != nil {
		return nil, fmt.Errorf("generator already started")
	}

	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})
	out := make(chan audio.Chunk)

	go g.run(ctx, out)

	return out, nil
}

func (g *Generator) run(ctx context.Context, out chan<- audio.Chunk) {
	defer close(g.done)
	defer close(out)

	var tick <-chan time.Time
	if g.cfg.Realtime {
		period := time.Duration(float64(g.cfg.FrameSize) / float64(g.cfg.SampleRate) * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	var position int
	for n := 0; g.cfg.Chunks == 0 || n < g.cfg.Chunks; n++ {
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return
			}
		}

		chunk := g.chunk(position)
		position += g.cfg.FrameSize

		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
	}
}

// chunk renders FrameSize frames starting at frame position
func (g *Generator) chunk(position int) audio.Chunk {
	chunk := make(audio.Chunk, g.cfg.NumChannels)
	for ch := range chunk {
		chunk[ch] = make([]float32, g.cfg.FrameSize)
	}

	if g.cfg.Waveform == WaveformSilence {
		return chunk
	}

	step := 2 * math.Pi * g.cfg.Frequency / float64(g.cfg.SampleRate)
	for i := 0; i < g.cfg.FrameSize; i++ {
		v := float32(g.cfg.Amplitude * math.Sin(step*float64(position+i)))
		for ch := range chunk {
			chunk[ch][i] = v
		}
	}
	return chunk
}

// Close stops the generator and waits for it to exit
func (g *Generator) Close() error {
	if g.cancel == nil {
		return nil
	}
	g.cancel()
	<-g.done
	return nil
}
