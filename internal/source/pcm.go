package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
	"github.com/AdvaitD04/LiveandLetCode/internal/protocol"
)

// PCMConfig describes a raw interleaved PCM stream
type PCMConfig struct {
	SampleRate  int
	NumChannels int
	FrameSize   int    // frames per chunk
	Encoding    string // s16le or f32le
}

// Validate checks the PCM configuration
func (c PCMConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.NumChannels <= 0 || c.NumChannels > 255 {
		return fmt.Errorf("channel count must be between 1 and 255, got %d", c.NumChannels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame size must be positive, got %d", c.FrameSize)
	}
	if _, err := protocol.ParseFormat(c.Encoding); err != nil {
		return err
	}
	return nil
}

// PCMReader reads raw interleaved PCM, such as the output of arecord or a
// FIFO, and delivers it in FrameSize chunks
type PCMReader struct {
	cfg    PCMConfig
	format uint8
	name   string
	r      io.Reader

	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPCMReader wraps r. If r is an io.Closer it is closed by Close.
func NewPCMReader(name string, r io.Reader, cfg PCMConfig) (*PCMReader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pcm config: %w", err)
	}
	format, _ := protocol.ParseFormat(cfg.Encoding)

	return &PCMReader{
		cfg:    cfg,
		format: format,
		name:   name,
		r:      r,
	}, nil
}

// OpenPCMFile opens a file or named pipe as a PCM source. "-" reads stdin.
func OpenPCMFile(path string, cfg PCMConfig) (*PCMReader, error) {
	if path == "-" {
		return NewPCMReader("pcm:stdin", os.Stdin, cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcm input %s: %w", path, err)
	}

	reader, err := NewPCMReader("pcm:"+path, f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return reader, nil
}

// Name returns the source name
func (p *PCMReader) Name() string {
	return p.name
}

// Format returns the sample rate and channel count of produced chunks
func (p *PCMReader) Format() (int, int) {
	return p.cfg.SampleRate, p.cfg.NumChannels
}

// Start begins reading. The channel is closed at end of input, on a read
// error (see Err), or when ctx is cancelled. A trailing partial chunk is
// delivered; a trailing partial frame is discarded.
func (p *PCMReader) Start(ctx context.Context) (<-chan audio.Chunk, error) {
	if p.done != nil {
		return nil, fmt.Errorf("pcm reader already started")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	out := make(chan audio.Chunk)

	go p.run(ctx, out)

	return out, nil
}

func (p *PCMReader) run(ctx context.Context, out chan<- audio.Chunk) {
	defer close(p.done)
	defer close(out)

	header := &protocol.Header{
		PacketType: protocol.PacketTypeAudio,
		Channels:   uint8(p.cfg.NumChannels),
		Format:     p.format,
	}
	frameBytes := p.cfg.NumChannels * header.SampleSize()
	buf := make([]byte, p.cfg.FrameSize*frameBytes)

	for {
		n, err := io.ReadFull(p.r, buf)
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			p.setErr(fmt.Errorf("failed to read pcm input: %w", err))
			return
		}

		if frames := n / frameBytes; frames > 0 {
			header.Frames = uint32(frames)
			payload, perr := protocol.ParseAudioPayload(header, buf[:frames*frameBytes])
			if perr != nil {
				p.setErr(perr)
				return
			}

			select {
			case out <- audio.Deinterleave(payload.Samples, p.cfg.NumChannels):
			case <-ctx.Done():
				return
			}
		}

		if eof {
			return
		}
	}
}

func (p *PCMReader) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Err returns the read error that ended the stream, if any
func (p *PCMReader) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close stops reading and closes the underlying reader when possible
func (p *PCMReader) Close() error {
	var err error
	if closer, ok := p.r.(io.Closer); ok && p.r != os.Stdin {
		err = closer.Close()
	}
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return err
}
