package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
	"github.com/AdvaitD04/LiveandLetCode/internal/worker"
)

var (
	// ErrNotRecording is returned by Process while the recorder is idle.
	// The chunk is dropped.
	ErrNotRecording = errors.New("recorder is not recording")

	// ErrSuperseded is reported to a pending request when a later request
	// takes its slot
	ErrSuperseded = errors.New("request superseded by a later request")

	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("recorder closed")
)

// Config is the session configuration, fixed at construction
type Config struct {
	SampleRate  int
	NumChannels int

	// MimeType labels exported blobs; defaults to audio/wav
	MimeType string

	// Format is the default export format used by ExportWAV. Zero fields
	// keep the capture rate and channel count.
	Format audio.ExportFormat

	// QueueLimit bounds the worker mailbox; zero means unbounded
	QueueLimit int
}

// Validate checks the session configuration
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.NumChannels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", c.NumChannels)
	}
	if c.Format.SampleRate < 0 || c.Format.NumChannels < 0 {
		return fmt.Errorf("export format must not be negative: %+v", c.Format)
	}
	if c.QueueLimit < 0 {
		return fmt.Errorf("queue limit must not be negative, got %d", c.QueueLimit)
	}
	return nil
}

// Source produces sample chunks, one per audio period
type Source interface {
	Name() string
	Format() (sampleRate, numChannels int)
	Start(ctx context.Context) (<-chan audio.Chunk, error)
	Close() error
}

// Observer receives recorder instrumentation. metrics.Metrics implements it.
type Observer interface {
	worker.Observer
	RecordChunkReceived()
	SetRecording(recording bool)
}

// pending is the single outstanding getBuffer or exportWAV request
type pending struct {
	id       string
	command  worker.Command
	onBuffer func([][]float32)
	onBlob   func(*audio.Blob)
	onError  func(error)
}

// Recorder relays chunks from an audio source to a capture worker while
// recording, and delivers buffer and export results to callbacks.
//
// At most one request is pending at a time. Issuing a request while another
// is pending supersedes it: the earlier callback never fires and its error
// callback, if any, receives ErrSuperseded. Callbacks run on the recorder's
// dispatch goroutine and must not call Close.
type Recorder struct {
	logger   *slog.Logger
	cfg      Config
	observer Observer
	worker   *worker.Worker

	recording atomic.Bool
	closed    atomic.Bool

	mu   sync.Mutex
	slot *pending

	closeOnce    sync.Once
	cancel       context.CancelFunc
	dispatchDone chan struct{}
}

// New creates a recorder in the idle state and starts its worker
func New(logger *slog.Logger, cfg Config, observer Observer) (*Recorder, error) {
	r, err := newRecorder(logger, cfg, observer)
	if err != nil {
		return nil, err
	}
	r.start()
	return r, nil
}

// newRecorder builds the recorder and queues the worker's init message
// without starting the worker
func newRecorder(logger *slog.Logger, cfg Config, observer Observer) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recorder config: %w", err)
	}
	if cfg.MimeType == "" {
		cfg.MimeType = audio.DefaultMimeType
	}
	if observer == nil {
		observer = noopObserver{}
	}

	w := worker.New(logger.With(slog.String("component", "worker")), worker.Options{
		QueueLimit: cfg.QueueLimit,
		Observer:   observer,
	})

	err := w.Post(worker.Message{
		Command: worker.CommandInit,
		Config:  worker.Config{SampleRate: cfg.SampleRate, NumChannels: cfg.NumChannels},
	})
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to initialize capture worker: %w", err)
	}

	return &Recorder{
		logger:       logger,
		cfg:          cfg,
		observer:     observer,
		worker:       w,
		dispatchDone: make(chan struct{}),
	}, nil
}

func (r *Recorder) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.worker.Start(ctx)
	go r.dispatch()
}

// Config returns the session configuration
func (r *Recorder) Config() Config {
	return r.cfg
}

// Record starts forwarding chunks to the worker. It is a no-op while
// already recording.
func (r *Recorder) Record() {
	if r.closed.Load() || !r.recording.CompareAndSwap(false, true) {
		return
	}
	r.observer.SetRecording(true)
	r.logger.Info("Recording started")
}

// Stop stops forwarding chunks. Chunks already queued are still recorded.
// It is a no-op while idle.
func (r *Recorder) Stop() {
	if !r.recording.CompareAndSwap(true, false) {
		return
	}
	r.observer.SetRecording(false)
	r.logger.Info("Recording stopped")
}

// Recording reports whether chunks are currently forwarded
func (r *Recorder) Recording() bool {
	return r.recording.Load()
}

// QueueDepth returns the number of messages waiting in the worker mailbox
func (r *Recorder) QueueDepth() int {
	return r.worker.QueueDepth()
}

// Process is the audio-source callback. While recording it copies the chunk
// and queues it for the worker without blocking; while idle the chunk is
// dropped and ErrNotRecording is returned.
func (r *Recorder) Process(chunk audio.Chunk) error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.observer.RecordChunkReceived()

	if !r.recording.Load() {
		r.observer.RecordChunkDropped("idle")
		return ErrNotRecording
	}

	if err := chunk.Validate(r.cfg.NumChannels); err != nil {
		r.observer.RecordChunkDropped("invalid_chunk")
		r.logger.Warn("Dropping invalid chunk",
			slog.Int("channels", len(chunk)),
			slog.Int("frames", chunk.Frames()),
			slog.String("error", err.Error()),
		)
		return err
	}

	err := r.worker.Post(worker.Message{
		Command: worker.CommandRecord,
		Chunk:   cloneChunk(chunk),
	})
	if err != nil {
		if errors.Is(err, worker.ErrClosed) {
			return ErrClosed
		}
		r.observer.RecordChunkDropped("queue_full")
		return fmt.Errorf("failed to queue chunk: %w", err)
	}

	return nil
}

// Clear discards the accumulated buffer. The recording state is unchanged.
func (r *Recorder) Clear() error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.worker.Post(worker.Message{Command: worker.CommandClear}); err != nil {
		return fmt.Errorf("failed to queue clear: %w", err)
	}
	return nil
}

// GetBuffer requests the raw per-channel samples. cb is invoked once with
// the result unless a later request supersedes this one.
func (r *Recorder) GetBuffer(cb func([][]float32)) error {
	return r.request(&pending{
		command:  worker.CommandGetBuffer,
		onBuffer: cb,
	}, worker.Message{})
}

// ExportWAV requests a WAV encoding of the buffer in the configured export
// format. cb is invoked once with the blob unless a later request
// supersedes this one. An empty mimeType uses the configured one.
func (r *Recorder) ExportWAV(cb func(*audio.Blob), mimeType string) error {
	return r.exportWAV(cb, nil, mimeType, r.cfg.Format)
}

// Export encodes the buffer and waits for the blob. A zero format uses the
// configured export format.
func (r *Recorder) Export(ctx context.Context, mimeType string, format audio.ExportFormat) (*audio.Blob, error) {
	if format == (audio.ExportFormat{}) {
		format = r.cfg.Format
	}

	type result struct {
		blob *audio.Blob
		err  error
	}
	done := make(chan result, 1)

	err := r.exportWAV(
		func(blob *audio.Blob) { done <- result{blob: blob} },
		func(err error) { done <- result{err: err} },
		mimeType, format,
	)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		return res.blob, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Buffer requests the raw per-channel samples and waits for them
func (r *Recorder) Buffer(ctx context.Context) ([][]float32, error) {
	type result struct {
		buffer [][]float32
		err    error
	}
	done := make(chan result, 1)

	err := r.request(&pending{
		command:  worker.CommandGetBuffer,
		onBuffer: func(buffer [][]float32) { done <- result{buffer: buffer} },
		onError:  func(err error) { done <- result{err: err} },
	}, worker.Message{})
	if err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		return res.buffer, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Recorder) exportWAV(cb func(*audio.Blob), onError func(error), mimeType string, format audio.ExportFormat) error {
	if mimeType == "" {
		mimeType = r.cfg.MimeType
	}
	return r.request(&pending{
		command: worker.CommandExportWAV,
		onBlob:  cb,
		onError: onError,
	}, worker.Message{MimeType: mimeType, Format: format})
}

// request takes the pending slot and posts the matching worker message
func (r *Recorder) request(p *pending, msg worker.Message) error {
	if r.closed.Load() {
		return ErrClosed
	}

	p.id = uuid.NewString()
	msg.Command = p.command
	msg.RequestID = p.id

	r.mu.Lock()
	previous := r.slot
	r.slot = p
	r.mu.Unlock()

	if previous != nil {
		r.logger.Debug("Pending request superseded",
			slog.String("request_id", previous.id),
			slog.String("command", previous.command.String()),
			slog.String("superseded_by", p.id),
		)
		if previous.onError != nil {
			previous.onError(ErrSuperseded)
		}
	}

	if err := r.worker.Post(msg); err != nil {
		r.mu.Lock()
		if r.slot == p {
			r.slot = nil
		}
		r.mu.Unlock()

		if errors.Is(err, worker.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("failed to queue %s request: %w", p.command, err)
	}

	return nil
}

// dispatch delivers worker responses to the pending slot
func (r *Recorder) dispatch() {
	defer close(r.dispatchDone)

	for resp := range r.worker.Responses() {
		r.deliver(resp)
	}
}

func (r *Recorder) deliver(resp worker.Response) {
	r.mu.Lock()
	p := r.slot
	if p == nil || p.id != resp.RequestID {
		r.mu.Unlock()
		r.logger.Debug("Discarding response for superseded request",
			slog.String("request_id", resp.RequestID),
			slog.String("command", resp.Command.String()),
		)
		return
	}
	r.slot = nil
	r.mu.Unlock()

	if resp.Err != nil {
		if p.onError != nil {
			p.onError(resp.Err)
			return
		}
		r.logger.Error("Worker request failed",
			slog.String("request_id", resp.RequestID),
			slog.String("command", resp.Command.String()),
			slog.String("error", resp.Err.Error()),
		)
		return
	}

	switch resp.Command {
	case worker.CommandGetBuffer:
		if p.onBuffer != nil {
			p.onBuffer(resp.Buffer)
		}
	case worker.CommandExportWAV:
		if p.onBlob != nil {
			p.onBlob(resp.Blob)
		}
	}
}

// Run relays chunks from src into Process until the source is exhausted or
// ctx is cancelled. Chunks arriving while idle are dropped.
func (r *Recorder) Run(ctx context.Context, src Source) error {
	sampleRate, numChannels := src.Format()
	if numChannels != r.cfg.NumChannels {
		return fmt.Errorf("%w: source %s has %d channels, recorder expects %d",
			audio.ErrChannelMismatch, src.Name(), numChannels, r.cfg.NumChannels)
	}
	if sampleRate != r.cfg.SampleRate {
		return fmt.Errorf("source %s runs at %d Hz, recorder expects %d Hz",
			src.Name(), sampleRate, r.cfg.SampleRate)
	}

	chunks, err := src.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start source %s: %w", src.Name(), err)
	}
	defer src.Close()

	r.logger.Info("Audio source started",
		slog.String("source", src.Name()),
		slog.Int("sample_rate", sampleRate),
		slog.Int("channels", numChannels),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-chunks:
			if !ok {
				r.logger.Info("Audio source finished", slog.String("source", src.Name()))
				return nil
			}
			err := r.Process(chunk)
			switch {
			case err == nil, errors.Is(err, ErrNotRecording):
			case errors.Is(err, ErrClosed):
				return err
			default:
				r.logger.Debug("Chunk not recorded",
					slog.String("source", src.Name()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Close stops recording, drains the worker and releases it. A request still
// pending afterwards receives ErrClosed on its error callback.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.Stop()
		r.closed.Store(true)

		r.worker.Close()
		<-r.dispatchDone
		r.cancel()

		r.mu.Lock()
		p := r.slot
		r.slot = nil
		r.mu.Unlock()
		if p != nil && p.onError != nil {
			p.onError(ErrClosed)
		}

		r.logger.Debug("Recorder closed")
	})
}

func cloneChunk(chunk audio.Chunk) audio.Chunk {
	out := make(audio.Chunk, len(chunk))
	for ch, samples := range chunk {
		out[ch] = make([]float32, len(samples))
		copy(out[ch], samples)
	}
	return out
}

type noopObserver struct{}

func (noopObserver) RecordChunkReceived() {}
func (noopObserver) RecordChunkRecorded(int, int) {}
func (noopObserver) RecordChunkDropped(string) {}
func (noopObserver) SetBufferedFrames(int) {}
func (noopObserver) SetQueueDepth(int) {}
func (noopObserver) SetRecording(bool) {}
func (noopObserver) RecordExport(float64, int) {}
func (noopObserver) RecordExportFailure() {}
