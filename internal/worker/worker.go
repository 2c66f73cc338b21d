package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

var (
	// ErrClosed is returned by Post after Close
	ErrClosed = errors.New("capture worker closed")

	// ErrQueueFull is returned by Post when a bounded mailbox is full
	ErrQueueFull = errors.New("capture worker queue full")

	// ErrNotInitialized answers buffer and export requests received before init
	ErrNotInitialized = errors.New("capture worker not initialized")
)

// Observer receives worker instrumentation. metrics.Metrics implements it.
type Observer interface {
	RecordChunkRecorded(frames, bufferedFrames int)
	RecordChunkDropped(reason string)
	SetBufferedFrames(frames int)
	SetQueueDepth(depth int)
	RecordExport(durationSeconds float64, sizeBytes int)
	RecordExportFailure()
}

// Options configures a Worker
type Options struct {
	// QueueLimit bounds the mailbox; zero means unbounded. When bounded, new
	// messages are rejected once the limit is reached.
	QueueLimit int

	// ResponseBuffer is the capacity of the response channel
	ResponseBuffer int

	Observer Observer
}

// Worker owns one SampleBuffer and processes commands strictly in arrival
// order on its own goroutine. It is reachable only through Post and answers
// only on Responses.
type Worker struct {
	logger   *slog.Logger
	opts     Options
	observer Observer

	// Mailbox
	mu      sync.Mutex
	queue   []Message
	closed  bool
	started bool
	notify  chan struct{}

	responses chan Response
	done      chan struct{}

	// Owned by the run goroutine
	buffer *audio.SampleBuffer
}

// New creates a worker. Start must be called before messages are processed.
func New(logger *slog.Logger, opts Options) *Worker {
	if opts.ResponseBuffer <= 0 {
		opts.ResponseBuffer = 4
	}

	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	return &Worker{
		logger:    logger,
		opts:      opts,
		observer:  observer,
		notify:    make(chan struct{}, 1),
		responses: make(chan Response, opts.ResponseBuffer),
		done:      make(chan struct{}),
	}
}

// Start launches the worker goroutine. It stops when ctx is cancelled or
// after Close once the mailbox is drained.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Post enqueues a message without blocking
func (w *Worker) Post(msg Message) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.opts.QueueLimit > 0 && len(w.queue) >= w.opts.QueueLimit {
		w.mu.Unlock()
		return fmt.Errorf("%w: %d messages pending", ErrQueueFull, w.opts.QueueLimit)
	}
	w.queue = append(w.queue, msg)
	depth := len(w.queue)
	w.mu.Unlock()

	w.observer.SetQueueDepth(depth)

	select {
	case w.notify <- struct{}{}:
	default:
	}

	return nil
}

// Responses returns the channel carrying getBuffer and exportWAV results.
// It is closed when the worker stops.
func (w *Worker) Responses() <-chan Response {
	return w.responses
}

// QueueDepth returns the number of messages waiting to be processed
func (w *Worker) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Close stops accepting messages and waits for the queued ones to be
// processed. Responses must be drained for Close to return.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		started := w.started
		w.mu.Unlock()
		if started {
			<-w.done
		}
		return
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	if !started {
		close(w.responses)
		close(w.done)
		return
	}

	select {
	case w.notify <- struct{}{}:
	default:
	}

	<-w.done
}

// Done is closed once the worker goroutine has exited
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// run is the worker's message loop
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.responses)

	w.logger.Debug("Capture worker started")

	for {
		msg, ok := w.next(ctx)
		if !ok {
			w.logger.Debug("Capture worker stopped")
			return
		}
		w.handle(ctx, msg)
	}
}

// next blocks until a message is available, the worker is closed with an
// empty mailbox, or ctx is cancelled
func (w *Worker) next(ctx context.Context) (Message, bool) {
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			msg := w.queue[0]
			w.queue[0] = Message{}
			w.queue = w.queue[1:]
			depth := len(w.queue)
			w.mu.Unlock()

			w.observer.SetQueueDepth(depth)
			return msg, true
		}
		closed := w.closed
		w.mu.Unlock()

		if closed {
			return Message{}, false
		}

		select {
		case <-w.notify:
		case <-ctx.Done():
			return Message{}, false
		}
	}
}

// handle applies one message to the buffer
func (w *Worker) handle(ctx context.Context, msg Message) {
	switch msg.Command {
	case CommandInit:
		w.handleInit(msg.Config)

	case CommandRecord:
		w.handleRecord(msg.Chunk)

	case CommandClear:
		if w.buffer != nil {
			w.buffer.Clear()
		}
		w.observer.SetBufferedFrames(0)

	case CommandGetBuffer:
		resp := Response{RequestID: msg.RequestID, Command: msg.Command}
		if w.buffer == nil {
			resp.Err = ErrNotInitialized
		} else {
			resp.Buffer = w.buffer.Channels()
		}
		w.reply(ctx, resp)

	case CommandExportWAV:
		w.reply(ctx, w.handleExport(msg))

	default:
		w.logger.Warn("Ignoring unknown worker command",
			slog.String("command", msg.Command.String()),
		)
	}
}

func (w *Worker) handleInit(cfg Config) {
	buffer, err := audio.NewSampleBuffer(cfg.NumChannels, cfg.SampleRate)
	if err != nil {
		w.logger.Error("Invalid capture worker configuration",
			slog.Int("sample_rate", cfg.SampleRate),
			slog.Int("channels", cfg.NumChannels),
			slog.String("error", err.Error()),
		)
		return
	}

	if w.buffer != nil {
		w.logger.Info("Capture worker reconfigured, buffer discarded",
			slog.Int("discarded_frames", w.buffer.TotalFrames()),
		)
	}

	w.buffer = buffer
	w.observer.SetBufferedFrames(0)

	w.logger.Debug("Capture worker initialized",
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("channels", cfg.NumChannels),
	)
}

func (w *Worker) handleRecord(chunk audio.Chunk) {
	if w.buffer == nil {
		w.observer.RecordChunkDropped("uninitialized")
		w.logger.Warn("Dropping chunk received before init",
			slog.Int("frames", chunk.Frames()),
		)
		return
	}

	if err := w.buffer.Append(chunk); err != nil {
		w.observer.RecordChunkDropped("invalid_chunk")
		w.logger.Warn("Rejected chunk",
			slog.Int("channels", len(chunk)),
			slog.Int("expected_channels", w.buffer.NumChannels()),
			slog.String("error", err.Error()),
		)
		return
	}

	w.observer.RecordChunkRecorded(chunk.Frames(), w.buffer.TotalFrames())
}

func (w *Worker) handleExport(msg Message) Response {
	resp := Response{RequestID: msg.RequestID, Command: msg.Command}
	if w.buffer == nil {
		resp.Err = ErrNotInitialized
		return resp
	}

	start := time.Now()
	data, err := audio.EncodeWAV(w.buffer.Channels(), w.buffer.SampleRate(), msg.Format)
	if err != nil {
		w.observer.RecordExportFailure()
		resp.Err = fmt.Errorf("failed to encode WAV: %w", err)
		return resp
	}

	resp.Blob = audio.NewBlob(data, msg.MimeType)
	w.observer.RecordExport(time.Since(start).Seconds(), len(data))

	w.logger.Debug("Exported WAV",
		slog.String("request_id", msg.RequestID),
		slog.Int("frames", w.buffer.TotalFrames()),
		slog.Int("size_bytes", len(data)),
		slog.Duration("encode_time", time.Since(start)),
	)

	return resp
}

// reply delivers a response unless the worker is being cancelled
func (w *Worker) reply(ctx context.Context, resp Response) {
	select {
	case w.responses <- resp:
	case <-ctx.Done():
	}
}

type noopObserver struct{}

func (noopObserver) RecordChunkRecorded(int, int) {}
func (noopObserver) RecordChunkDropped(string) {}
func (noopObserver) SetBufferedFrames(int) {}
func (noopObserver) SetQueueDepth(int) {}
func (noopObserver) RecordExport(float64, int) {}
func (noopObserver) RecordExportFailure() {}
