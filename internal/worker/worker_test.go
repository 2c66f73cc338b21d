package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWorker(t *testing.T, opts Options) *Worker {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	w := New(testLogger(), opts)
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return w
}

func waitResponse(t *testing.T, w *Worker) Response {
	t.Helper()

	select {
	case resp, ok := <-w.Responses():
		require.True(t, ok, "response channel closed")
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker response")
		return Response{}
	}
}

func silentChunk(numChannels, frames int) audio.Chunk {
	chunk := make(audio.Chunk, numChannels)
	for ch := range chunk {
		chunk[ch] = make([]float32, frames)
	}
	return chunk
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "init", CommandInit.String())
	assert.Equal(t, "record", CommandRecord.String())
	assert.Equal(t, "clear", CommandClear.String())
	assert.Equal(t, "getBuffer", CommandGetBuffer.String())
	assert.Equal(t, "exportWAV", CommandExportWAV.String())
	assert.Equal(t, "unknown(42)", Command(42).String())
}

func TestRecordThenExportReflectsChunks(t *testing.T) {
	w := startWorker(t, Options{})

	require.NoError(t, w.Post(Message{Command: CommandInit, Config: Config{SampleRate: 44100, NumChannels: 1}}))
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: silentChunk(1, 4096)}))
	}
	require.NoError(t, w.Post(Message{Command: CommandExportWAV, RequestID: "export-1", MimeType: "audio/wav"}))

	resp := waitResponse(t, w)
	require.NoError(t, resp.Err)
	assert.Equal(t, "export-1", resp.RequestID)
	assert.Equal(t, CommandExportWAV, resp.Command)
	require.NotNil(t, resp.Blob)
	assert.Equal(t, "audio/wav", resp.Blob.MimeType())

	info, err := audio.GetWAVInfo(resp.Blob.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(3*4096*2), info.DataSize)
	assert.Equal(t, uint16(1), info.Channels)
	assert.Equal(t, uint32(44100), info.SampleRate)
}

func TestGetBufferReturnsCopy(t *testing.T) {
	w := startWorker(t, Options{})

	chunk := audio.Chunk{{0.1, 0.2}, {-0.1, -0.2}}
	require.NoError(t, w.Post(Message{Command: CommandInit, Config: Config{SampleRate: 8000, NumChannels: 2}}))
	require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: chunk}))
	require.NoError(t, w.Post(Message{Command: CommandGetBuffer, RequestID: "a"}))

	resp := waitResponse(t, w)
	require.NoError(t, resp.Err)
	require.Len(t, resp.Buffer, 2)
	assert.Equal(t, []float32{0.1, 0.2}, resp.Buffer[0])
	assert.Equal(t, []float32{-0.1, -0.2}, resp.Buffer[1])

	resp.Buffer[0][0] = 5
	require.NoError(t, w.Post(Message{Command: CommandGetBuffer, RequestID: "b"}))
	again := waitResponse(t, w)
	assert.Equal(t, float32(0.1), again.Buffer[0][0])
}

func TestClearEmptiesBuffer(t *testing.T) {
	w := startWorker(t, Options{})

	require.NoError(t, w.Post(Message{Command: CommandInit, Config: Config{SampleRate: 8000, NumChannels: 2}}))
	require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: silentChunk(2, 100)}))
	require.NoError(t, w.Post(Message{Command: CommandClear}))
	require.NoError(t, w.Post(Message{Command: CommandClear}))
	require.NoError(t, w.Post(Message{Command: CommandGetBuffer}))

	resp := waitResponse(t, w)
	require.NoError(t, resp.Err)
	require.Len(t, resp.Buffer, 2)
	for _, samples := range resp.Buffer {
		assert.Empty(t, samples)
	}
}

func TestRejectedChunkLeavesBufferIntact(t *testing.T) {
	obs := &recordingObserver{}
	w := startWorker(t, Options{Observer: obs})

	require.NoError(t, w.Post(Message{Command: CommandInit, Config: Config{SampleRate: 8000, NumChannels: 2}}))
	require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: silentChunk(2, 10)}))
	require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: silentChunk(1, 10)}))
	require.NoError(t, w.Post(Message{Command: CommandGetBuffer}))

	resp := waitResponse(t, w)
	require.NoError(t, resp.Err)
	assert.Len(t, resp.Buffer[0], 10)
	assert.Len(t, resp.Buffer[1], 10)
	assert.Equal(t, 1, obs.dropped("invalid_chunk"))
	assert.Equal(t, 1, obs.recordedChunks())
}

func TestRequestsBeforeInit(t *testing.T) {
	obs := &recordingObserver{}
	w := startWorker(t, Options{Observer: obs})

	require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: silentChunk(1, 10)}))
	require.NoError(t, w.Post(Message{Command: CommandGetBuffer, RequestID: "buf"}))
	require.NoError(t, w.Post(Message{Command: CommandExportWAV, RequestID: "wav"}))

	first := waitResponse(t, w)
	assert.ErrorIs(t, first.Err, ErrNotInitialized)
	assert.Equal(t, "buf", first.RequestID)

	second := waitResponse(t, w)
	assert.ErrorIs(t, second.Err, ErrNotInitialized)
	assert.Equal(t, "wav", second.RequestID)

	assert.Equal(t, 1, obs.dropped("uninitialized"))
}

func TestReinitDiscardsBuffer(t *testing.T) {
	w := startWorker(t, Options{})

	require.NoError(t, w.Post(Message{Command: CommandInit, Config: Config{SampleRate: 8000, NumChannels: 1}}))
	require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: silentChunk(1, 10)}))
	require.NoError(t, w.Post(Message{Command: CommandInit, Config: Config{SampleRate: 16000, NumChannels: 2}}))
	require.NoError(t, w.Post(Message{Command: CommandGetBuffer}))

	resp := waitResponse(t, w)
	require.NoError(t, resp.Err)
	require.Len(t, resp.Buffer, 2)
	assert.Empty(t, resp.Buffer[0])
}

func TestExportDeterministic(t *testing.T) {
	w := startWorker(t, Options{})

	chunk := audio.Chunk{{0.3, -0.7, 1.2, -1.5}}
	require.NoError(t, w.Post(Message{Command: CommandInit, Config: Config{SampleRate: 8000, NumChannels: 1}}))
	require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: chunk}))
	require.NoError(t, w.Post(Message{Command: CommandExportWAV}))
	require.NoError(t, w.Post(Message{Command: CommandExportWAV}))

	first := waitResponse(t, w)
	second := waitResponse(t, w)
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, first.Blob.Bytes(), second.Blob.Bytes())
}

func TestExportWithFormat(t *testing.T) {
	w := startWorker(t, Options{})

	require.NoError(t, w.Post(Message{Command: CommandInit, Config: Config{SampleRate: 48000, NumChannels: 2}}))
	require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: silentChunk(2, 4800)}))
	require.NoError(t, w.Post(Message{
		Command: CommandExportWAV,
		Format:  audio.ExportFormat{SampleRate: 16000, NumChannels: 1},
	}))

	resp := waitResponse(t, w)
	require.NoError(t, resp.Err)

	info, err := audio.GetWAVInfo(resp.Blob.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(16000), info.SampleRate)
	assert.Equal(t, uint16(1), info.Channels)
	assert.Equal(t, uint32(1600), info.NumFrames)
	assert.Equal(t, audio.DefaultMimeType, resp.Blob.MimeType())
}

func TestBoundedQueueRejectsNew(t *testing.T) {
	w := New(testLogger(), Options{QueueLimit: 2})

	require.NoError(t, w.Post(Message{Command: CommandClear}))
	require.NoError(t, w.Post(Message{Command: CommandClear}))
	assert.ErrorIs(t, w.Post(Message{Command: CommandClear}), ErrQueueFull)
	assert.Equal(t, 2, w.QueueDepth())

	w.Close()
}

func TestPostAfterClose(t *testing.T) {
	w := New(testLogger(), Options{})
	w.Close()

	assert.ErrorIs(t, w.Post(Message{Command: CommandClear}), ErrClosed)

	_, ok := <-w.Responses()
	assert.False(t, ok)
}

func TestCloseDrainsQueuedMessages(t *testing.T) {
	w := New(testLogger(), Options{ResponseBuffer: 1})

	require.NoError(t, w.Post(Message{Command: CommandInit, Config: Config{SampleRate: 8000, NumChannels: 1}}))
	require.NoError(t, w.Post(Message{Command: CommandRecord, Chunk: silentChunk(1, 80)}))
	require.NoError(t, w.Post(Message{Command: CommandExportWAV}))

	w.Start(context.Background())

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()

	resp := waitResponse(t, w)
	require.NoError(t, resp.Err)
	assert.Equal(t, 44+80*2, resp.Blob.Size())

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	_, ok := <-w.Responses()
	assert.False(t, ok)
}

func TestPostNeverBlocks(t *testing.T) {
	// Worker is not started, so nothing drains the mailbox
	w := New(testLogger(), Options{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			_ = w.Post(Message{Command: CommandRecord, Chunk: silentChunk(1, 1)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Post blocked")
	}
	assert.Equal(t, 10000, w.QueueDepth())
	w.Close()
}

type recordingObserver struct {
	mu       sync.Mutex
	chunks   int
	drops    map[string]int
	exports  int
	failures int
}

func (o *recordingObserver) RecordChunkRecorded(int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chunks++
}

func (o *recordingObserver) RecordChunkDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.drops == nil {
		o.drops = make(map[string]int)
	}
	o.drops[reason]++
}

func (o *recordingObserver) SetBufferedFrames(int) {}

func (o *recordingObserver) SetQueueDepth(int) {}

func (o *recordingObserver) RecordExport(float64, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exports++
}

func (o *recordingObserver) RecordExportFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures++
}

func (o *recordingObserver) dropped(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drops[reason]
}

func (o *recordingObserver) recordedChunks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chunks
}
