package download

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

type countingObserver struct {
	ok, failed int
}

func (o *countingObserver) RecordDownload(ok bool) {
	if ok {
		o.ok++
	} else {
		o.failed++
	}
}

func testBlob(t *testing.T) *audio.Blob {
	t.Helper()

	data, err := audio.EncodeWAV([][]float32{{0, 0.5, -0.5}}, 8000, audio.ExportFormat{})
	require.NoError(t, err)
	return audio.NewBlob(data, "")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultFilename},
		{"   ", DefaultFilename},
		{"take1.wav", "take1.wav"},
		{"../../etc/passwd", "passwd"},
		{"/abs/path/clip.wav", "clip.wav"},
		{`C:\Users\me\clip.wav`, "clip.wav"},
		{"..", DefaultFilename},
		{"dir/", "dir"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestForceDownloadWritesBlob(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	obs := &countingObserver{}
	d := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)), obs)
	blob := testBlob(t)

	d.ForceDownload(blob, "")

	data, err := os.ReadFile(filepath.Join(dir, DefaultFilename))
	require.NoError(t, err)
	assert.Equal(t, blob.Bytes(), data)
	assert.Equal(t, 1, obs.ok)
}

func TestSaveReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	d := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "take.wav"), []byte("stale"), 0o644))

	path, err := d.Save(testBlob(t), "nested/../take.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "take.wav"), path)

	require.NoError(t, audio.ValidateWAV(mustRead(t, path)))
}

func TestForceDownloadSwallowsErrors(t *testing.T) {
	// A regular file where the directory should be
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	obs := &countingObserver{}
	d := New(blocker, slog.New(slog.NewTextHandler(io.Discard, nil)), obs)

	assert.NotPanics(t, func() { d.ForceDownload(testBlob(t), "x.wav") })
	assert.NotPanics(t, func() { d.ForceDownload(nil, "x.wav") })
	assert.Equal(t, 2, obs.failed)
}

func TestAttach(t *testing.T) {
	blob := testBlob(t)
	rec := httptest.NewRecorder()

	require.NoError(t, Attach(rec, blob, "../my take.wav"))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="my take.wav"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, blob.Bytes(), rec.Body.Bytes())
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
