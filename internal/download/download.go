package download

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

// DefaultFilename is used when a download does not name a file
const DefaultFilename = "output.wav"

// Observer receives download instrumentation. metrics.Metrics implements it.
type Observer interface {
	RecordDownload(ok bool)
}

// Downloader saves encoded blobs as files. It holds no per-download state.
type Downloader struct {
	dir      string
	logger   *slog.Logger
	observer Observer
}

// New creates a downloader writing into dir. observer may be nil.
func New(dir string, logger *slog.Logger, observer Observer) *Downloader {
	if dir == "" {
		dir = "."
	}
	return &Downloader{dir: dir, logger: logger, observer: observer}
}

// Dir returns the download directory
func (d *Downloader) Dir() string {
	return d.dir
}

// ForceDownload writes blob to the download directory under filename,
// replacing any existing file atomically. Failures are logged and counted
// but not returned.
func (d *Downloader) ForceDownload(blob *audio.Blob, filename string) {
	if _, err := d.Save(blob, filename); err != nil {
		d.logger.Error("Download failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
	}
}

// Save is ForceDownload with the written path and error reported
func (d *Downloader) Save(blob *audio.Blob, filename string) (string, error) {
	path := filepath.Join(d.dir, SanitizeFilename(filename))

	if blob == nil {
		d.record(false)
		return path, fmt.Errorf("no blob to save")
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.record(false)
		return path, fmt.Errorf("failed to create download directory %s: %w", d.dir, err)
	}

	if err := atomic.WriteFile(path, blob.Reader()); err != nil {
		d.record(false)
		return path, fmt.Errorf("failed to write %s: %w", path, err)
	}

	d.record(true)
	d.logger.Info("Saved recording",
		slog.String("path", path),
		slog.Int("size_bytes", blob.Size()),
		slog.String("mime_type", blob.MimeType()),
	)

	return path, nil
}

// Attach serves blob as a file attachment so that clients offer a save-as
func Attach(w http.ResponseWriter, blob *audio.Blob, filename string) error {
	name := SanitizeFilename(filename)

	w.Header().Set("Content-Type", blob.MimeType())
	w.Header().Set("Content-Length", strconv.Itoa(blob.Size()))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)

	if _, err := blob.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	return nil
}

// SanitizeFilename reduces filename to a bare base name, falling back to
// DefaultFilename
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return DefaultFilename
	}
	return name
}

func (d *Downloader) record(ok bool) {
	if d.observer != nil {
		d.observer.RecordDownload(ok)
	}
}
