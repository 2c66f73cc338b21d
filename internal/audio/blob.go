package audio

import (
	"bytes"
	"io"
)

// DefaultMimeType is used when an export does not name one
const DefaultMimeType = "audio/wav"

// Blob is an encoded audio file. It is never mutated after creation.
type Blob struct {
	data     []byte
	mimeType string
}

// NewBlob wraps data, which the blob takes ownership of
func NewBlob(data []byte, mimeType string) *Blob {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return &Blob{data: data, mimeType: mimeType}
}

// Bytes returns a copy of the encoded data
func (b *Blob) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Size returns the encoded size in bytes
func (b *Blob) Size() int {
	return len(b.data)
}

// MimeType returns the MIME type the blob was exported with
func (b *Blob) MimeType() string {
	return b.mimeType
}

// Reader returns a reader over the encoded data
func (b *Blob) Reader() io.ReadSeeker {
	return bytes.NewReader(b.data)
}

// WriteTo writes the encoded data to w
func (b *Blob) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.data)
	return int64(n), err
}
