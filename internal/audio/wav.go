package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

const (
	// WAVHeaderSize is the size of the canonical RIFF/WAVE header
	WAVHeaderSize = 44

	bitsPerSample = 16
	formatPCM     = 1
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// ExportFormat selects the output rate and channel count of an export.
// Zero fields keep the captured value.
type ExportFormat struct {
	SampleRate  int `json:"sample_rate,omitempty"`
	NumChannels int `json:"channels,omitempty"`
}

// resolve fills zero fields from the capture parameters
func (f ExportFormat) resolve(captureRate, captureChannels int) ExportFormat {
	if f.SampleRate == 0 {
		f.SampleRate = captureRate
	}
	if f.NumChannels == 0 {
		f.NumChannels = captureChannels
	}
	return f
}

// FloatToPCM16 quantizes a float sample to signed 16-bit. Input is clamped
// to [-1, 1]; negative values scale by 32768 and the rest by 32767 so both
// ends of the range are reachable.
func FloatToPCM16(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	case v < 0:
		return int16(math.Round(v * 32768))
	default:
		return int16(math.Round(v * 32767))
	}
}

// EncodeWAV turns per-channel float samples captured at captureRate into a
// 16-bit PCM WAV file, resampling and remixing to format first
func EncodeWAV(channels [][]float32, captureRate int, format ExportFormat) ([]byte, error) {
	if captureRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", captureRate)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("channel count must be positive, got 0")
	}
	if err := Chunk(channels).validateShape(len(channels)); err != nil {
		return nil, err
	}

	format = format.resolve(captureRate, len(channels))
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("export sample rate must be positive, got %d", format.SampleRate)
	}
	if format.NumChannels <= 0 || format.NumChannels > math.MaxUint16 {
		return nil, fmt.Errorf("invalid export channel count %d", format.NumChannels)
	}

	if format.SampleRate != captureRate {
		resampled := make([][]float32, len(channels))
		for ch, samples := range channels {
			resampled[ch] = Resample(samples, captureRate, format.SampleRate)
		}
		channels = resampled
	}

	channels = Remix(channels, format.NumChannels)
	interleaved := Interleave(channels)

	samples := make([]int16, len(interleaved))
	for i, s := range interleaved {
		samples[i] = FloatToPCM16(s)
	}

	return EncodePCM16(samples, format.SampleRate, format.NumChannels)
}

// EncodePCM16 wraps interleaved PCM-16 samples in a canonical WAV header
func EncodePCM16(samples []int16, sampleRate, numChannels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if numChannels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", numChannels)
	}
	if len(samples)%numChannels != 0 {
		return nil, fmt.Errorf("sample count %d is not a multiple of %d channels", len(samples), numChannels)
	}

	dataSize := uint32(len(samples) * 2)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(numChannels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV decodes a PCM WAV file into per-channel float samples and its
// sample rate. Chunks other than fmt and data are skipped.
func DecodeWAV(data []byte) ([][]float32, int, error) {
	format, pcm, err := readWAV(data)
	if err != nil {
		return nil, 0, err
	}

	if format.AudioFormat != formatPCM {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", format.AudioFormat)
	}

	numChannels := int(format.NumChannels)
	if len(pcm) == 0 {
		return make([][]float32, numChannels), int(format.SampleRate), nil
	}

	// The decoder only ever sees the fmt and data chunks
	dec := wav.NewDecoder(bytes.NewReader(canonicalWAV(format, pcm)))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	scale := float32(int(1) << (format.BitsPerSample - 1))
	offset := 0
	if format.BitsPerSample == 8 {
		// 8-bit PCM is unsigned
		offset = 128
	}

	floats := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		floats[i] = float32(v-offset) / scale
	}

	return Deinterleave(floats, numChannels), int(format.SampleRate), nil
}

// ValidateWAV checks the canonical 44-byte layout written by EncodeWAV.
// Files from other tools may carry extra chunks; use GetWAVInfo for those.
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
}

// GetWAVInfo extracts metadata from the fmt and data chunks of a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	format, pcm, err := readWAV(data)
	if err != nil {
		return nil, err
	}

	frameBytes := uint32(format.NumChannels) * uint32(format.BitsPerSample) / 8
	numFrames := uint32(len(pcm)) / frameBytes

	return &WAVInfo{
		SampleRate:    format.SampleRate,
		Channels:      format.NumChannels,
		BitsPerSample: format.BitsPerSample,
		Duration:      float64(numFrames) / float64(format.SampleRate),
		DataSize:      uint32(len(pcm)),
		NumFrames:     numFrames,
	}, nil
}

// wavFormat is the body of a fmt chunk
type wavFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// readWAV locates and validates the fmt chunk and returns it with the
// whole frames of the data chunk
func readWAV(data []byte) (wavFormat, []byte, error) {
	var format wavFormat

	fmtBody, pcm, err := wavChunks(data)
	if err != nil {
		return format, nil, err
	}

	if len(fmtBody) < 16 {
		return format, nil, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", len(fmtBody))
	}
	if err := binary.Read(bytes.NewReader(fmtBody), binary.LittleEndian, &format); err != nil {
		return format, nil, fmt.Errorf("failed to read fmt chunk: %w", err)
	}

	if format.SampleRate == 0 {
		return format, nil, fmt.Errorf("invalid sample rate: 0")
	}

	if format.NumChannels == 0 {
		return format, nil, fmt.Errorf("invalid format: 0 channels")
	}

	switch format.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return format, nil, fmt.Errorf("unsupported bit depth: %d", format.BitsPerSample)
	}

	// Drop a trailing partial frame
	frameBytes := int(format.NumChannels) * int(format.BitsPerSample) / 8
	pcm = pcm[:len(pcm)-len(pcm)%frameBytes]

	return format, pcm, nil
}

// wavChunks walks the RIFF chunks of data and returns the fmt and data
// bodies, skipping any other chunk. A data chunk that claims more bytes than
// the file holds is cut to what is present.
func wavChunks(data []byte) (fmtBody, pcm []byte, err error) {
	if len(data) < 12 {
		return nil, nil, fmt.Errorf("WAV data too short: got %d bytes", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return nil, nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return nil, nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := uint64(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := data[pos+8:]

		if size <= uint64(len(body)) {
			body = body[:size]
		} else if id != "data" {
			return nil, nil, fmt.Errorf("invalid WAV file: %q chunk is truncated", id)
		}

		switch id {
		case "fmt ":
			fmtBody = body
		case "data":
			if fmtBody == nil {
				return nil, nil, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			return fmtBody, body, nil
		}

		// Chunks are word aligned
		pos += 8 + int(size) + int(size%2)
	}

	if fmtBody == nil {
		return nil, nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	return nil, nil, fmt.Errorf("invalid WAV file: missing data chunk")
}

// canonicalWAV rebuilds a file holding only the fmt and data chunks
func canonicalWAV(format wavFormat, pcm []byte) []byte {
	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   format.AudioFormat,
		NumChannels:   format.NumChannels,
		SampleRate:    format.SampleRate,
		ByteRate:      format.ByteRate,
		BlockAlign:    format.BlockAlign,
		BitsPerSample: format.BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(pcm)))
	binary.Write(buf, binary.LittleEndian, header)
	buf.Write(pcm)
	return buf.Bytes()
}
