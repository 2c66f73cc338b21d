package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
	"github.com/AdvaitD04/LiveandLetCode/internal/protocol"
)

// s16le encodes interleaved samples as raw little-endian PCM
func s16le(samples ...int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}

func TestRecordFromStdin(t *testing.T) {
	dir := t.TempDir()

	// 5 stereo frames plus a dangling half frame
	input := append(s16le(0, 0, 100, -100, 200, -200, 300, -300, 400, -400), 0x01)

	opts := recordOptions{
		inputFlags: inputFlags{input: "-", rate: 8000, channels: 2, encoding: "s16le", frameSize: 2},
		output:     "take.wav",
		dir:        dir,
		mimeType:   audio.DefaultMimeType,
	}

	var stdout bytes.Buffer
	require.NoError(t, runRecord(context.Background(), opts, bytes.NewReader(input), &stdout))
	assert.Contains(t, stdout.String(), "5 frames")

	data, err := os.ReadFile(filepath.Join(dir, "take.wav"))
	require.NoError(t, err)
	require.Len(t, data, audio.WAVHeaderSize+5*2*2)

	// Whole-sample values survive the float round trip exactly
	assert.Equal(t, s16le(0, 0, 100, -100, 200, -200, 300, -300, 400, -400), data[audio.WAVHeaderSize:])
}

func TestRecordTone(t *testing.T) {
	dir := t.TempDir()

	opts := recordOptions{
		inputFlags:     inputFlags{rate: 8000, channels: 1, frameSize: 1000, tone: 0.5, frequency: 440},
		output:         "tone.wav",
		dir:            dir,
		exportRate:     16000,
		exportChannels: 2,
	}

	require.NoError(t, runRecord(context.Background(), opts, nil, &bytes.Buffer{}))

	data, err := os.ReadFile(filepath.Join(dir, "tone.wav"))
	require.NoError(t, err)
	info, err := audio.GetWAVInfo(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(16000), info.SampleRate)
	assert.Equal(t, uint16(2), info.Channels)
	assert.Equal(t, uint32(8000), info.NumFrames)
}

func TestInfo(t *testing.T) {
	wav, err := audio.EncodeWAV([][]float32{make([]float32, 8000)}, 16000, audio.ExportFormat{})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "half.wav")
	require.NoError(t, os.WriteFile(path, wav, 0o644))

	var stdout bytes.Buffer
	require.NoError(t, runInfo(path, true, false, &stdout))

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &info))
	assert.Equal(t, path, info["path"])
	assert.Equal(t, float64(16000), info["sample_rate"])
	assert.Equal(t, 0.5, info["duration_seconds"])
	assert.NotContains(t, info, "voice")

	require.NoError(t, os.WriteFile(path, []byte("not a wav"), 0o644))
	assert.Error(t, runInfo(path, false, false, &stdout))
}

func TestInfoVoice(t *testing.T) {
	// 0.5s silence then 0.5s of a loud square wave at 8 kHz
	samples := make([]float32, 8000)
	for i := 4000; i < len(samples); i++ {
		samples[i] = 0.5
		if i%2 == 0 {
			samples[i] = -0.5
		}
	}
	wav, err := audio.EncodeWAV([][]float32{samples}, 8000, audio.ExportFormat{})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(path, wav, 0o644))

	var stdout bytes.Buffer
	require.NoError(t, runInfo(path, true, true, &stdout))

	var info struct {
		Voice struct {
			Segments []struct {
				Start float64 `json:"start_seconds"`
				End   float64 `json:"end_seconds"`
			} `json:"segments"`
		} `json:"voice"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &info))
	require.Len(t, info.Voice.Segments, 1)
	assert.InDelta(t, 0.5, info.Voice.Segments[0].Start, 0.03)
	assert.InDelta(t, 1.0, info.Voice.Segments[0].End, 1e-9)

	stdout.Reset()
	require.NoError(t, runInfo(path, false, true, &stdout))
	assert.Contains(t, stdout.String(), "voice:")
}

func TestAnalyze(t *testing.T) {
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("audio")
		if !assert.NoError(t, err) {
			http.Error(w, `{"error": "No file uploaded"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transcription": header.Filename,
			"sentiment_analysis": map[string]interface{}{
				"sentiment_score":   map[string]float64{"compound": 0},
				"polarity":          0,
				"overall_sentiment": "Neutral",
			},
		})
	}))
	defer service.Close()

	wav, err := audio.EncodeWAV([][]float32{{0, 0}}, 8000, audio.ExportFormat{})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, wav, 0o644))

	var stdout bytes.Buffer
	opts := analyzeOptions{endpoint: service.URL}
	require.NoError(t, runAnalyze(context.Background(), opts, path, &stdout))
	assert.Contains(t, stdout.String(), `"transcription": "clip.wav"`)
	assert.Contains(t, stdout.String(), `"overall_sentiment": "Neutral"`)

	bad := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("RIFF"), 0o644))
	assert.ErrorContains(t, runAnalyze(context.Background(), opts, bad, &stdout), "not a valid WAV file")
}

// packetRecorder collects written datagrams
type packetRecorder struct {
	packets [][]byte
}

func (p *packetRecorder) Write(b []byte) (int, error) {
	p.packets = append(p.packets, append([]byte(nil), b...))
	return len(b), nil
}

func TestSendFramesPackets(t *testing.T) {
	opts := sendOptions{
		inputFlags: inputFlags{input: "-", rate: 8000, channels: 1, encoding: "s16le", frameSize: 3},
		format:     "f32le",
		clear:      true,
	}

	var conn packetRecorder
	var stdout bytes.Buffer
	input := s16le(1, 2, 3, 4, 5)
	require.NoError(t, runSend(context.Background(), opts, bytes.NewReader(input), &conn, &stdout))

	// clear, start, two audio packets, stop
	require.Len(t, conn.packets, 5)

	var commands []uint8
	var frames int
	for i, data := range conn.packets {
		packet, err := protocol.ParsePacket(data)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), packet.Header.Sequence)

		if packet.Control != nil {
			commands = append(commands, packet.Control.Command)
			continue
		}
		assert.Equal(t, uint8(protocol.FormatFloat32), packet.Header.Format)
		frames += int(packet.Header.Frames)
	}

	assert.Equal(t, []uint8{protocol.ControlClear, protocol.ControlStart, protocol.ControlStop}, commands)
	assert.Equal(t, 5, frames)
	assert.Contains(t, stdout.String(), "Sent 5 frames in 5 packets")
}
