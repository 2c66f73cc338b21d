// Command fakeanalysis is a stand-in for the analysis service used during
// development. It accepts the same uploads and answers with a fixed neutral
// sentiment and a transcription describing the received audio.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AdvaitD04/LiveandLetCode/internal/analysis"
	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
	"github.com/AdvaitD04/LiveandLetCode/internal/vad"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.Handle("/analyze", newHandler(logger, *delay))

	logger.Info("Fake analysis service listening",
		slog.String("address", *addr),
		slog.String("endpoint", "/analyze"),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newHandler(logger *slog.Logger, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		file, header, err := r.FormFile(analysis.FormField)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
			return
		}
		defer file.Close()

		if !strings.EqualFold(filepath.Ext(header.Filename), ".wav") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid file format. Please upload a WAV file."})
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Error reading audio file", http.StatusInternalServerError)
			return
		}

		channels, sampleRate, err := audio.DecodeWAV(data)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid file format. Please upload a valid WAV file."})
			return
		}

		stats := audio.StatsOf(channels, sampleRate)
		detector, err := vad.ForRate(sampleRate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid file format. Please upload a valid WAV file."})
			return
		}
		voice := detector.AnalyzeChannels(channels)
		logger.Info("Analysis request received",
			slog.String("filename", header.Filename),
			slog.Int("size_bytes", len(data)),
			slog.Int("sample_rate", sampleRate),
			slog.Int("channels", stats.Channels),
			slog.Float64("duration", stats.Duration),
			slog.Float64("voice_seconds", voice.VoiceSeconds),
		)

		time.Sleep(delay)

		writeJSON(w, http.StatusOK, analysis.Result{
			Transcription: describe(stats, voice),
			SentimentAnalysis: analysis.Sentiment{
				SentimentScore:   map[string]float64{"neg": 0, "neu": 1, "pos": 0, "compound": 0},
				Polarity:         0,
				OverallSentiment: "Neutral",
			},
		})
	}
}

// describe stands in for speech recognition
func describe(stats audio.BufferStats, voice vad.Summary) string {
	if len(voice.Segments) == 0 {
		return "Could not understand audio"
	}
	return fmt.Sprintf("%.2f seconds of audio on %d channels, %d voiced segments",
		stats.Duration, stats.Channels, len(voice.Segments))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
