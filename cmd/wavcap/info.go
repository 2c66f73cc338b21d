package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
	"github.com/AdvaitD04/LiveandLetCode/internal/vad"
)

func newInfoCmd() *cobra.Command {
	var asJSON, voice bool

	cmd := &cobra.Command{
		Use:   "info <file.wav>...",
		Short: "Print the header summary of WAV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := runInfo(path, asJSON, voice, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	cmd.Flags().BoolVar(&voice, "vad", false, "Decode the samples and report voiced segments")

	return cmd
}

func runInfo(path string, asJSON, voice bool, stdout io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	info, err := audio.GetWAVInfo(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var summary *vad.Summary
	if voice {
		if summary, err = detectVoice(data); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Path string `json:"path"`
			*audio.WAVInfo
			Voice *vad.Summary `json:"voice,omitempty"`
		}{path, info, summary})
	}

	printf(stdout, "%s\n", path)
	printf(stdout, "  sample rate:     %d Hz\n", info.SampleRate)
	printf(stdout, "  channels:        %d\n", info.Channels)
	printf(stdout, "  bits per sample: %d\n", info.BitsPerSample)
	printf(stdout, "  frames:          %d\n", info.NumFrames)
	printf(stdout, "  duration:        %.3fs\n", info.Duration)
	printf(stdout, "  data size:       %d bytes\n", info.DataSize)

	if summary != nil {
		printf(stdout, "  voice:           %.1f%% of %d windows\n", summary.VoicePercentage, summary.Windows)
		for _, seg := range summary.Segments {
			printf(stdout, "    %8.3fs - %8.3fs\n", seg.Start, seg.End)
		}
	}
	return nil
}

func detectVoice(data []byte) (*vad.Summary, error) {
	channels, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}

	detector, err := vad.ForRate(sampleRate)
	if err != nil {
		return nil, err
	}

	summary := detector.AnalyzeChannels(channels)
	return &summary, nil
}
