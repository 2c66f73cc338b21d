package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AdvaitD04/LiveandLetCode/internal/analysis"
	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

type analyzeOptions struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	maxRetries int
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Send a WAV file to the analysis service",
		Long: `Upload a WAV file to the analysis service and print the transcription
and sentiment it returns as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "http://127.0.0.1:5000/analyze", "Analysis service URL")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", os.Getenv("WAVCAP_API_KEY"), "Bearer token for the analysis service")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-request timeout")
	cmd.Flags().IntVar(&opts.maxRetries, "retries", 3, "Retries on server and network errors")

	return cmd
}

func runAnalyze(ctx context.Context, opts analyzeOptions, path string, stdout io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Reject files the service would refuse before uploading them
	if _, _, err := audio.DecodeWAV(data); err != nil {
		return fmt.Errorf("%s is not a valid WAV file: %w", path, err)
	}

	client, err := analysis.NewClient(analysis.Config{
		Endpoint:      opts.endpoint,
		APIKey:        opts.apiKey,
		Timeout:       opts.timeout,
		MaxRetries:    opts.maxRetries,
		MaxConcurrent: 1,
	}, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.AnalyzeBlob(ctx, audio.NewBlob(data, audio.DefaultMimeType), filepath.Base(path))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
