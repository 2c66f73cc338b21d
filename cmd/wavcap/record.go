package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
	"github.com/AdvaitD04/LiveandLetCode/internal/download"
	"github.com/AdvaitD04/LiveandLetCode/internal/recorder"
	"github.com/AdvaitD04/LiveandLetCode/internal/source"
)

// inputFlags describe where audio comes from, shared by record and send
type inputFlags struct {
	input     string
	rate      int
	channels  int
	encoding  string
	frameSize int

	// tone generates a sine of this many seconds instead of reading input
	tone      float64
	frequency float64
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "-", "Raw interleaved PCM file or FIFO, - for stdin")
	cmd.Flags().IntVarP(&f.rate, "rate", "r", 44100, "Input sample rate in Hz")
	cmd.Flags().IntVarP(&f.channels, "channels", "c", 2, "Input channel count")
	cmd.Flags().StringVarP(&f.encoding, "encoding", "e", "s16le", "Input sample encoding (s16le or f32le)")
	cmd.Flags().IntVar(&f.frameSize, "frame-size", 4096, "Frames per chunk")
	cmd.Flags().Float64Var(&f.tone, "tone", 0, "Generate a sine tone of this many seconds instead of reading input")
	cmd.Flags().Float64Var(&f.frequency, "frequency", 440, "Tone frequency in Hz")
}

// open returns the configured source. stdin replaces os.Stdin for "-".
func (f *inputFlags) open(stdin io.Reader) (recorder.Source, error) {
	if f.tone > 0 {
		if f.frameSize <= 0 {
			return nil, fmt.Errorf("frame size must be positive, got %d", f.frameSize)
		}
		frames := int(f.tone * float64(f.rate))
		chunks := (frames + f.frameSize - 1) / f.frameSize
		return source.NewGenerator(source.GeneratorConfig{
			SampleRate:  f.rate,
			NumChannels: f.channels,
			FrameSize:   f.frameSize,
			Waveform:    source.WaveformSine,
			Frequency:   f.frequency,
			Amplitude:   0.5,
			Chunks:      chunks,
		})
	}

	cfg := source.PCMConfig{
		SampleRate:  f.rate,
		NumChannels: f.channels,
		FrameSize:   f.frameSize,
		Encoding:    f.encoding,
	}
	if f.input == "-" {
		return source.NewPCMReader("pcm:stdin", stdin, cfg)
	}
	return source.OpenPCMFile(f.input, cfg)
}

type recordOptions struct {
	inputFlags

	output         string
	dir            string
	mimeType       string
	exportRate     int
	exportChannels int
}

func newRecordCmd() *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record raw PCM into a WAV file",
		Long: `Record interleaved PCM from a file, FIFO or stdin until end of input,
then write the recording as a 16-bit WAV file.

Example:
  arecord -f S16_LE -r 44100 -c 2 -t raw | wavcap record -o take.wav`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", download.DefaultFilename, "Output file name")
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", ".", "Output directory")
	cmd.Flags().StringVar(&opts.mimeType, "mime-type", audio.DefaultMimeType, "MIME type label of the export")
	cmd.Flags().IntVar(&opts.exportRate, "export-rate", 0, "Export sample rate, 0 keeps the input rate")
	cmd.Flags().IntVar(&opts.exportChannels, "export-channels", 0, "Export channel count, 0 keeps the input channels")

	return cmd
}

func runRecord(ctx context.Context, opts recordOptions, stdin io.Reader, stdout io.Writer) error {
	logger := slog.Default()

	src, err := opts.open(stdin)
	if err != nil {
		return err
	}

	rec, err := recorder.New(logger, recorder.Config{
		SampleRate:  opts.rate,
		NumChannels: opts.channels,
		MimeType:    opts.mimeType,
		Format: audio.ExportFormat{
			SampleRate:  opts.exportRate,
			NumChannels: opts.exportChannels,
		},
	}, nil)
	if err != nil {
		return err
	}
	defer rec.Close()

	start := time.Now()
	rec.Record()
	if err := rec.Run(ctx, src); err != nil {
		return err
	}
	rec.Stop()

	if pcm, ok := src.(*source.PCMReader); ok && pcm.Err() != nil {
		return pcm.Err()
	}

	// Interrupting the capture still writes what was recorded
	exportCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	blob, err := rec.Export(exportCtx, "", audio.ExportFormat{})
	if err != nil {
		return fmt.Errorf("failed to export recording: %w", err)
	}

	path, err := download.New(opts.dir, logger, nil).Save(blob, opts.output)
	if err != nil {
		return err
	}

	info, err := audio.GetWAVInfo(blob.Bytes())
	if err != nil {
		return err
	}

	printf(stdout, "Wrote %s: %d frames, %d Hz, %d channels, %.2fs (captured in %s)\n",
		path, info.NumFrames, info.SampleRate, info.Channels, info.Duration, time.Since(start).Round(time.Millisecond))
	return nil
}
