package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/AdvaitD04/LiveandLetCode/internal/analysis"
	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
	"github.com/AdvaitD04/LiveandLetCode/internal/config"
	"github.com/AdvaitD04/LiveandLetCode/internal/download"
	"github.com/AdvaitD04/LiveandLetCode/internal/metrics"
	"github.com/AdvaitD04/LiveandLetCode/internal/recorder"
	"github.com/AdvaitD04/LiveandLetCode/internal/server"
	"github.com/AdvaitD04/LiveandLetCode/internal/source"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", server.ServiceName),
		slog.String("version", server.Version),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.String("source", cfg.Source.Type),
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.Bool("analysis_enabled", cfg.Analysis.Enabled),
		slog.String("download_dir", cfg.Download.Directory),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	rec, err := recorder.New(logger.With(slog.String("component", "recorder")), recorder.Config{
		SampleRate:  cfg.Audio.SampleRate,
		NumChannels: cfg.Audio.Channels,
		MimeType:    cfg.Audio.MimeType,
		Format: audio.ExportFormat{
			SampleRate:  cfg.Audio.ExportSampleRate,
			NumChannels: cfg.Audio.ExportChannels,
		},
		QueueLimit: cfg.Audio.QueueLimit,
	}, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	defer rec.Close()

	if cfg.Audio.AutoStart {
		rec.Record()
	}

	downloader := download.New(cfg.Download.Directory, logger.With(slog.String("component", "download")), appMetrics)

	var analyzer *analysis.Client
	if cfg.Analysis.Enabled {
		analyzer, err = analysis.NewClient(analysis.Config{
			Endpoint:      cfg.Analysis.Endpoint,
			APIKey:        cfg.Analysis.APIKey,
			Timeout:       cfg.Analysis.GetTimeoutDuration(),
			MaxRetries:    cfg.Analysis.MaxRetries,
			MaxConcurrent: cfg.Analysis.MaxConcurrent,
		}, appMetrics)
		if err != nil {
			return fmt.Errorf("failed to create analysis client: %w", err)
		}
		defer analyzer.Close()
		logger.Info("Analysis client initialized", slog.String("endpoint", cfg.Analysis.Endpoint))
	}

	src, udpSource, err := newSource(cfg, logger, rec)
	if err != nil {
		return fmt.Errorf("failed to create audio source: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if src != nil {
		g.Go(func() error {
			return rec.Run(ctx, src)
		})
	}

	if cfg.HTTP.Enabled {
		httpServer := server.NewHTTPServer(logger.With(slog.String("component", "http")), cfg, server.Dependencies{
			Recorder:   rec,
			Downloader: downloader,
			Analyzer:   analyzer,
			UDPSource:  udpSource,
			Metrics:    appMetrics,
		})

		g.Go(httpServer.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Stop(shutdownCtx)
		})

		if cfg.Discovery.Enabled {
			advertiser, err := server.Advertise(cfg, logger)
			if err != nil {
				// The API stays reachable by address
				logger.Warn("Discovery disabled", slog.String("error", err.Error()))
			} else {
				defer advertiser.Shutdown()
			}
		}
	}

	logger.Info("Service started successfully, waiting for signals...")

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Starting graceful shutdown...")
		return nil
	})

	return g.Wait()
}

// newSource builds the configured audio source. The UDP source is also
// returned on its own so that its statistics can be served.
func newSource(cfg *config.Config, logger *slog.Logger, rec *recorder.Recorder) (recorder.Source, *source.UDPSource, error) {
	sc := cfg.Source

	switch sc.Type {
	case config.SourceGenerator:
		gen, err := source.NewGenerator(source.GeneratorConfig{
			SampleRate:  cfg.Audio.SampleRate,
			NumChannels: cfg.Audio.Channels,
			FrameSize:   sc.FrameSize,
			Waveform:    sc.Generator.Waveform,
			Frequency:   sc.Generator.Frequency,
			Amplitude:   sc.Generator.Amplitude,
			Realtime:    true,
		})
		return gen, nil, err

	case config.SourcePCM:
		pcm, err := source.OpenPCMFile(sc.PCM.Path, source.PCMConfig{
			SampleRate:  cfg.Audio.SampleRate,
			NumChannels: cfg.Audio.Channels,
			FrameSize:   sc.FrameSize,
			Encoding:    sc.PCM.Encoding,
		})
		return pcm, nil, err

	case config.SourceUDP:
		udp, err := source.NewUDPSource(source.UDPConfig{
			BindAddress: sc.UDP.BindAddress,
			Port:        sc.UDP.Port,
			BufferSize:  sc.UDP.BufferSize,
			QueueSize:   sc.UDP.QueueSize,
			SampleRate:  cfg.Audio.SampleRate,
			NumChannels: cfg.Audio.Channels,
		}, logger.With(slog.String("component", "udp")), rec)
		if err != nil {
			return nil, nil, err
		}
		return udp, udp, nil

	default:
		return nil, nil, nil
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
