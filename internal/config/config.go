package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source types
const (
	SourceNone      = "none"
	SourceGenerator = "generator"
	SourcePCM       = "pcm"
	SourceUDP       = "udp"
)

// Config represents the complete service configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Audio     AudioConfig     `yaml:"audio"`
	Source    SourceConfig    `yaml:"source"`
	Download  DownloadConfig  `yaml:"download"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port          int    `yaml:"port"`
	Address       string `yaml:"address"`
	Enabled       bool   `yaml:"enabled"`
	MaxUploadSize int64  `yaml:"max_upload_size"` // bytes
}

// AudioConfig contains the capture session parameters
type AudioConfig struct {
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
	MimeType         string `yaml:"mime_type"`
	ExportSampleRate int    `yaml:"export_sample_rate"` // 0 keeps sample_rate
	ExportChannels   int    `yaml:"export_channels"`    // 0 keeps channels
	QueueLimit       int    `yaml:"queue_limit"`        // 0 is unbounded
	AutoStart        bool   `yaml:"auto_start"`
}

// SourceConfig selects and configures the audio source
type SourceConfig struct {
	Type      string          `yaml:"type"`
	FrameSize int             `yaml:"frame_size"` // frames per chunk
	Generator GeneratorConfig `yaml:"generator"`
	PCM       PCMConfig       `yaml:"pcm"`
	UDP       UDPConfig       `yaml:"udp"`
}

// GeneratorConfig contains synthetic source parameters
type GeneratorConfig struct {
	Waveform  string  `yaml:"waveform"`
	Frequency float64 `yaml:"frequency"`
	Amplitude float64 `yaml:"amplitude"`
}

// PCMConfig contains raw PCM input parameters
type PCMConfig struct {
	Path     string `yaml:"path"` // file, FIFO or "-" for stdin
	Encoding string `yaml:"encoding"`
}

// UDPConfig contains UDP packet source configuration
type UDPConfig struct {
	Port        int    `yaml:"port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	QueueSize   int    `yaml:"queue_size"`
}

// DownloadConfig contains save-as configuration
type DownloadConfig struct {
	Directory string `yaml:"directory"`
	Filename  string `yaml:"filename"`
}

// AnalysisConfig contains analysis service configuration
type AnalysisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// DiscoveryConfig contains mDNS advertisement configuration
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
	Domain   string `yaml:"domain"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used for fields a file leaves unset
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:          8080,
			Address:       "0.0.0.0",
			Enabled:       true,
			MaxUploadSize: 32 << 20,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   2,
			MimeType:   "audio/wav",
		},
		Source: SourceConfig{
			Type:      SourceNone,
			FrameSize: 4096,
			Generator: GeneratorConfig{
				Waveform:  "sine",
				Frequency: 440,
				Amplitude: 0.5,
			},
			PCM: PCMConfig{
				Path:     "-",
				Encoding: "s16le",
			},
			UDP: UDPConfig{
				Port:        4444,
				BindAddress: "0.0.0.0",
				BufferSize:  65536,
				QueueSize:   1000,
			},
		},
		Download: DownloadConfig{
			Directory: "./recordings",
			Filename:  "output.wav",
		},
		Analysis: AnalysisConfig{
			Endpoint:      "http://127.0.0.1:5000/analyze",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 4,
		},
		Discovery: DiscoveryConfig{
			Instance: "wavcap",
			Service:  "_wavcap._tcp",
			Domain:   "local.",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file on top of Default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}

	if err := c.Download.Validate(); err != nil {
		return fmt.Errorf("download config: %w", err)
	}

	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}

	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if c.Discovery.Enabled && !c.HTTP.Enabled {
		return fmt.Errorf("discovery requires the http server to be enabled")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}

		if h.MaxUploadSize < 1024 {
			return fmt.Errorf("max_upload_size must be at least 1024 bytes, got %d", h.MaxUploadSize)
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 255 {
		return fmt.Errorf("channels must be between 1 and 255, got %d", a.Channels)
	}

	if !strings.HasPrefix(a.MimeType, "audio/") {
		return fmt.Errorf("mime_type must be an audio type, got '%s'", a.MimeType)
	}

	if a.ExportSampleRate != 0 && (a.ExportSampleRate < 8000 || a.ExportSampleRate > 192000) {
		return fmt.Errorf("export_sample_rate must be 0 or between 8000 and 192000 Hz, got %d", a.ExportSampleRate)
	}

	if a.ExportChannels < 0 || a.ExportChannels > 255 {
		return fmt.Errorf("export_channels must be between 0 and 255, got %d", a.ExportChannels)
	}

	if a.QueueLimit < 0 {
		return fmt.Errorf("queue_limit cannot be negative, got %d", a.QueueLimit)
	}

	return nil
}

// Validate validates source configuration
func (s *SourceConfig) Validate() error {
	switch s.Type {
	case SourceNone:
		return nil
	case SourceGenerator, SourcePCM, SourceUDP:
	default:
		return fmt.Errorf("type must be one of [none, generator, pcm, udp], got '%s'", s.Type)
	}

	if s.FrameSize < 1 {
		return fmt.Errorf("frame_size must be at least 1, got %d", s.FrameSize)
	}

	switch s.Type {
	case SourceGenerator:
		g := s.Generator
		if g.Waveform != "sine" && g.Waveform != "silence" {
			return fmt.Errorf("generator waveform must be 'sine' or 'silence', got '%s'", g.Waveform)
		}
		if g.Frequency <= 0 {
			return fmt.Errorf("generator frequency must be positive, got %f", g.Frequency)
		}
		if g.Amplitude < 0 || g.Amplitude > 1 {
			return fmt.Errorf("generator amplitude must be between 0 and 1, got %f", g.Amplitude)
		}

	case SourcePCM:
		if s.PCM.Path == "" {
			return fmt.Errorf("pcm path cannot be empty")
		}
		if s.PCM.Encoding != "s16le" && s.PCM.Encoding != "f32le" {
			return fmt.Errorf("pcm encoding must be 's16le' or 'f32le', got '%s'", s.PCM.Encoding)
		}

	case SourceUDP:
		u := s.UDP
		if u.Port < 1 || u.Port > 65535 {
			return fmt.Errorf("udp port must be between 1 and 65535, got %d", u.Port)
		}
		if u.BindAddress == "" {
			return fmt.Errorf("udp bind_address cannot be empty")
		}
		if u.BufferSize < 1024 {
			return fmt.Errorf("udp buffer_size must be at least 1024 bytes, got %d", u.BufferSize)
		}
		if u.QueueSize < 1 {
			return fmt.Errorf("udp queue_size must be at least 1, got %d", u.QueueSize)
		}
	}

	return nil
}

// Validate validates download configuration
func (d *DownloadConfig) Validate() error {
	if d.Directory == "" {
		return fmt.Errorf("directory cannot be empty")
	}

	if strings.ContainsAny(d.Filename, `/\`) {
		return fmt.Errorf("filename must be a base name, got '%s'", d.Filename)
	}

	return nil
}

// Validate validates analysis configuration
func (a *AnalysisConfig) Validate() error {
	if !a.Enabled {
		return nil
	}

	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", a.MaxRetries)
	}

	if a.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", a.MaxConcurrent)
	}

	return nil
}

// Validate validates discovery configuration
func (d *DiscoveryConfig) Validate() error {
	if !d.Enabled {
		return nil
	}

	if d.Instance == "" {
		return fmt.Errorf("instance cannot be empty")
	}

	if !strings.HasPrefix(d.Service, "_") || !strings.HasSuffix(d.Service, "._tcp") {
		return fmt.Errorf("service must look like '_name._tcp', got '%s'", d.Service)
	}

	if d.Domain == "" {
		return fmt.Errorf("domain cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path

	return nil
}

// GetTimeoutDuration returns the analysis timeout as a time.Duration
func (a *AnalysisConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetChunkDuration returns the audio period of one source chunk
func (c *Config) GetChunkDuration() time.Duration {
	return time.Duration(float64(c.Source.FrameSize) / float64(c.Audio.SampleRate) * float64(time.Second))
}

// ListenAddress returns the HTTP listen address
func (h *HTTPConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}
