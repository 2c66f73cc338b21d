package server

import (
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"

	"github.com/AdvaitD04/LiveandLetCode/internal/config"
)

// Advertiser publishes the HTTP API over mDNS
type Advertiser struct {
	server *zeroconf.Server
	logger *slog.Logger
}

// Advertise registers the HTTP API port under the configured service name
func Advertise(cfg *config.Config, logger *slog.Logger) (*Advertiser, error) {
	d := cfg.Discovery
	txt := discoveryTXT(cfg)

	server, err := zeroconf.Register(d.Instance, d.Service, d.Domain, cfg.HTTP.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register failed: %w", err)
	}

	logger.Info("Advertising HTTP API over mDNS",
		slog.String("instance", d.Instance),
		slog.String("service", d.Service),
		slog.String("domain", d.Domain),
		slog.Int("port", cfg.HTTP.Port),
	)

	return &Advertiser{server: server, logger: logger}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
	a.logger.Info("mDNS advertisement withdrawn")
}

func discoveryTXT(cfg *config.Config) []string {
	txt := []string{
		"version=" + Version,
		"path=/",
		fmt.Sprintf("sampleRate=%d", cfg.Audio.SampleRate),
		fmt.Sprintf("channels=%d", cfg.Audio.Channels),
	}
	if cfg.Source.Type != config.SourceNone {
		txt = append(txt, "source="+cfg.Source.Type)
	}
	if cfg.Analysis.Enabled {
		txt = append(txt, "analysis=1")
	}
	return txt
}
