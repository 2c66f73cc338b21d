package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
	"github.com/AdvaitD04/LiveandLetCode/internal/protocol"
)

// Controller receives control and audio packets in arrival order.
// recorder.Recorder implements it.
type Controller interface {
	Record()
	Stop()
	Clear() error
	Process(chunk audio.Chunk) error
}

// UDPConfig configures the UDP packet source
type UDPConfig struct {
	BindAddress string
	Port        int // zero picks a free port
	BufferSize  int // socket read buffer and max datagram size
	QueueSize   int // packets buffered between the socket and the decoder

	SampleRate  int
	NumChannels int
}

// UDPSource receives protocol packets over UDP. With a Controller, control
// and audio packets are both applied to it from one goroutine so a stop never
// overtakes the audio sent before it, and the chunk channel only reports
// shutdown. Without one, audio packets become chunks on the channel.
type UDPSource struct {
	conn       *net.UDPConn
	config     UDPConfig
	logger     *slog.Logger
	controller Controller

	// Concurrency management
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	// Packet processing
	packetChan chan *incomingPacket

	// Statistics
	mu               sync.RWMutex
	packetsReceived  uint64
	packetsProcessed uint64
	parseErrors      uint64
	packetsDropped   uint64
	sequenceGaps     uint64
	lastSequence     uint32
	seenSequence     bool
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// Statistics represents UDP source counters
type Statistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ParseErrors      uint64 `json:"parse_errors"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	SequenceGaps     uint64 `json:"sequence_gaps"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
}

// NewUDPSource creates a UDP source. controller may be nil, in which case
// control packets are ignored.
func NewUDPSource(cfg UDPConfig, logger *slog.Logger, controller Controller) (*UDPSource, error) {
	if cfg.BufferSize < protocol.HeaderSize {
		return nil, fmt.Errorf("buffer size must be at least %d bytes, got %d", protocol.HeaderSize, cfg.BufferSize)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.SampleRate <= 0 || cfg.NumChannels <= 0 {
		return nil, fmt.Errorf("sample rate and channel count must be positive, got %d Hz, %d channels",
			cfg.SampleRate, cfg.NumChannels)
	}

	return &UDPSource{
		config:     cfg,
		logger:     logger,
		controller: controller,
		packetChan: make(chan *incomingPacket, cfg.QueueSize),
	}, nil
}

// Name returns the source name
func (s *UDPSource) Name() string {
	return "udp"
}

// Format returns the sample rate and channel count of produced chunks
func (s *UDPSource) Format() (int, int) {
	return s.config.SampleRate, s.config.NumChannels
}

// Addr returns the bound local address once started
func (s *UDPSource) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Start begins listening for packets
func (s *UDPSource) Start(ctx context.Context) (<-chan audio.Chunk, error) {
	if s.conn != nil {
		return nil, fmt.Errorf("udp source already started")
	}

	// Create UDP address
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.config.BindAddress, fmt.Sprint(s.config.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	// Create UDP connection
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	// Set buffer size
	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP source started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	ctx, s.cancel = context.WithCancel(ctx)
	out := make(chan audio.Chunk)

	// A single processor keeps chunks in arrival order
	s.wg.Add(2)
	go s.packetProcessor(ctx, out)
	go s.receiveLoop(ctx)

	return out, nil
}

// Close gracefully stops the UDP source
func (s *UDPSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel == nil {
			return
		}

		s.logger.Info("Stopping UDP source...")

		// Cancel context to signal shutdown
		s.cancel()

		// Close UDP connection to unblock the receive loop
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}

		// Wait for all goroutines to finish
		s.wg.Wait()

		stats := s.GetStatistics()
		s.logger.Info("UDP source stopped",
			slog.Uint64("packets_received", stats.PacketsReceived),
			slog.Uint64("packets_processed", stats.PacketsProcessed),
			slog.Uint64("parse_errors", stats.ParseErrors),
			slog.Uint64("packets_dropped", stats.PacketsDropped),
		)
	})
	return nil
}

// receiveLoop is the main packet receiving loop. It owns packetChan.
func (s *UDPSource) receiveLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.packetChan)

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Receive loop stopping due to context cancellation")
			return
		default:
			// Continue to receive packets
		}

		// Set read deadline to check for context cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		// Read packet
		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			// Check if this is a timeout (expected during graceful shutdown)
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue // Check context and try again
			}

			// Check if we're shutting down
			select {
			case <-ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()

		// Create packet data copy (buffer will be reused)
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		// Send to processing channel (non-blocking)
		select {
		case s.packetChan <- packet:
		default:
			s.mu.Lock()
			s.packetsDropped++
			s.mu.Unlock()

			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetProcessor decodes packets in arrival order
func (s *UDPSource) packetProcessor(ctx context.Context, out chan<- audio.Chunk) {
	defer s.wg.Done()
	defer close(out)

	s.logger.Debug("Packet processor started")

	for packet := range s.packetChan {
		chunk, ok := s.handlePacket(packet)
		if !ok {
			continue
		}

		if s.controller != nil {
			if err := s.controller.Process(chunk); err != nil {
				s.logger.Debug("Chunk not recorded", slog.String("error", err.Error()))
			}
			continue
		}

		select {
		case out <- chunk:
		case <-ctx.Done():
			// Drain so the receive loop never blocks
			for range s.packetChan {
			}
			return
		}
	}

	s.logger.Debug("Packet processor stopped")
}

// handlePacket processes a single incoming packet and returns its chunk
// when it carries audio
func (s *UDPSource) handlePacket(packet *incomingPacket) (audio.Chunk, bool) {
	parsedPacket, err := protocol.ParsePacket(packet.data)
	if err != nil {
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()

		s.logger.Error("Failed to parse packet",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("packet_size", len(packet.data)),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	s.trackSequence(parsedPacket.Header.Sequence)

	switch parsedPacket.Header.PacketType {
	case protocol.PacketTypeControl:
		s.processControlPacket(parsedPacket.Header, parsedPacket.Control, packet.remoteAddr)
		return nil, false

	case protocol.PacketTypeAudio:
		return s.processAudioPacket(parsedPacket)

	default:
		s.logger.Error("Unknown packet type",
			slog.Int("packet_type", int(parsedPacket.Header.PacketType)),
		)
		return nil, false
	}
}

// processControlPacket applies start, stop and clear commands
func (s *UDPSource) processControlPacket(header *protocol.Header, payload *protocol.ControlPayload, remoteAddr *net.UDPAddr) {
	s.mu.Lock()
	s.packetsProcessed++
	s.mu.Unlock()

	s.logger.Info("Control packet received",
		slog.String("command", protocol.ControlCommandName(payload.Command)),
		slog.Uint64("sequence", uint64(header.Sequence)),
		slog.String("remote_addr", remoteAddr.String()),
	)

	if s.controller == nil {
		return
	}

	switch payload.Command {
	case protocol.ControlStart:
		s.controller.Record()
	case protocol.ControlStop:
		s.controller.Stop()
	case protocol.ControlClear:
		if err := s.controller.Clear(); err != nil {
			s.logger.Error("Failed to clear recording", slog.String("error", err.Error()))
		}
	}
}

// processAudioPacket converts an audio packet into a chunk
func (s *UDPSource) processAudioPacket(packet *protocol.ParsedPacket) (audio.Chunk, bool) {
	if int(packet.Header.Channels) != s.config.NumChannels {
		s.mu.Lock()
		s.packetsDropped++
		s.mu.Unlock()

		s.logger.Warn("Dropping audio packet with unexpected channel count",
			slog.Uint64("sequence", uint64(packet.Header.Sequence)),
			slog.Int("channels", int(packet.Header.Channels)),
			slog.Int("expected_channels", s.config.NumChannels),
		)
		return nil, false
	}

	chunk, err := packet.Chunk()
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	s.packetsProcessed++
	s.mu.Unlock()

	s.logger.Debug("Audio packet processed",
		slog.Uint64("sequence", uint64(packet.Header.Sequence)),
		slog.Int("frames", chunk.Frames()),
	)

	return chunk, true
}

// trackSequence counts gaps in the packet sequence
func (s *UDPSource) trackSequence(sequence uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenSequence && sequence != s.lastSequence+1 {
		s.sequenceGaps++
		s.logger.Debug("Packet sequence gap",
			slog.Uint64("expected", uint64(s.lastSequence+1)),
			slog.Uint64("got", uint64(sequence)),
		)
	}
	s.lastSequence = sequence
	s.seenSequence = true
}

// GetStatistics returns current source statistics
func (s *UDPSource) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Statistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		ParseErrors:      s.parseErrors,
		PacketsDropped:   s.packetsDropped,
		SequenceGaps:     s.sequenceGaps,
		QueueSize:        uint64(len(s.packetChan)),
		QueueCapacity:    uint64(cap(s.packetChan)),
	}
}
