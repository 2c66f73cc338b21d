package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AdvaitD04/LiveandLetCode/internal/protocol"
	"github.com/AdvaitD04/LiveandLetCode/internal/recorder"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  protocol.MaxPacketSize,
	WriteBufferSize: 4096,
}

// captureReply is sent back for every packet that was not applied
type captureReply struct {
	Sequence uint32 `json:"sequence"`
	Error    string `json:"error"`
}

// handleCapture implements GET /ws/capture. Each binary message is one
// protocol packet: audio packets are fed to the recorder as chunks and
// control packets start, stop or clear the recording. A message larger than
// protocol.MaxPacketSize closes the connection with CloseMessageTooBig.
func (h *HTTPServer) handleCapture(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(protocol.MaxPacketSize))

	session := uuid.NewString()
	logger := h.logger.With(
		slog.String("session", session),
		slog.String("remote_addr", r.RemoteAddr),
	)
	logger.Info("Capture client connected")

	var packets, rejected uint64
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				rejected++
				logger.Warn("Capture message exceeds packet limit", slog.Int("limit", protocol.MaxPacketSize))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Capture connection lost", slog.String("error", err.Error()))
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			rejected++
			conn.WriteJSON(captureReply{Error: "expected a binary packet"})
			continue
		}
		packets++

		sequence, err := h.applyPacket(data)
		if err != nil {
			rejected++
			logger.Debug("Capture packet rejected",
				slog.Uint64("sequence", uint64(sequence)),
				slog.String("error", err.Error()),
			)
			if werr := conn.WriteJSON(captureReply{Sequence: sequence, Error: err.Error()}); werr != nil {
				break
			}
		}
	}

	logger.Info("Capture client disconnected",
		slog.Uint64("packets", packets),
		slog.Uint64("rejected", rejected),
	)
}

// applyPacket parses one packet and applies it to the recorder. Audio
// arriving while idle is dropped silently.
func (h *HTTPServer) applyPacket(data []byte) (uint32, error) {
	packet, err := protocol.ParsePacket(data)
	if err != nil {
		return 0, err
	}
	sequence := packet.Header.Sequence
	rec := h.deps.Recorder

	switch packet.Header.PacketType {
	case protocol.PacketTypeControl:
		switch packet.Control.Command {
		case protocol.ControlStart:
			rec.Record()
		case protocol.ControlStop:
			rec.Stop()
		case protocol.ControlClear:
			return sequence, rec.Clear()
		}
		return sequence, nil

	default:
		chunk, err := packet.Chunk()
		if err != nil {
			return sequence, err
		}
		if err := rec.Process(chunk); err != nil && !errors.Is(err, recorder.ErrNotRecording) {
			return sequence, err
		}
		return sequence, nil
	}
}
