package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

// Protocol constants
const (
	// Packet types
	PacketTypeControl = 0x01
	PacketTypeAudio   = 0x02

	// Sample formats of audio payloads
	FormatFloat32 = 0x01 // IEEE 754 float32, little-endian
	FormatInt16   = 0x02 // signed 16-bit PCM, little-endian

	// Control commands
	ControlStart = 0x01
	ControlStop  = 0x02
	ControlClear = 0x03

	// Packet structure sizes
	HeaderSize         = 12 // 1 + 1 + 1 + 1 + 4 + 4 bytes
	ControlPayloadSize = 1

	// MaxPacketSize is the largest datagram accepted over UDP
	MaxPacketSize = 65507
)

// Header represents the 12-byte packet header
// Layout: [Type:1][Channels:1][Format:1][Reserved:1][Frames:4][Sequence:4]
type Header struct {
	PacketType uint8  // 0x01=Control, 0x02=Audio
	Channels   uint8  // Channel count of the audio payload
	Format     uint8  // 0x01=float32, 0x02=int16
	Reserved   uint8  // Must be zero
	Frames     uint32 // Frames in the audio payload
	Sequence   uint32 // Packet sequence number
}

// ControlPayload represents the 1-byte control packet payload
type ControlPayload struct {
	Command uint8
}

// AudioPayload represents a decoded audio payload
// Layout: [Samples:Frames*Channels*SampleSize] interleaved frame-major
type AudioPayload struct {
	Samples []float32 // Interleaved samples normalized to [-1.0, 1.0]
}

// ParsedPacket represents a fully parsed packet
type ParsedPacket struct {
	Header  *Header
	Control *ControlPayload // Only set for control packets
	Audio   *AudioPayload   // Only set for audio packets
}

// ParseHeader parses the 12-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		Channels:   data[1],
		Format:     data[2],
		Reserved:   data[3],
		Frames:     binary.BigEndian.Uint32(data[4:8]),
		Sequence:   binary.BigEndian.Uint32(data[8:12]),
	}

	return header, nil
}

// ParseControlPayload parses the 1-byte control payload
func ParseControlPayload(data []byte) (*ControlPayload, error) {
	if len(data) != ControlPayloadSize {
		return nil, fmt.Errorf("control payload size mismatch: expected %d bytes, got %d",
			ControlPayloadSize, len(data))
	}

	if !IsValidControlCommand(data[0]) {
		return nil, fmt.Errorf("unknown control command: 0x%02x", data[0])
	}

	return &ControlPayload{Command: data[0]}, nil
}

// ParseAudioPayload decodes the interleaved samples described by header
func ParseAudioPayload(header *Header, data []byte) (*AudioPayload, error) {
	expected := header.PayloadSize()
	if len(data) != expected {
		return nil, fmt.Errorf("audio payload size mismatch: expected %d bytes, got %d", expected, len(data))
	}

	count := int(header.Frames) * int(header.Channels)
	payload := &AudioPayload{Samples: make([]float32, count)}

	switch header.Format {
	case FormatFloat32:
		for i := range payload.Samples {
			payload.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case FormatInt16:
		for i := range payload.Samples {
			payload.Samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
		}
	default:
		return nil, fmt.Errorf("unknown sample format: 0x%02x", header.Format)
	}

	return payload, nil
}

// ParsePacket parses a complete packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	// Parse header first
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	payloadData := data[HeaderSize:]

	// Validate header fields against the actual payload
	if err := ValidateHeader(header, len(payloadData)); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}

	// Parse payload based on packet type
	switch header.PacketType {
	case PacketTypeControl:
		payload, err := ParseControlPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse control payload: %w", err)
		}
		packet.Control = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(header, payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the header fields and the payload length
func ValidateHeader(header *Header, payloadLen int) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.Reserved != 0 {
		return fmt.Errorf("reserved byte must be zero, got 0x%02x", header.Reserved)
	}

	switch header.PacketType {
	case PacketTypeControl:
		if payloadLen != ControlPayloadSize {
			return fmt.Errorf("control packet payload size mismatch: expected %d, got %d",
				ControlPayloadSize, payloadLen)
		}
	case PacketTypeAudio:
		if header.Channels == 0 {
			return fmt.Errorf("audio packet has zero channels")
		}
		if !IsValidFormat(header.Format) {
			return fmt.Errorf("invalid sample format: 0x%02x", header.Format)
		}
		if expected := header.PayloadSize(); payloadLen != expected {
			return fmt.Errorf("audio packet payload size mismatch: header says %d bytes, got %d",
				expected, payloadLen)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeControl || ptype == PacketTypeAudio
}

// IsValidFormat checks if the sample format is valid
func IsValidFormat(format uint8) bool {
	return format == FormatFloat32 || format == FormatInt16
}

// IsValidControlCommand checks if the control command is valid
func IsValidControlCommand(cmd uint8) bool {
	return cmd == ControlStart || cmd == ControlStop || cmd == ControlClear
}

// SampleSize returns the byte width of one sample in the payload
func (h *Header) SampleSize() int {
	switch h.Format {
	case FormatFloat32:
		return 4
	case FormatInt16:
		return 2
	default:
		return 0
	}
}

// PayloadSize returns the audio payload length the header describes
func (h *Header) PayloadSize() int {
	return int(h.Frames) * int(h.Channels) * h.SampleSize()
}

// Chunk returns the payload as a per-channel chunk
func (p *ParsedPacket) Chunk() (audio.Chunk, error) {
	if p.Audio == nil {
		return nil, fmt.Errorf("packet carries no audio")
	}
	return audio.Deinterleave(p.Audio.Samples, int(p.Header.Channels)), nil
}

// EncodeAudioPacket builds an audio packet from a chunk
func EncodeAudioPacket(chunk audio.Chunk, format uint8, sequence uint32) ([]byte, error) {
	if len(chunk) == 0 || len(chunk) > math.MaxUint8 {
		return nil, fmt.Errorf("channel count must be between 1 and %d, got %d", math.MaxUint8, len(chunk))
	}
	if err := chunk.Validate(len(chunk)); err != nil {
		return nil, err
	}
	if !IsValidFormat(format) {
		return nil, fmt.Errorf("invalid sample format: 0x%02x", format)
	}

	header := &Header{
		PacketType: PacketTypeAudio,
		Channels:   uint8(len(chunk)),
		Format:     format,
		Frames:     uint32(chunk.Frames()),
		Sequence:   sequence,
	}

	data := make([]byte, HeaderSize+header.PayloadSize())
	putHeader(data, header)

	payload := data[HeaderSize:]
	for i, s := range audio.Interleave(chunk) {
		switch format {
		case FormatFloat32:
			binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(s))
		case FormatInt16:
			binary.LittleEndian.PutUint16(payload[i*2:], uint16(audio.FloatToPCM16(s)))
		}
	}

	return data, nil
}

// EncodeControlPacket builds a control packet
func EncodeControlPacket(command uint8, sequence uint32) ([]byte, error) {
	if !IsValidControlCommand(command) {
		return nil, fmt.Errorf("unknown control command: 0x%02x", command)
	}

	data := make([]byte, HeaderSize+ControlPayloadSize)
	putHeader(data, &Header{PacketType: PacketTypeControl, Sequence: sequence})
	data[HeaderSize] = command

	return data, nil
}

func putHeader(data []byte, h *Header) {
	data[0] = h.PacketType
	data[1] = h.Channels
	data[2] = h.Format
	data[3] = h.Reserved
	binary.BigEndian.PutUint32(data[4:8], h.Frames)
	binary.BigEndian.PutUint32(data[8:12], h.Sequence)
}

// ControlCommandName returns the name of a control command
func ControlCommandName(cmd uint8) string {
	switch cmd {
	case ControlStart:
		return "start"
	case ControlStop:
		return "stop"
	case ControlClear:
		return "clear"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", cmd)
	}
}

// ParseControlCommand maps a command name to its code
func ParseControlCommand(name string) (uint8, error) {
	switch name {
	case "start":
		return ControlStart, nil
	case "stop":
		return ControlStop, nil
	case "clear":
		return ControlClear, nil
	default:
		return 0, fmt.Errorf("unknown control command: %q", name)
	}
}

// FormatName returns the name of a sample format
func FormatName(format uint8) string {
	switch format {
	case FormatFloat32:
		return "f32le"
	case FormatInt16:
		return "s16le"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", format)
	}
}

// ParseFormat maps a sample format name to its code
func ParseFormat(name string) (uint8, error) {
	switch name {
	case "f32le":
		return FormatFloat32, nil
	case "s16le":
		return FormatInt16, nil
	default:
		return 0, fmt.Errorf("unknown sample format: %q", name)
	}
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string

	switch h.PacketType {
	case PacketTypeControl:
		packetType = "Control"
	case PacketTypeAudio:
		packetType = "Audio"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Channels:%d, Format:%s, Frames:%d, Sequence:%d}",
		packetType, h.Channels, FormatName(h.Format), h.Frames, h.Sequence)
}

// String returns a human-readable representation of the control payload
func (c *ControlPayload) String() string {
	return fmt.Sprintf("ControlPayload{Command:%s}", ControlCommandName(c.Command))
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Samples:%d}", len(a.Samples))
}
