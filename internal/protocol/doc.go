// Package protocol implements the chunk packet format used by the UDP and
// WebSocket ingest paths. It handles header parsing, audio payload decoding
// to per-channel chunks, and control packets that start, stop or clear a
// recording.
package protocol
