// Package server implements the HTTP API of the capture service: recording
// control, WAV export and download, analysis uploads, WebSocket chunk ingest
// and monitoring endpoints. The API can be advertised over mDNS.
package server
