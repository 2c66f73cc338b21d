// Package analysis provides the HTTP client that uploads recordings to the
// remote transcription and sentiment service, with retry and concurrency
// limiting.
package analysis
