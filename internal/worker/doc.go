// Package worker implements the capture worker: a goroutine that owns the
// sample buffer and is driven only by ordered, asynchronous messages.
package worker
