// Package recorder bridges a live audio source to the capture worker. It
// forwards chunks only while recording and correlates buffer and export
// results with a single pending request slot.
package recorder
