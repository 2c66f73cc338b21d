// Package vad provides energy-based voice activity detection over recorded
// samples. It classifies fixed windows by RMS level with light smoothing and
// reports the voiced segments of a recording.
package vad
