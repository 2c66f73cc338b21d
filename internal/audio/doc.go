// Package audio holds the capture-side sample buffer and the WAV codec.
// It accumulates per-channel float PCM chunks and encodes them into
// 16-bit PCM WAV files, with optional resampling and channel remixing.
package audio
