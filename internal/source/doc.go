// Package source provides audio sources for the recorder: a synthetic
// generator, a raw PCM reader for pipes and files, and a UDP receiver for
// protocol packets.
package source
