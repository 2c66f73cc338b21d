package worker

import (
	"fmt"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

// Command identifies the operation a Message asks the worker to perform
type Command int

const (
	CommandInit Command = iota + 1
	CommandRecord
	CommandClear
	CommandGetBuffer
	CommandExportWAV
)

func (c Command) String() string {
	switch c {
	case CommandInit:
		return "init"
	case CommandRecord:
		return "record"
	case CommandClear:
		return "clear"
	case CommandGetBuffer:
		return "getBuffer"
	case CommandExportWAV:
		return "exportWAV"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Config is the payload of an init command
type Config struct {
	SampleRate  int
	NumChannels int
}

// Message is a command sent to the worker. Only the fields relevant to
// Command are read.
type Message struct {
	Command   Command
	RequestID string

	Config   Config             // init
	Chunk    audio.Chunk        // record
	MimeType string             // exportWAV
	Format   audio.ExportFormat // exportWAV
}

// Response answers a getBuffer or exportWAV message. RequestID echoes the
// message it answers.
type Response struct {
	RequestID string
	Command   Command

	Buffer [][]float32 // getBuffer
	Blob   *audio.Blob // exportWAV
	Err    error
}
