// Package voice implements the voice-capture lifecycle manager (§4.3): it
// owns lazily-constructed recorder/transcriber handles, starts and cancels
// capture jobs, and surfaces the single message each worker produces.
package voice

import "github.com/codex-voice/codex-voice/internal/delivery"

// MessageKind identifies the shape of a VoiceJobMessage.
type MessageKind int

const (
	MsgTranscript MessageKind = iota
	MsgEmpty
	MsgError
)

// Metrics carries optional, display-only worker statistics.
type Metrics struct {
	FramesDropped int
	HasMetrics    bool
}

// Message is the single message a voice worker produces before exiting.
type Message struct {
	Kind    MessageKind
	Text    string
	Source  delivery.Source
	Metrics Metrics
	Err     string
}

// Trigger identifies what caused a capture to start.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerAuto
)

// StartInfo is returned by StartCapture on success.
type StartInfo struct {
	PipelineLabel string
	FallbackNote  string
}
