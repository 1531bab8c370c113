package voice

import (
	"strings"
	"sync/atomic"

	"github.com/codex-voice/codex-voice/internal/delivery"
)

// job is the per-capture state shared between the coordinator thread and
// the worker goroutine: a one-shot message channel and a stop flag the
// worker polls for interruptibility.
type job struct {
	messages chan Message
	stop     atomic.Bool
}

func newJob() *job {
	return &job{messages: make(chan Message, 1)}
}

func runNativeWorker(j *job, rec Recorder, tr Transcriber, _ float64) {
	defer close(j.messages)

	pcm, err := rec.Capture(&j.stop)
	if err != nil {
		j.messages <- Message{Kind: MsgError, Err: err.Error(), Source: delivery.SourceNative}
		return
	}
	if len(pcm) == 0 {
		j.messages <- Message{Kind: MsgEmpty, Source: delivery.SourceNative}
		return
	}

	text, err := tr.Transcribe(pcm)
	if err != nil {
		j.messages <- Message{Kind: MsgError, Err: err.Error(), Source: delivery.SourceNative}
		return
	}
	if strings.TrimSpace(text) == "" {
		j.messages <- Message{Kind: MsgEmpty, Source: delivery.SourceNative}
		return
	}
	j.messages <- Message{Kind: MsgTranscript, Text: text, Source: delivery.SourceNative}
}

func runPythonWorker(j *job, fallback PythonFallback) {
	defer close(j.messages)

	text, err := fallback(&j.stop)
	if err != nil {
		j.messages <- Message{Kind: MsgError, Err: err.Error(), Source: delivery.SourcePython}
		return
	}
	if strings.TrimSpace(text) == "" {
		j.messages <- Message{Kind: MsgEmpty, Source: delivery.SourcePython}
		return
	}
	j.messages <- Message{Kind: MsgTranscript, Text: text, Source: delivery.SourcePython}
}
