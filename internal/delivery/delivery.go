// Package delivery implements the transcript-delivery policy (§4.4):
// deciding when to type a transcribed sentence into the child CLI, queueing
// and batching transcripts that can't be delivered immediately, and
// tracking the send-mode policy (Auto vs Insert).
package delivery

import (
	"strings"
	"time"
)

// Source identifies which voice pipeline produced a transcript.
type Source int

const (
	SourceNative Source = iota
	SourcePython
)

// Label returns the human-readable pipeline label used in status text.
func (s Source) Label() string {
	if s == SourcePython {
		return "Python pipeline"
	}
	return "Rust pipeline"
}

// SendMode controls whether a delivered transcript is auto-submitted.
type SendMode int

const (
	ModeAuto SendMode = iota
	ModeInsert
)

const maxQueueDepth = 5

// PendingTranscript is one queued transcript awaiting delivery.
type PendingTranscript struct {
	Text   string
	Source Source
	Mode   SendMode
}

// Batch is the result of merging contiguous same-mode queued entries.
type Batch struct {
	Text  string
	Label string
	Mode  SendMode
}

// Queue is the bounded, oldest-drop FIFO of pending transcripts.
type Queue struct {
	items   []PendingTranscript
	dropped bool
}

// Push appends an entry, dropping the oldest if the queue is already at
// capacity. Returns true if an entry was dropped.
func (q *Queue) Push(pt PendingTranscript) bool {
	q.items = append(q.items, pt)
	if len(q.items) > maxQueueDepth {
		q.items = q.items[1:]
		return true
	}
	return false
}

// Len reports the current queue depth.
func (q *Queue) Len() int { return len(q.items) }

// Empty reports whether the queue has no entries.
func (q *Queue) Empty() bool { return len(q.items) == 0 }

// Flush pops a contiguous run of entries sharing the front entry's mode,
// skipping empty/whitespace-only entries, and merges them into a Batch.
// Reports ok=false if the queue was empty or every entry was blank (in
// which case those blank entries are still consumed).
func (q *Queue) Flush() (Batch, bool) {
	if len(q.items) == 0 {
		return Batch{}, false
	}

	mode := q.items[0].Mode
	var parts []string
	sources := map[Source]bool{}
	consumed := 0
	for _, it := range q.items {
		if it.Mode != mode {
			break
		}
		consumed++
		text := strings.TrimSpace(it.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		sources[it.Source] = true
	}
	q.items = q.items[consumed:]

	if len(parts) == 0 {
		return Batch{}, false
	}

	label := labelForSources(sources)
	return Batch{Text: strings.Join(parts, " "), Label: label, Mode: mode}, true
}

func labelForSources(sources map[Source]bool) string {
	if len(sources) == 1 {
		for s := range sources {
			return s.Label()
		}
	}
	return "Mixed pipelines"
}

// SendResult describes the outcome of attempting to deliver text directly.
type SendResult struct {
	Sent     bool
	Text     string
	AppendEnter bool
}

// SendTranscript trims text and reports what should be written to the PTY.
// Auto mode appends a submit key (0x0d, represented here as AppendEnter);
// Insert mode leaves the text for the user to submit themselves.
func SendTranscript(text string, mode SendMode) SendResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return SendResult{Sent: false}
	}
	return SendResult{Sent: true, Text: trimmed, AppendEnter: mode == ModeAuto}
}

// StatusFor formats the "transcript ready" status line for a just-delivered
// batch/single transcript, including the queued-remaining count per §4.4.
func StatusFor(label string, queuedRemaining int) string {
	if queuedRemaining > 0 {
		return "Transcript ready (" + label + ") • queued " + itoa(queuedRemaining)
	}
	return "Transcript ready (" + label + ")"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// QueueFullStatus is the fixed 2-second status shown on overflow drop.
const QueueFullStatus = "Transcript queue full (oldest dropped)"

// StatusTTLShort and StatusTTLSensitivity are the two fixed ephemeral
// status durations used throughout the coordinator (§4.4, §4.6).
const (
	StatusTTLShort       = 2 * time.Second
	StatusTTLSensitivity = 3 * time.Second
)
