// Package inputdecoder turns raw keystroke bytes read from stdin into the
// high-level events the overlay coordinator acts on. Kitty-keyboard CSI-u
// sequences are dropped along the way; other escapes (arrow keys, alt-keys)
// are passed through to the child verbatim.
package inputdecoder

// EventKind identifies the kind of event produced by the decoder.
type EventKind int

const (
	EventBytes EventKind = iota
	EventVoiceTrigger
	EventToggleAutoVoice
	EventToggleSendMode
	EventIncreaseSensitivity
	EventDecreaseSensitivity
	EventEnterKey
	EventExit
)

// Event is one decoded unit of input. Payload is only meaningful for
// EventBytes.
type Event struct {
	Kind    EventKind
	Payload []byte
}

const maxEscapeLen = 32

// Decoder is a stateful byte-to-event translator. It must be fed
// successive read buffers via Decode; state (pending bytes, escape
// buffering, CRLF collapsing) persists across calls.
type Decoder struct {
	pending  []byte
	inEscape bool
	inCSI    bool
	escBuf   []byte
	skipLF   bool
}

// New returns a ready-to-use Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Decode consumes buf and returns the events it produced, in order.
func (d *Decoder) Decode(buf []byte) []Event {
	var events []Event
	for _, b := range buf {
		events = d.step(b, events)
	}
	events = d.flushPending(events)
	return events
}

func (d *Decoder) step(b byte, events []Event) []Event {
	if d.inEscape {
		return d.stepEscape(b, events)
	}

	if d.skipLF {
		d.skipLF = false
		if b == 0x0a {
			return events
		}
	}

	switch b {
	case 0x1b:
		events = d.flushPending(events)
		d.inEscape = true
		d.inCSI = false
		d.escBuf = append(d.escBuf[:0], b)
		return events
	case 0x11:
		return d.emitControl(EventExit, events)
	case 0x12:
		return d.emitControl(EventVoiceTrigger, events)
	case 0x16:
		return d.emitControl(EventToggleAutoVoice, events)
	case 0x14:
		return d.emitControl(EventToggleSendMode, events)
	case 0x1d:
		return d.emitControl(EventIncreaseSensitivity, events)
	case 0x1c, 0x1f:
		return d.emitControl(EventDecreaseSensitivity, events)
	case 0x0d:
		d.skipLF = true
		return d.emitControl(EventEnterKey, events)
	case 0x0a:
		return d.emitControl(EventEnterKey, events)
	default:
		d.pending = append(d.pending, b)
		return events
	}
}

// emitControl flushes any pending literal bytes, then appends the control event.
func (d *Decoder) emitControl(kind EventKind, events []Event) []Event {
	events = d.flushPending(events)
	return append(events, Event{Kind: kind})
}

func (d *Decoder) flushPending(events []Event) []Event {
	if len(d.pending) == 0 {
		return events
	}
	payload := make([]byte, len(d.pending))
	copy(payload, d.pending)
	d.pending = d.pending[:0]
	return append(events, Event{Kind: EventBytes, Payload: payload})
}

func (d *Decoder) stepEscape(b byte, events []Event) []Event {
	d.escBuf = append(d.escBuf, b)

	if len(d.escBuf) == 2 {
		if b != '[' {
			// ESC <char>: alt-key or similar, pass through verbatim.
			return d.finishEscapePassthrough(events)
		}
		d.inCSI = true
		return events
	}

	if d.inCSI && len(d.escBuf) >= 3 {
		if isCSIFinal(b) {
			return d.finishCSI(events)
		}
		if len(d.escBuf) > maxEscapeLen {
			// Overlong escape: flush as a literal to avoid getting stuck.
			return d.finishEscapePassthrough(events)
		}
		return events
	}

	// Single-byte ESC with no following '[' yet handled above; anything
	// else (shouldn't normally occur before len==2) just accumulates.
	if len(d.escBuf) > maxEscapeLen {
		return d.finishEscapePassthrough(events)
	}
	return events
}

// isCSIFinal reports whether b terminates a CSI sequence (final byte range
// 0x40-0x7e per ECMA-48).
func isCSIFinal(b byte) bool {
	return b >= 0x40 && b <= 0x7e
}

// isKittyCSIu reports whether buf (the full "ESC [ ... final" sequence,
// including the leading ESC) is a kitty-keyboard-protocol CSI-u sequence:
// ESC [ <digits/semicolons> u.
func isKittyCSIu(buf []byte) bool {
	if len(buf) < 3 || buf[len(buf)-1] != 'u' {
		return false
	}
	body := buf[2 : len(buf)-1]
	if len(body) == 0 {
		return false
	}
	for _, b := range body {
		if (b < '0' || b > '9') && b != ';' {
			return false
		}
	}
	return true
}

func (d *Decoder) finishCSI(events []Event) []Event {
	buf := d.escBuf
	d.resetEscape()
	if isKittyCSIu(buf) {
		// Dropped entirely: no event, not even a Bytes flush.
		return events
	}
	d.pending = append(d.pending, buf...)
	return events
}

func (d *Decoder) finishEscapePassthrough(events []Event) []Event {
	buf := d.escBuf
	d.resetEscape()
	d.pending = append(d.pending, buf...)
	return events
}

func (d *Decoder) resetEscape() {
	d.inEscape = false
	d.inCSI = false
	d.escBuf = nil
}
