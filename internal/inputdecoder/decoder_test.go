package inputdecoder

import (
	"bytes"
	"testing"
)

func bytesEvents(evs []Event) [][]byte {
	var out [][]byte
	for _, e := range evs {
		if e.Kind == EventBytes {
			out = append(out, e.Payload)
		}
	}
	return out
}

func TestControlByteMappingIsTotal(t *testing.T) {
	cases := map[byte]EventKind{
		0x11: EventExit,
		0x12: EventVoiceTrigger,
		0x14: EventToggleSendMode,
		0x16: EventToggleAutoVoice,
		0x1c: EventDecreaseSensitivity,
		0x1d: EventIncreaseSensitivity,
		0x1f: EventDecreaseSensitivity,
		0x0a: EventEnterKey,
		0x0d: EventEnterKey,
	}
	for b, want := range cases {
		d := New()
		evs := d.Decode([]byte{b})
		if len(evs) != 1 || evs[0].Kind != want {
			t.Fatalf("byte %#x: expected single event %v, got %v", b, want, evs)
		}
	}
}

func TestCRLFCollapsesToOneEnter(t *testing.T) {
	d := New()
	evs := d.Decode([]byte{0x0d, 0x0a})
	if len(evs) != 1 || evs[0].Kind != EventEnterKey {
		t.Fatalf("expected exactly one EnterKey, got %v", evs)
	}
}

func TestCREnterFollowedByLiteral(t *testing.T) {
	d := New()
	evs := d.Decode([]byte{0x0d, 'x'})
	if len(evs) != 2 || evs[0].Kind != EventEnterKey || evs[1].Kind != EventBytes || string(evs[1].Payload) != "x" {
		t.Fatalf("expected [EnterKey, Bytes(x)], got %v", evs)
	}
}

func TestCSIuDrop(t *testing.T) {
	d := New()
	evs := d.Decode([]byte("a\x1b[48;0;0ub"))
	got := bytesEvents(evs)
	if len(got) != 2 || string(got[0]) != "a" || string(got[1]) != "b" {
		t.Fatalf("expected [Bytes(a), Bytes(b)], got %v", got)
	}
}

func TestCSIArrowKeyPassesThrough(t *testing.T) {
	d := New()
	evs := d.Decode([]byte("\x1b[A"))
	got := bytesEvents(evs)
	if len(got) != 1 || !bytes.Equal(got[0], []byte("\x1b[A")) {
		t.Fatalf("expected Bytes(\\x1b[A), got %v", got)
	}
}

func TestAltKeyPassesThrough(t *testing.T) {
	d := New()
	evs := d.Decode([]byte("\x1bf"))
	got := bytesEvents(evs)
	if len(got) != 1 || !bytes.Equal(got[0], []byte("\x1bf")) {
		t.Fatalf("expected Bytes(ESC f), got %v", got)
	}
}

func TestOverlongEscapeFlushesAsLiteral(t *testing.T) {
	d := New()
	buf := append([]byte{0x1b, '['}, bytes.Repeat([]byte("1"), 40)...)
	evs := d.Decode(buf)
	got := bytesEvents(evs)
	if len(got) != 1 || len(got[0]) == 0 {
		t.Fatalf("expected one literal Bytes event for overlong escape, got %v", evs)
	}
}

func TestPendingFlushesAcrossCalls(t *testing.T) {
	d := New()
	evs1 := d.Decode([]byte("ab"))
	if len(evs1) != 1 || string(evs1[0].Payload) != "ab" {
		t.Fatalf("expected Bytes(ab) in first call, got %v", evs1)
	}
	evs2 := d.Decode([]byte{0x12})
	if len(evs2) != 1 || evs2[0].Kind != EventVoiceTrigger {
		t.Fatalf("expected VoiceTrigger, got %v", evs2)
	}
}
