package voice

import (
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func TestSensitivityClamp(t *testing.T) {
	m := NewManager(nil, nil, nil, false, -40)
	if got := m.AdjustSensitivity(math.Inf(1)); got != vadMaxDB {
		t.Fatalf("expected clamp to %v, got %v", vadMaxDB, got)
	}
	if got := m.AdjustSensitivity(math.Inf(-1)); got != vadMinDB {
		t.Fatalf("expected clamp to %v, got %v", vadMinDB, got)
	}
}

type fakeRecorder struct{ pcm []int16 }

func (f *fakeRecorder) Capture(stop *atomic.Bool) ([]int16, error) { return f.pcm, nil }

type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) Transcribe(pcm []int16) (string, error) { return f.text, nil }

func TestCancelledCaptureIsSilent(t *testing.T) {
	rf := func() (Recorder, error) { return &fakeRecorder{pcm: []int16{1, 2, 3}}, nil }
	tf := func() (Transcriber, error) { return &fakeTranscriber{text: "hello"}, nil }
	m := NewManager(rf, tf, nil, false, -40)

	if _, started, err := m.StartCapture(TriggerManual); err != nil || !started {
		t.Fatalf("expected capture to start, err=%v started=%v", err, started)
	}

	if !m.CancelCapture() {
		t.Fatal("expected an active job to cancel")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if msg := m.PollMessage(); msg != nil {
			t.Fatalf("expected cancelled capture to yield no message, got %+v", msg)
		}
		if m.IsIdle() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("manager never returned to idle after cancelled capture")
}

func TestSecondStartCaptureWhileActiveReturnsFalse(t *testing.T) {
	rf := func() (Recorder, error) { return &fakeRecorder{pcm: []int16{1}}, nil }
	tf := func() (Transcriber, error) { return &fakeTranscriber{text: "hi"}, nil }
	m := NewManager(rf, tf, nil, false, -40)

	if _, started, _ := m.StartCapture(TriggerManual); !started {
		t.Fatal("expected first capture to start")
	}
	if _, started, _ := m.StartCapture(TriggerManual); started {
		t.Fatal("expected second concurrent capture to be refused")
	}
}
