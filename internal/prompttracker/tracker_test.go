package prompttracker

import (
	"testing"
	"time"
)

func TestPromptLearning(t *testing.T) {
	tr := New(nil, nil)
	now := time.Now()
	tr.Feed([]byte("codex> "), now)

	tr.OnIdle(now.Add(1000*time.Millisecond), 1000*time.Millisecond)

	if !tr.hasLearned || tr.learnedPrompt != "codex> " {
		t.Fatalf("expected learned_prompt = %q, got %q (learned=%v)", "codex> ", tr.learnedPrompt, tr.hasLearned)
	}
	if _, ok := tr.LastPromptSeenAt(); !ok {
		t.Fatal("expected last_prompt_seen_at to be set")
	}
}

func TestPromptReadyMonotonicity(t *testing.T) {
	tr := New(nil, nil)
	base := time.Now()
	tr.Feed([]byte("codex> "), base)
	tr.OnIdle(base.Add(time.Second), time.Second)

	seenAt, _ := tr.LastPromptSeenAt()

	before := seenAt.Add(-time.Millisecond)
	if !tr.PromptReady(before, true) {
		t.Fatal("expected ready when last_enter_at precedes prompt-seen time")
	}
	after := seenAt.Add(time.Millisecond)
	if tr.PromptReady(after, true) {
		t.Fatal("expected not-ready when last_enter_at follows prompt-seen time")
	}
	if !tr.PromptReady(time.Time{}, false) {
		t.Fatal("expected ready when no enter has ever been sent")
	}
}

func TestStripAnsiPreservesOnlyWhitelistedControls(t *testing.T) {
	tr := New(nil, nil)
	now := time.Now()
	tr.Feed([]byte("\x1b[31mhello\x1b[0m\tworld\n"), now)
	if tr.lastLine != "hello world" {
		t.Fatalf("expected stripped line %q, got %q", "hello world", tr.lastLine)
	}
}

func TestCarriageReturnClearsCurrentLine(t *testing.T) {
	tr := New(nil, nil)
	now := time.Now()
	tr.Feed([]byte("garbage\rgood\n"), now)
	if tr.lastLine != "good" {
		t.Fatalf("expected %q, got %q", "good", tr.lastLine)
	}
}

func TestTranscriptReadyFallsBackToIdle(t *testing.T) {
	tr := New(nil, nil)
	base := time.Now()
	tr.Feed([]byte("still working\n"), base)

	if tr.TranscriptReady(time.Time{}, false, base, 250*time.Millisecond) {
		t.Fatal("expected not ready before idle timeout elapses")
	}
	later := base.Add(300 * time.Millisecond)
	if !tr.TranscriptReady(time.Time{}, false, later, 250*time.Millisecond) {
		t.Fatal("expected ready once idle timeout elapses with no prompt seen")
	}
}
