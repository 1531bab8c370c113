// Package prompttracker observes PTY output, strips ANSI escape sequences,
// and learns/matches a "prompt" line so the overlay coordinator knows when
// the wrapped child CLI is ready to receive a new message.
package prompttracker

import (
	"regexp"
	"strings"
	"time"
)

const maxLearnableLen = 80

var promptEndings = []rune{'>', '›', '⯈', '$', '#'}

// MatchReason identifies why a prompt match was recorded, for the
// diagnostic log.
type MatchReason string

const (
	ReasonLineComplete MatchReason = "line_complete"
	ReasonIdleMatch     MatchReason = "idle_match"
	ReasonLearned       MatchReason = "prompt_learned"
)

// Tracker holds the single-owner prompt-detection state described in the
// data model: a configured regex (if any) takes precedence over a learned
// prompt string; both are advisory, never authoritative.
type Tracker struct {
	regex *regexp.Regexp

	learnedPrompt string
	hasLearned    bool

	lastPromptSeenAt time.Time
	hasPromptSeenAt  bool

	lastOutputAt  time.Time
	hasSeenOutput bool

	currentLine []byte
	lastLine    string
	hasLastLine bool

	ansi   ansiStripper
	logger *Logger
}

// New returns a Tracker. regex may be nil to rely on learning instead.
func New(regex *regexp.Regexp, logger *Logger) *Tracker {
	return &Tracker{regex: regex, logger: logger}
}

// Feed processes a raw PTY output chunk: strips ANSI, updates the current
// line buffer, and records prompt matches on completed lines.
func (t *Tracker) Feed(chunk []byte, now time.Time) {
	t.lastOutputAt = now
	t.hasSeenOutput = true

	clean := t.ansi.Strip(chunk, nil)
	for _, b := range clean {
		switch b {
		case '\n':
			t.finalizeLine(now)
		case '\r':
			t.currentLine = t.currentLine[:0]
		case '\t':
			t.currentLine = append(t.currentLine, ' ')
		default:
			if b >= 0x20 && b < 0x7f {
				t.currentLine = append(t.currentLine, b)
			}
			// Anything else (including UTF-8 continuation bytes) is
			// dropped; an accepted simplification per the design notes.
		}
	}
}

func (t *Tracker) finalizeLine(now time.Time) {
	line := strings.TrimRight(string(t.currentLine), " \t")
	t.currentLine = t.currentLine[:0]
	if line == "" {
		return
	}
	t.lastLine = line
	t.hasLastLine = true
	if t.matches(line) {
		t.recordPromptSeen(now, ReasonLineComplete, line)
	}
}

func (t *Tracker) matches(line string) bool {
	if t.regex != nil {
		return t.regex.MatchString(line)
	}
	if t.hasLearned {
		return strings.TrimRight(line, " \t") == strings.TrimRight(t.learnedPrompt, " \t")
	}
	return false
}

func (t *Tracker) recordPromptSeen(now time.Time, reason MatchReason, line string) {
	t.lastPromptSeenAt = now
	t.hasPromptSeenAt = true
	if t.logger != nil {
		t.logger.Logf("prompt_detected|reason=%s|line=%s", reason, line)
	}
}

// looksLikePrompt is the heuristic used to decide whether an idle candidate
// line is plausible enough to learn as the prompt template. Trailing blanks
// are ignored when looking for the prompt-ending character.
func looksLikePrompt(candidate string) bool {
	trimmed := strings.TrimRight(candidate, " \t")
	if trimmed == "" || len(candidate) > maxLearnableLen {
		return false
	}
	last := []rune(trimmed)
	final := last[len(last)-1]
	for _, e := range promptEndings {
		if final == e {
			return true
		}
	}
	return false
}

// OnIdle implements the idle-based learning and re-match rule: if no output
// has been seen recently, consider the current partial line (or the last
// completed line) as a prompt candidate.
func (t *Tracker) OnIdle(now time.Time, idleTimeout time.Duration) {
	if !t.hasSeenOutput || now.Sub(t.lastOutputAt) < idleTimeout {
		return
	}

	var candidate string
	if len(t.currentLine) > 0 {
		candidate = string(t.currentLine)
	} else if t.hasLastLine {
		candidate = t.lastLine
	} else {
		return
	}

	if t.regex == nil && !t.hasLearned {
		if looksLikePrompt(candidate) {
			t.learnedPrompt = candidate
			t.hasLearned = true
			t.lastPromptSeenAt = now
			t.hasPromptSeenAt = true
			if t.logger != nil {
				t.logger.Logf("prompt_learned|line=%s", candidate)
			}
		}
		return
	}

	if t.matches(candidate) {
		t.recordPromptSeen(now, ReasonIdleMatch, candidate)
	}
}

// PromptReady reports whether a prompt has been seen since lastEnterAt (or
// ever, if lastEnterAt is zero/absent).
func (t *Tracker) PromptReady(lastEnterAt time.Time, hasLastEnter bool) bool {
	if !t.hasPromptSeenAt {
		return false
	}
	if !hasLastEnter {
		return true
	}
	return t.lastPromptSeenAt.After(lastEnterAt)
}

// IdleReady reports whether the tracker has been idle for at least timeout.
func (t *Tracker) IdleReady(now time.Time, timeout time.Duration) bool {
	if !t.hasSeenOutput {
		return false
	}
	return now.Sub(t.lastOutputAt) >= timeout
}

// TranscriptReady implements the transcript-delivery readiness rule: ready
// if a prompt has been matched since the last Enter (see PromptReady), or
// (absent any prompt match so far) the tracker has simply gone idle.
func (t *Tracker) TranscriptReady(lastEnterAt time.Time, hasLastEnter bool, now time.Time, idleTimeout time.Duration) bool {
	if t.PromptReady(lastEnterAt, hasLastEnter) {
		return true
	}
	if !t.hasPromptSeenAt {
		return t.IdleReady(now, idleTimeout)
	}
	return false
}

// NoteActivity advances the idle clock without feeding actual output bytes,
// used when a voice-worker result (e.g. an empty capture) should count as
// activity for auto-voice re-arming purposes (§4.4).
func (t *Tracker) NoteActivity(now time.Time) {
	t.lastOutputAt = now
	t.hasSeenOutput = true
}

// HasSeenOutput reports whether any PTY output has ever been observed.
func (t *Tracker) HasSeenOutput() bool { return t.hasSeenOutput }

// LastOutputAt returns the last time output was observed.
func (t *Tracker) LastOutputAt() time.Time { return t.lastOutputAt }

// LastPromptSeenAt returns the last prompt-match time and whether one has
// ever occurred.
func (t *Tracker) LastPromptSeenAt() (time.Time, bool) {
	return t.lastPromptSeenAt, t.hasPromptSeenAt
}
