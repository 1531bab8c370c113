package config

import (
	"os"
	"path/filepath"
	"testing"
)

func noEnv(string) string { return "" }

func TestLoadDefaults_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `prompt_regex: "codex>\\s*$"
auto_voice: true
voice_send_mode: insert
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadDefaults(path)
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	if !d.AutoVoice {
		t.Error("expected auto_voice = true")
	}
	if d.VoiceSendMode != "insert" {
		t.Errorf("voice_send_mode = %q, want insert", d.VoiceSendMode)
	}
}

func TestLoadDefaults_MissingFileIsEmpty(t *testing.T) {
	d, err := LoadDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if d.AutoVoice || d.PromptRegex != "" {
		t.Errorf("expected empty defaults, got %+v", d)
	}
}

func TestLoadDefaults_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("not: [valid"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDefaults(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolve_FlagBeatsFileDefault(t *testing.T) {
	flags := Flags{AutoVoiceIdleMs: 5000}
	defaults := Defaults{AutoVoiceIdleMs: 2000}
	r, err := Resolve(flags, defaults, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if r.AutoVoiceIdleMs != 5000 {
		t.Errorf("expected flag value to win, got %d", r.AutoVoiceIdleMs)
	}
}

func TestResolve_EnvBeatsDefaultWhenFlagUnset(t *testing.T) {
	getenv := func(k string) string {
		if k == "CODEX_VOICE_PROMPT_REGEX" {
			return "myprompt>$"
		}
		return ""
	}
	r, err := Resolve(Flags{}, Defaults{PromptRegex: "other>$"}, getenv)
	if err != nil {
		t.Fatal(err)
	}
	if r.PromptRegex == nil || r.PromptRegex.String() != "myprompt>$" {
		t.Errorf("expected env regex to win, got %v", r.PromptRegex)
	}
}

func TestResolve_IdleMsClampedToMinimum(t *testing.T) {
	r, err := Resolve(Flags{AutoVoiceIdleMs: 1, TranscriptIdleMs: 1}, Defaults{}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if r.AutoVoiceIdleMs != minAutoVoiceIdleMs {
		t.Errorf("expected clamp to %d, got %d", minAutoVoiceIdleMs, r.AutoVoiceIdleMs)
	}
	if r.TranscriptIdleMs != minTranscriptIdleMs {
		t.Errorf("expected clamp to %d, got %d", minTranscriptIdleMs, r.TranscriptIdleMs)
	}
}

func TestResolve_InvalidSendModeRejected(t *testing.T) {
	_, err := Resolve(Flags{VoiceSendMode: "sideways"}, Defaults{}, noEnv)
	if err == nil {
		t.Fatal("expected error for invalid voice-send-mode")
	}
}

func TestResolve_ChildCommandSplitViaShlex(t *testing.T) {
	r, err := Resolve(Flags{ChildCommand: `claude --model "gpt-5"`}, Defaults{}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if r.ChildCommand != "claude" || len(r.ChildArgs) != 2 || r.ChildArgs[1] != "gpt-5" {
		t.Errorf("unexpected split: cmd=%q args=%v", r.ChildCommand, r.ChildArgs)
	}
}
