// Package config resolves the CLI surface (§6): flags, environment
// variables, and an optional on-disk defaults file, in that precedence
// order (flags win, then env, then file defaults, then hard-coded
// defaults).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

const (
	defaultAutoVoiceIdleMs  = 1200
	minAutoVoiceIdleMs      = 100
	defaultTranscriptIdleMs = 250
	minTranscriptIdleMs     = 50
)

// SendMode mirrors delivery.SendMode without importing it, keeping config
// dependency-free of the core packages it configures.
type SendMode string

const (
	SendModeAuto   SendMode = "auto"
	SendModeInsert SendMode = "insert"
)

// Defaults is the optional on-disk defaults file, ~/.codex-voice/config.yaml.
type Defaults struct {
	PromptRegex      string `yaml:"prompt_regex,omitempty"`
	PromptLog        string `yaml:"prompt_log,omitempty"`
	AutoVoice        bool   `yaml:"auto_voice,omitempty"`
	AutoVoiceIdleMs  int    `yaml:"auto_voice_idle_ms,omitempty"`
	TranscriptIdleMs int    `yaml:"transcript_idle_ms,omitempty"`
	VoiceSendMode    string `yaml:"voice_send_mode,omitempty"`
	ChildCommand     string `yaml:"child_command,omitempty"`
}

// ConfigDir returns the codex-voice configuration directory (~/.codex-voice).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".codex-voice")
	}
	return filepath.Join(home, ".codex-voice")
}

// LoadDefaults reads the defaults file. A missing file yields an empty
// Defaults with no error.
func LoadDefaults(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Defaults{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &d, nil
}

// Flags holds the raw, as-typed CLI flag values.
type Flags struct {
	PromptRegex      string
	PromptLog        string
	AutoVoice        bool
	AutoVoiceSet     bool
	AutoVoiceIdleMs  int
	TranscriptIdleMs int
	VoiceSendMode    string
	ChildCommand     string

	ListInputDevices bool
	MicMeter         bool
}

// Resolved is the final, validated configuration the overlay coordinator
// runs with.
type Resolved struct {
	PromptRegex      *regexp.Regexp
	PromptLog        string
	AutoVoice        bool
	AutoVoiceIdleMs  int
	TranscriptIdleMs int
	VoiceSendMode    SendMode
	ChildCommand     string
	ChildArgs        []string

	ListInputDevices bool
	MicMeter         bool
}

// Resolve merges flags, environment, and file defaults into a Resolved
// configuration, applying precedence (flags > env > file > hardcoded) and
// the minimums from §6.
func Resolve(flags Flags, defaults Defaults, getenv func(string) string) (Resolved, error) {
	r := Resolved{
		AutoVoiceIdleMs:  defaultAutoVoiceIdleMs,
		TranscriptIdleMs: defaultTranscriptIdleMs,
		VoiceSendMode:    SendModeAuto,
		ListInputDevices: flags.ListInputDevices,
		MicMeter:         flags.MicMeter,
	}

	promptRegex := firstNonEmpty(flags.PromptRegex, getenv("CODEX_VOICE_PROMPT_REGEX"), defaults.PromptRegex)
	if promptRegex != "" {
		re, err := regexp.Compile(promptRegex)
		if err != nil {
			return Resolved{}, fmt.Errorf("compile --prompt-regex %q: %w", promptRegex, err)
		}
		r.PromptRegex = re
	}

	r.PromptLog = firstNonEmpty(flags.PromptLog, getenv("CODEX_VOICE_PROMPT_LOG"), defaults.PromptLog)

	if flags.AutoVoiceSet {
		r.AutoVoice = flags.AutoVoice
	} else {
		r.AutoVoice = defaults.AutoVoice
	}

	if flags.AutoVoiceIdleMs > 0 {
		r.AutoVoiceIdleMs = flags.AutoVoiceIdleMs
	} else if defaults.AutoVoiceIdleMs > 0 {
		r.AutoVoiceIdleMs = defaults.AutoVoiceIdleMs
	}
	if r.AutoVoiceIdleMs < minAutoVoiceIdleMs {
		r.AutoVoiceIdleMs = minAutoVoiceIdleMs
	}

	if flags.TranscriptIdleMs > 0 {
		r.TranscriptIdleMs = flags.TranscriptIdleMs
	} else if defaults.TranscriptIdleMs > 0 {
		r.TranscriptIdleMs = defaults.TranscriptIdleMs
	}
	if r.TranscriptIdleMs < minTranscriptIdleMs {
		r.TranscriptIdleMs = minTranscriptIdleMs
	}

	mode := firstNonEmpty(flags.VoiceSendMode, "", defaults.VoiceSendMode)
	switch mode {
	case "", string(SendModeAuto):
		r.VoiceSendMode = SendModeAuto
	case string(SendModeInsert):
		r.VoiceSendMode = SendModeInsert
	default:
		return Resolved{}, fmt.Errorf("invalid --voice-send-mode %q (want auto|insert)", mode)
	}

	childCmd := firstNonEmpty(flags.ChildCommand, getenv("CODEX_VOICE_CHILD_CMD"), defaults.ChildCommand)
	if childCmd != "" {
		parts, err := shlex.Split(childCmd)
		if err != nil {
			return Resolved{}, fmt.Errorf("parse child command %q: %w", childCmd, err)
		}
		if len(parts) == 0 {
			return Resolved{}, fmt.Errorf("empty child command")
		}
		r.ChildCommand = parts[0]
		r.ChildArgs = parts[1:]
	}

	return r, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ChildCWD resolves the child's working directory from the
// CODEX_VOICE_CWD environment variable. An empty result means "inherit".
func ChildCWD(getenv func(string) string) string {
	return getenv("CODEX_VOICE_CWD")
}
