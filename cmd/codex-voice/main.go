// Command codex-voice wraps an interactive child CLI under a PTY and layers
// voice capture, speech-to-text, and transcript delivery on top of it (§1,
// §6).
package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/codex-voice/codex-voice/internal/audio"
	"github.com/codex-voice/codex-voice/internal/config"
	"github.com/codex-voice/codex-voice/internal/delivery"
	"github.com/codex-voice/codex-voice/internal/overlay"
	"github.com/codex-voice/codex-voice/internal/prompttracker"
	"github.com/codex-voice/codex-voice/internal/pyfallback"
	"github.com/codex-voice/codex-voice/internal/stt"
	"github.com/codex-voice/codex-voice/internal/version"
	"github.com/codex-voice/codex-voice/internal/voice"
)

const defaultVadDB = -35.0

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "codex-voice:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags config.Flags
	var whisperModel string
	var whisperLang string
	var pyInterpreter string
	var pyScript string
	var noPythonFallback bool

	cmd := &cobra.Command{
		Use:   "codex-voice [flags] -- <command> [args...]",
		Short: "Voice-enabled terminal overlay for an interactive child CLI",
		Long: `codex-voice spawns the given command under a PTY and forwards keystrokes
and output transparently, adding a voice-capture hotkey, speech-to-text
transcription, and a status line reporting capture and delivery state.`,
		Args:    cobra.ArbitraryArgs,
		Version: version.DisplayVersion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults, err := config.LoadDefaults(defaultsPath())
			if err != nil {
				return err
			}

			resolved, err := config.Resolve(flags, *defaults, os.Getenv)
			if err != nil {
				return err
			}

			command, cmdArgs := resolved.ChildCommand, resolved.ChildArgs
			if len(args) > 0 {
				command, cmdArgs = args[0], args[1:]
			}

			if resolved.ListInputDevices {
				return runListInputDevices()
			}
			if resolved.MicMeter {
				return runMicMeter()
			}

			if command == "" {
				return fmt.Errorf("no child command given (pass it after --, or set --child-command / CODEX_VOICE_CHILD_CMD)")
			}

			if !isatty.IsTerminal(os.Stdin.Fd()) {
				return fmt.Errorf("stdin is not a terminal")
			}

			var promptLogger *prompttracker.Logger
			if resolved.PromptLog != "" {
				promptLogger, err = prompttracker.NewLogger(resolved.PromptLog)
				if err != nil {
					return fmt.Errorf("open prompt log: %w", err)
				}
				defer promptLogger.Close()
			}

			voiceMgr := buildVoiceManager(whisperModel, whisperLang, pyInterpreter, pyScript, noPythonFallback)

			sendMode := delivery.ModeAuto
			if resolved.VoiceSendMode == config.SendModeInsert {
				sendMode = delivery.ModeInsert
			}

			cfg := overlay.Config{
				Command: command,
				Args:    cmdArgs,
				CWD:     config.ChildCWD(os.Getenv),

				PromptRegex:    resolved.PromptRegex,
				PromptLogger:   promptLogger,
				AutoVoice:      resolved.AutoVoice,
				AutoVoiceIdle:  time.Duration(resolved.AutoVoiceIdleMs) * time.Millisecond,
				TranscriptIdle: time.Duration(resolved.TranscriptIdleMs) * time.Millisecond,
				SendMode:       sendMode,
				VoiceManager:   voiceMgr,

				Stdin:  os.Stdin,
				Stdout: os.Stdout,
			}

			return overlay.Run(cfg)
		},
	}

	cmd.Flags().StringVar(&flags.PromptRegex, "prompt-regex", "", "Regex matching the child's prompt line (overrides learning)")
	cmd.Flags().StringVar(&flags.PromptLog, "prompt-log", "", "Path to append detected-prompt diagnostics to")
	cmd.Flags().BoolVar(&flags.AutoVoice, "auto-voice", false, "Start voice capture automatically when the child goes idle")
	cmd.Flags().IntVar(&flags.AutoVoiceIdleMs, "auto-voice-idle-ms", 0, "Idle threshold before auto-voice re-arms (ms)")
	cmd.Flags().IntVar(&flags.TranscriptIdleMs, "transcript-idle-ms", 0, "Idle threshold before a transcript is considered deliverable absent a prompt match (ms)")
	cmd.Flags().StringVar(&flags.VoiceSendMode, "voice-send-mode", "", "auto (append Enter) or insert (leave cursor in place)")
	cmd.Flags().StringVar(&flags.ChildCommand, "child-command", "", "Child command line to run, split with shell-style quoting (used if no -- args are given)")
	cmd.Flags().BoolVar(&flags.ListInputDevices, "list-input-devices", false, "List available audio input devices and exit")
	cmd.Flags().BoolVar(&flags.MicMeter, "mic-meter", false, "Record from the default input device, print the sample count and peak amplitude, and exit")

	cmd.Flags().StringVar(&whisperModel, "whisper-model", os.Getenv("CODEX_VOICE_WHISPER_MODEL"), "Path to a ggml whisper.cpp model file")
	cmd.Flags().StringVar(&whisperLang, "whisper-lang", "", "Language hint for transcription (empty autodetects)")
	cmd.Flags().StringVar(&pyInterpreter, "python-fallback-interpreter", "python3", "Python interpreter for the fallback pipeline")
	cmd.Flags().StringVar(&pyScript, "python-fallback-script", os.Getenv("CODEX_VOICE_PY_FALLBACK_SCRIPT"), "Path to the fallback record+transcribe script")
	cmd.Flags().BoolVar(&noPythonFallback, "no-python-fallback", false, "Disable the python fallback pipeline entirely")

	cmd.Flags().Lookup("auto-voice").NoOptDefVal = "true"
	cmd.PreRunE = func(c *cobra.Command, args []string) error {
		flags.AutoVoiceSet = c.Flags().Changed("auto-voice")
		return nil
	}

	return cmd
}

func defaultsPath() string {
	return config.ConfigDir() + "/config.yaml"
}

func buildVoiceManager(modelPath, lang, pyInterpreter, pyScript string, noFallback bool) *voice.Manager {
	recorderFactory := func() (voice.Recorder, error) {
		return audio.NewRecorder("")
	}

	var transcriberFactory voice.TranscriberFactory
	if modelPath != "" {
		transcriberFactory = func() (voice.Transcriber, error) {
			return stt.NewTranscriber(modelPath, lang)
		}
	}

	var fallback voice.PythonFallback
	if pyScript != "" {
		fallback = pyfallback.Runner(pyfallback.Config{Python: pyInterpreter, Script: pyScript})
	}

	return voice.NewManager(recorderFactory, transcriberFactory, fallback, noFallback, defaultVadDB)
}

func runListInputDevices() error {
	devices, err := audio.ListDevices()
	if err != nil {
		return fmt.Errorf("list input devices: %w", err)
	}
	for _, d := range devices {
		fmt.Println(d)
	}
	return nil
}

func runMicMeter() error {
	rec, err := audio.NewRecorder("")
	if err != nil {
		return fmt.Errorf("open input device: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Recording for up to 30 seconds to measure input level (Ctrl-C aborts without a reading)...")
	var stop atomic.Bool
	pcm, err := rec.Capture(&stop)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	fmt.Printf("captured %d samples, peak amplitude %d\n", len(pcm), peakAmplitude(pcm))
	return nil
}

func peakAmplitude(pcm []int16) int16 {
	var peak int16
	for _, s := range pcm {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
