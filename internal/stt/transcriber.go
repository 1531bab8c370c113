// Package stt implements the native Transcriber collaborator (§6): a
// whisper.cpp-backed speech-to-text engine loaded from a local model file.
package stt

import (
	"fmt"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go"
)

// Transcriber wraps a loaded whisper.cpp model. Construction is expected to
// be lazy (one per process, shared across capture jobs) since loading a
// model file is comparatively expensive.
type Transcriber struct {
	model    whisper.Model
	language string
}

// NewTranscriber loads the ggml model at modelPath. language may be empty
// to let whisper.cpp auto-detect.
func NewTranscriber(modelPath, language string) (*Transcriber, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", modelPath, err)
	}
	return &Transcriber{model: model, language: language}, nil
}

// Transcribe converts 16kHz mono PCM16 samples to text.
func (t *Transcriber) Transcribe(pcm []int16) (string, error) {
	ctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new whisper context: %w", err)
	}
	if t.language != "" {
		if err := ctx.SetLanguage(t.language); err != nil {
			return "", fmt.Errorf("set whisper language: %w", err)
		}
	}

	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768.0
	}

	if err := ctx.Process(samples, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}

	var sb strings.Builder
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			break
		}
		sb.WriteString(seg.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Close releases the underlying model.
func (t *Transcriber) Close() error {
	return t.model.Close()
}
