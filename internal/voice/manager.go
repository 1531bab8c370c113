package voice

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/codex-voice/codex-voice/internal/delivery"
)

// Recorder captures PCM audio for one job. Constructed lazily and shared
// across jobs; the worker holds it for the duration of one capture.
type Recorder interface {
	Capture(stop *atomic.Bool) ([]int16, error)
}

// Transcriber turns captured PCM into text. Constructed lazily from a model
// file path; shared across jobs.
type Transcriber interface {
	Transcribe(pcm []int16) (string, error)
}

// RecorderFactory lazily constructs the native Recorder. Returning an error
// signals the native recorder is unavailable (e.g. no input device).
type RecorderFactory func() (Recorder, error)

// TranscriberFactory lazily constructs the native Transcriber.
type TranscriberFactory func() (Transcriber, error)

// PythonFallback performs one full out-of-process record+transcribe cycle,
// blocking until it finishes. It cannot be interrupted mid-run (§6); stop is
// only consulted before the call is made.
type PythonFallback func(stop *atomic.Bool) (string, error)

const (
	vadMinDB = -80.0
	vadMaxDB = -10.0
)

// Manager is the single-owner voice-capture lifecycle state (§3). All
// methods are called only from the overlay coordinator's thread except
// where noted.
type Manager struct {
	mu sync.Mutex

	recorderFactory    RecorderFactory
	transcriberFactory  TranscriberFactory
	pythonFallback      PythonFallback
	noPythonFallback    bool

	recorder    Recorder
	transcriber Transcriber

	job *job

	cancelPending bool
	activeSource  *delivery.Source

	vadThresholdDB float64
}

// NewManager constructs a Manager. initialVadDB is clamped to the allowed
// range.
func NewManager(rf RecorderFactory, tf TranscriberFactory, pf PythonFallback, noPythonFallback bool, initialVadDB float64) *Manager {
	return &Manager{
		recorderFactory:    rf,
		transcriberFactory: tf,
		pythonFallback:     pf,
		noPythonFallback:   noPythonFallback,
		vadThresholdDB:     clampDB(initialVadDB),
	}
}

func clampDB(db float64) float64 {
	if db < vadMinDB {
		return vadMinDB
	}
	if db > vadMaxDB {
		return vadMaxDB
	}
	return db
}

// AdjustSensitivity nudges the VAD threshold by deltaDB and returns the new,
// clamped value.
func (m *Manager) AdjustSensitivity(deltaDB float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vadThresholdDB = clampDB(m.vadThresholdDB + deltaDB)
	return m.vadThresholdDB
}

// IsIdle reports whether no job is currently active.
func (m *Manager) IsIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job == nil
}

// ActiveSource reports the pipeline of the in-flight job, if any.
func (m *Manager) ActiveSource() (delivery.Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeSource == nil {
		return 0, false
	}
	return *m.activeSource, true
}

// CancelCapture soft-stops the active job: its final message is discarded.
// Reports whether a job was actually active.
func (m *Manager) CancelCapture() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return false
	}
	m.job.stop.Store(true)
	m.cancelPending = true
	return true
}

// RequestEarlyStop asks the native worker to finalize and emit its last
// transcript rather than discard it. Not supported for the Python pipeline;
// callers must check ActiveSource first and fall back to CancelCapture.
func (m *Manager) RequestEarlyStop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return false
	}
	m.job.stop.Store(true)
	return true
}

// StartCapture begins a new job if none is active. Returns (info, true, nil)
// on success, (zero, false, nil) if a job was already active, or an error on
// initialization failure.
func (m *Manager) StartCapture(trigger Trigger) (StartInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job != nil {
		return StartInfo{}, false, nil
	}

	if m.transcriber == nil && m.transcriberFactory != nil {
		t, err := m.transcriberFactory()
		if err == nil {
			m.transcriber = t
		}
	}

	var fallbackNote string
	useNative := m.transcriber != nil

	if useNative {
		if m.recorder == nil && m.recorderFactory != nil {
			r, err := m.recorderFactory()
			if err != nil {
				if m.pythonFallback == nil || m.noPythonFallback {
					return StartInfo{}, false, fmt.Errorf("native recorder unavailable and python fallback not available: %w", err)
				}
				useNative = false
				fallbackNote = "native recorder unavailable, using python fallback"
			} else {
				m.recorder = r
			}
		}
	} else if m.noPythonFallback {
		return StartInfo{}, false, fmt.Errorf("no native transcriber configured and python fallback is disabled")
	} else if m.pythonFallback == nil {
		return StartInfo{}, false, fmt.Errorf("no native transcriber and no python fallback configured")
	}

	j := newJob()
	var source delivery.Source
	if useNative {
		source = delivery.SourceNative
		go runNativeWorker(j, m.recorder, m.transcriber, m.vadThresholdDB)
	} else {
		source = delivery.SourcePython
		go runPythonWorker(j, m.pythonFallback)
	}
	m.job = j
	m.activeSource = &source
	m.cancelPending = false

	label := "Rust pipeline"
	if source == delivery.SourcePython {
		label = "Python pipeline"
	}
	return StartInfo{PipelineLabel: label, FallbackNote: fallbackNote}, true, nil
}

// PollMessage is a non-blocking check for the active job's result. On a
// message or a worker disconnect it joins the worker and clears the job.
func (m *Manager) PollMessage() *Message {
	m.mu.Lock()
	j := m.job
	cancelPending := m.cancelPending
	m.mu.Unlock()

	if j == nil {
		return nil
	}

	select {
	case msg, ok := <-j.messages:
		m.mu.Lock()
		m.job = nil
		m.activeSource = nil
		m.cancelPending = false
		m.mu.Unlock()

		if !ok {
			if cancelPending {
				return nil
			}
			return &Message{Kind: MsgError, Err: "voice capture worker disconnected unexpectedly"}
		}
		if cancelPending {
			return nil
		}
		return &msg
	default:
		return nil
	}
}
