// Package audio implements the native Recorder collaborator (§6): PCM
// capture from a local input device via PortAudio.
package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate     = 16000
	framesPerBuf   = 512
	maxCaptureTime = 30 * time.Second
	pollInterval   = 20 * time.Millisecond
)

// Recorder captures 16kHz mono PCM from an input device, stopping when the
// shared stop flag is set (or after a hard safety ceiling).
type Recorder struct {
	deviceName string
}

// NewRecorder constructs a Recorder. Construction itself doesn't open a
// stream (kept lazy, per §3), but it does verify PortAudio initializes and
// that the named input device, if any, exists. The name is only checked
// here: Capture always records from the system default input device.
func NewRecorder(deviceName string) (*Recorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	if deviceName != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("enumerate devices: %w", err)
		}
		found := false
		for _, d := range devices {
			if d.Name == deviceName && d.MaxInputChannels > 0 {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("input device %q not found", deviceName)
		}
	}
	return &Recorder{deviceName: deviceName}, nil
}

// ListDevices returns the names of available input devices, for
// --list-input-devices.
func ListDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// Capture records until stop is set or the safety ceiling is reached,
// returning the captured samples. Segmentation (deciding speech from
// silence) is left to the voice activity detector, an external
// collaborator per §1; this Recorder only gates on the stop flag.
func (r *Recorder) Capture(stop *atomic.Bool) ([]int16, error) {
	var samples []int16
	buf := make([]int16, framesPerBuf)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuf, buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	deadline := time.Now().Add(maxCaptureTime)
	for !stop.Load() && time.Now().Before(deadline) {
		if err := stream.Read(); err != nil {
			return samples, fmt.Errorf("read input stream: %w", err)
		}
		samples = append(samples, buf...)
		time.Sleep(pollInterval)
	}
	return samples, nil
}
