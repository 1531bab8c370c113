package prompttracker

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const maxLogSize = 5 * 1024 * 1024 // 5 MiB

// Logger is a write-through, append-only diagnostic log for the prompt
// tracker. It rotates (truncate and restart) once the file exceeds 5 MiB,
// and guards the file with an advisory lock so two overlay processes
// sharing a log path never interleave a rotation with a write.
type Logger struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	lock     *flock.Flock
	sessions uuid.UUID
}

// NewLogger opens (creating if necessary) the prompt log at path.
func NewLogger(path string) (*Logger, error) {
	l := &Logger{path: path, sessions: uuid.New(), lock: flock.New(path + ".lock")}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open prompt log %s: %w", path, err)
	}
	l.file = f
	return l, nil
}

// Logf appends a formatted diagnostic line, rotating the file first if it
// has grown past the size limit.
func (l *Logger) Logf(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err == nil {
		defer l.lock.Unlock()
	}

	if info, err := l.file.Stat(); err == nil && info.Size() > maxLogSize {
		l.rotateLocked()
	}

	line := fmt.Sprintf("[%d] %s\n", time.Now().Unix(), fmt.Sprintf(format, args...))
	_, _ = l.file.WriteString(line)
}

func (l *Logger) rotateLocked() {
	_ = l.file.Close()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	l.file = f
}

// Close releases the underlying file. The advisory lock is only held for
// the duration of each Logf call, so there is no lock left to release.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
