package overlay

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// writerMsgKind identifies the five message shapes the status writer
// multiplexes (§4.5).
type writerMsgKind int

const (
	msgPtyOutput writerMsgKind = iota
	msgStatus
	msgClearStatus
	msgResize
	msgShutdown
)

type writerMsg struct {
	kind writerMsgKind
	data []byte
	text string
	rows int
	cols int
}

const (
	writerChanCapacity = 512
	statusPTYQuietGap   = 50 * time.Millisecond
	statusMaxInterval   = 500 * time.Millisecond
	writerTick          = 25 * time.Millisecond
)

// statusWriter owns stdout and multiplexes PTY pass-through bytes with the
// deferred status-line redraw (§4.5). It is the only goroutine that writes
// to the real terminal.
type statusWriter struct {
	out  io.Writer
	msgs chan writerMsg
	done chan struct{}

	rows, cols int

	lastPTYOutput time.Time
	lastDraw      time.Time
	pendingText   string
	pendingClear  bool
	hasPending    bool
}

func newStatusWriter(out io.Writer, rows, cols int) *statusWriter {
	return &statusWriter{
		out:  out,
		msgs: make(chan writerMsg, writerChanCapacity),
		done: make(chan struct{}),
		rows: rows,
		cols: cols,
	}
}

// send enqueues a message. The channel is sized generously (§5); a full
// channel here means catastrophic back-pressure, which is a fatal
// condition per §5/§7, so send never blocks the caller indefinitely.
func (w *statusWriter) send(m writerMsg) bool {
	select {
	case w.msgs <- m:
		return true
	default:
		return false
	}
}

func (w *statusWriter) run() {
	ticker := time.NewTicker(writerTick)
	defer ticker.Stop()
	defer close(w.done)

	for {
		select {
		case m := <-w.msgs:
			switch m.kind {
			case msgPtyOutput:
				w.out.Write(m.data)
				w.lastPTYOutput = time.Now()
			case msgStatus:
				w.pendingText = m.text
				w.pendingClear = false
				w.hasPending = true
			case msgClearStatus:
				w.pendingClear = true
				w.hasPending = true
			case msgResize:
				w.rows, w.cols = m.rows, m.cols
			case msgShutdown:
				return
			}
		case <-ticker.C:
		}
		w.maybeRedraw()
	}
}

func (w *statusWriter) maybeRedraw() {
	if !w.hasPending {
		return
	}
	now := time.Now()
	quietLongEnough := now.Sub(w.lastPTYOutput) >= statusPTYQuietGap
	staleLongEnough := now.Sub(w.lastDraw) >= statusMaxInterval
	if !quietLongEnough && !staleLongEnough {
		return
	}
	w.redraw()
	w.hasPending = false
	w.lastDraw = now
}

func (w *statusWriter) redraw() {
	if w.rows <= 0 || w.cols <= 0 {
		return
	}
	var buf bytes.Buffer
	buf.WriteString("\x1b7")
	fmt.Fprintf(&buf, "\x1b[%d;1H", w.rows)
	buf.WriteString("\x1b[2K")
	if !w.pendingClear {
		buf.WriteString(sanitizeStatus(w.pendingText, w.cols))
	}
	buf.WriteString("\x1b8")
	w.out.Write(buf.Bytes())
}

// sanitizeStatus maps non-graphic/non-space bytes to a space and truncates
// to the first cols characters, per §4.5.
func sanitizeStatus(text string, cols int) string {
	b := []byte(text)
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == ' ' || (c >= 0x21 && c < 0x7f) {
			out = append(out, c)
		} else {
			out = append(out, ' ')
		}
	}
	if len(out) > cols {
		out = out[:cols]
	}
	return string(out)
}

func (w *statusWriter) stop() {
	w.send(writerMsg{kind: msgShutdown})
	<-w.done
}
