// Package ptysession implements the PTY session collaborator (§6): spawning
// the wrapped child CLI under a pseudo-terminal, pumping its output to a
// channel of byte chunks, and forwarding keystrokes/resizes to it.
package ptysession

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/creack/pty"
	"github.com/muesli/termenv"
)

// colorToX11 converts a termenv.Color to the X11 "rgb:RRRR/GGGG/BBBB" format
// used in OSC 10/11 color query responses.
func colorToX11(c termenv.Color) string {
	if c == nil {
		return ""
	}
	if v, ok := c.(termenv.RGBColor); ok {
		hex := string(v)
		if len(hex) == 7 && hex[0] == '#' {
			r, _ := strconv.ParseUint(hex[1:3], 16, 8)
			g, _ := strconv.ParseUint(hex[3:5], 16, 8)
			b, _ := strconv.ParseUint(hex[5:7], 16, 8)
			return fmt.Sprintf("rgb:%04x/%04x/%04x", r*0x101, g*0x101, b*0x101)
		}
	}
	rgb := termenv.ConvertToRGB(c)
	r := uint8(rgb.R*255 + 0.5)
	g := uint8(rgb.G*255 + 0.5)
	b := uint8(rgb.B*255 + 0.5)
	return fmt.Sprintf("rgb:%04x/%04x/%04x", uint16(r)*0x101, uint16(g)*0x101, uint16(b)*0x101)
}

// Session owns the PTY master and the child process.
type Session struct {
	Cmd *exec.Cmd
	ptm *os.File

	oscFg string
	oscBg string

	output chan []byte
}

// New spawns command/args under a PTY sized rows x cols, with cwd as the
// child's working directory (empty means inherit). The real terminal's OSC
// 10/11 colors are cached from out so the child's own color queries can be
// answered transparently without touching the real terminal.
func New(command string, args []string, cwd string, rows, cols int, out *os.File) (*Session, error) {
	cmd := exec.Command(command, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.Env = os.Environ()

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	s := &Session{Cmd: cmd, ptm: ptm, output: make(chan []byte, 256)}

	if out != nil {
		o := termenv.NewOutput(out)
		if fg := o.ForegroundColor(); fg != nil {
			s.oscFg = colorToX11(fg)
		}
		if bg := o.BackgroundColor(); bg != nil {
			s.oscBg = colorToX11(bg)
		}
	}

	go s.pump()
	return s, nil
}

// Output returns the channel of raw PTY output chunks.
func (s *Session) Output() <-chan []byte { return s.output }

func (s *Session) pump() {
	defer close(s.output)
	buf := make([]byte, 4096)
	for {
		n, err := s.ptm.Read(buf)
		if n > 0 {
			s.respondOSCColors(buf[:n])
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.output <- chunk
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) respondOSCColors(data []byte) {
	if s.oscFg != "" && bytes.Contains(data, []byte("\033]10;?")) {
		fmt.Fprintf(s.ptm, "\033]10;%s\033\\", s.oscFg)
	}
	if s.oscBg != "" && bytes.Contains(data, []byte("\033]11;?")) {
		fmt.Fprintf(s.ptm, "\033]11;%s\033\\", s.oscBg)
	}
}

const writeTimeout = 2 * time.Second

// SendBytes writes raw bytes to the child verbatim, bounded by a timeout so
// a hung child can't block the coordinator forever.
func (s *Session) SendBytes(b []byte) error {
	return s.writeWithTimeout(b, writeTimeout)
}

// SendText writes text to the child with no trailing submit key.
func (s *Session) SendText(text string) error {
	return s.SendBytes([]byte(text))
}

// SendTextWithNewline writes text followed by a carriage return, the
// terminal's submit key.
func (s *Session) SendTextWithNewline(text string) error {
	return s.SendBytes(append([]byte(text), 0x0d))
}

// SetWinsize resizes the PTY.
func (s *Session) SetWinsize(rows, cols int) error {
	return pty.Setsize(s.ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Close releases the PTY master.
func (s *Session) Close() error {
	return s.ptm.Close()
}

// Wait blocks until the child process exits.
func (s *Session) Wait() error {
	return s.Cmd.Wait()
}

// writeWithTimeout guards against a hung child accepting no input, mirroring
// the teacher's writePTYOrHang safety valve.
func (s *Session) writeWithTimeout(b []byte, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { _, err := s.ptm.Write(b); done <- err }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write pty: %w", err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pty write timed out after %s (child may be hung)", timeout)
	}
}
