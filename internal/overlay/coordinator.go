// Package overlay implements the overlay coordinator (§4.6): the
// single-threaded select/merge loop wiring the input decoder, prompt
// tracker, voice-capture manager, and transcript delivery policy around the
// PTY session and the status writer, plus the status writer thread itself
// (§4.5).
package overlay

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"regexp"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/codex-voice/codex-voice/internal/delivery"
	"github.com/codex-voice/codex-voice/internal/inputdecoder"
	"github.com/codex-voice/codex-voice/internal/prompttracker"
	"github.com/codex-voice/codex-voice/internal/ptysession"
	"github.com/codex-voice/codex-voice/internal/voice"
)

const coordinatorTick = 50 * time.Millisecond

// Config bundles everything the coordinator needs to run the overlay for
// one child-CLI invocation.
type Config struct {
	Command string
	Args    []string
	CWD     string

	PromptRegex      *regexp.Regexp
	PromptLogger     *prompttracker.Logger
	AutoVoice        bool
	AutoVoiceIdle    time.Duration
	TranscriptIdle   time.Duration
	SendMode         delivery.SendMode
	VoiceManager     *voice.Manager

	Logger *log.Logger
	Stdin  *os.File
	Stdout *os.File
}

// Overlay is the coordinator's mutable policy state (§3), single-owned by
// the Run goroutine.
type Overlay struct {
	cfg Config

	session *ptysession.Session
	decoder *inputdecoder.Decoder
	tracker *prompttracker.Tracker
	voiceMgr *voice.Manager
	queue   delivery.Queue
	writer  *statusWriter

	autoVoiceEnabled bool
	sendMode         delivery.SendMode

	lastEnterAt  time.Time
	hasLastEnter bool

	lastAutoTriggerAt  time.Time
	hasLastAutoTrigger bool

	statusDeadline    time.Time
	hasStatusDeadline bool
	stickyAutoVoice   bool

	rows, cols int
	resizeFlag atomic.Bool

	startedAt time.Time

	log *log.Logger
}

// Run enters raw mode, spawns the child under a PTY, and runs the
// coordinator loop until shutdown. It returns the child's exit error, if
// any is observed, or an initialization error.
func Run(cfg Config) error {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}

	fd := int(cfg.Stdin.Fd())
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return fmt.Errorf("get terminal size (is this a terminal?): %w", err)
	}

	restore, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer func() {
		term.Restore(fd, restore)
		cfg.Stdout.Write([]byte("\r\n"))
	}()

	session, err := ptysession.New(cfg.Command, cfg.Args, cfg.CWD, rows, cols, cfg.Stdout)
	if err != nil {
		return err
	}
	defer session.Close()

	o := &Overlay{
		cfg:            cfg,
		session:        session,
		decoder:        inputdecoder.New(),
		tracker:        prompttracker.New(cfg.PromptRegex, cfg.PromptLogger),
		voiceMgr:       cfg.VoiceManager,
		sendMode:       cfg.SendMode,
		autoVoiceEnabled: cfg.AutoVoice,
		rows:           rows,
		cols:           cols,
		startedAt:      time.Now(),
		log:            cfg.Logger,
	}

	o.writer = newStatusWriter(cfg.Stdout, rows, cols)
	go o.writer.run()
	defer o.writer.stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	go watchResize(sigCh, &o.resizeFlag)
	defer signal.Stop(sigCh)

	if o.autoVoiceEnabled {
		o.setStickyStatus("Auto-voice enabled")
	}

	inputEvents := o.readInputLoop(cfg.Stdin)

	o.loop(inputEvents)

	return session.Wait()
}

func watchResize(sigCh <-chan os.Signal, flag *atomic.Bool) {
	for range sigCh {
		flag.Store(true)
	}
}

// readInputLoop starts the input thread and returns the channel of decoded
// events it produces. The channel closes when stdin reaches EOF or errors.
func (o *Overlay) readInputLoop(stdin *os.File) <-chan inputdecoder.Event {
	out := make(chan inputdecoder.Event, 256)
	go func() {
		defer close(out)
		buf := make([]byte, 256)
		for {
			n, err := stdin.Read(buf)
			if n > 0 {
				for _, ev := range o.decoder.Decode(buf[:n]) {
					out <- ev
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// loop is the C6 select/merge: input events, PTY output, and a ~50ms timer.
func (o *Overlay) loop(inputEvents <-chan inputdecoder.Event) {
	ticker := time.NewTicker(coordinatorTick)
	defer ticker.Stop()

	ptyOutput := o.session.Output()

	for {
		select {
		case ev, ok := <-inputEvents:
			if !ok {
				o.shutdown()
				return
			}
			if o.handleEvent(ev) {
				o.shutdown()
				return
			}
		case chunk, ok := <-ptyOutput:
			if !ok {
				o.shutdown()
				return
			}
			if !o.handlePTYOutput(chunk) {
				return
			}
		case <-ticker.C:
			o.tick()
		}
	}
}

// handlePTYOutput feeds the tracker and forwards the chunk to the writer. It
// returns false when the writer channel is full, after shutting down.
func (o *Overlay) handlePTYOutput(chunk []byte) bool {
	o.tracker.Feed(chunk, time.Now())
	if !o.writer.send(writerMsg{kind: msgPtyOutput, data: chunk}) {
		o.log.Printf("writer channel full, shutting down")
		o.shutdown()
		return false
	}
	return true
}

// tick services the periodic, non-event-driven duties: voice messages,
// idle-based prompt learning, queue flush, auto-trigger, status expiry, and
// resize.
func (o *Overlay) tick() {
	if o.resizeFlag.CompareAndSwap(true, false) {
		o.handleResize()
	}

	now := time.Now()
	o.tracker.OnIdle(now, o.cfg.TranscriptIdle)

	if o.voiceMgr != nil {
		if msg := o.voiceMgr.PollMessage(); msg != nil {
			o.handleVoiceMessage(*msg)
		}
	}

	o.tryFlushPending(now)
	o.evaluateAutoTrigger(now)
	o.expireStatus(now)
}

func (o *Overlay) handleResize() {
	fd := int(o.cfg.Stdin.Fd())
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return
	}
	o.rows, o.cols = rows, cols
	o.session.SetWinsize(rows, cols)
	o.writer.send(writerMsg{kind: msgResize, rows: rows, cols: cols})
}

func (o *Overlay) shutdown() {
	o.writer.send(writerMsg{kind: msgClearStatus})
}
