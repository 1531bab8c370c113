package overlay

import (
	"fmt"
	"time"

	"github.com/codex-voice/codex-voice/internal/delivery"
	"github.com/codex-voice/codex-voice/internal/inputdecoder"
	"github.com/codex-voice/codex-voice/internal/voice"
)

const sensitivityStepDB = 5.0

// handleEvent applies one decoded input event. It returns true if the
// coordinator should shut down.
func (o *Overlay) handleEvent(ev inputdecoder.Event) bool {
	switch ev.Kind {
	case inputdecoder.EventExit:
		return true
	case inputdecoder.EventBytes:
		if err := o.session.SendBytes(ev.Payload); err != nil {
			o.log.Printf("pty write failed: %v", err)
			return true
		}
	case inputdecoder.EventEnterKey:
		o.handleEnter()
	case inputdecoder.EventVoiceTrigger:
		o.startCapture(voice.TriggerManual)
	case inputdecoder.EventToggleAutoVoice:
		o.toggleAutoVoice()
	case inputdecoder.EventToggleSendMode:
		o.toggleSendMode()
	case inputdecoder.EventIncreaseSensitivity:
		o.adjustSensitivity(sensitivityStepDB)
	case inputdecoder.EventDecreaseSensitivity:
		o.adjustSensitivity(-sensitivityStepDB)
	}
	return false
}

// handleEnter implements the Enter semantics of §4.6: in Insert mode with an
// active capture, Enter stops the capture instead of reaching the PTY.
func (o *Overlay) handleEnter() {
	if o.sendMode == delivery.ModeInsert && o.voiceMgr != nil && !o.voiceMgr.IsIdle() {
		if src, ok := o.voiceMgr.ActiveSource(); ok && src == delivery.SourceNative {
			o.voiceMgr.RequestEarlyStop()
		} else {
			o.voiceMgr.CancelCapture()
			o.setStatus("capture cancelled (python fallback cannot stop early)", delivery.StatusTTLShort)
		}
		return
	}

	if err := o.session.SendBytes([]byte{0x0d}); err != nil {
		o.log.Printf("pty write failed: %v", err)
		return
	}
	o.lastEnterAt = time.Now()
	o.hasLastEnter = true
}

func (o *Overlay) toggleAutoVoice() {
	o.autoVoiceEnabled = !o.autoVoiceEnabled
	if o.autoVoiceEnabled {
		o.setStickyStatus("Auto-voice enabled")
		if o.voiceMgr != nil && o.voiceMgr.IsIdle() {
			o.startCapture(voice.TriggerAuto)
		}
		return
	}
	if o.voiceMgr != nil {
		o.voiceMgr.CancelCapture()
	}
	o.stickyAutoVoice = false
	o.setStatus("Auto-voice disabled", delivery.StatusTTLShort)
}

func (o *Overlay) toggleSendMode() {
	if o.sendMode == delivery.ModeAuto {
		o.sendMode = delivery.ModeInsert
		o.setStatus("Send mode: Insert", delivery.StatusTTLSensitivity)
	} else {
		o.sendMode = delivery.ModeAuto
		o.setStatus("Send mode: Auto", delivery.StatusTTLSensitivity)
	}
}

func (o *Overlay) adjustSensitivity(deltaDB float64) {
	if o.voiceMgr == nil {
		return
	}
	newDB := o.voiceMgr.AdjustSensitivity(deltaDB)
	direction := "more sensitive"
	if deltaDB < 0 {
		direction = "less sensitive"
	}
	o.setStatus(fmt.Sprintf("Mic sensitivity: %.0f dB (%s)", newDB, direction), delivery.StatusTTLSensitivity)
}

func (o *Overlay) startCapture(trigger voice.Trigger) {
	if o.voiceMgr == nil {
		return
	}
	info, started, err := o.voiceMgr.StartCapture(trigger)
	if err != nil {
		o.log.Printf("start capture failed: %v", err)
		o.setStatus("Voice capture error (see log)", delivery.StatusTTLShort)
		return
	}
	if !started {
		return
	}
	if info.FallbackNote != "" {
		o.log.Printf("%s", info.FallbackNote)
	}
}

func (o *Overlay) handleVoiceMessage(msg voice.Message) {
	switch msg.Kind {
	case voice.MsgTranscript:
		o.offerTranscript(delivery.PendingTranscript{Text: msg.Text, Source: msg.Source, Mode: o.sendMode})
	case voice.MsgEmpty:
		label := msg.Source.Label()
		text := "No speech detected (" + label + ")"
		if msg.Metrics.HasMetrics && msg.Metrics.FramesDropped > 0 {
			text = fmt.Sprintf("No speech detected (%s, dropped %d frames)", label, msg.Metrics.FramesDropped)
		}
		o.setStatus(text, delivery.StatusTTLShort)
		if o.autoVoiceEnabled {
			o.tracker.NoteActivity(time.Now())
		}
		o.rearmAutoVoiceIfIdle()
	case voice.MsgError:
		o.log.Printf("voice capture error: %s", msg.Err)
		o.setStatus("Voice capture error (see log)", delivery.StatusTTLShort)
		if o.autoVoiceEnabled {
			o.tracker.NoteActivity(time.Now())
		}
		o.rearmAutoVoiceIfIdle()
	}
}

// offerTranscript implements §4.4 steps 1-4: deliver immediately if ready
// and the queue is empty, otherwise enqueue with overflow handling, then
// retry the flush.
func (o *Overlay) offerTranscript(pt delivery.PendingTranscript) {
	now := time.Now()
	ready := o.tracker.TranscriptReady(o.lastEnterAt, o.hasLastEnter, now, o.cfg.TranscriptIdle)

	if ready && o.queue.Empty() {
		o.deliver(delivery.Batch{Text: pt.Text, Label: pt.Source.Label(), Mode: pt.Mode})
		return
	}

	if dropped := o.queue.Push(pt); dropped {
		o.setStatus(delivery.QueueFullStatus, delivery.StatusTTLShort)
	}
	o.tryFlushPending(now)
}

func (o *Overlay) deliver(batch delivery.Batch) {
	res := delivery.SendTranscript(batch.Text, batch.Mode)
	if !res.Sent {
		return
	}
	if res.AppendEnter {
		if err := o.session.SendTextWithNewline(res.Text); err == nil {
			o.lastEnterAt = time.Now()
			o.hasLastEnter = true
		} else {
			o.log.Printf("pty write failed: %v", err)
			return
		}
	} else {
		if err := o.session.SendText(res.Text); err != nil {
			o.log.Printf("pty write failed: %v", err)
			return
		}
	}

	o.setStatus(delivery.StatusFor(batch.Label, o.queue.Len()), delivery.StatusTTLShort)
	o.rearmAutoVoiceIfIdle()
}

func (o *Overlay) tryFlushPending(now time.Time) {
	ready := o.tracker.TranscriptReady(o.lastEnterAt, o.hasLastEnter, now, o.cfg.TranscriptIdle)
	if !ready || o.queue.Empty() {
		return
	}
	if batch, ok := o.queue.Flush(); ok {
		o.deliver(batch)
	}
}

// rearmAutoVoiceIfIdle implements §4.4 step 5: once the queue has drained
// and the manager is idle, an Insert-mode session with auto-voice enabled
// immediately starts a new Auto capture.
func (o *Overlay) rearmAutoVoiceIfIdle() {
	if !o.autoVoiceEnabled || o.sendMode != delivery.ModeInsert || o.voiceMgr == nil {
		return
	}
	if o.queue.Empty() && o.voiceMgr.IsIdle() {
		o.startCapture(voice.TriggerAuto)
	}
}

// evaluateAutoTrigger implements the §4.6 auto-trigger rule.
func (o *Overlay) evaluateAutoTrigger(now time.Time) {
	if !o.autoVoiceEnabled || o.voiceMgr == nil || !o.voiceMgr.IsIdle() {
		return
	}

	idleTimeout := o.cfg.AutoVoiceIdle
	fire := false

	seenAt, hasPrompt := o.tracker.LastPromptSeenAt()
	if !o.tracker.HasSeenOutput() {
		fire = !o.hasLastAutoTrigger && now.Sub(o.startedAt) >= idleTimeout
	} else if hasPrompt {
		fire = !o.hasLastAutoTrigger || seenAt.After(o.lastAutoTriggerAt)
	} else {
		newOutput := !o.hasLastAutoTrigger || o.tracker.LastOutputAt().After(o.lastAutoTriggerAt)
		fire = o.tracker.IdleReady(now, idleTimeout) && newOutput
	}

	if fire {
		o.lastAutoTriggerAt = now
		o.hasLastAutoTrigger = true
		o.startCapture(voice.TriggerAuto)
	}
}

func (o *Overlay) expireStatus(now time.Time) {
	if !o.hasStatusDeadline || now.Before(o.statusDeadline) {
		return
	}
	o.hasStatusDeadline = false
	o.writer.send(writerMsg{kind: msgClearStatus})
	if o.autoVoiceEnabled {
		o.setStickyStatus("Auto-voice enabled")
	}
}

func (o *Overlay) setStatus(text string, ttl time.Duration) {
	o.writer.send(writerMsg{kind: msgStatus, text: text})
	o.statusDeadline = time.Now().Add(ttl)
	o.hasStatusDeadline = true
}

func (o *Overlay) setStickyStatus(text string) {
	o.writer.send(writerMsg{kind: msgStatus, text: text})
	o.hasStatusDeadline = false
	o.stickyAutoVoice = true
}
