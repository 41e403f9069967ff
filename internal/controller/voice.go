package controller

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/pkg/audio"
)

// recording tracks one voice turn from StartRecording until it reaches
// thinking. Fields are guarded by the controller mutex.
type recording struct {
	epoch   uint64
	start   time.Time
	stop    chan struct{}
	stopped bool // reached thinking
	capture audio.Capture
}

// OpenVoice opens the voice modal: idle → ready-to-record. It is a no-op in
// any other state.
func (c *Controller) OpenVoice() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == StateIdle {
		c.setStateLocked(StateReady)
	}
	return nil
}

// CloseVoice closes the voice modal from any state. Playback and an active
// recording are released before it returns. A turn that is already
// thinking still appends its messages, but plays nothing and changes no
// state.
func (c *Controller) CloseVoice() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == StateIdle {
		return nil
	}
	c.epoch++
	c.rec = nil
	c.slot.Release()
	c.setStateLocked(StateIdle)
	return nil
}

// StartRecording moves ready-to-record → recording, stopping any playback
// first, and acquires the microphone in the background. A microphone
// failure ends the turn with a spoken fallback message.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.busy || c.state == StateThinking {
		return ErrBusy
	}
	if c.state != StateReady {
		return ErrNotReady
	}

	if c.slot.Release() {
		c.events.push(PlaybackChanged{Status: PlaybackEnded})
	}
	r := &recording{epoch: c.epoch, start: time.Now(), stop: make(chan struct{})}
	c.rec = r
	c.setStateLocked(StateRecording)
	c.goAsync(func(ctx context.Context) { c.runVoiceTurn(ctx, r) })
	return nil
}

// StopRecording moves recording → thinking. The recording is finalized and
// transcribed in the background.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state != StateRecording || c.rec == nil {
		return ErrNotRecording
	}
	c.beginThinkingLocked(c.rec)
	return nil
}

// beginThinkingLocked ends the recording phase of r. The capture leaves the
// slot so that closing the modal no longer discards it.
func (c *Controller) beginThinkingLocked(r *recording) {
	r.stopped = true
	close(r.stop)
	if r.capture != nil {
		c.slot.Detach(r.capture)
	}
	c.rec = nil
	c.busy = true
	c.setStateLocked(StateThinking)
}

// runVoiceTurn drives r through capture, transcription and completion.
func (c *Controller) runVoiceTurn(ctx context.Context, r *recording) {
	capture, err := c.openCapture(ctx)
	if err != nil {
		c.mu.Lock()
		if c.closed || (c.rec != r && !r.stopped) {
			c.mu.Unlock()
			return
		}
		if !r.stopped {
			c.beginThinkingLocked(r)
		}
		c.mu.Unlock()
		c.settleVoice(ctx, r, "", &CaptureError{Err: err})
		return
	}

	c.mu.Lock()
	if c.closed || (c.rec != r && !r.stopped) {
		c.mu.Unlock()
		capture.Release()
		return
	}
	r.capture = capture
	recordingNow := !r.stopped
	if recordingNow {
		c.slot.Acquire(capture)
	}
	c.mu.Unlock()

	if recordingNow {
		select {
		case <-r.stop:
		case <-capture.Ended():
		case <-ctx.Done():
		}
		c.mu.Lock()
		if !r.stopped {
			if c.rec != r || c.closed {
				c.mu.Unlock()
				return
			}
			c.beginThinkingLocked(r)
		}
		c.mu.Unlock()
	}

	fctx, cancel := context.WithTimeout(ctx, c.finishTimeout)
	blob, err := capture.Finish(fctx)
	cancel()
	if err != nil {
		c.settleVoice(ctx, r, "", &CaptureError{Err: err})
		return
	}

	tr, err := c.gw.Transcribe(ctx, blob)
	if err != nil {
		c.settleVoice(ctx, r, "", err)
		return
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		c.settleVoice(ctx, r, "", &EmptyTranscriptError{Language: tr.Language})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.busy = false
		c.mu.Unlock()
		return
	}
	history := c.store.History()
	c.appendLocked(conversation.RoleUser, text)
	c.notifyContactLocked(text)
	c.mu.Unlock()

	reply, err := c.gw.Complete(ctx, text, history, tr.Language)
	c.settleVoice(ctx, r, reply.Text, err)
}

func (c *Controller) openCapture(ctx context.Context) (audio.Capture, error) {
	if c.recorder == nil {
		return nil, errNoRecorder
	}
	return c.recorder.Open(ctx)
}

// settleVoice appends the reply, or the fallback when err is set, ends the
// turn and, if the voice session is still the one that started it, moves
// to speaking and plays the message.
func (c *Controller) settleVoice(ctx context.Context, r *recording, text string, err error) {
	c.mu.Lock()
	c.busy = false
	if c.closed {
		c.mu.Unlock()
		return
	}

	outcome := "reply"
	if err != nil {
		outcome = "fallback"
		if errors.Is(err, ErrEmptyTranscript) {
			outcome = "empty_transcript"
		}
		observe.Logger(ctx).Warn("controller: voice turn failed, using fallback", "err", err)
		text = c.texts(c.locale).Error
	}
	msg := c.appendLocked(conversation.RoleAssistant, text)
	c.metrics.RecordTurn(ctx, string(ModeVoice), outcome, time.Since(r.start).Seconds())
	c.events.push(TurnSettled{Mode: ModeVoice, Err: err})

	live := c.epoch == r.epoch && c.state == StateThinking
	if live {
		c.setStateLocked(StateSpeaking)
	}
	c.mu.Unlock()

	if live {
		c.speakReply(ctx, r.epoch, msg)
	}
}

// speakReply synthesizes and plays msg, then returns speaking →
// ready-to-record. Synthesis and playback failures count as the end of
// playback.
func (c *Controller) speakReply(ctx context.Context, epoch uint64, msg conversation.Message) {
	var p audio.Playback
	if c.player != nil {
		clip, err := c.gw.Synthesize(ctx, msg.Content)
		if err != nil {
			observe.Logger(ctx).Warn("controller: synthesis failed, skipping playback", "err", err, "message_id", msg.ID)
		} else {
			p, err = c.startPlayback(ctx, msg.ID, clip, func() bool {
				return c.epoch == epoch && c.state == StateSpeaking
			})
			if err != nil && !errors.Is(err, errStalePlayback) {
				observe.Logger(ctx).Warn("controller: playback failed", "err", err, "message_id", msg.ID)
			}
		}
	}

	if p != nil {
		select {
		case <-p.Done():
		case <-ctx.Done():
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p != nil && c.slot.Detach(p) {
		c.events.push(PlaybackChanged{MessageID: msg.ID, Status: PlaybackEnded})
	}
	if !c.closed && c.epoch == epoch && c.state == StateSpeaking {
		c.setStateLocked(StateReady)
	}
}
