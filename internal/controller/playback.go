package controller

import (
	"context"
	"errors"

	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/pkg/audio"
)

var errStalePlayback = errors.New("playback no longer wanted")

// Speak synthesizes an assistant message and plays it, replacing any
// current playback. It does not change the voice state and is rejected
// with [ErrBusy] while recording or thinking.
func (c *Controller) Speak(messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == StateRecording || c.state == StateThinking {
		return ErrBusy
	}
	msg, ok := c.store.Get(messageID)
	if !ok || msg.Role != conversation.RoleAssistant {
		return ErrUnknownMessage
	}
	if c.player == nil {
		return nil
	}

	c.goAsync(func(ctx context.Context) {
		clip, err := c.gw.Synthesize(ctx, msg.Content)
		if err != nil {
			observe.Logger(ctx).Warn("controller: synthesis failed", "err", err, "message_id", msg.ID)
			return
		}
		_, err = c.startPlayback(ctx, msg.ID, clip, func() bool {
			return c.state != StateRecording && c.state != StateThinking
		})
		if err != nil && !errors.Is(err, errStalePlayback) {
			observe.Logger(ctx).Warn("controller: playback failed", "err", err, "message_id", msg.ID)
		}
	})
	return nil
}

// TogglePlayback pauses the active playback, or resumes it if paused.
func (c *Controller) TogglePlayback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	p, ok := c.slot.Playback()
	if !ok {
		return ErrNoPlayback
	}
	if p.Paused() {
		if err := p.Resume(); err != nil {
			return err
		}
		c.events.push(PlaybackChanged{MessageID: p.MessageID(), Status: PlaybackResumed})
		return nil
	}
	if err := p.Pause(); err != nil {
		return err
	}
	c.events.push(PlaybackChanged{MessageID: p.MessageID(), Status: PlaybackPaused})
	return nil
}

// startPlayback plays clip and swaps the playback into the slot, provided
// wanted still holds once the lock is taken.
func (c *Controller) startPlayback(ctx context.Context, messageID string, clip audio.Clip, wanted func() bool) (audio.Playback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !wanted() {
		return nil, errStalePlayback
	}
	p, err := c.player.Play(ctx, messageID, clip)
	if err != nil {
		return nil, err
	}
	c.slot.Acquire(p)
	c.events.push(PlaybackChanged{MessageID: messageID, Status: PlaybackStarted})
	return p, nil
}
