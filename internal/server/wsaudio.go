package server

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/voxwidget/internal/protocol"
	"github.com/MrWong99/voxwidget/pkg/audio"
)

// browserPlayer plays clips in the widget: the clip is sent in a play
// message and the widget reports the natural end with playback_ended.
type browserPlayer struct {
	s *session

	mu      sync.Mutex
	current *audio.Handle
}

var _ audio.Player = (*browserPlayer)(nil)

// Play implements [audio.Player]. It is called with the controller lock
// held, so it only queues the message.
func (p *browserPlayer) Play(_ context.Context, messageID string, clip audio.Clip) (audio.Playback, error) {
	payload := protocol.PlayPayload{MessageID: messageID, ContentType: clip.ContentType, Audio: clip.Data}
	if err := p.s.send(protocol.MsgPlay, payload); err != nil {
		return nil, err
	}
	ref := protocol.MessageRefPayload{MessageID: messageID}
	h := audio.NewHandle(messageID, audio.Controls{
		Pause:  func() error { return p.s.send(protocol.MsgPlayPause, ref) },
		Resume: func() error { return p.s.send(protocol.MsgPlayResume, ref) },
		Stop:   func() { _ = p.s.send(protocol.MsgPlayStop, ref) },
	})

	p.mu.Lock()
	p.current = h
	p.mu.Unlock()
	return h, nil
}

// ended finishes the current handle if it renders messageID. Reports from
// an older playback are ignored.
func (p *browserPlayer) ended(messageID string) {
	p.mu.Lock()
	h := p.current
	if h == nil || h.MessageID() != messageID {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.mu.Unlock()
	h.Finish()
}

// browserRecorder opens captures fed by the widget's MediaRecorder. Open
// sends mic_open; chunks arrive as binary frames and record_done ends the
// stream after the mic_close sent by the stop hook.
type browserRecorder struct {
	s        *session
	maxBytes int

	mu      sync.Mutex
	mime    string
	current *audio.BufferCapture
}

var _ audio.Recorder = (*browserRecorder)(nil)

// Open implements [audio.Recorder]. Permission failures reported later by
// the widget fail the returned capture.
func (r *browserRecorder) Open(_ context.Context) (audio.Capture, error) {
	r.mu.Lock()
	mime := r.mime
	r.mu.Unlock()
	if mime == "" {
		mime = "audio/webm"
	}

	c := audio.NewBufferCapture(mime,
		audio.WithMaxBytes(r.maxBytes),
		audio.WithStopFunc(func() { _ = r.s.send(protocol.MsgMicClose, nil) }),
	)
	r.mu.Lock()
	r.current = c
	r.mu.Unlock()

	if err := r.s.send(protocol.MsgMicOpen, nil); err != nil {
		r.detach(c)
		return nil, err
	}
	return c, nil
}

// setMIMEType records the container announced by record_start.
func (r *browserRecorder) setMIMEType(mime string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mime = mime
	if r.current != nil {
		r.current.SetMIMEType(mime)
	}
}

// write appends a binary chunk to the open capture. Chunks for a released
// capture are dropped.
func (r *browserRecorder) write(chunk []byte) {
	c := r.capture()
	if c == nil {
		return
	}
	if _, err := c.Write(chunk); errors.Is(err, audio.ErrReleased) {
		r.detach(c)
	}
}

func (r *browserRecorder) done() {
	if c := r.capture(); c != nil {
		c.End()
		r.detach(c)
	}
}

func (r *browserRecorder) failed(reason string) {
	if reason == "" {
		reason = "recorder failed"
	}
	if c := r.capture(); c != nil {
		c.Fail(errors.New(reason))
		r.detach(c)
	}
}

func (r *browserRecorder) capture() *audio.BufferCapture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *browserRecorder) detach(c *audio.BufferCapture) {
	r.mu.Lock()
	if r.current == c {
		r.current = nil
	}
	r.mu.Unlock()
}
