// Package mock provides test doubles for [audio.Player] and [audio.Recorder].
//
// Both mocks are safe for concurrent use. They record every call and expose
// the handles they create so tests can finish playbacks or feed captures at a
// moment of their choosing.
//
//	player := &mock.Player{AutoFinish: true}
//	rec := &mock.Recorder{Data: []byte("RIFF...")}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxwidget/pkg/audio"
)

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records a single invocation of [Player.Play].
type PlayCall struct {
	MessageID string
	Clip      audio.Clip
}

// Player is a mock [audio.Player]. Each Play returns a fresh [audio.Handle].
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned from Play.
	PlayErr error

	// AutoFinish makes every returned handle finish immediately, as if the
	// clip had zero length.
	AutoFinish bool

	// Calls records every Play invocation in order.
	Calls []PlayCall

	// Handles holds every handle returned by Play, in order.
	Handles []*audio.Handle

	// Pauses and Resumes count control hook invocations across all handles.
	Pauses  int
	Resumes int
	Stops   int
}

var _ audio.Player = (*Player)(nil)

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, messageID string, clip audio.Clip) (audio.Playback, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, PlayCall{MessageID: messageID, Clip: clip})
	if p.PlayErr != nil {
		err := p.PlayErr
		p.mu.Unlock()
		return nil, err
	}
	h := audio.NewHandle(messageID, audio.Controls{
		Pause:  func() error { p.count(&p.Pauses); return nil },
		Resume: func() error { p.count(&p.Resumes); return nil },
		Stop:   func() { p.count(&p.Stops) },
	})
	p.Handles = append(p.Handles, h)
	auto := p.AutoFinish
	p.mu.Unlock()

	if auto {
		h.Finish()
	}
	return h, nil
}

func (p *Player) count(n *int) {
	p.mu.Lock()
	*n++
	p.mu.Unlock()
}

// Last returns the most recent handle or nil.
func (p *Player) Last() *audio.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Handles) == 0 {
		return nil
	}
	return p.Handles[len(p.Handles)-1]
}

// CallCount returns the number of Play calls.
func (p *Player) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Active returns the number of handles that are neither finished nor released.
func (p *Player) Active() int {
	p.mu.Lock()
	handles := append([]*audio.Handle(nil), p.Handles...)
	p.mu.Unlock()

	n := 0
	for _, h := range handles {
		if !h.Stopped() {
			n++
		}
	}
	return n
}

// ─── Recorder ─────────────────────────────────────────────────────────────────

// Recorder is a mock [audio.Recorder]. Every Open returns a new
// [audio.BufferCapture] pre-filled with Data.
type Recorder struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned from Open (e.g. permission denied).
	OpenErr error

	// Data is written into every capture on Open.
	Data []byte

	// MIMEType is the container type reported by captures. Default "audio/webm".
	MIMEType string

	// Captures holds every capture returned by Open, in order.
	Captures []*audio.BufferCapture

	// Opens counts Open calls, including failed ones.
	Opens int
}

var _ audio.Recorder = (*Recorder)(nil)

// Open implements [audio.Recorder].
func (r *Recorder) Open(_ context.Context) (audio.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Opens++
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	mime := r.MIMEType
	if mime == "" {
		mime = "audio/webm"
	}
	c := audio.NewBufferCapture(mime)
	if len(r.Data) > 0 {
		_, _ = c.Write(r.Data)
	}
	r.Captures = append(r.Captures, c)
	return c, nil
}

// Last returns the most recent capture or nil.
func (r *Recorder) Last() *audio.BufferCapture {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Captures) == 0 {
		return nil
	}
	return r.Captures[len(r.Captures)-1]
}
