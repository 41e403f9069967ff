// Package render reveals assistant messages progressively, one growing
// prefix at a time, the way the widget types replies out.
//
// Rendering is purely presentational: the message in the store is complete
// the moment it is appended and is never touched here.
package render

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxwidget/internal/conversation"
)

// Frames returns the growing prefixes of text, step runes apart, ending with
// text itself. Empty text yields a single empty frame. A step below one is
// treated as one.
func Frames(text string, step int) iter.Seq[string] {
	if step < 1 {
		step = 1
	}
	return func(yield func(string) bool) {
		if text == "" {
			yield("")
			return
		}
		n := 0
		for i := range text {
			if i == 0 {
				continue
			}
			n++
			if n%step == 0 && !yield(text[:i]) {
				return
			}
		}
		yield(text)
	}
}

// Frame is one step of a reveal.
type Frame struct {
	MessageID string
	Text      string

	// Done marks the final frame, whose Text is the whole message.
	Done bool
}

// Typewriter paces [Frames] of one message at a time. Showing a new message
// cancels the reveal in progress. The zero value is not usable; see
// [NewTypewriter].
type Typewriter struct {
	sink       func(Frame)
	onDone     func(messageID string)
	speed      time.Duration
	startDelay time.Duration
	step       int

	gen    atomic.Uint64
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a [Typewriter].
type Option func(*Typewriter)

// WithSpeed sets the delay between frames. Default 50ms.
func WithSpeed(d time.Duration) Option {
	return func(t *Typewriter) {
		if d > 0 {
			t.speed = d
		}
	}
}

// WithStartDelay sets the delay before the first frame. Default 100ms.
func WithStartDelay(d time.Duration) Option {
	return func(t *Typewriter) {
		if d >= 0 {
			t.startDelay = d
		}
	}
}

// WithStep sets how many runes each frame adds. Default 1.
func WithStep(n int) Option {
	return func(t *Typewriter) { t.step = n }
}

// WithOnDone registers fn to run after the final frame of a message has
// been emitted. Cancelled reveals do not call it.
func WithOnDone(fn func(messageID string)) Option {
	return func(t *Typewriter) { t.onDone = fn }
}

// NewTypewriter returns a Typewriter that delivers frames to sink. sink is
// called from the reveal goroutine and must not call Show.
func NewTypewriter(sink func(Frame), opts ...Option) *Typewriter {
	t := &Typewriter{
		sink:       sink,
		speed:      50 * time.Millisecond,
		startDelay: 100 * time.Millisecond,
		step:       1,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Show starts revealing msg and cancels any earlier reveal. It returns
// immediately. User messages are emitted as a single final frame.
func (t *Typewriter) Show(msg conversation.Message) {
	gen := t.gen.Add(1)
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.cancel = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer cancel()
		if msg.Role == conversation.RoleUser {
			t.finish(ctx, gen, msg)
			return
		}
		t.reveal(ctx, gen, msg)
	}()
}

// Stop cancels the reveal in progress and waits for its goroutine to exit.
func (t *Typewriter) Stop() {
	t.gen.Add(1)
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Typewriter) reveal(ctx context.Context, gen uint64, msg conversation.Message) {
	if !sleep(ctx, t.startDelay) {
		return
	}
	first := true
	for text := range Frames(msg.Content, t.step) {
		if text == msg.Content {
			break
		}
		if !first && !sleep(ctx, t.speed) {
			return
		}
		first = false
		if !t.current(ctx, gen) {
			return
		}
		t.sink(Frame{MessageID: msg.ID, Text: text})
	}
	if !first && !sleep(ctx, t.speed) {
		return
	}
	t.finish(ctx, gen, msg)
}

func (t *Typewriter) finish(ctx context.Context, gen uint64, msg conversation.Message) {
	if !t.current(ctx, gen) {
		return
	}
	t.sink(Frame{MessageID: msg.ID, Text: msg.Content, Done: true})
	if t.onDone != nil {
		t.onDone(msg.ID)
	}
}

// current reports whether the reveal of gen is still the latest one.
func (t *Typewriter) current(ctx context.Context, gen uint64) bool {
	return ctx.Err() == nil && t.gen.Load() == gen
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
