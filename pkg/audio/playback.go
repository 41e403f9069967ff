package audio

import "sync"

// Controls are the remote-side hooks of a [Handle]. Nil hooks are skipped.
type Controls struct {
	Pause  func() error
	Resume func() error
	Stop   func()
}

// Handle is a [Playback] whose actual output happens elsewhere; the owner
// reports the natural end of the clip with Finish.
type Handle struct {
	id  string
	ctl Controls

	mu       sync.Mutex
	paused   bool
	stopped  bool
	done     chan struct{}
	doneOnce sync.Once
}

var _ Playback = (*Handle)(nil)

// NewHandle returns an active, unpaused playback handle for messageID.
func NewHandle(messageID string, ctl Controls) *Handle {
	return &Handle{
		id:   messageID,
		ctl:  ctl,
		done: make(chan struct{}),
	}
}

// MessageID implements [Playback].
func (h *Handle) MessageID() string { return h.id }

// Pause implements [Playback].
func (h *Handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrReleased
	}
	if h.paused {
		return nil
	}
	if h.ctl.Pause != nil {
		if err := h.ctl.Pause(); err != nil {
			return err
		}
	}
	h.paused = true
	return nil
}

// Resume implements [Playback].
func (h *Handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrReleased
	}
	if !h.paused {
		return nil
	}
	if h.ctl.Resume != nil {
		if err := h.ctl.Resume(); err != nil {
			return err
		}
	}
	h.paused = false
	return nil
}

// Paused implements [Playback].
func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Done implements [Playback].
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finish marks the clip as played to the end.
func (h *Handle) Finish() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.doneOnce.Do(func() { close(h.done) })
}

// Release implements [Resource]: it stops output and closes Done.
func (h *Handle) Release() {
	h.mu.Lock()
	already := h.stopped
	h.stopped = true
	h.mu.Unlock()

	if !already && h.ctl.Stop != nil {
		h.ctl.Stop()
	}
	h.doneOnce.Do(func() { close(h.done) })
}

// Stopped reports whether the handle has finished or been released.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}
