package audio

import "sync"

// Slot owns at most one [Resource] at a time. Acquire swaps a new resource in
// and releases the previous holder, which makes the playback handle and the
// capture session mutually exclusive without scattered stop calls.
//
// Slot is safe for concurrent use. Release callbacks of evicted resources run
// outside the internal lock.
type Slot struct {
	mu  sync.Mutex
	cur Resource
}

// Acquire places r in the slot and releases the previous resource, if any and
// if it is not r itself. A nil r behaves like [Slot.Release].
func (s *Slot) Acquire(r Resource) {
	s.mu.Lock()
	prev := s.cur
	s.cur = r
	s.mu.Unlock()

	if prev != nil && prev != r {
		prev.Release()
	}
}

// Release empties the slot and releases the held resource. It reports whether
// anything was held.
func (s *Slot) Release() bool {
	s.mu.Lock()
	prev := s.cur
	s.cur = nil
	s.mu.Unlock()

	if prev == nil {
		return false
	}
	prev.Release()
	return true
}

// Detach removes r from the slot without releasing it. It is used when the
// owner hands the resource on, e.g. when a capture is finalized rather than
// discarded. Detach reports whether r was the current holder.
func (s *Slot) Detach(r Resource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur != r {
		return false
	}
	s.cur = nil
	return true
}

// Playback returns the held resource if it is a [Playback].
func (s *Slot) Playback() (Playback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.cur.(Playback)
	return p, ok
}
