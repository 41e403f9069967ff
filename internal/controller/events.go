package controller

import (
	"sync"

	"github.com/MrWong99/voxwidget/internal/conversation"
)

// Event is emitted on [Controller.Events]. The concrete types are
// [StateChanged], [PhaseChanged], [MessageAppended], [PlaybackChanged] and
// [TurnSettled].
type Event interface {
	event()
}

// StateChanged reports a voice state transition.
type StateChanged struct {
	From, To State
}

// PhaseChanged reports a text phase transition.
type PhaseChanged struct {
	Phase Phase
}

// MessageAppended reports a new message in the store.
type MessageAppended struct {
	Message conversation.Message
}

// PlaybackStatus describes a [PlaybackChanged] event.
type PlaybackStatus string

const (
	PlaybackStarted PlaybackStatus = "started"
	PlaybackPaused  PlaybackStatus = "paused"
	PlaybackResumed PlaybackStatus = "resumed"
	PlaybackEnded   PlaybackStatus = "ended"
)

// PlaybackChanged reports a change of the active playback.
type PlaybackChanged struct {
	MessageID string
	Status    PlaybackStatus
}

// TurnSettled is emitted once per turn after its reply or fallback was
// appended. Err is the error that caused the fallback, if any.
type TurnSettled struct {
	Mode Mode
	Err  error
}

func (StateChanged) event()    {}
func (PhaseChanged) event()    {}
func (MessageAppended) event() {}
func (PlaybackChanged) event() {}
func (TurnSettled) event()     {}

// eventQueue is an unbounded FIFO in front of the Events channel so that
// emitting never blocks the controller on a slow consumer. With a hook set,
// events bypass the FIFO and go to the hook in emission order.
type eventQueue struct {
	mu      sync.Mutex
	pending []Event
	closed  bool
	hook    func(Event)

	wake chan struct{}
	stop chan struct{}
	out  chan Event
}

func newEventQueue(hook func(Event)) *eventQueue {
	q := &eventQueue{
		hook: hook,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		out:  make(chan Event),
	}
	go q.pump()
	return q
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.hook != nil {
		q.hook(e)
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// close stops the pump. Undelivered events are dropped and out is closed.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.stop)
}

func (q *eventQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, e := range batch {
			select {
			case q.out <- e:
			case <-q.stop:
				return
			}
		}

		select {
		case <-q.wake:
		case <-q.stop:
			return
		}
	}
}
