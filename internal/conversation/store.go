// Package conversation holds the turn store of a widget session: the ordered,
// append-only list of messages that is both what the widget shows and what
// is sent to the model as history.
package conversation

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a [Message].
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single entry of the conversation. Messages are values and are
// never edited after [Store.Append] returns them; a corrected reply is a new
// message.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the ordered message list of one session. It is safe for concurrent
// use, but writes are expected to come from a single owner.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	subs     map[int]func(Message)
	nextSub  int

	now   func() time.Time
	newID func() string
}

// Option configures a [Store].
type Option func(*Store)

// WithClock overrides the timestamp source. Useful in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDSource overrides the message ID generator. Useful in tests.
func WithIDSource(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore returns an empty store. Message IDs default to UUIDv7, which sort
// in creation order.
func NewStore(opts ...Option) *Store {
	s := &Store{
		subs:  make(map[int]func(Message)),
		now:   time.Now,
		newID: newMessageID,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Append assigns an ID and timestamp, stores the message and notifies all
// subscribers. Subscribers run synchronously after the store lock has been
// released, in subscription order.
func (s *Store) Append(role Role, content string) Message {
	s.mu.Lock()
	msg := Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, msg)
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
	return msg
}

// History returns a snapshot of all messages, oldest first. The returned
// slice is a copy and may be kept by the caller.
func (s *Store) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Get returns the message with the given ID.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Last returns the most recent message.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Subscribe registers fn to be called for every appended message. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Message)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// subscribers returns the callbacks in subscription order. Caller holds mu.
func (s *Store) subscribers() []func(Message) {
	if len(s.subs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(Message), len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}
