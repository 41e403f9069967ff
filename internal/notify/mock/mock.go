// Package mock provides a test double for the notify.Notifier interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxwidget/internal/notify"
)

// NotifyCall records a single Notify invocation.
type NotifyCall struct {
	Contact      notify.Contact
	Conversation string
}

// Notifier is a mock implementation of notify.Notifier.
type Notifier struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from Notify.
	Err error

	// Calls records every Notify invocation in order.
	Calls []NotifyCall

	// Notified, if non-nil, receives a value after each call is recorded.
	Notified chan struct{}
}

var _ notify.Notifier = (*Notifier)(nil)

// Notify implements notify.Notifier.
func (n *Notifier) Notify(_ context.Context, contact notify.Contact, conversation string) error {
	n.mu.Lock()
	n.Calls = append(n.Calls, NotifyCall{Contact: contact, Conversation: conversation})
	err, ch := n.Err, n.Notified
	n.mu.Unlock()
	if ch != nil {
		ch <- struct{}{}
	}
	return err
}

// CallsSnapshot returns a copy of the recorded calls.
func (n *Notifier) CallsSnapshot() []NotifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotifyCall(nil), n.Calls...)
}
