package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStore_AppendAssignsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return fixed }))

	msg := s.Append(RoleUser, "Hello")
	if msg.ID == "" {
		t.Error("ID is empty")
	}
	if !msg.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", msg.CreatedAt, fixed)
	}
	if msg.Role != RoleUser || msg.Content != "Hello" {
		t.Errorf("message = %+v, want user:Hello", msg)
	}
}

func TestStore_IDsAreUniqueAndOrdered(t *testing.T) {
	t.Parallel()

	s := NewStore()
	seen := make(map[string]bool)
	prev := ""
	for i := range 50 {
		m := s.Append(RoleUser, fmt.Sprint(i))
		if seen[m.ID] {
			t.Fatalf("duplicate id %q", m.ID)
		}
		seen[m.ID] = true
		if prev != "" && m.ID < prev {
			t.Fatalf("id %q sorts before previous %q", m.ID, prev)
		}
		prev = m.ID
	}
}

func TestStore_HistoryIsSnapshot(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append(RoleUser, "a")
	h := s.History()
	s.Append(RoleAssistant, "b")

	if len(h) != 1 {
		t.Fatalf("snapshot len = %d, want 1", len(h))
	}
	h[0].Content = "mutated"
	if got := s.History()[0].Content; got != "a" {
		t.Errorf("store content changed through snapshot: %q", got)
	}
}

func TestStore_SubscribeReceivesAppendsInOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var got []string
	unsub := s.Subscribe(func(m Message) { got = append(got, m.Content) })

	s.Append(RoleUser, "one")
	s.Append(RoleAssistant, "two")
	unsub()
	s.Append(RoleUser, "three")

	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("events = %v, want [one two]", got)
	}
}

func TestStore_SubscriberMayReadStore(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var lens []int
	s.Subscribe(func(Message) { lens = append(lens, s.Len()) })
	s.Append(RoleUser, "x")

	if len(lens) != 1 || lens[0] != 1 {
		t.Errorf("subscriber saw len %v, want [1]", lens)
	}
}

func TestStore_GetAndLast(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if _, ok := s.Last(); ok {
		t.Error("Last on empty store returned ok")
	}
	a := s.Append(RoleUser, "a")
	b := s.Append(RoleAssistant, "b")

	if m, ok := s.Get(a.ID); !ok || m.Content != "a" {
		t.Errorf("Get(a) = %+v, %v", m, ok)
	}
	if m, ok := s.Last(); !ok || m.ID != b.ID {
		t.Errorf("Last = %+v, want %s", m, b.ID)
	}
	if _, ok := s.Get("missing"); ok {
		t.Error("Get(missing) returned ok")
	}
}

func TestStore_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(RoleUser, "x")
			_ = s.History()
		}()
	}
	wg.Wait()
	if s.Len() != 20 {
		t.Errorf("len = %d, want 20", s.Len())
	}
}
