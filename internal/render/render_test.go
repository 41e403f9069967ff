package render

import (
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxwidget/internal/conversation"
)

func TestFrames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		step int
		want []string
	}{
		{"per rune", "abc", 1, []string{"a", "ab", "abc"}},
		{"step two", "abcde", 2, []string{"ab", "abcd", "abcde"}},
		{"multibyte", "olá!", 1, []string{"o", "ol", "olá", "olá!"}},
		{"empty", "", 1, []string{""}},
		{"zero step", "ab", 0, []string{"a", "ab"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := slices.Collect(Frames(tt.text, tt.step))
			if !slices.Equal(got, tt.want) {
				t.Errorf("Frames(%q, %d) = %q, want %q", tt.text, tt.step, got, tt.want)
			}
		})
	}
}

func TestFrames_MonotonicPrefixes(t *testing.T) {
	t.Parallel()

	text := "Olá! Como posso ajudar hoje? 👋"
	prev := ""
	n := 0
	for f := range Frames(text, 3) {
		if !strings.HasPrefix(f, prev) || len(f) <= len(prev) && n > 0 {
			t.Fatalf("frame %q does not extend %q", f, prev)
		}
		if !strings.HasPrefix(text, f) {
			t.Fatalf("frame %q is not a prefix of the text", f)
		}
		prev = f
		n++
	}
	if prev != text {
		t.Errorf("last frame = %q, want full text", prev)
	}
}

func TestFrames_StopsEarly(t *testing.T) {
	t.Parallel()

	n := 0
	for range Frames("abcdef", 1) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterations = %d, want 2", n)
	}
}

// collector gathers frames and done notifications.
type collector struct {
	mu     sync.Mutex
	frames []Frame
	done   chan string
}

func newCollector() *collector { return &collector{done: make(chan string, 8)} }

func (c *collector) sink(f Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.frames)
}

func (c *collector) waitDone(t *testing.T) string {
	t.Helper()
	select {
	case id := <-c.done:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("reveal did not finish")
		return ""
	}
}

func TestTypewriter_RevealsAssistantMessage(t *testing.T) {
	t.Parallel()

	c := newCollector()
	tw := NewTypewriter(c.sink,
		WithSpeed(time.Millisecond), WithStartDelay(0),
		WithOnDone(func(id string) { c.done <- id }))

	msg := conversation.Message{ID: "m1", Role: conversation.RoleAssistant, Content: "Hi!"}
	tw.Show(msg)
	if id := c.waitDone(t); id != "m1" {
		t.Errorf("done id = %q, want m1", id)
	}

	frames := c.snapshot()
	var texts []string
	for _, f := range frames {
		texts = append(texts, f.Text)
	}
	if !slices.Equal(texts, []string{"H", "Hi", "Hi!"}) {
		t.Errorf("frames = %q", texts)
	}
	if !frames[len(frames)-1].Done || frames[0].Done {
		t.Error("only the last frame should be marked done")
	}
	if msg.Content != "Hi!" {
		t.Error("message was mutated")
	}
}

func TestTypewriter_UserMessageSingleFrame(t *testing.T) {
	t.Parallel()

	c := newCollector()
	tw := NewTypewriter(c.sink, WithSpeed(time.Hour), WithStartDelay(time.Hour),
		WithOnDone(func(id string) { c.done <- id }))

	tw.Show(conversation.Message{ID: "u1", Role: conversation.RoleUser, Content: "hello"})
	c.waitDone(t)

	frames := c.snapshot()
	if len(frames) != 1 || frames[0].Text != "hello" || !frames[0].Done {
		t.Errorf("frames = %+v, want one final frame", frames)
	}
}

func TestTypewriter_ShowCancelsPrevious(t *testing.T) {
	t.Parallel()

	c := newCollector()
	tw := NewTypewriter(c.sink,
		WithSpeed(time.Millisecond), WithStartDelay(0),
		WithOnDone(func(id string) { c.done <- id }))

	tw.Show(conversation.Message{ID: "slow", Role: conversation.RoleAssistant, Content: strings.Repeat("x", 10000)})
	time.Sleep(5 * time.Millisecond)
	tw.Show(conversation.Message{ID: "fast", Role: conversation.RoleAssistant, Content: "ok"})

	if id := c.waitDone(t); id != "fast" {
		t.Fatalf("done id = %q, want fast", id)
	}
	tw.Stop()

	frames := c.snapshot()
	last := frames[len(frames)-1]
	if last.MessageID != "fast" || !last.Done {
		t.Errorf("last frame = %+v, want final frame of fast", last)
	}
	for _, f := range frames {
		if f.MessageID == "slow" && f.Done {
			t.Error("cancelled reveal reached its final frame")
		}
	}
	select {
	case id := <-c.done:
		t.Errorf("unexpected extra done for %q", id)
	default:
	}
}

func TestTypewriter_StopCancels(t *testing.T) {
	t.Parallel()

	c := newCollector()
	tw := NewTypewriter(c.sink, WithStartDelay(time.Hour),
		WithOnDone(func(id string) { c.done <- id }))

	tw.Show(conversation.Message{ID: "m", Role: conversation.RoleAssistant, Content: "abc"})
	tw.Stop()

	if n := len(c.snapshot()); n != 0 {
		t.Errorf("frames after stop = %d, want 0", n)
	}
	select {
	case <-c.done:
		t.Error("OnDone called for a stopped reveal")
	default:
	}
}
