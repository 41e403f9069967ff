package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/MrWong99/voxwidget/internal/conversation"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text  string
		email string
		phone string
	}{
		{"call me at 555-1234", "", "555-1234"},
		{"my number is +351 912 345 678, thanks", "", "+351 912 345 678"},
		{"write to ana.silva@example.pt please", "ana.silva@example.pt", ""},
		{"joao@mail.com or (21) 99876-5432", "joao@mail.com", "(21) 99876-5432"},
		{"order 12345 arrived", "", ""},
		{"it costs 12.50", "", ""},
		{"user1234567@example.com", "user1234567@example.com", ""},
		{"hello there", "", ""},
		{"order 2024-01-15 please", "", ""},
		{"price 1.000.000 reais", "", ""},
		{"my number is 555-1234 2 kids", "", "555-1234"},
		{"on 2024-01-15 10:30 call 555-1234", "", "555-1234"},
		{"total 1.250.000, phone 912.345.678-0", "", "912.345.678-0"},
		{"office +1 (555) 123-4567", "", "+1 (555) 123-4567"},
		{"+351912345678", "", "+351912345678"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			c := Detect(tt.text)
			if c.Email != tt.email || c.Phone != tt.phone {
				t.Errorf("Detect = %+v, want email=%q phone=%q", c, tt.email, tt.phone)
			}
			if c.Empty() != (tt.email == "" && tt.phone == "") {
				t.Errorf("Empty() = %v", c.Empty())
			}
		})
	}
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	msgs := []conversation.Message{
		{Role: conversation.RoleAssistant, Content: "Hi! How can I help?"},
		{Role: conversation.RoleUser, Content: "Call me at 555-1234"},
	}
	want := "Assistant: Hi! How can I help?\n\nCustomer: Call me at 555-1234"
	if got := Transcript(msgs); got != want {
		t.Errorf("Transcript = %q, want %q", got, want)
	}
	if Transcript(nil) != "" {
		t.Error("empty transcript should be empty")
	}
}

func TestMailer_FailsClosedWithoutAdmin(t *testing.T) {
	t.Parallel()

	sent := false
	m := NewMailer(MailerConfig{Host: "smtp.example.com"}, WithSendFunc(func(context.Context, ...*mail.Msg) error {
		sent = true
		return nil
	}))
	err := m.Notify(context.Background(), Contact{Phone: "555-1234"}, "Customer: hi")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
	if sent {
		t.Error("mail must not be sent without an admin address")
	}
}

func TestMailer_BuildsMessage(t *testing.T) {
	t.Parallel()

	var got []*mail.Msg
	m := NewMailer(MailerConfig{
		AdminEmail: "admin@example.com",
		Username:   "bot@example.com",
	}, WithSendFunc(func(_ context.Context, msgs ...*mail.Msg) error {
		got = append(got, msgs...)
		return nil
	}))

	err := m.Notify(context.Background(), Contact{Phone: "555-1234"}, "Customer: <b>hi</b>")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(got))
	}

	to := got[0].GetToString()
	if len(to) != 1 || !strings.Contains(to[0], "admin@example.com") {
		t.Errorf("To = %v", to)
	}
	if subj := got[0].GetGenHeader(mail.HeaderSubject); len(subj) != 1 || subj[0] != subject {
		t.Errorf("Subject = %v", subj)
	}

	var buf bytes.Buffer
	if _, err := got[0].WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"555-1234", notProvided, "&lt;b&gt;hi&lt;/b&gt;"} {
		if !strings.Contains(raw, want) {
			t.Errorf("mail body missing %q", want)
		}
	}
}

func TestMailer_SendError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	m := NewMailer(MailerConfig{AdminEmail: "admin@example.com", From: "bot@example.com"},
		WithSendFunc(func(context.Context, ...*mail.Msg) error { return boom }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Notify(ctx, Contact{Email: "a@b.co"}, "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped send error", err)
	}
}
