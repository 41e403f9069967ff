package protocol

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxwidget/internal/conversation"
)

func TestMarshalUnmarshal(t *testing.T) {
	t.Parallel()

	data, err := Marshal(MsgSubmit, SubmitPayload{Text: "Olá"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	typ, raw, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if typ != MsgSubmit {
		t.Errorf("type = %q, want submit", typ)
	}
	p, err := UnmarshalPayload[SubmitPayload](raw)
	if err != nil || p.Text != "Olá" {
		t.Errorf("payload = %+v, %v", p, err)
	}
}

func TestMarshal_NilPayload(t *testing.T) {
	t.Parallel()

	data, err := Marshal(MsgVoiceOpen, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"voice_open"}` {
		t.Errorf("envelope = %s", data)
	}
	_, raw, _ := Unmarshal(data)
	p, err := UnmarshalPayload[StartPayload](raw)
	if err != nil || p != (StartPayload{}) {
		t.Errorf("empty payload = %+v, %v", p, err)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	t.Parallel()

	if _, _, err := Unmarshal([]byte(`{"payload":{}}`)); !errors.Is(err, ErrMissingType) {
		t.Errorf("missing type err = %v", err)
	}
	if _, _, err := Unmarshal([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed envelope")
	}
	if _, err := UnmarshalPayload[SubmitPayload]([]byte(`{"text":5}`)); err == nil {
		t.Error("expected error for mistyped payload")
	}
}

func TestPlayPayload_AudioIsBase64(t *testing.T) {
	t.Parallel()

	data, err := Encode(PlayPayload{MessageID: "m1", ContentType: "audio/mpeg", Audio: []byte("ID3")})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"message_id":"m1","content_type":"audio/mpeg","audio":"SUQz"}`
	if string(data) != want {
		t.Errorf("encoded = %s, want %s", data, want)
	}
}

func TestHistoryConversion(t *testing.T) {
	t.Parallel()

	msgs := []conversation.Message{
		{Role: conversation.RoleAssistant, Content: "Welcome"},
		{Role: conversation.RoleUser, Content: "Hi"},
	}
	h := HistoryFromMessages(msgs)
	if h[0].User != UserBot || h[1].User != UserMe {
		t.Errorf("history = %+v", h)
	}

	back := MessagesFromHistory(append(h, HistoryEntry{Content: "x", User: "someone"}))
	if back[1].Role != conversation.RoleUser || back[2].Role != conversation.RoleAssistant {
		t.Errorf("messages = %+v", back)
	}
}
