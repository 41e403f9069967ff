package protocol

import "github.com/MrWong99/voxwidget/internal/conversation"

// Who values of [HistoryEntry.User].
const (
	UserMe  = "me"
	UserBot = "bot"
)

// HistoryEntry is one message of the conversationHistory field.
type HistoryEntry struct {
	Content string `json:"content"`
	User    string `json:"user"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message             string         `json:"message"`
	ConversationHistory []HistoryEntry `json:"conversationHistory,omitempty"`
	Language            string         `json:"language,omitempty"`
}

// ChatResponse is the success body of POST /api/chat.
type ChatResponse struct {
	Reply            string `json:"reply"`
	DetectedLanguage string `json:"detectedLanguage"`
}

// TranscribeResponse is the success body of POST /api/transcribe.
type TranscribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// TTSRequest is the body of POST /api/tts.
type TTSRequest struct {
	Text string `json:"text"`
}

// SendEmailRequest is the body of POST /api/send-email.
type SendEmailRequest struct {
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Conversation string `json:"conversation"`
}

// SendEmailResponse is the success body of POST /api/send-email.
type SendEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HistoryFromMessages converts stored messages to the wire history.
func HistoryFromMessages(msgs []conversation.Message) []HistoryEntry {
	out := make([]HistoryEntry, len(msgs))
	for i, m := range msgs {
		who := UserBot
		if m.Role == conversation.RoleUser {
			who = UserMe
		}
		out[i] = HistoryEntry{Content: m.Content, User: who}
	}
	return out
}

// MessagesFromHistory converts wire history to messages. Anything that is not
// "me" is the assistant. IDs and timestamps are left empty.
func MessagesFromHistory(h []HistoryEntry) []conversation.Message {
	out := make([]conversation.Message, len(h))
	for i, e := range h {
		role := conversation.RoleAssistant
		if e.User == UserMe {
			role = conversation.RoleUser
		}
		out[i] = conversation.Message{Role: role, Content: e.Content}
	}
	return out
}

// NewMessagePayload converts a stored message to its /ws payload.
func NewMessagePayload(m conversation.Message) MessagePayload {
	return MessagePayload{ID: m.ID, Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt}
}
