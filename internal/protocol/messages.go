package protocol

import (
	"encoding/json"
	"time"
)

// MessageType enumerates the /ws envelope types.
type MessageType string

const (
	// Widget -> server
	MsgStart          MessageType = "start"
	MsgSubmit         MessageType = "submit"
	MsgVoiceOpen      MessageType = "voice_open"
	MsgVoiceClose     MessageType = "voice_close"
	MsgRecordStart    MessageType = "record_start"
	MsgRecordStop     MessageType = "record_stop"
	MsgRecordDone     MessageType = "record_done"
	MsgRecordFailed   MessageType = "record_failed"
	MsgPlaybackToggle MessageType = "playback_toggle"
	MsgPlaybackEnded  MessageType = "playback_ended"
	MsgSpeak          MessageType = "speak"
	MsgSuggest        MessageType = "suggest"

	// Server -> widget
	MsgState        MessageType = "state"
	MsgPhase        MessageType = "phase"
	MsgMessage      MessageType = "message"
	MsgFrame        MessageType = "frame"
	MsgMicOpen      MessageType = "mic_open"
	MsgMicClose     MessageType = "mic_close"
	MsgPlay         MessageType = "play"
	MsgPlayPause    MessageType = "play_pause"
	MsgPlayResume   MessageType = "play_resume"
	MsgPlayStop     MessageType = "play_stop"
	MsgPlayback     MessageType = "playback"
	MsgError        MessageType = "error"
)

// Envelope is the outer JSON wrapper for every text frame on /ws. Binary
// frames carry raw recorder chunks and have no envelope.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ── Widget -> server payloads ───────────────────────────────────────────────

// StartPayload opens the conversation.
type StartPayload struct {
	// Locale is the UI language, e.g. "pt". Empty uses the server default.
	Locale string `json:"locale,omitempty"`

	// Suggestion is a deep-linked question submitted once the welcome
	// message has been revealed.
	Suggestion string `json:"suggestion,omitempty"`
}

// SubmitPayload carries typed text.
type SubmitPayload struct {
	Text string `json:"text"`
}

// RecordStartPayload announces the recorder container type.
type RecordStartPayload struct {
	MIMEType string `json:"mime_type,omitempty"`
}

// RecordFailedPayload reports that the microphone could not be used.
type RecordFailedPayload struct {
	Reason string `json:"reason"`
}

// MessageRefPayload names a message, e.g. for speak or playback_ended.
type MessageRefPayload struct {
	MessageID string `json:"message_id"`
}

// ── Server -> widget payloads ───────────────────────────────────────────────

// StatePayload reports the voice session state.
type StatePayload struct {
	State string `json:"state"`
}

// PhasePayload reports the text turn phase and whether input is locked.
type PhasePayload struct {
	Phase  string `json:"phase"`
	Locked bool   `json:"locked"`
}

// MessagePayload announces an appended message.
type MessagePayload struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// FramePayload is one typewriter frame.
type FramePayload struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
}

// PlayPayload asks the widget to play a clip. Audio is base64 in JSON.
type PlayPayload struct {
	MessageID   string `json:"message_id"`
	ContentType string `json:"content_type"`
	Audio       []byte `json:"audio"`
}

// PlaybackPayload reports a playback status change ("started", "paused",
// "resumed" or "ended") so the widget can update its play button. It follows
// the play_* command that caused it.
type PlaybackPayload struct {
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status"`
}

// ErrorPayload reports a rejected request, e.g. code "busy".
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
