package controller

// State is the voice session state.
type State int

const (
	// StateIdle means the voice modal is closed.
	StateIdle State = iota

	// StateReady waits for the user to start recording.
	StateReady

	// StateRecording holds the capture session.
	StateRecording

	// StateThinking covers finalizing the recording, transcription and the
	// completion call.
	StateThinking

	// StateSpeaking plays the reply (or the fallback) of the last turn.
	StateSpeaking
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready-to-record"
	case StateRecording:
		return "recording"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Phase is the lifecycle of a typed turn.
type Phase int

const (
	PhaseComposing Phase = iota
	PhaseSent
	PhaseAwaitingReply
	PhaseRendered
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseComposing:
		return "composing"
	case PhaseSent:
		return "sent"
	case PhaseAwaitingReply:
		return "awaiting-reply"
	case PhaseRendered:
		return "rendered"
	default:
		return "unknown"
	}
}

// Locked reports whether text input is disabled in this phase.
func (p Phase) Locked() bool {
	return p == PhaseSent || p == PhaseAwaitingReply
}

// Mode names the kind of turn in metrics and [TurnSettled] events.
type Mode string

const (
	ModeText     Mode = "text"
	ModeVoice    Mode = "voice"
	ModeGreeting Mode = "greeting"
)
