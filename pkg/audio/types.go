// Package audio holds the exclusive audio resources of a widget session: the
// recorder capture session and the playback handle of a synthesized reply.
//
// Both resources share a single [Slot]. Acquiring a resource swaps it into
// the slot and releases whatever was held before, so a recording can never
// overlap a playback and two playbacks can never overlap each other.
package audio

import (
	"context"
	"errors"
)

// ErrReleased is returned by operations on a resource that has already been
// released from its [Slot].
var ErrReleased = errors.New("audio: resource released")

// Blob is a finalized recording ready for transcription.
type Blob struct {
	// Data is the encoded audio container as produced by the recorder
	// (typically webm/opus or ogg from a browser MediaRecorder).
	Data []byte

	// MIMEType describes Data, e.g. "audio/webm". Empty means unknown.
	MIMEType string
}

// Empty reports whether the blob carries no audio bytes.
func (b Blob) Empty() bool { return len(b.Data) == 0 }

// Filename returns a file name with an extension matching MIMEType. Upload
// APIs such as Whisper infer the container format from the extension.
func (b Blob) Filename() string {
	switch b.MIMEType {
	case "audio/ogg", "audio/ogg;codecs=opus":
		return "audio.ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "audio.wav"
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "audio.m4a"
	default:
		return "audio.webm"
	}
}

// Clip is a synthesized, playable audio resource.
type Clip struct {
	// Data is the encoded audio payload.
	Data []byte

	// ContentType is the MIME type of Data, e.g. "audio/mpeg".
	ContentType string
}

// Resource is anything that can occupy a [Slot]. Release must be idempotent
// and must not block on network I/O for longer than it takes to signal the
// remote side.
type Resource interface {
	Release()
}

// Playback is the handle of a single active audio playback. It is tagged with
// the ID of the message whose content it renders.
type Playback interface {
	Resource

	// MessageID returns the ID of the message being spoken.
	MessageID() string

	// Pause suspends output. Pausing a paused playback is a no-op.
	Pause() error

	// Resume continues a paused playback.
	Resume() error

	// Paused reports whether output is currently suspended.
	Paused() bool

	// Done is closed when the playback ends, either because the clip finished
	// or because the handle was released.
	Done() <-chan struct{}
}

// Player starts playbacks. Implementations deliver the clip to wherever the
// sound is actually produced (a browser over a websocket, a speaker, a test).
type Player interface {
	Play(ctx context.Context, messageID string, clip Clip) (Playback, error)
}

// Capture is an active recording. Release discards the recording; Finish
// stops the recorder and returns what was captured.
type Capture interface {
	Resource

	// Finish stops recording and returns the captured audio. Calling Finish
	// after Release returns [ErrReleased].
	Finish(ctx context.Context) (Blob, error)

	// Ended is closed when the recorder stops on its own (the source closed,
	// a size limit was reached). The owner should then call Finish.
	Ended() <-chan struct{}
}

// Recorder acquires the microphone and opens a capture. Acquisition is a
// blocking step (permission prompts, device start-up) and may fail.
type Recorder interface {
	Open(ctx context.Context) (Capture, error)
}
