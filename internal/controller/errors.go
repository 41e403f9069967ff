package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy rejects a submit or recording start while a turn is in
	// flight. The rejected call has no effect.
	ErrBusy = errors.New("controller: turn in progress")

	// ErrEmptyInput rejects a submit of empty or whitespace-only text.
	ErrEmptyInput = errors.New("controller: empty input")

	// ErrNotReady rejects StartRecording outside ready-to-record.
	ErrNotReady = errors.New("controller: voice session not ready to record")

	// ErrNotRecording rejects StopRecording when nothing is being recorded.
	ErrNotRecording = errors.New("controller: not recording")

	// ErrNoPlayback is returned by TogglePlayback when nothing is playing.
	ErrNoPlayback = errors.New("controller: no active playback")

	// ErrUnknownMessage is returned by Speak for IDs that do not name an
	// assistant message.
	ErrUnknownMessage = errors.New("controller: unknown assistant message")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("controller: closed")

	// ErrEmptyTranscript is matched by [EmptyTranscriptError].
	ErrEmptyTranscript = errors.New("controller: empty transcript")

	errNoRecorder = errors.New("no recorder configured")
)

// CaptureError reports that the microphone could not be acquired or the
// recorder failed.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("controller: capture: %v", e.Err) }

func (e *CaptureError) Unwrap() error { return e.Err }

// EmptyTranscriptError reports a recording that transcribed to no usable
// text.
type EmptyTranscriptError struct {
	// Language is the language the transcriber detected, if any.
	Language string
}

func (e *EmptyTranscriptError) Error() string {
	if e.Language == "" {
		return ErrEmptyTranscript.Error()
	}
	return fmt.Sprintf("%v (language %s)", ErrEmptyTranscript, e.Language)
}

func (e *EmptyTranscriptError) Unwrap() error { return ErrEmptyTranscript }
