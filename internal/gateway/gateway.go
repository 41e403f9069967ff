// Package gateway is the single point through which a widget turn reaches
// the outside world: model completions, transcription and speech synthesis.
//
// Two implementations exist. [Direct] calls the configured providers in
// process and owns prompt assembly and language detection. [Remote] speaks
// to another voxwidget backend over its REST endpoints.
//
// Every failure leaves the gateway as an [*UpstreamError], so callers can
// turn any of them into one fallback message with a single errors.As.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/pkg/audio"
)

var (
	// ErrEmptyReply is wrapped in an UpstreamError when the model answered
	// with nothing but whitespace.
	ErrEmptyReply = errors.New("gateway: empty reply")

	// ErrNotConfigured is wrapped in an UpstreamError when the needed
	// provider was not configured.
	ErrNotConfigured = errors.New("gateway: provider not configured")
)

// Gateway performs the external calls of a turn. Implementations must be
// safe for concurrent use.
type Gateway interface {
	// Complete answers prompt given the earlier history, oldest first. The
	// history must not contain prompt itself. languageHint is an optional
	// ISO 639-1 code; empty asks the gateway to detect the language.
	Complete(ctx context.Context, prompt string, history []conversation.Message, languageHint string) (Reply, error)

	// Transcribe converts a finished recording to text.
	Transcribe(ctx context.Context, blob audio.Blob) (Transcript, error)

	// Synthesize renders text as playable audio.
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// Reply is a model answer and the language it was written in.
type Reply struct {
	Text     string
	Language string
}

// Transcript is the text of a recording and its detected language.
type Transcript struct {
	Text     string
	Language string
}

// Operation names used in UpstreamError.Op.
const (
	OpComplete   = "complete"
	OpTranscribe = "transcribe"
	OpSynthesize = "synthesize"
	OpNotify     = "notify"
)

// UpstreamError reports a failed external call: a transport error, a non-2xx
// response, a malformed body, an open circuit breaker or an empty reply.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// upstream wraps err unless it already is an UpstreamError.
func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
