// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A reply is only spoken once its full text is known, so the interface takes
// the whole text and returns one encoded clip that the browser can play
// directly (MP3 by default). Providers that stream internally collect the
// chunks before returning.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/voxwidget/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text to a playable clip. voice selects a provider
	// specific voice; empty means the provider default.
	Synthesize(ctx context.Context, text string, voice string) (audio.Clip, error)
}
