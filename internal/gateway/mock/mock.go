// Package mock provides a test double for [gateway.Gateway].
//
// Each operation either returns the configured value or, when the matching
// Func field is set, delegates to it. Funcs run outside the mock's lock, so
// they may block to simulate slow upstreams.
//
//	g := &mock.Gateway{Reply: gateway.Reply{Text: "Hi!", Language: "en"}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/internal/gateway"
	"github.com/MrWong99/voxwidget/pkg/audio"
)

// CompleteCall records one Complete invocation.
type CompleteCall struct {
	Prompt       string
	History      []conversation.Message
	LanguageHint string
}

// Gateway is a mock implementation of [gateway.Gateway].
type Gateway struct {
	mu sync.Mutex

	Reply        gateway.Reply
	CompleteErr  error
	CompleteFunc func(ctx context.Context, prompt string, history []conversation.Message, hint string) (gateway.Reply, error)

	Transcript     gateway.Transcript
	TranscribeErr  error
	TranscribeFunc func(ctx context.Context, blob audio.Blob) (gateway.Transcript, error)

	Clip           audio.Clip
	SynthesizeErr  error
	SynthesizeFunc func(ctx context.Context, text string) (audio.Clip, error)

	CompleteCalls   []CompleteCall
	TranscribeCalls []audio.Blob
	SynthesizeCalls []string
}

var _ gateway.Gateway = (*Gateway)(nil)

// Complete implements [gateway.Gateway].
func (g *Gateway) Complete(ctx context.Context, prompt string, history []conversation.Message, hint string) (gateway.Reply, error) {
	g.mu.Lock()
	g.CompleteCalls = append(g.CompleteCalls, CompleteCall{Prompt: prompt, History: slices.Clone(history), LanguageHint: hint})
	fn, reply, err := g.CompleteFunc, g.Reply, g.CompleteErr
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, history, hint)
	}
	return reply, err
}

// Transcribe implements [gateway.Gateway].
func (g *Gateway) Transcribe(ctx context.Context, blob audio.Blob) (gateway.Transcript, error) {
	g.mu.Lock()
	g.TranscribeCalls = append(g.TranscribeCalls, blob)
	fn, tr, err := g.TranscribeFunc, g.Transcript, g.TranscribeErr
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, blob)
	}
	return tr, err
}

// Synthesize implements [gateway.Gateway].
func (g *Gateway) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	g.mu.Lock()
	g.SynthesizeCalls = append(g.SynthesizeCalls, text)
	fn, clip, err := g.SynthesizeFunc, g.Clip, g.SynthesizeErr
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return clip, err
}

// Completes returns a copy of the recorded Complete calls.
func (g *Gateway) Completes() []CompleteCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.CompleteCalls)
}

// Transcribes returns the number of Transcribe calls.
func (g *Gateway) Transcribes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.TranscribeCalls)
}

// Blobs returns a copy of the blobs passed to Transcribe.
func (g *Gateway) Blobs() []audio.Blob {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.TranscribeCalls)
}

// Syntheses returns a copy of the texts passed to Synthesize.
func (g *Gateway) Syntheses() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.SynthesizeCalls)
}
