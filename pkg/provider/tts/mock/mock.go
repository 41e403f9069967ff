// Package mock provides a test double for the tts.Provider interface.
//
//	p := &mock.Provider{Clip: audio.Clip{Data: []byte("mp3"), ContentType: "audio/mpeg"}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxwidget/pkg/audio"
	"github.com/MrWong99/voxwidget/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize.
	Clip audio.Clip

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// Calls records every Synthesize invocation in order.
	Calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, text string, voice string) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	if p.Err != nil {
		return audio.Clip{}, p.Err
	}
	return p.Clip, nil
}

// CallCount returns the number of Synthesize calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
