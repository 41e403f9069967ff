// Package mock provides a test double for the stt.Provider interface.
//
//	p := &mock.Provider{Result: &stt.Transcript{Text: "hello", Language: "en"}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxwidget/pkg/audio"
	"github.com/MrWong99/voxwidget/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Blob     audio.Blob
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe. Nil returns an empty transcript.
	Result *stt.Transcript

	// Err, if non-nil, is returned from Transcribe.
	Err error

	// Calls records every Transcribe invocation in order.
	Calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(_ context.Context, blob audio.Blob, language string) (*stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Blob: blob, Language: language})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result == nil {
		return &stt.Transcript{}, nil
	}
	out := *p.Result
	return &out, nil
}

// CallCount returns the number of Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
