// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (Whisper), using github.com/sashabaranov/go-openai.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/MrWong99/voxwidget/pkg/audio"
	"github.com/MrWong99/voxwidget/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithTimeout sets the HTTP client timeout. Defaults to 60s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Provider implements stt.Provider using OpenAI Whisper.
type Provider struct {
	client  *goopenai.Client
	model   string
	baseURL string
	timeout time.Duration
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	p := &Provider{
		model:   goopenai.Whisper1,
		timeout: 60 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: p.timeout}
	p.client = goopenai.NewClientWithConfig(cfg)
	return p, nil
}

// Transcribe implements stt.Provider. The verbose JSON format is requested so
// that the detected language is part of the response.
func (p *Provider) Transcribe(ctx context.Context, blob audio.Blob, language string) (*stt.Transcript, error) {
	if blob.Empty() {
		return nil, errors.New("openai stt: empty recording")
	}

	resp, err := p.client.CreateTranscription(ctx, buildRequest(p.model, blob, language))
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcription: %w", err)
	}
	return &stt.Transcript{
		Text:     resp.Text,
		Language: stt.NormalizeLanguage(resp.Language),
	}, nil
}

func buildRequest(model string, blob audio.Blob, language string) goopenai.AudioRequest {
	return goopenai.AudioRequest{
		Model:    model,
		FilePath: blob.Filename(),
		Reader:   bytes.NewReader(blob.Data),
		Format:   goopenai.AudioResponseFormatVerboseJSON,
		Language: language,
	}
}
