// Package openai provides a TTS provider backed by the OpenAI speech API,
// using github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/MrWong99/voxwidget/pkg/audio"
	"github.com/MrWong99/voxwidget/pkg/provider/tts"
)

// maxClipBytes bounds the audio read back from the API.
const maxClipBytes = 20 << 20

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the speech model. Defaults to tts-1.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = goopenai.SpeechModel(model)
		}
	}
}

// WithVoice sets the default voice. Defaults to alloy.
func WithVoice(voice string) Option {
	return func(p *Provider) {
		if voice != "" {
			p.voice = goopenai.SpeechVoice(voice)
		}
	}
}

// WithSpeed sets the playback speed in [0.25, 4.0]. Zero keeps the default.
func WithSpeed(speed float64) Option {
	return func(p *Provider) {
		p.speed = speed
	}
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// Provider implements tts.Provider using OpenAI speech synthesis.
type Provider struct {
	client  *goopenai.Client
	model   goopenai.SpeechModel
	voice   goopenai.SpeechVoice
	speed   float64
	baseURL string
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{
		model: goopenai.TTSModel1,
		voice: goopenai.VoiceAlloy,
	}
	for _, o := range opts {
		o(p)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	p.client = goopenai.NewClientWithConfig(cfg)
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice string) (audio.Clip, error) {
	if text == "" {
		return audio.Clip{}, errors.New("openai tts: empty text")
	}

	resp, err := p.client.CreateSpeech(ctx, p.buildRequest(text, voice))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai tts: create speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(io.LimitReader(resp, maxClipBytes))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return audio.Clip{Data: data, ContentType: "audio/mpeg"}, nil
}

func (p *Provider) buildRequest(text, voice string) goopenai.CreateSpeechRequest {
	req := goopenai.CreateSpeechRequest{
		Model:          p.model,
		Input:          text,
		Voice:          p.voice,
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
		Speed:          p.speed,
	}
	if voice != "" {
		req.Voice = goopenai.SpeechVoice(voice)
	}
	return req
}
