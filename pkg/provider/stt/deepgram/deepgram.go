// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded audio API. It implements the stt.Provider interface.
//
// The recording is posted as-is; Deepgram decodes webm, ogg and the other
// browser containers itself.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/voxwidget/pkg/audio"
	"github.com/MrWong99/voxwidget/pkg/provider/stt"
)

const (
	defaultEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLanguage sets the language used when the caller passes no hint. Empty
// (the default) enables Deepgram's language detection.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithBaseURL overrides the listen endpoint, e.g. for a self-hosted
// deployment.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.endpoint = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 60s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements stt.Provider backed by the Deepgram REST API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// listenResponse is the subset of the Deepgram response we read.
type listenResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, blob audio.Blob, language string) (*stt.Transcript, error) {
	if blob.Empty() {
		return nil, errors.New("deepgram: empty recording")
	}
	if language == "" {
		language = p.language
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(language), bytes.NewReader(blob.Data))
	if err != nil {
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	if blob.MIMEType != "" {
		req.Header.Set("Content-Type", blob.MIMEType)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	return parseListenResponse(data, language)
}

// buildURL constructs the listen URL. A language pins recognition; without
// one Deepgram detects it.
func (p *Provider) buildURL(language string) string {
	q := url.Values{}
	q.Set("model", p.model)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if language != "" {
		q.Set("language", language)
	} else {
		q.Set("detect_language", "true")
	}
	return p.endpoint + "?" + q.Encode()
}

// parseListenResponse extracts the first alternative of the first channel.
// A response without channels is a recording without speech.
func parseListenResponse(data []byte, language string) (*stt.Transcript, error) {
	var resp listenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}
	t := &stt.Transcript{Language: stt.NormalizeLanguage(language)}
	if len(resp.Results.Channels) == 0 {
		return t, nil
	}
	ch := resp.Results.Channels[0]
	if ch.DetectedLanguage != "" {
		t.Language = stt.NormalizeLanguage(ch.DetectedLanguage)
	}
	if len(ch.Alternatives) > 0 {
		t.Text = strings.TrimSpace(ch.Alternatives[0].Transcript)
	}
	return t, nil
}
