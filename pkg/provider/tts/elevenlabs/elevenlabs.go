// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. The whole reply is sent in one go and
// the returned audio chunks are collected into a single MP3 clip.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/MrWong99/voxwidget/pkg/audio"
	"github.com/MrWong99/voxwidget/pkg/provider/tts"
)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"

	// maxClipBytes bounds the collected audio of one reply.
	maxClipBytes = 20 << 20
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithVoice sets the default voice ID used when Synthesize gets none.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voice = voiceID
	}
}

// WithOutputFormat sets the audio output format. Only mp3_* formats produce a
// clip browsers can play without a container.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		if format != "" {
			p.outputFormat = format
		}
	}
}

// WithBaseURL overrides the WebSocket origin, e.g. for a proxy or tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	voice        string
	outputFormat string
	baseURL      string
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ── Wire types ──────────────────────────────────────────────────────────────

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage opens the stream. ElevenLabs requires a single space as text.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

type textMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider. It returns once ElevenLabs reports the
// final chunk or closes the connection.
func (p *Provider) Synthesize(ctx context.Context, text string, voice string) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, errors.New("elevenlabs: empty text")
	}
	if voice == "" {
		voice = p.voice
	}
	if voice == "" {
		return audio.Clip{}, errors.New("elevenlabs: no voice configured")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice), nil)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxClipBytes)

	frames := []any{
		boiMessage{
			Text:          " ",
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			XiAPIKey:      p.apiKey,
		},
		textMessage{Text: text + " ", TryTriggerGeneration: true},
		textMessage{Text: ""},
	}
	for _, f := range frames {
		data, err := sonic.Marshal(f)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("elevenlabs: encode frame: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return audio.Clip{}, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	var buf bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && buf.Len() > 0 {
				break
			}
			return audio.Clip{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		final, err := appendChunk(&buf, msg)
		if err != nil {
			return audio.Clip{}, err
		}
		if buf.Len() > maxClipBytes {
			return audio.Clip{}, errors.New("elevenlabs: audio exceeds size limit")
		}
		if final {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if buf.Len() == 0 {
		return audio.Clip{}, errors.New("elevenlabs: no audio received")
	}
	return audio.Clip{Data: buf.Bytes(), ContentType: contentType(p.outputFormat)}, nil
}

// appendChunk decodes one server frame into buf and reports whether it was
// the final one.
func appendChunk(buf *bytes.Buffer, msg []byte) (bool, error) {
	var resp audioResponse
	if err := sonic.Unmarshal(msg, &resp); err != nil {
		return false, fmt.Errorf("elevenlabs: decode frame: %w", err)
	}
	if resp.Error != "" {
		return false, fmt.Errorf("elevenlabs: server error: %s", resp.Error)
	}
	if resp.Audio != "" {
		chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil {
			return false, fmt.Errorf("elevenlabs: decode audio: %w", err)
		}
		buf.Write(chunk)
	}
	return resp.IsFinal, nil
}

func (p *Provider) streamURL(voice string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.baseURL, url.PathEscape(voice), q.Encode())
}

func contentType(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "ulaw"):
		return "audio/basic"
	case strings.HasPrefix(format, "pcm"):
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
