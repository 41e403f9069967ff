package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/internal/notify"
	"github.com/MrWong99/voxwidget/internal/protocol"
	"github.com/MrWong99/voxwidget/pkg/audio"
)

// maxResponseBytes bounds any response body read by [Remote].
const maxResponseBytes = 20 << 20

var (
	_ Gateway         = (*Remote)(nil)
	_ notify.Notifier = (*Remote)(nil)
)

// Remote is a [Gateway] backed by the REST endpoints of another voxwidget
// backend. It also forwards notifications to /api/send-email.
type Remote struct {
	baseURL string
	client  *http.Client
}

// RemoteOption configures a [Remote].
type RemoteOption func(*Remote)

// WithRemoteHTTPClient overrides the HTTP client. Default: 60s timeout.
func WithRemoteHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// NewRemote returns a Remote for the backend at baseURL, e.g.
// "http://localhost:8080".
func NewRemote(baseURL string, opts ...RemoteOption) (*Remote, error) {
	if baseURL == "" {
		return nil, errors.New("gateway: remote base URL must not be empty")
	}
	r := &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Complete implements [Gateway].
func (r *Remote) Complete(ctx context.Context, prompt string, history []conversation.Message, languageHint string) (Reply, error) {
	body := protocol.ChatRequest{
		Message:             prompt,
		ConversationHistory: protocol.HistoryFromMessages(history),
		Language:            languageHint,
	}
	var resp protocol.ChatResponse
	if err := r.postJSON(ctx, "/api/chat", body, &resp); err != nil {
		return Reply{}, upstream(OpComplete, err)
	}
	if strings.TrimSpace(resp.Reply) == "" {
		return Reply{}, upstream(OpComplete, ErrEmptyReply)
	}
	return Reply{Text: resp.Reply, Language: resp.DetectedLanguage}, nil
}

// Transcribe implements [Gateway].
func (r *Remote) Transcribe(ctx context.Context, blob audio.Blob) (Transcript, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, blob.Filename()))
	ct := blob.MIMEType
	if ct == "" {
		ct = "application/octet-stream"
	}
	hdr.Set("Content-Type", ct)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return Transcript{}, upstream(OpTranscribe, err)
	}
	if _, err := part.Write(blob.Data); err != nil {
		return Transcript{}, upstream(OpTranscribe, err)
	}
	if err := mw.Close(); err != nil {
		return Transcript{}, upstream(OpTranscribe, err)
	}

	data, _, err := r.do(ctx, "/api/transcribe", mw.FormDataContentType(), &buf)
	if err != nil {
		return Transcript{}, upstream(OpTranscribe, err)
	}
	var resp protocol.TranscribeResponse
	if err := protocol.Decode(data, &resp); err != nil {
		return Transcript{}, upstream(OpTranscribe, fmt.Errorf("decode response: %w", err))
	}
	return Transcript{Text: strings.TrimSpace(resp.Text), Language: resp.Language}, nil
}

// Synthesize implements [Gateway].
func (r *Remote) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	payload, err := protocol.Encode(protocol.TTSRequest{Text: text})
	if err != nil {
		return audio.Clip{}, upstream(OpSynthesize, err)
	}
	data, ct, err := r.do(ctx, "/api/tts", "application/json", bytes.NewReader(payload))
	if err != nil {
		return audio.Clip{}, upstream(OpSynthesize, err)
	}
	if len(data) == 0 {
		return audio.Clip{}, upstream(OpSynthesize, errors.New("empty audio"))
	}
	return audio.Clip{Data: data, ContentType: ct}, nil
}

// Notify implements [notify.Notifier] against /api/send-email.
func (r *Remote) Notify(ctx context.Context, c notify.Contact, conversation string) error {
	body := protocol.SendEmailRequest{Email: c.Email, Phone: c.Phone, Conversation: conversation}
	var resp protocol.SendEmailResponse
	if err := r.postJSON(ctx, "/api/send-email", body, &resp); err != nil {
		return upstream(OpNotify, err)
	}
	if !resp.Success {
		return upstream(OpNotify, errors.New("backend reported failure"))
	}
	return nil
}

func (r *Remote) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := protocol.Encode(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	data, _, err := r.do(ctx, path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if err := protocol.Decode(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do posts body to path and returns the response body and content type. A
// non-2xx status is an error carrying the server's error message if any.
func (r *Remote) do(ctx context.Context, path, contentType string, body io.Reader) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, body)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("POST %s: read body: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e protocol.ErrorResponse
		if protocol.Decode(data, &e) == nil && e.Error != "" {
			return nil, "", fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, e.Error)
		}
		return nil, "", fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
