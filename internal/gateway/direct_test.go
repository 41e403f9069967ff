package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/internal/resilience"
	"github.com/MrWong99/voxwidget/pkg/audio"
	"github.com/MrWong99/voxwidget/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxwidget/pkg/provider/llm/mock"
	"github.com/MrWong99/voxwidget/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxwidget/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/voxwidget/pkg/provider/tts/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// scriptedLLM answers detector calls with detected and everything else with
// reply.
func scriptedLLM(detected, reply string) *llmmock.Provider {
	return &llmmock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if req.SystemPrompt == detectorPrompt {
				return &llm.CompletionResponse{Content: detected}, nil
			}
			return &llm.CompletionResponse{Content: reply}, nil
		},
	}
}

func newTestDirect(t *testing.T, p llm.Provider, opts ...DirectOption) *Direct {
	t.Helper()
	opts = append([]DirectOption{WithMetrics(testMetrics(t))}, opts...)
	d, err := NewDirect(context.Background(), p, opts...)
	if err != nil {
		t.Fatalf("NewDirect: %v", err)
	}
	return d
}

func TestNewDirect_RequiresLLM(t *testing.T) {
	t.Parallel()
	if _, err := NewDirect(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil llm provider")
	}
}

func TestComplete_DetectsLanguageAndBuildsPrompt(t *testing.T) {
	t.Parallel()

	p := scriptedLLM(" 'en'\n", "  We build apps.  ")
	d := newTestDirect(t, p, WithAssistant(Assistant{Persona: "You are Dengun's assistant."}))

	history := []conversation.Message{
		{Role: conversation.RoleAssistant, Content: "Welcome!"},
		{Role: conversation.RoleUser, Content: "Hi"},
		{Role: conversation.RoleAssistant, Content: "Hello, how can I help?"},
	}
	reply, err := d.Complete(context.Background(), "What do you do?", history, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Text != "We build apps." || reply.Language != "en" {
		t.Errorf("reply = %+v, want trimmed text in en", reply)
	}

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("llm calls = %d, want detector + completion", len(calls))
	}
	det := calls[0].Req
	if det.Temperature != 0.3 || det.MaxTokens != 10 {
		t.Errorf("detector params = %v/%d, want 0.3/10", det.Temperature, det.MaxTokens)
	}

	main := calls[1].Req
	if !strings.HasPrefix(main.SystemPrompt, "You are Dengun's assistant.") {
		t.Errorf("system prompt does not start with persona: %q", main.SystemPrompt)
	}
	if !strings.Contains(main.SystemPrompt, "You MUST answer EXCLUSIVELY in English") {
		t.Errorf("system prompt missing language rule: %q", main.SystemPrompt)
	}
	if main.Temperature != 0.8 || main.MaxTokens != 1000 {
		t.Errorf("completion params = %v/%d, want 0.8/1000", main.Temperature, main.MaxTokens)
	}

	wantRoles := []string{"assistant", "user", "assistant", "user"}
	if len(main.Messages) != len(wantRoles) {
		t.Fatalf("messages = %d, want %d", len(main.Messages), len(wantRoles))
	}
	for i, r := range wantRoles {
		if main.Messages[i].Role != r {
			t.Errorf("message %d role = %q, want %q", i, main.Messages[i].Role, r)
		}
	}
	if last := main.Messages[3].Content; last != "What do you do?" {
		t.Errorf("final message = %q, want the prompt", last)
	}
}

func TestComplete_HintSkipsDetection(t *testing.T) {
	t.Parallel()

	p := scriptedLLM("en", "Olá!")
	d := newTestDirect(t, p)

	reply, err := d.Complete(context.Background(), "Hello", nil, "pt-BR")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Language != "pt" {
		t.Errorf("language = %q, want pt", reply.Language)
	}
	if n := len(p.Calls()); n != 1 {
		t.Errorf("llm calls = %d, want 1 (no detection)", n)
	}
	if !strings.Contains(p.Calls()[0].Req.SystemPrompt, "in Portuguese") {
		t.Error("system prompt should name Portuguese")
	}
}

func TestComplete_UnknownDetectionFallsBackToDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    *llmmock.Provider
	}{
		{"unsupported code", scriptedLLM("xx", "ok")},
		{"detector error", &llmmock.Provider{
			CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
				if req.SystemPrompt == detectorPrompt {
					return nil, errors.New("boom")
				}
				return &llm.CompletionResponse{Content: "ok"}, nil
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := newTestDirect(t, tt.p, WithAssistant(Assistant{DefaultLanguage: "es"}))
			reply, err := d.Complete(context.Background(), "???", nil, "")
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if reply.Language != "es" {
				t.Errorf("language = %q, want default es", reply.Language)
			}
		})
	}
}

func TestComplete_Errors(t *testing.T) {
	t.Parallel()

	t.Run("upstream failure", func(t *testing.T) {
		t.Parallel()
		d := newTestDirect(t, &llmmock.Provider{CompleteErr: errors.New("503")})
		_, err := d.Complete(context.Background(), "hi", nil, "en")
		var ue *UpstreamError
		if !errors.As(err, &ue) || ue.Op != OpComplete {
			t.Fatalf("err = %v, want UpstreamError(complete)", err)
		}
	})

	t.Run("empty reply", func(t *testing.T) {
		t.Parallel()
		d := newTestDirect(t, scriptedLLM("en", "   "))
		_, err := d.Complete(context.Background(), "hi", nil, "en")
		var ue *UpstreamError
		if !errors.As(err, &ue) || !errors.Is(err, ErrEmptyReply) {
			t.Fatalf("err = %v, want UpstreamError wrapping ErrEmptyReply", err)
		}
	})

	t.Run("empty prompt", func(t *testing.T) {
		t.Parallel()
		p := scriptedLLM("en", "x")
		d := newTestDirect(t, p)
		if _, err := d.Complete(context.Background(), "  ", nil, "en"); err == nil {
			t.Fatal("expected error")
		}
		if len(p.Calls()) != 0 {
			t.Error("empty prompt must not reach the model")
		}
	})
}

func TestComplete_OpenBreakerFailsFast(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteErr: errors.New("down")}
	d := newTestDirect(t, p, WithBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}))

	_, _ = d.Complete(context.Background(), "hi", nil, "en")
	_, err := d.Complete(context.Background(), "hi", nil, "en")

	var ue *UpstreamError
	if !errors.As(err, &ue) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want UpstreamError wrapping ErrCircuitOpen", err)
	}
	if n := len(p.Calls()); n != 1 {
		t.Errorf("llm calls = %d, want 1", n)
	}

	var failing []string
	for _, c := range d.Checks() {
		if c.Check(context.Background()) != nil {
			failing = append(failing, c.Name)
		}
	}
	if len(failing) != 1 || failing[0] != "llm" {
		t.Errorf("failing checks = %v, want [llm]", failing)
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	s := &sttmock.Provider{Result: &stt.Transcript{Text: " olá ", Language: "portuguese"}}
	d := newTestDirect(t, scriptedLLM("pt", "x"), WithSTT(s))

	got, err := d.Transcribe(context.Background(), audio.Blob{Data: []byte("webm"), MIMEType: "audio/webm"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "olá" || got.Language != "pt" {
		t.Errorf("transcript = %+v", got)
	}

	empty, err := d.Transcribe(context.Background(), audio.Blob{})
	if err != nil || empty.Text != "" {
		t.Errorf("empty blob = %+v, %v", empty, err)
	}
	if s.CallCount() != 1 {
		t.Errorf("stt calls = %d, want 1", s.CallCount())
	}
}

func TestTranscribeAndSynthesize_NotConfigured(t *testing.T) {
	t.Parallel()

	d := newTestDirect(t, scriptedLLM("en", "x"))
	if _, err := d.Transcribe(context.Background(), audio.Blob{Data: []byte("x")}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Transcribe err = %v, want ErrNotConfigured", err)
	}
	if _, err := d.Synthesize(context.Background(), "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Synthesize err = %v, want ErrNotConfigured", err)
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	tp := &ttsmock.Provider{Clip: audio.Clip{Data: []byte("mp3"), ContentType: "audio/mpeg"}}
	d := newTestDirect(t, scriptedLLM("en", "x"), WithTTS(tp), WithVoice("nova"))

	clip, err := d.Synthesize(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != "mp3" {
		t.Errorf("clip = %q", clip.Data)
	}
	if tp.Calls[0].Voice != "nova" || tp.Calls[0].Text != "Hello there" {
		t.Errorf("tts call = %+v", tp.Calls[0])
	}

	tp.Err = errors.New("quota")
	if _, err := d.Synthesize(context.Background(), "again"); err == nil {
		t.Error("expected error")
	}
}

func TestDocuments_LoadFromFileAndURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	instr := filepath.Join(dir, "instructions.md")
	if err := os.WriteFile(instr, []byte("Be friendly."), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("We build apps."))
	}))
	defer srv.Close()

	p := scriptedLLM("en", "ok")
	d := newTestDirect(t, p, WithDocuments(DocumentSources{Instructions: instr, Knowledge: srv.URL + "/k.md"}))

	if docs := d.Documents(); docs.Instructions != "Be friendly." || docs.Knowledge != "We build apps." {
		t.Fatalf("documents = %+v", docs)
	}
	if _, err := d.Complete(context.Background(), "hi", nil, "en"); err != nil {
		t.Fatal(err)
	}
	sys := p.Calls()[0].Req.SystemPrompt
	if !strings.Contains(sys, "[INSTRUCTIONS]\nBe friendly.") || !strings.Contains(sys, "[KNOWLEDGE BASE]\nWe build apps.") {
		t.Errorf("system prompt missing documents: %q", sys)
	}
}

func TestDocuments_MissingDegradesToEmpty(t *testing.T) {
	t.Parallel()

	d := newTestDirect(t, scriptedLLM("en", "ok"),
		WithDocuments(DocumentSources{Instructions: filepath.Join(t.TempDir(), "missing.md")}))

	if docs := d.Documents(); docs.Instructions != "" {
		t.Errorf("instructions = %q, want empty", docs.Instructions)
	}
	if _, err := d.Complete(context.Background(), "hi", nil, "en"); err != nil {
		t.Errorf("Complete should work without documents: %v", err)
	}

	var docCheck error
	for _, c := range d.Checks() {
		if c.Name == "documents" {
			docCheck = c.Check(context.Background())
		}
	}
	if docCheck == nil {
		t.Error("documents check should report the unreadable file")
	}
}

func TestSetDocumentSources_Reloads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "k.md")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := newTestDirect(t, scriptedLLM("en", "ok"), WithDocuments(DocumentSources{Knowledge: path}))
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := d.ReloadDocuments(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := d.Documents().Knowledge; got != "v2" {
		t.Errorf("knowledge = %q, want v2", got)
	}
	if err := d.SetDocumentSources(context.Background(), DocumentSources{}); err != nil {
		t.Fatal(err)
	}
	if got := d.Documents().Knowledge; got != "" {
		t.Errorf("knowledge = %q after clearing sources", got)
	}
}

func TestSetAssistant(t *testing.T) {
	t.Parallel()

	p := scriptedLLM("en", "ok")
	d := newTestDirect(t, p)
	d.SetAssistant(Assistant{Persona: "New persona.", Temperature: 0.2, MaxTokens: 50})

	if _, err := d.Complete(context.Background(), "hi", nil, "en"); err != nil {
		t.Fatal(err)
	}
	req := p.Calls()[0].Req
	if !strings.HasPrefix(req.SystemPrompt, "New persona.") || req.Temperature != 0.2 || req.MaxTokens != 50 {
		t.Errorf("request = %+v", req)
	}
	if d.Assistant().DefaultLanguage != "pt" {
		t.Errorf("default language = %q, want pt", d.Assistant().DefaultLanguage)
	}
}

func TestParseLanguageCode(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"en":        "en",
		"'pt'":      "pt",
		" es.\n":    "es",
		"pt-BR":     "pt-BR",
		"":          "",
		"\"fr\" ok": "fr",
	}
	for in, want := range tests {
		if got := parseLanguageCode(in); got != want {
			t.Errorf("parseLanguageCode(%q) = %q, want %q", in, got, want)
		}
	}
}
