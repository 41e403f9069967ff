package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/internal/health"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/internal/resilience"
	"github.com/MrWong99/voxwidget/pkg/audio"
	"github.com/MrWong99/voxwidget/pkg/provider/llm"
	"github.com/MrWong99/voxwidget/pkg/provider/stt"
	"github.com/MrWong99/voxwidget/pkg/provider/tts"
)

// Provider kinds, used as metric attributes, span names and breaker names.
const (
	kindLLM = "llm"
	kindSTT = "stt"
	kindTTS = "tts"
)

var _ Gateway = (*Direct)(nil)

// Direct is the in-process [Gateway]. It calls the configured providers
// through one circuit breaker per provider kind. No call is retried.
type Direct struct {
	llm llm.Provider
	stt stt.Provider
	tts tts.Provider

	names   map[string]string
	voice   string
	metrics *observe.Metrics
	timeout time.Duration
	client  *http.Client

	breakerCfg resilience.CircuitBreakerConfig
	llmBreaker *resilience.CircuitBreaker
	sttBreaker *resilience.CircuitBreaker
	ttsBreaker *resilience.CircuitBreaker

	assistant atomic.Pointer[Assistant]
	docs      atomic.Pointer[Documents]

	srcMu   sync.Mutex
	sources DocumentSources
	docErr  error
}

// DirectOption configures a [Direct] gateway.
type DirectOption func(*Direct)

// WithSTT sets the transcription provider.
func WithSTT(p stt.Provider) DirectOption {
	return func(d *Direct) { d.stt = p }
}

// WithTTS sets the synthesis provider.
func WithTTS(p tts.Provider) DirectOption {
	return func(d *Direct) { d.tts = p }
}

// WithProviderNames sets the provider labels used in metrics.
func WithProviderNames(llmName, sttName, ttsName string) DirectOption {
	return func(d *Direct) {
		d.names[kindLLM] = llmName
		d.names[kindSTT] = sttName
		d.names[kindTTS] = ttsName
	}
}

// WithVoice sets the TTS voice. Empty uses the provider default.
func WithVoice(voice string) DirectOption {
	return func(d *Direct) { d.voice = voice }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) DirectOption {
	return func(d *Direct) { d.metrics = m }
}

// WithTimeout bounds every upstream call. Zero means only the caller's
// context applies.
func WithTimeout(t time.Duration) DirectOption {
	return func(d *Direct) { d.timeout = t }
}

// WithBreaker sets the breaker template. Name and OnStateChange are
// overwritten per provider kind.
func WithBreaker(cfg resilience.CircuitBreakerConfig) DirectOption {
	return func(d *Direct) { d.breakerCfg = cfg }
}

// WithAssistant sets the initial prompt settings.
func WithAssistant(a Assistant) DirectOption {
	return func(d *Direct) {
		a = a.withDefaults()
		d.assistant.Store(&a)
	}
}

// WithDocuments sets where the instructions and knowledge documents are read
// from.
func WithDocuments(src DocumentSources) DirectOption {
	return func(d *Direct) { d.sources = src }
}

// WithHTTPClient sets the client used to fetch http(s) documents.
func WithHTTPClient(c *http.Client) DirectOption {
	return func(d *Direct) { d.client = c }
}

// NewDirect builds a Direct gateway around llmProvider and loads the prompt
// documents. Unreadable documents are logged and left empty; they do not
// fail construction.
func NewDirect(ctx context.Context, llmProvider llm.Provider, opts ...DirectOption) (*Direct, error) {
	if llmProvider == nil {
		return nil, errors.New("gateway: llm provider must not be nil")
	}
	d := &Direct{
		llm:    llmProvider,
		names:  map[string]string{kindLLM: kindLLM, kindSTT: kindSTT, kindTTS: kindTTS},
		client: &http.Client{Timeout: 15 * time.Second},
	}
	d.docs.Store(&Documents{})
	for _, o := range opts {
		o(d)
	}
	if d.assistant.Load() == nil {
		a := Assistant{}.withDefaults()
		d.assistant.Store(&a)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	d.llmBreaker = d.newBreaker(kindLLM)
	d.sttBreaker = d.newBreaker(kindSTT)
	d.ttsBreaker = d.newBreaker(kindTTS)

	if err := d.ReloadDocuments(ctx); err != nil {
		observe.Logger(ctx).Warn("gateway: prompt documents unavailable, continuing without them", "err", err)
	}
	return d, nil
}

func (d *Direct) newBreaker(kind string) *resilience.CircuitBreaker {
	cfg := d.breakerCfg
	cfg.Name = kind
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		ctx := context.Background()
		d.metrics.RecordBreakerTransition(ctx, name, to.String())
		observe.Logger(ctx).Warn("gateway: circuit breaker state changed", "breaker", name, "from", from, "to", to)
	}
	return resilience.NewCircuitBreaker(cfg)
}

// ── Hot reload ──────────────────────────────────────────────────────────────

// Assistant returns the current prompt settings.
func (d *Direct) Assistant() Assistant { return *d.assistant.Load() }

// SetAssistant replaces the prompt settings. Calls already in flight keep
// the settings they started with.
func (d *Direct) SetAssistant(a Assistant) {
	a = a.withDefaults()
	d.assistant.Store(&a)
}

// Documents returns the currently loaded prompt documents.
func (d *Direct) Documents() Documents { return *d.docs.Load() }

// SetDocumentSources switches to new document sources and reloads them.
func (d *Direct) SetDocumentSources(ctx context.Context, src DocumentSources) error {
	d.srcMu.Lock()
	d.sources = src
	d.srcMu.Unlock()
	return d.ReloadDocuments(ctx)
}

// ReloadDocuments re-reads the prompt documents. Whatever could be read
// replaces the current documents even when the other one failed.
func (d *Direct) ReloadDocuments(ctx context.Context) error {
	d.srcMu.Lock()
	src := d.sources
	d.srcMu.Unlock()

	docs, err := LoadDocuments(ctx, d.client, src)
	d.docs.Store(&docs)

	d.srcMu.Lock()
	d.docErr = err
	d.srcMu.Unlock()
	return err
}

// ── Gateway ─────────────────────────────────────────────────────────────────

// Complete implements [Gateway].
func (d *Direct) Complete(ctx context.Context, prompt string, history []conversation.Message, languageHint string) (Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Reply{}, upstream(OpComplete, errors.New("empty prompt"))
	}
	a := d.Assistant()
	lang := d.resolveLanguage(ctx, a, prompt, languageHint)

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt(a, d.Documents(), lang),
		Messages:     buildMessages(history, prompt),
		Temperature:  a.Temperature,
		MaxTokens:    a.MaxTokens,
	}
	resp, err := invoke(ctx, d, kindLLM, d.llmBreaker, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return d.llm.Complete(ctx, req)
	})
	if err != nil {
		return Reply{}, upstream(OpComplete, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Reply{}, upstream(OpComplete, ErrEmptyReply)
	}
	return Reply{Text: strings.TrimSpace(resp.Content), Language: lang}, nil
}

// Transcribe implements [Gateway]. An empty recording yields an empty
// transcript without an upstream call.
func (d *Direct) Transcribe(ctx context.Context, blob audio.Blob) (Transcript, error) {
	if d.stt == nil {
		return Transcript{}, upstream(OpTranscribe, ErrNotConfigured)
	}
	if blob.Empty() {
		return Transcript{}, nil
	}
	res, err := invoke(ctx, d, kindSTT, d.sttBreaker, func(ctx context.Context) (*stt.Transcript, error) {
		return d.stt.Transcribe(ctx, blob, "")
	})
	if err != nil {
		return Transcript{}, upstream(OpTranscribe, err)
	}
	if res == nil {
		return Transcript{}, nil
	}
	return Transcript{
		Text:     strings.TrimSpace(res.Text),
		Language: stt.NormalizeLanguage(res.Language),
	}, nil
}

// Synthesize implements [Gateway].
func (d *Direct) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	if d.tts == nil {
		return audio.Clip{}, upstream(OpSynthesize, ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, upstream(OpSynthesize, errors.New("empty text"))
	}
	clip, err := invoke(ctx, d, kindTTS, d.ttsBreaker, func(ctx context.Context) (audio.Clip, error) {
		return d.tts.Synthesize(ctx, text, d.voice)
	})
	if err != nil {
		return audio.Clip{}, upstream(OpSynthesize, err)
	}
	return clip, nil
}

// invoke runs fn through cb with the request timeout, a span and the
// provider metrics of kind.
func invoke[T any](ctx context.Context, d *Direct, kind string, cb *resilience.CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := observe.StartSpan(ctx, "gateway."+kind)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	provider := d.names[kind]
	start := time.Now()
	out, err := resilience.Call(ctx, cb, fn)
	d.histogram(kind).Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", provider)))

	status := "ok"
	if err != nil {
		status = "error"
		d.metrics.RecordProviderError(ctx, provider, kind)
		observe.Logger(ctx).Warn("gateway: upstream call failed", "kind", kind, "provider", provider, "err", err)
	}
	d.metrics.RecordProviderRequest(ctx, provider, kind, status)
	observe.EndSpan(span, err)
	return out, err
}

func (d *Direct) histogram(kind string) metric.Float64Histogram {
	switch kind {
	case kindSTT:
		return d.metrics.STTDuration
	case kindTTS:
		return d.metrics.TTSDuration
	default:
		return d.metrics.LLMDuration
	}
}

// ── Health ──────────────────────────────────────────────────────────────────

// Checks returns readiness checkers: one per configured provider, failing
// while its breaker is open, and one for the prompt documents.
func (d *Direct) Checks() []health.Checker {
	checks := []health.Checker{breakerCheck(d.llmBreaker)}
	if d.stt != nil {
		checks = append(checks, breakerCheck(d.sttBreaker))
	}
	if d.tts != nil {
		checks = append(checks, breakerCheck(d.ttsBreaker))
	}
	checks = append(checks, health.Checker{
		Name: "documents",
		Check: func(context.Context) error {
			d.srcMu.Lock()
			defer d.srcMu.Unlock()
			return d.docErr
		},
	})
	return checks
}

func breakerCheck(cb *resilience.CircuitBreaker) health.Checker {
	return health.Checker{
		Name: cb.Name(),
		Check: func(context.Context) error {
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit breaker %s", s)
			}
			return nil
		},
	}
}
