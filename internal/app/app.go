// Package app wires all voxwidget subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the gateway, notifier
// and HTTP server from the config, Run serves until the context is
// cancelled, and Shutdown tears everything down in order. ApplyConfig is the
// hot-reload callback for a [config.Watcher].
//
// For testing, inject doubles via functional options (WithNotifier,
// WithListener, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxwidget/internal/config"
	"github.com/MrWong99/voxwidget/internal/gateway"
	"github.com/MrWong99/voxwidget/internal/notify"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/internal/resilience"
	"github.com/MrWong99/voxwidget/internal/server"
	"github.com/MrWong99/voxwidget/pkg/provider/llm"
	"github.com/MrWong99/voxwidget/pkg/provider/stt"
	"github.com/MrWong99/voxwidget/pkg/provider/tts"
)

// reloadTimeout bounds a document reload triggered by a config change.
const reloadTimeout = 30 * time.Second

// Providers holds one interface value per provider slot. Nil STT or TTS
// means the provider is not configured. Populated by main.go via the config
// registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes of the widget backend.
type App struct {
	cfg       atomic.Pointer[config.Config]
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics  *observe.Metrics
	level    *slog.LevelVar
	notifier notify.Notifier
	gw       *gateway.Direct
	srv      *server.Server
	httpSrv  *http.Server
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithNotifier injects a notifier instead of building an SMTP mailer from
// config.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets ApplyConfig change the level of the process logger.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithListener makes Run serve on ln instead of listening on
// server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New loads the prompt documents synchronously. Unreadable documents are
// logged and do not fail construction.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}
	a := &App{providers: providers}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level != nil {
		a.level.Set(slogLevel(cfg.Server.LogLevel))
	}

	// ── 1. Gateway ──────────────────────────────────────────────────────
	if err := a.initGateway(ctx); err != nil {
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}

	// ── 2. Notifier ─────────────────────────────────────────────────────
	a.initNotifier()

	// ── 3. HTTP server ──────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initGateway(ctx context.Context) error {
	cfg := a.cfg.Load()
	p := cfg.Providers

	opts := []gateway.DirectOption{
		gateway.WithProviderNames(p.LLM.Name, p.STT.Name, p.TTS.Name),
		gateway.WithVoice(p.TTS.Voice),
		gateway.WithMetrics(a.metrics),
		gateway.WithTimeout(cfg.Resilience.RequestTimeout),
		gateway.WithBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
		}),
		gateway.WithAssistant(assistantFrom(cfg.Assistant)),
		gateway.WithDocuments(documentsFrom(cfg.Assistant)),
	}
	if a.providers.STT != nil {
		opts = append(opts, gateway.WithSTT(a.providers.STT))
	} else {
		slog.Warn("no stt provider configured, voice input disabled")
	}
	if a.providers.TTS != nil {
		opts = append(opts, gateway.WithTTS(a.providers.TTS))
	} else {
		slog.Warn("no tts provider configured, spoken replies disabled")
	}

	gw, err := gateway.NewDirect(ctx, a.providers.LLM, opts...)
	if err != nil {
		return err
	}
	a.gw = gw
	return nil
}

// initNotifier builds the SMTP mailer unless a notifier was injected. An
// unconfigured mailer is kept: it fails every notification, which the
// endpoint reports as an error.
func (a *App) initNotifier() {
	if a.notifier != nil {
		return
	}
	n := a.cfg.Load().Notify
	mailer := notify.NewMailer(notify.MailerConfig{
		AdminEmail: n.AdminEmail,
		Host:       n.SMTP.Host,
		Port:       n.SMTP.Port,
		Username:   n.SMTP.Username,
		Password:   n.SMTP.Password,
		From:       n.SMTP.From,
	})
	if !mailer.Configured() {
		slog.Warn("notify.admin_email not set, contact notifications disabled")
	}
	a.notifier = mailer
}

func (a *App) initServer() {
	cfg := a.cfg.Load()
	a.srv = server.New(a.gw,
		server.WithNotifier(a.notifier),
		server.WithMetrics(a.metrics),
		server.WithChecks(a.gw.Checks()...),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithSessionSettings(a.sessionSettings),
	)
	a.httpSrv = &http.Server{
		Handler:           a.srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// sessionSettings reads the current config for a new websocket session.
func (a *App) sessionSettings() server.SessionSettings {
	cfg := a.cfg.Load()
	asst := cfg.Assistant
	return server.SessionSettings{
		Locale:        asst.Locale,
		Texts:         asst.TextsFor,
		Speed:         cfg.Render.Speed,
		StartDelay:    cfg.Render.StartDelay,
		NotifyTimeout: cfg.Notify.Timeout,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.httpSrv.Handler }

// Gateway returns the in-process gateway.
func (a *App) Gateway() *gateway.Direct { return a.gw }

// Config returns the config currently in effect.
func (a *App) Config() *config.Config { return a.cfg.Load() }

// Run serves HTTP until ctx is cancelled or the listener fails. It does not
// tear anything down; call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg.Load()
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen on %q: %w", cfg.Server.ListenAddr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if tls := cfg.Server.TLS; tls != nil {
			errCh <- a.httpSrv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.httpSrv.Serve(ln)
	}()
	slog.Info("serving", "addr", ln.Addr().String(), "tls", cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a changed config. It
// matches [config.ChangeFunc]. Sections listed in d.RestartRequired are
// logged and keep their old values until restart.
func (a *App) ApplyConfig(_, next *config.Config, d config.ConfigDiff) {
	cur := a.cfg.Load()
	merged := *cur
	merged.Server.LogLevel = next.Server.LogLevel
	merged.Assistant = next.Assistant
	merged.Render = next.Render

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AssistantChanged {
		a.gw.SetAssistant(assistantFrom(next.Assistant))
		slog.Info("assistant settings reloaded")
	}
	if d.DocumentsChanged {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		if err := a.gw.SetDocumentSources(ctx, documentsFrom(next.Assistant)); err != nil {
			slog.Warn("prompt documents reloaded with errors", "err", err)
		} else {
			slog.Info("prompt documents reloaded")
		}
		cancel()
	}
	if d.RenderChanged {
		slog.Info("render settings changed, applies to new sessions", "speed", next.Render.Speed)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "sections", d.RestartRequired)
	}
	a.cfg.Store(&merged)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, closes every websocket session and
// runs the closers. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.srv.Sessions(), "closers", len(a.closers))

		// Hijacked websocket connections are not tracked by http.Server.
		if err := a.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}
		a.srv.CloseSessions()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// AddCloser registers fn to run during Shutdown, after the server stopped.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// assistantFrom converts the config section into gateway prompt settings.
func assistantFrom(c config.AssistantConfig) gateway.Assistant {
	return gateway.Assistant{
		Persona:         c.Persona,
		DefaultLanguage: c.DefaultLanguage,
		Temperature:     c.Temperature,
		MaxTokens:       c.MaxTokens,
	}
}

func documentsFrom(c config.AssistantConfig) gateway.DocumentSources {
	return gateway.DocumentSources{Instructions: c.Instructions, Knowledge: c.Knowledge}
}

// slogLevel converts a config.LogLevel to a slog.Level.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
