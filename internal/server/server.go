// Package server exposes the widget backend over HTTP.
//
// Routes:
//
//   - POST /api/chat, /api/transcribe, /api/tts, /api/send-email: stateless
//     pass-through endpoints backed by a [gateway.Gateway] and a
//     [notify.Notifier].
//   - GET /ws: one websocket session per widget, each with its own turn
//     controller, store and typewriter.
//   - GET /healthz, /readyz, /metrics.
//
// Every route is wrapped in [observe.Middleware].
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxwidget/internal/config"
	"github.com/MrWong99/voxwidget/internal/gateway"
	"github.com/MrWong99/voxwidget/internal/health"
	"github.com/MrWong99/voxwidget/internal/notify"
	"github.com/MrWong99/voxwidget/internal/observe"
)

// defaultMaxUploadBytes bounds request bodies and recordings.
const defaultMaxUploadBytes = 10 << 20

// SessionSettings are read once per websocket session, so hot-reloaded
// values apply to new sessions only.
type SessionSettings struct {
	// Locale is the default UI language. A start message may override it.
	Locale string

	// Texts returns the localized fallback texts.
	Texts func(lang string) config.LocaleTexts

	// Speed and StartDelay pace the typewriter. Zero keeps the renderer
	// defaults.
	Speed      time.Duration
	StartDelay time.Duration

	// NotifyTimeout bounds one contact notification. Zero keeps the
	// controller default.
	NotifyTimeout time.Duration
}

// Server holds the shared dependencies of all handlers. Create it with [New].
type Server struct {
	gw        gateway.Gateway
	notifier  notify.Notifier
	metrics   *observe.Metrics
	checks    []health.Checker
	origins   []string
	maxUpload int64
	settings  func() SessionSettings

	// sessions tracks live websocket sessions for Shutdown.
	mu       sync.Mutex
	sessions map[*session]struct{}
}

// Option configures a [Server].
type Option func(*Server)

// WithNotifier sets the notifier behind /api/send-email and the contact side
// channel of websocket sessions. Without one, /api/send-email fails closed.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithChecks adds readiness checks to /readyz.
func WithChecks(checks ...health.Checker) Option {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

// WithAllowedOrigins sets the origin patterns accepted for the /ws upgrade.
// Empty means same-origin only.
func WithAllowedOrigins(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithMaxUploadBytes caps request bodies, websocket messages and
// recordings.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithSessionSettings sets the source of per-session settings.
func WithSessionSettings(fn func() SessionSettings) Option {
	return func(s *Server) { s.settings = fn }
}

// New creates a Server answering with gw.
func New(gw gateway.Gateway, opts ...Option) *Server {
	s := &Server{
		gw:        gw,
		maxUpload: defaultMaxUploadBytes,
		settings:  func() SessionSettings { return SessionSettings{} },
		sessions:  make(map[*session]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/tts", s.handleTTS)
	mux.HandleFunc("POST /api/send-email", s.handleSendEmail)
	mux.HandleFunc("GET /ws", s.handleWS)
	health.New(s.checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(s.metrics)(mux)
}

// CloseSessions closes every live websocket session and waits for their
// controllers to shut down. http.Server.Shutdown does not track hijacked
// connections, so call this alongside it.
func (s *Server) CloseSessions() {
	s.mu.Lock()
	live := make([]*session, 0, len(s.sessions))
	for ss := range s.sessions {
		live = append(live, ss)
	}
	s.mu.Unlock()

	for _, ss := range live {
		ss.close()
	}
	for _, ss := range live {
		<-ss.done
	}
}

// Sessions returns the number of live websocket sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) track(ss *session) {
	s.mu.Lock()
	s.sessions[ss] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(ss *session) {
	s.mu.Lock()
	delete(s.sessions, ss)
	s.mu.Unlock()
}
