// Package controller implements the conversational turn controller of a
// widget session: the voice state machine and the text turn lifecycle,
// combined in one object so that at most one turn is ever in flight.
//
// Every operation and every asynchronous completion runs under a single
// mutex. External calls (microphone, transcription, completion, synthesis)
// happen in goroutines that re-enter through that mutex; a voice epoch
// counter discards transitions that belong to a voice session the user has
// already closed. Visible state is always updated, and announced on
// [Controller.Events] or the hook set with [WithEventHook], before an
// external call starts.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxwidget/internal/config"
	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/internal/gateway"
	"github.com/MrWong99/voxwidget/internal/notify"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/pkg/audio"
)

// suggestionDirective is appended to suggestion prompts. %s is the UI
// language name.
const suggestionDirective = "Please answer ONLY in %s, regardless of the language of the question. Do not mention language or your ability to assist in other languages. Keep your answer short and concise."

// Controller coordinates one widget session. Create it with [New].
//
// Store subscribers and the event hook run while the controller lock is
// held; they must not block and must not call back into the controller.
// Consumers that need to do I/O should read [Controller.Events] instead.
type Controller struct {
	gw            gateway.Gateway
	store         *conversation.Store
	player        audio.Player
	recorder      audio.Recorder
	notifier      notify.Notifier
	texts         func(lang string) config.LocaleTexts
	metrics       *observe.Metrics
	notifyTimeout time.Duration
	finishTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	events      *eventQueue
	hook        func(Event)
	unsubscribe func()
	slot        audio.Slot

	mu              sync.Mutex
	state           State
	phase           Phase
	busy            bool
	epoch           uint64
	rec             *recording
	locale          string
	started         bool
	welcomeID       string
	welcomeRevealed bool
	suggestion      string
	closed          bool
}

// Option configures a [Controller].
type Option func(*Controller)

// WithStore sets the turn store. Default: a new empty store.
func WithStore(s *conversation.Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithPlayer sets where synthesized replies are played. Without a player,
// voice turns skip synthesis and return to ready-to-record directly.
func WithPlayer(p audio.Player) Option {
	return func(c *Controller) { c.player = p }
}

// WithRecorder sets the microphone. Without a recorder every recording
// fails with a [CaptureError].
func WithRecorder(r audio.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithNotifier enables the contact side channel.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithLocale sets the UI language used for the greeting, suggestions and
// fallback texts. Default "pt".
func WithLocale(lang string) Option {
	return func(c *Controller) {
		if lang != "" {
			c.locale = lang
		}
	}
}

// WithTexts sets the source of localized fallback texts.
func WithTexts(fn func(lang string) config.LocaleTexts) Option {
	return func(c *Controller) { c.texts = fn }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithEventHook delivers events to fn, synchronously and in emission order,
// instead of [Controller.Events]. Calls made by the player and recorder
// happen under the same lock, so a transport that writes both through one
// queue keeps them in order with state and message events. fn must not
// block or call back into the controller.
func WithEventHook(fn func(Event)) Option {
	return func(c *Controller) { c.hook = fn }
}

// WithNotifyTimeout bounds one notification. Default 15s.
func WithNotifyTimeout(d time.Duration) Option {
	return func(c *Controller) { c.notifyTimeout = d }
}

// WithFinishTimeout bounds the wait for the recorder's trailing chunks after
// a stop. Default 5s.
func WithFinishTimeout(d time.Duration) Option {
	return func(c *Controller) { c.finishTimeout = d }
}

// New creates a controller in state idle, phase composing.
func New(gw gateway.Gateway, opts ...Option) (*Controller, error) {
	if gw == nil {
		return nil, errors.New("controller: gateway must not be nil")
	}
	c := &Controller{
		gw:            gw,
		texts:         config.AssistantConfig{}.TextsFor,
		notifyTimeout: 15 * time.Second,
		finishTimeout: 5 * time.Second,
		locale:        "pt",
	}
	for _, o := range opts {
		o(c)
	}
	if c.store == nil {
		c.store = conversation.NewStore()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.events = newEventQueue(c.hook)
	c.unsubscribe = c.store.Subscribe(func(m conversation.Message) {
		c.events.push(MessageAppended{Message: m})
	})
	return c, nil
}

// ── Accessors ───────────────────────────────────────────────────────────────

// Events returns the event stream. It is closed by [Controller.Close].
// There is a single stream; multiple readers split the events between them.
// It stays empty when an event hook is set.
func (c *Controller) Events() <-chan Event { return c.events.out }

// Store returns the turn store.
func (c *Controller) Store() *conversation.Store { return c.store }

// State returns the voice state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Phase returns the text phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Locale returns the UI language.
func (c *Controller) Locale() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locale
}

// ── Greeting and suggestions ────────────────────────────────────────────────

// Start generates the welcome message in locale (empty keeps the current
// UI language). Only the first call has an effect. The greeting counts as a
// turn, so Submit returns [ErrBusy] until it has been appended.
func (c *Controller) Start(locale string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	if _, ok := config.SupportedLanguages[locale]; ok {
		c.locale = locale
	}
	c.busy = true

	lang := c.locale
	texts := c.texts(lang)
	prompt := strings.ReplaceAll(texts.GreetingPrompt, "%s", languageName(lang))
	c.goAsync(func(ctx context.Context) {
		reply, err := c.gw.Complete(ctx, prompt, nil, lang)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.busy = false
		if c.closed {
			return
		}
		content := reply.Text
		if err != nil || strings.TrimSpace(content) == "" {
			if err != nil {
				observe.Logger(ctx).Warn("controller: greeting failed, using fallback", "err", err)
			}
			content = texts.Greeting
		}
		c.welcomeID = c.appendLocked(conversation.RoleAssistant, content).ID
		c.events.push(TurnSettled{Mode: ModeGreeting, Err: err})
	})
	return nil
}

// SetSuggestion stores a deep-linked question. It is submitted once, right
// after the welcome message has been fully revealed.
func (c *Controller) SetSuggestion(text string) error {
	text = strings.TrimSpace(text)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.welcomeRevealed {
		c.suggestion = text
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if text == "" {
		return nil
	}
	return c.SubmitSuggestion(text)
}

// RevealDone is called by the renderer when a message has been fully shown.
// Completing the welcome message releases a pending suggestion.
func (c *Controller) RevealDone(messageID string) error {
	c.mu.Lock()
	if messageID == "" || messageID != c.welcomeID || c.welcomeRevealed {
		c.mu.Unlock()
		return nil
	}
	c.welcomeRevealed = true
	pending := c.suggestion
	c.suggestion = ""
	c.mu.Unlock()

	if pending == "" {
		return nil
	}
	err := c.SubmitSuggestion(pending)
	if err != nil {
		observe.Logger(c.ctx).Info("controller: suggestion dropped", "err", err)
	}
	return err
}

// SubmitSuggestion submits text like [Controller.Submit], but asks for a
// short answer in the UI language whatever language text is in.
func (c *Controller) SubmitSuggestion(text string) error {
	text = strings.TrimSpace(text)
	c.mu.Lock()
	lang := c.locale
	c.mu.Unlock()
	directive := strings.ReplaceAll(suggestionDirective, "%s", languageName(lang))
	return c.submit(text, text+"\n\n"+directive, lang)
}

// ── Text turns ──────────────────────────────────────────────────────────────

// Submit appends text as a user message and asks for a reply. It returns
// [ErrEmptyInput] for blank text and [ErrBusy] while another turn is in
// flight or the voice session is recording or thinking.
func (c *Controller) Submit(text string) error {
	text = strings.TrimSpace(text)
	return c.submit(text, text, "")
}

func (c *Controller) submit(shown, prompt, hint string) error {
	if shown == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.busy || c.state == StateThinking || c.state == StateRecording {
		return ErrBusy
	}

	history := c.store.History()
	c.appendLocked(conversation.RoleUser, shown)
	c.busy = true
	c.setPhaseLocked(PhaseSent)
	c.notifyContactLocked(shown)
	c.setPhaseLocked(PhaseAwaitingReply)

	start := time.Now()
	c.goAsync(func(ctx context.Context) {
		reply, err := c.gw.Complete(ctx, prompt, history, hint)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.busy = false
		if c.closed {
			return
		}
		content, outcome := reply.Text, "reply"
		if err != nil {
			observe.Logger(ctx).Warn("controller: text turn failed, using fallback", "err", err)
			content, outcome = c.texts(c.locale).Error, "fallback"
		}
		c.appendLocked(conversation.RoleAssistant, content)
		c.setPhaseLocked(PhaseRendered)
		c.metrics.RecordTurn(ctx, string(ModeText), outcome, time.Since(start).Seconds())
		c.events.push(TurnSettled{Mode: ModeText, Err: err})
	})
	return nil
}

// ── Teardown ────────────────────────────────────────────────────────────────

// Close releases playback and recording, cancels outstanding calls and
// waits for them to return. Results that arrive afterwards are dropped.
// Notifications already sent are not cancelled. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.epoch++
	c.rec = nil
	c.slot.Release()
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.unsubscribe()
	c.events.close()
	return nil
}

// ── Helpers (caller holds mu) ───────────────────────────────────────────────

func (c *Controller) setStateLocked(to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.events.push(StateChanged{From: from, To: to})
}

func (c *Controller) setPhaseLocked(p Phase) {
	if c.phase == p {
		return
	}
	c.phase = p
	c.events.push(PhaseChanged{Phase: p})
}

// appendLocked appends to the store. MessageAppended is emitted by the
// store subscription installed in New.
func (c *Controller) appendLocked(role conversation.Role, content string) conversation.Message {
	return c.store.Append(role, content)
}

// goAsync runs fn on the controller context. Caller holds mu and has
// checked closed.
func (c *Controller) goAsync(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// notifyContactLocked fires a notification if text carries contact details.
// The transcript includes every message appended so far.
func (c *Controller) notifyContactLocked(text string) {
	if c.notifier == nil {
		return
	}
	contact := notify.Detect(text)
	if contact.Empty() {
		return
	}
	transcript := notify.Transcript(c.store.History())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.notifyTimeout)
		defer cancel()

		status := "sent"
		if err := c.notifier.Notify(ctx, contact, transcript); err != nil {
			status = "failed"
			observe.Logger(ctx).Error("controller: contact notification failed", "err", err)
		}
		c.metrics.RecordNotification(ctx, status)
	}()
}

// languageName returns the English name of code for prompts.
func languageName(code string) string {
	if name, ok := config.SupportedLanguages[code]; ok {
		return name
	}
	return "English"
}
