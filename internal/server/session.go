package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxwidget/internal/controller"
	"github.com/MrWong99/voxwidget/internal/gateway"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/internal/protocol"
	"github.com/MrWong99/voxwidget/internal/render"
)

const (
	// writeTimeout bounds a single websocket write.
	writeTimeout = 10 * time.Second

	// maxOutbound is the number of queued envelopes after which the widget
	// is considered gone and the session is dropped.
	maxOutbound = 4096
)

var (
	// errSessionClosed is returned by send once the session is shutting down.
	errSessionClosed = errors.New("server: session closed")

	errSlowConsumer = errors.New("server: outbound queue full")
)

// outbox is the ordered outbound queue of a session. Every envelope, from
// controller events, the browser player and recorder, typewriter frames and
// replies to inbound messages, goes through it, so the widget sees them in
// the order they were produced. push never blocks.
type outbox struct {
	mu    sync.Mutex
	items [][]byte
	wake  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) push(data []byte) error {
	o.mu.Lock()
	if len(o.items) >= maxOutbound {
		o.mu.Unlock()
		return errSlowConsumer
	}
	o.items = append(o.items, data)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

func (o *outbox) take() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := o.items
	o.items = nil
	return items
}

// session is one widget connection.
type session struct {
	conn   *websocket.Conn
	ctrl   *controller.Controller
	tw     *render.Typewriter
	player *browserPlayer
	rec    *browserRecorder

	ctx    context.Context
	cancel context.CancelFunc
	out    *outbox
	done   chan struct{}

	closeOnce sync.Once
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("server: websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(s.maxUpload)

	ss, err := s.newSession(conn)
	if err != nil {
		observe.Logger(r.Context()).Error("server: create session", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	s.track(ss)
	defer s.untrack(ss)

	observe.Logger(r.Context()).Info("server: session opened", "remote", r.RemoteAddr)
	err = ss.run()
	observe.Logger(r.Context()).Info("server: session closed", "remote", r.RemoteAddr, "err", err)
}

func (s *Server) newSession(conn *websocket.Conn) (*session, error) {
	set := s.settings()
	ctx, cancel := context.WithCancel(context.Background())
	ss := &session{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		out:    newOutbox(),
		done:   make(chan struct{}),
	}
	ss.player = &browserPlayer{s: ss}
	ss.rec = &browserRecorder{s: ss, maxBytes: int(s.maxUpload)}

	opts := []controller.Option{
		controller.WithPlayer(ss.player),
		controller.WithRecorder(ss.rec),
		controller.WithMetrics(s.metrics),
		controller.WithLocale(set.Locale),
		controller.WithEventHook(ss.onEvent),
	}
	if s.notifier != nil {
		opts = append(opts, controller.WithNotifier(s.notifier))
	}
	if set.Texts != nil {
		opts = append(opts, controller.WithTexts(set.Texts))
	}
	if set.NotifyTimeout > 0 {
		opts = append(opts, controller.WithNotifyTimeout(set.NotifyTimeout))
	}
	ctrl, err := controller.New(s.gw, opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	ss.ctrl = ctrl

	rOpts := []render.Option{render.WithOnDone(func(id string) { _ = ctrl.RevealDone(id) })}
	if set.Speed > 0 {
		rOpts = append(rOpts, render.WithSpeed(set.Speed))
	}
	if set.StartDelay > 0 {
		rOpts = append(rOpts, render.WithStartDelay(set.StartDelay))
	}
	ss.tw = render.NewTypewriter(ss.sendFrame, rOpts...)
	return ss, nil
}

// run serves the session until the connection drops or close is called.
func (ss *session) run() error {
	defer close(ss.done)

	var g errgroup.Group
	g.Go(ss.writeLoop)

	err := ss.readLoop()

	// Once the controller is closed the event hook is no longer called, so
	// no new reveal can start before the typewriter stops.
	ss.cancel()
	_ = ss.ctrl.Close()
	_ = g.Wait()
	ss.tw.Stop()

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return nil
	}
	_ = ss.conn.Close(websocket.StatusNormalClosure, "")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// close stops a running session from outside.
func (ss *session) close() {
	ss.closeOnce.Do(func() {
		ss.cancel()
		_ = ss.conn.Close(websocket.StatusGoingAway, "server shutting down")
	})
}

// ── Inbound ─────────────────────────────────────────────────────────────────

func (ss *session) readLoop() error {
	for {
		typ, data, err := ss.conn.Read(ss.ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			ss.rec.write(data)
			continue
		}
		if err := ss.dispatch(data); err != nil {
			ss.sendError(err)
		}
	}
}

// dispatch applies one widget message to the controller.
func (ss *session) dispatch(data []byte) error {
	typ, raw, err := protocol.Unmarshal(data)
	if err != nil {
		return err
	}

	switch typ {
	case protocol.MsgStart:
		p, err := protocol.UnmarshalPayload[protocol.StartPayload](raw)
		if err != nil {
			return err
		}
		if p.Suggestion != "" {
			if err := ss.ctrl.SetSuggestion(p.Suggestion); err != nil {
				return err
			}
		}
		return ss.ctrl.Start(p.Locale)
	case protocol.MsgSubmit:
		p, err := protocol.UnmarshalPayload[protocol.SubmitPayload](raw)
		if err != nil {
			return err
		}
		return ss.ctrl.Submit(p.Text)
	case protocol.MsgSuggest:
		p, err := protocol.UnmarshalPayload[protocol.SubmitPayload](raw)
		if err != nil {
			return err
		}
		return ss.ctrl.SubmitSuggestion(p.Text)
	case protocol.MsgVoiceOpen:
		return ss.ctrl.OpenVoice()
	case protocol.MsgVoiceClose:
		return ss.ctrl.CloseVoice()
	case protocol.MsgRecordStart:
		p, err := protocol.UnmarshalPayload[protocol.RecordStartPayload](raw)
		if err != nil {
			return err
		}
		if p.MIMEType != "" {
			ss.rec.setMIMEType(p.MIMEType)
		}
		return ss.ctrl.StartRecording()
	case protocol.MsgRecordStop:
		return ss.ctrl.StopRecording()
	case protocol.MsgRecordDone:
		ss.rec.done()
		return nil
	case protocol.MsgRecordFailed:
		p, err := protocol.UnmarshalPayload[protocol.RecordFailedPayload](raw)
		if err != nil {
			return err
		}
		ss.rec.failed(p.Reason)
		return nil
	case protocol.MsgPlaybackToggle:
		return ss.ctrl.TogglePlayback()
	case protocol.MsgPlaybackEnded:
		p, err := protocol.UnmarshalPayload[protocol.MessageRefPayload](raw)
		if err != nil {
			return err
		}
		ss.player.ended(p.MessageID)
		return nil
	case protocol.MsgSpeak:
		p, err := protocol.UnmarshalPayload[protocol.MessageRefPayload](raw)
		if err != nil {
			return err
		}
		return ss.ctrl.Speak(p.MessageID)
	default:
		return fmt.Errorf("server: unknown message type %q", typ)
	}
}

// ── Outbound ────────────────────────────────────────────────────────────────

// onEvent translates controller events into widget messages. It runs under
// the controller lock, so it only queues.
func (ss *session) onEvent(ev controller.Event) {
	switch e := ev.(type) {
	case controller.StateChanged:
		_ = ss.send(protocol.MsgState, protocol.StatePayload{State: e.To.String()})
	case controller.PhaseChanged:
		_ = ss.send(protocol.MsgPhase, protocol.PhasePayload{Phase: e.Phase.String(), Locked: e.Phase.Locked()})
	case controller.MessageAppended:
		if ss.send(protocol.MsgMessage, protocol.NewMessagePayload(e.Message)) == nil {
			ss.tw.Show(e.Message)
		}
	case controller.PlaybackChanged:
		_ = ss.send(protocol.MsgPlayback, protocol.PlaybackPayload{MessageID: e.MessageID, Status: string(e.Status)})
	case controller.TurnSettled:
		if e.Err != nil {
			observe.Logger(ss.ctx).Debug("server: turn settled with fallback", "mode", e.Mode, "err", e.Err)
		}
	}
}

func (ss *session) writeLoop() error {
	for {
		for _, data := range ss.out.take() {
			ctx, cancel := context.WithTimeout(ss.ctx, writeTimeout)
			err := ss.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				ss.cancel()
				return err
			}
		}
		select {
		case <-ss.ctx.Done():
			return nil
		case <-ss.out.wake:
		}
	}
}

// send queues one message. It never blocks; a widget that stops reading
// long enough to fill the queue ends the session.
func (ss *session) send(typ protocol.MessageType, payload any) error {
	if ss.ctx.Err() != nil {
		return errSessionClosed
	}
	data, err := protocol.Marshal(typ, payload)
	if err != nil {
		return err
	}
	if err := ss.out.push(data); err != nil {
		observe.Logger(ss.ctx).Warn("server: dropping session", "err", err)
		ss.cancel()
		return err
	}
	return nil
}

func (ss *session) sendFrame(f render.Frame) {
	_ = ss.send(protocol.MsgFrame, protocol.FramePayload{MessageID: f.MessageID, Text: f.Text, Done: f.Done})
}

func (ss *session) sendError(err error) {
	_ = ss.send(protocol.MsgError, protocol.ErrorPayload{Code: errorCode(err), Message: err.Error()})
}

// errorCode maps controller and gateway errors to stable codes for the
// widget.
func errorCode(err error) string {
	var ue *gateway.UpstreamError
	switch {
	case errors.Is(err, controller.ErrBusy):
		return "busy"
	case errors.Is(err, controller.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, controller.ErrNotReady):
		return "not_ready"
	case errors.Is(err, controller.ErrNotRecording):
		return "not_recording"
	case errors.Is(err, controller.ErrNoPlayback):
		return "no_playback"
	case errors.Is(err, controller.ErrUnknownMessage):
		return "unknown_message"
	case errors.Is(err, controller.ErrClosed):
		return "closed"
	case errors.As(err, &ue):
		return "upstream"
	default:
		return "bad_request"
	}
}
