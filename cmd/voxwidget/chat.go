package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/MrWong99/voxwidget/internal/config"
	"github.com/MrWong99/voxwidget/internal/controller"
	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/internal/gateway"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/internal/render"
)

// turnTimeout bounds how long the terminal waits for one reply.
const turnTimeout = 2 * time.Minute

func runChat(args []string) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	baseURL := fs.String("url", "http://localhost:8080", "base URL of a running voxwidget server")
	locale := fs.String("locale", "en", "UI language of the session")
	speed := fs.Duration("speed", 20*time.Millisecond, "typewriter delay between frames")
	verbose := fs.Bool("v", false, "log state changes to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	lv := new(slog.LevelVar)
	logLevel := config.LogWarn
	if *verbose {
		logLevel = config.LogDebug
	}
	slog.SetDefault(newLogger(lv, logLevel))

	gw, err := gateway.NewRemote(*baseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxwidget: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing only: the controller's metrics stay no-op without /metrics.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxwidget-chat",
		ServiceVersion: version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxwidget: %v\n", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(sctx)
	}()

	t, err := newTerminalChat(gw, os.Stdout, *locale, *speed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxwidget: %v\n", err)
		return 1
	}
	defer t.close()

	if err := t.run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "voxwidget: %v\n", err)
		return 1
	}
	return 0
}

// terminalChat drives a text-only controller from a line-based terminal.
// The remote gateway's Notify method makes it the contact notifier too, so
// contact details typed here reach the server's mailer.
type terminalChat struct {
	ctrl *controller.Controller
	tw   *render.Typewriter
	out  io.Writer

	// revealed is signalled when the reveal of an assistant reply ends.
	revealed chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	printed map[string]int
}

func newTerminalChat(gw *gateway.Remote, out io.Writer, locale string, speed time.Duration) (*terminalChat, error) {
	ctrl, err := controller.New(gw,
		controller.WithLocale(locale),
		controller.WithNotifier(gw),
	)
	if err != nil {
		return nil, err
	}
	t := &terminalChat{
		ctrl:     ctrl,
		out:      out,
		revealed: make(chan struct{}, 1),
		done:     make(chan struct{}),
		printed:  make(map[string]int),
	}
	t.tw = render.NewTypewriter(t.frame,
		render.WithSpeed(speed),
		render.WithStartDelay(speed),
		render.WithOnDone(func(id string) {
			_ = ctrl.RevealDone(id)
			select {
			case t.revealed <- struct{}{}:
			default:
			}
		}),
	)
	go t.events()
	return t, nil
}

// run shows the greeting, then submits one line of input per turn until in
// is exhausted or ctx is cancelled.
func (t *terminalChat) run(ctx context.Context, in io.Reader) error {
	if err := t.ctrl.Start(""); err != nil {
		return err
	}
	if err := t.waitReveal(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(t.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(t.out)
				return nil
			}
			line = l
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := t.ctrl.Submit(line); err != nil {
			fmt.Fprintf(t.out, "(%v)\n", err)
			continue
		}
		if err := t.waitReveal(ctx); err != nil {
			return err
		}
	}
}

func (t *terminalChat) waitReveal(ctx context.Context) error {
	timer := time.NewTimer(turnTimeout)
	defer timer.Stop()
	select {
	case <-t.revealed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("no reply within " + turnTimeout.String())
	}
}

func (t *terminalChat) events() {
	defer close(t.done)
	for ev := range t.ctrl.Events() {
		switch e := ev.(type) {
		case controller.MessageAppended:
			if e.Message.Role == conversation.RoleAssistant {
				t.tw.Show(e.Message)
			}
		case controller.PhaseChanged:
			slog.Debug("phase changed", "phase", e.Phase)
		case controller.TurnSettled:
			if e.Err != nil {
				slog.Warn("turn failed", "mode", e.Mode, "err", e.Err)
			}
		}
	}
}

// frame prints the part of a reveal frame not yet on screen.
func (t *terminalChat) frame(f render.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.printed[f.MessageID]
	if n < len(f.Text) {
		fmt.Fprint(t.out, f.Text[n:])
		t.printed[f.MessageID] = len(f.Text)
	}
	if f.Done {
		fmt.Fprintln(t.out)
		delete(t.printed, f.MessageID)
	}
}

func (t *terminalChat) close() {
	_ = t.ctrl.Close()
	<-t.done
	t.tw.Stop()
}
