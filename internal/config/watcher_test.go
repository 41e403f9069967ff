package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxwidget/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  llm:
    name: openai
    api_key: sk-test
assistant:
  knowledge: knowledge.md
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: openai
    api_key: sk-test
assistant:
  knowledge: knowledge-v2.md
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// bumpMtime moves the file's mtime forward so the watcher notices a change
// even on filesystems with coarse timestamps.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
}

type changeRecorder struct {
	mu    sync.Mutex
	diffs []config.ConfigDiff
	ch    chan struct{}
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{ch: make(chan struct{}, 8)}
}

func (r *changeRecorder) onChange(_, _ *config.Config, d config.ConfigDiff) {
	r.mu.Lock()
	r.diffs = append(r.diffs, d)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *changeRecorder) wait(t *testing.T) config.ConfigDiff {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config change")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.diffs[len(r.diffs)-1]
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log_level = %q, want info", got)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherInvalidYAML)
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	rec := newChangeRecorder()
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, path, watcherUpdatedYAML)
	bumpMtime(t, path)

	d := rec.wait(t)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if !d.DocumentsChanged {
		t.Error("knowledge source change not reported")
	}
	if w.Current().Assistant.Knowledge != "knowledge-v2.md" {
		t.Error("Current() not updated")
	}
}

func TestWatcher_KeepsConfigOnInvalidUpdate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	rec := newChangeRecorder()
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, path, watcherInvalidYAML)
	bumpMtime(t, path)
	time.Sleep(150 * time.Millisecond)

	select {
	case <-rec.ch:
		t.Fatal("onChange called for an invalid config")
	default:
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log_level = %q, want previous info", got)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	rec := newChangeRecorder()
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	bumpMtime(t, path)
	time.Sleep(150 * time.Millisecond)
	select {
	case <-rec.ch:
		t.Fatal("onChange called although content is unchanged")
	default:
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)
	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
