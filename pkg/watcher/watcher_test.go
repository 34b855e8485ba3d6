package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kraitsura/refnet/pkg/contract"
	"github.com/kraitsura/refnet/pkg/loader"
	"github.com/kraitsura/refnet/pkg/tree"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}
	if d.Fired() != 1 {
		t.Errorf("Fired() = %d, want 1", d.Fired())
	}
}

func TestDebouncer_CancelAndFlush(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(time.Hour, func() { calls.Add(1) })

	d.Trigger()
	d.Cancel()
	d.Flush()
	if got := calls.Load(); got != 0 {
		t.Errorf("cancelled callback ran %d times", got)
	}

	d.Trigger()
	d.Flush()
	if got := calls.Load(); got != 1 {
		t.Errorf("Flush ran callback %d times, want 1", got)
	}
	d.Flush()
	if got := calls.Load(); got != 1 {
		t.Errorf("second Flush ran callback again (%d)", got)
	}
}

func TestDebouncer_DefaultDuration(t *testing.T) {
	if d := NewDebouncer(0, func() {}); d.Duration() != DefaultDebounceDuration {
		t.Errorf("Duration() = %v, want %v", d.Duration(), DefaultDebounceDuration)
	}
}

func runWatcher(t *testing.T, path string, opts Options) <-chan struct{} {
	t.Helper()
	changed := make(chan struct{}, 8)
	logger, _ := test.NewNullLogger()
	opts.Logger = logger
	w, err := New(path, func() { changed <- struct{}{} }, opts)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v", err)
		}
	})
	return changed
}

func expectChange(t *testing.T, changed <-chan struct{}) {
	t.Helper()
	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcher_Notify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte("users: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	changed := runWatcher(t, path, Options{Debounce: 10 * time.Millisecond})

	// let the watcher register before writing
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("users: []\nfailing: [1]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	expectChange(t, changed)
}

func TestWatcher_Poll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	changed := runWatcher(t, path, Options{ForcePoll: true, PollInterval: 10 * time.Millisecond, Debounce: 5 * time.Millisecond})

	time.Sleep(30 * time.Millisecond)
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	expectChange(t, changed)
}

func TestNew_EmptyPath(t *testing.T) {
	if _, err := New("", func() {}, Options{}); err == nil {
		t.Error("expected error for empty path")
	}
}

const baseFixture = `users:
  - address: "0x00000000000000000000000000000000000000aa"
    id: 1
directs:
  1: {left: 2, right: 3}
`

func TestFixtureReloader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte(baseFixture), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := loader.LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture error: %v", err)
	}

	logger, _ := test.NewNullLogger()
	client := contract.NewFixtureClient(f)
	session := tree.NewSession(client, tree.WithLogger(logger))
	ctx := context.Background()
	if _, err := session.Load(ctx, "0x00000000000000000000000000000000000000aa"); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if _, err := session.Toggle(ctx, 2); err != nil {
		t.Fatalf("Toggle error: %v", err)
	}
	if n := len(session.Current().Mapping); n != 3 {
		t.Fatalf("mapping has %d nodes before reload, want 3", n)
	}

	var reports int
	r := &FixtureReloader{Client: client, Session: session, Logger: logger,
		OnReload: func(*tree.Result, error) { reports++ }}

	grown := baseFixture + "  2: {left: 4, right: 5}\n"
	if err := os.WriteFile(path, []byte(grown), 0644); err != nil {
		t.Fatal(err)
	}
	res, err := r.Reload(ctx, path)
	if err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	if len(res.Mapping) != 5 {
		t.Errorf("mapping has %d nodes after reload, want 5", len(res.Mapping))
	}

	if err := os.WriteFile(path, []byte("users: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Reload(ctx, path); err == nil {
		t.Error("expected error for a broken fixture")
	}
	if client.Fixture().Directs[2].LeftID != 4 {
		t.Error("broken reload should keep the previous fixture")
	}
	if reports != 2 {
		t.Errorf("OnReload called %d times, want 2", reports)
	}
}
