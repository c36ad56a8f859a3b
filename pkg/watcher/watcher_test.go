package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var callCount atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { callCount.Add(1) })
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if count := callCount.Load(); count != 1 {
		t.Errorf("expected 1 callback invocation, got %d", count)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var called atomic.Bool
	d.Trigger(func() { called.Store(true) })
	d.Cancel()
	time.Sleep(100 * time.Millisecond)

	if called.Load() {
		t.Error("callback should not have been invoked after cancel")
	}
}

func TestDebouncer_DefaultDuration(t *testing.T) {
	d := NewDebouncer(0)
	if d.Duration() != DefaultDebounceDuration {
		t.Errorf("expected default duration %v, got %v", DefaultDebounceDuration, d.Duration())
	}
}

func writeDB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "databases.db")
	if err := os.WriteFile(path, []byte("initial"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitChanged(t *testing.T, w *Watcher, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-w.Changed():
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestWatcher_DetectsFileChange(t *testing.T) {
	path := writeDB(t, t.TempDir())

	var changes atomic.Int32
	w, err := NewWatcher(path,
		WithDebounceDuration(50*time.Millisecond),
		WithOnChange(func() { changes.Add(1) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("modified"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitChanged(t, w, 3*time.Second) {
		t.Fatal("no change reported")
	}
	if changes.Load() == 0 {
		t.Error("OnChange was not invoked")
	}
}

func TestWatcher_SeesWALWrites(t *testing.T) {
	path := writeDB(t, t.TempDir())

	w, err := NewWatcher(path, WithDebounceDuration(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path+"-wal", []byte("frame"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitChanged(t, w, 3*time.Second) {
		t.Fatal("write to the WAL file was not reported")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeDB(t, dir)

	w, err := NewWatcher(path, WithDebounceDuration(30*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if waitChanged(t, w, 300*time.Millisecond) {
		t.Error("change to an unrelated file was reported")
	}
}

func TestWatcher_PollingFallback(t *testing.T) {
	path := writeDB(t, t.TempDir())

	w, err := NewWatcher(path,
		WithForcePoll(true),
		WithPollInterval(50*time.Millisecond),
		WithDebounceDuration(20*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.IsPolling() {
		t.Fatal("expected polling mode")
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("modified content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitChanged(t, w, 2*time.Second) {
		t.Fatal("polling did not detect the change")
	}
}

func TestWatcher_EnvForcePoll(t *testing.T) {
	t.Setenv(ForcePollEnv, "1")
	path := writeDB(t, t.TempDir())

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.IsPolling() {
		t.Errorf("expected polling mode with %s set", ForcePollEnv)
	}
}

func TestWatcher_FileRemoved(t *testing.T) {
	path := writeDB(t, t.TempDir())

	errCh := make(chan error, 4)
	w, err := NewWatcher(path,
		WithForcePoll(true),
		WithPollInterval(30*time.Millisecond),
		WithOnError(func(err error) {
			select {
			case errCh <- err:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrFileRemoved) {
			t.Errorf("expected ErrFileRemoved, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("removal was not reported")
	}
}

func TestWatcher_Mute(t *testing.T) {
	path := writeDB(t, t.TempDir())

	w, err := NewWatcher(path,
		WithForcePoll(true),
		WithPollInterval(20*time.Millisecond),
		WithDebounceDuration(20*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	w.Mute(time.Second)
	if err := os.WriteFile(path, []byte("own write"), 0o644); err != nil {
		t.Fatal(err)
	}
	if waitChanged(t, w, 300*time.Millisecond) {
		t.Error("muted write was reported")
	}
}

func TestWatcher_StartStop(t *testing.T) {
	path := writeDB(t, t.TempDir())

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	if w.IsStarted() {
		t.Error("watcher should not be started before Start")
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	w.Stop()
	if w.IsStarted() {
		t.Error("watcher still started after Stop")
	}
	w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	w.Stop()
}

func TestWatcher_RestartKeepsWatching(t *testing.T) {
	path := writeDB(t, t.TempDir())

	w, err := NewWatcher(path, WithDebounceDuration(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Start(); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		w.Stop()
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("after restart"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitChanged(t, w, 2*time.Second) {
		t.Error("change after restart was not reported")
	}
}

func TestWatcher_MuteWrite(t *testing.T) {
	path := writeDB(t, t.TempDir())

	w, err := NewWatcher(path,
		WithForcePoll(true),
		WithPollInterval(30*time.Millisecond),
		WithDebounceDuration(20*time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if got, want := w.QuietPeriod(), 100*time.Millisecond; got != want {
		t.Errorf("QuietPeriod() = %v, want %v", got, want)
	}
	if err := os.WriteFile(path, []byte("own write"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.MuteWrite()
	if waitChanged(t, w, 50*time.Millisecond) {
		t.Error("own write was reported")
	}
}

func TestWatcher_PathAndInterval(t *testing.T) {
	dir := t.TempDir()
	path := writeDB(t, dir)

	w, err := NewWatcher(path, WithPollInterval(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	abs, _ := filepath.Abs(path)
	if w.Path() != abs {
		t.Errorf("Path() = %q, want %q", w.Path(), abs)
	}
	if w.PollInterval() != 5*time.Second {
		t.Errorf("PollInterval() = %v", w.PollInterval())
	}

	w2, _ := NewWatcher(path)
	if w2.PollInterval() != DefaultPollInterval {
		t.Errorf("default PollInterval() = %v", w2.PollInterval())
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{" yes ", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"", false},
		{"maybe", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("AB_TEST_ENV_BOOL", tt.value)
			if got := envBool("AB_TEST_ENV_BOOL"); got != tt.want {
				t.Errorf("envBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
