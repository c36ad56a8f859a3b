// Package watcher reports changes to a project's sqlite file made by other
// processes. It watches the file together with its -wal and -journal
// companions and falls back to polling where fsnotify is unavailable.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// ForcePollEnv forces polling when set to a true value.
const ForcePollEnv = "AB_FORCE_POLL"

var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// companions are the suffixes sqlite writes next to the main file.
var companions = []string{"", "-wal", "-journal"}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounceDuration = d }
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithOnChange sets the callback invoked when the file changes. It runs on
// a timer goroutine.
func WithOnChange(fn func()) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

// WithOnError sets the callback invoked on errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) { w.forcePoll = force }
}

type fileState struct {
	mtime time.Time
	size  int64
}

// Watcher monitors a sqlite file for changes.
type Watcher struct {
	path             string
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func()
	onError          func(error)
	forcePoll        bool

	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	polling   bool
	last      map[string]fileState
	muted     time.Time

	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	changeCh chan struct{}
}

// NewWatcher creates a new watcher for the sqlite file at path.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:             absPath,
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func() {},
		onError:          func(error) {},
		changeCh:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = NewDebouncer(w.debounceDuration)
	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	if _, err := os.Stat(w.path); err != nil && os.IsPermission(err) {
		return ErrPermission
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.last = w.snapshot()

	w.polling = w.forcePoll || envBool(ForcePollEnv)
	if !w.polling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			// The directory, so renames and companion files are seen.
			if err := fsw.Add(filepath.Dir(w.path)); err != nil {
				fsw.Close()
				w.polling = true
			} else {
				w.fsWatcher = fsw
				go w.watchFsnotify(ctx, fsw)
			}
		} else {
			w.polling = true
		}
	}
	if w.polling {
		go w.watchPolling(ctx)
	}
	w.started = true
	return nil
}

// Stop stops watching. The Changed channel stays open.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	w.cancel()
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}
	w.debouncer.Cancel()
	w.started = false
}

// Mute ignores changes for d. The owner of the file calls it around its own
// writes.
func (w *Watcher) Mute(d time.Duration) {
	w.mu.Lock()
	if until := time.Now().Add(d); until.After(w.muted) {
		w.muted = until
	}
	w.mu.Unlock()
}

// MuteWrite mutes the watcher long enough to swallow the notification of a
// write that has just completed: two debounce periods, plus two poll
// intervals when polling.
func (w *Watcher) MuteWrite() {
	w.Mute(w.QuietPeriod())
}

// QuietPeriod returns the longest delay between a write and its
// notification.
func (w *Watcher) QuietPeriod() time.Duration {
	d := 2 * w.debouncer.Duration()
	w.mu.RLock()
	if w.polling {
		d += 2 * w.pollInterval
	}
	w.mu.RUnlock()
	return d
}

// IsPolling reports whether the watcher is using polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.polling
}

// IsStarted reports whether the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed returns a channel that receives when the file changes.
func (w *Watcher) Changed() <-chan struct{} { return w.changeCh }

// Path returns the watched file path.
func (w *Watcher) Path() string { return w.path }

// PollInterval returns the polling interval used when polling mode is active.
func (w *Watcher) PollInterval() time.Duration { return w.pollInterval }

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func (w *Watcher) watches(name string) bool {
	base := filepath.Base(w.path)
	for _, suffix := range companions {
		if name == base+suffix {
			return true
		}
	}
	return false
}

func (w *Watcher) watchFsnotify(ctx context.Context, fsw *fsnotify.Watcher) {
	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if !w.watches(name) {
				continue
			}
			switch {
			case event.Op&fsnotify.Remove != 0 && name == base:
				w.onError(ErrFileRemoved)
			case event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0:
				w.debouncer.Trigger(w.notifyChange)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) snapshot() map[string]fileState {
	out := make(map[string]fileState, len(companions))
	for _, suffix := range companions {
		if info, err := os.Stat(w.path + suffix); err == nil {
			out[suffix] = fileState{mtime: info.ModTime(), size: info.Size()}
		}
	}
	return out
}

func (w *Watcher) watchPolling(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(w.path); err != nil && os.IsPermission(err) {
				w.onError(ErrPermission)
				continue
			}
			now := w.snapshot()
			w.mu.Lock()
			_, had := w.last[""]
			_, has := now[""]
			changed := len(now) != len(w.last)
			for k, v := range now {
				if old, ok := w.last[k]; !ok || !old.mtime.Equal(v.mtime) || old.size != v.size {
					changed = true
				}
			}
			w.last = now
			w.mu.Unlock()

			if had && !has {
				w.onError(ErrFileRemoved)
				continue
			}
			if changed {
				w.debouncer.Trigger(w.notifyChange)
			}
		}
	}
}

func (w *Watcher) notifyChange() {
	w.mu.RLock()
	started := w.started
	muted := time.Now().Before(w.muted)
	w.mu.RUnlock()
	if !started || muted {
		return
	}
	w.onChange()
	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}
