// Package logging sets up the process logger. The root handler is a Fanout:
// every record goes to the base handler and to whatever sinks are attached at
// the time, which is how workers turn their own log records into progress
// messages.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
)

// Options configures Setup.
type Options struct {
	Level  slog.Level
	JSON   bool
	Output io.Writer
}

// Setup builds a Fanout over a text or JSON handler and installs it as the
// slog default.
func Setup(opts Options) *Fanout {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}
	var base slog.Handler
	if opts.JSON {
		base = slog.NewJSONHandler(out, hopts)
	} else {
		base = slog.NewTextHandler(out, hopts)
	}
	f := NewFanout(base)
	slog.SetDefault(slog.New(f))
	return f
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Sink receives records the base handler may have filtered out. It sees the
// record's own attributes only, not those added through WithAttrs.
type Sink interface {
	Enabled(ctx context.Context, level slog.Level) bool
	Handle(ctx context.Context, r slog.Record)
}

type sinks struct {
	mu     sync.RWMutex
	nextID uint64
	byID   map[uint64]Sink
}

func (s *sinks) snapshot() []Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sink, 0, len(s.byID))
	for _, k := range s.byID {
		out = append(out, k)
	}
	return out
}

// Fanout implements slog.Handler. Handlers derived with WithAttrs or
// WithGroup share the sink set of their parent.
type Fanout struct {
	base  slog.Handler
	sinks *sinks
}

// NewFanout wraps base.
func NewFanout(base slog.Handler) *Fanout {
	return &Fanout{base: base, sinks: &sinks{byID: make(map[uint64]Sink)}}
}

// Attach adds a sink and returns the function that removes it.
func (f *Fanout) Attach(s Sink) (detach func()) {
	f.sinks.mu.Lock()
	f.sinks.nextID++
	id := f.sinks.nextID
	f.sinks.byID[id] = s
	f.sinks.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.sinks.mu.Lock()
			delete(f.sinks.byID, id)
			f.sinks.mu.Unlock()
		})
	}
}

// Sinks returns the number of attached sinks.
func (f *Fanout) Sinks() int {
	f.sinks.mu.RLock()
	defer f.sinks.mu.RUnlock()
	return len(f.sinks.byID)
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	if f.base.Enabled(ctx, level) {
		return true
	}
	for _, s := range f.sinks.snapshot() {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if f.base.Enabled(ctx, r.Level) {
		err = f.base.Handle(ctx, r)
	}
	for _, s := range f.sinks.snapshot() {
		if s.Enabled(ctx, r.Level) {
			s.Handle(ctx, r.Clone())
		}
	}
	return err
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Fanout{base: f.base.WithAttrs(attrs), sinks: f.sinks}
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	return &Fanout{base: f.base.WithGroup(name), sinks: f.sinks}
}

// WorkerSink passes records logged with a context of one worker at or above
// a level to Fn.
type WorkerSink struct {
	Worker uint64
	Level  slog.Level
	Fn     func(r slog.Record)
}

func (w *WorkerSink) Enabled(ctx context.Context, level slog.Level) bool {
	if level < w.Level {
		return false
	}
	id, ok := eventloop.WorkerID(ctx)
	return ok && id == w.Worker
}

func (w *WorkerSink) Handle(_ context.Context, r slog.Record) {
	w.Fn(r)
}

// Default returns the Fanout behind slog.Default, or nil if the default
// logger was not set up through this package.
func Default() *Fanout {
	f, _ := slog.Default().Handler().(*Fanout)
	return f
}
