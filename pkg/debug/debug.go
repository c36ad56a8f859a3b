// Package debug provides conditional debug logging for the model core.
//
// Debug logging is enabled by setting the AB_DEBUG environment variable:
//
//	AB_DEBUG=1 abcore run
//
// When enabled, debug records are written to stderr through a text slog
// handler. When disabled (default), all debug functions are no-ops.
//
// Usage:
//
//	func forward() {
//	    start := time.Now()
//	    // ...
//	    debug.LogTiming("signals: node.changed", time.Since(start))
//	}
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// enabled is true when AB_DEBUG env var is set
	enabled atomic.Bool

	mu     sync.Mutex
	logger *slog.Logger
)

func init() {
	if os.Getenv("AB_DEBUG") != "" {
		SetEnabled(true)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h).With("component", "debug")
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	mu.Lock()
	if e && logger == nil {
		logger = newLogger(os.Stderr)
	}
	mu.Unlock()
	enabled.Store(e)
}

// SetOutput redirects debug records, mostly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger = newLogger(w)
	mu.Unlock()
}

func current() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Log writes a debug message if debug logging is enabled.
// Uses printf-style formatting.
func Log(format string, args ...any) {
	if !Enabled() {
		return
	}
	current().Debug(fmt.Sprintf(format, args...))
}

// LogTiming writes a timing record if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	if !Enabled() {
		return
	}
	current().Debug(name, "took", d)
}

// LogIf writes a debug message only if the condition is true.
func LogIf(cond bool, format string, args ...any) {
	if !cond {
		return
	}
	Log(format, args...)
}

// LogEnterExit logs function entry and exit with timing.
// Usage:
//
//	func myFunc() {
//	    defer debug.LogEnterExit("myFunc")()
//	    // ...
//	}
func LogEnterExit(name string) func() {
	if !Enabled() {
		return func() {}
	}
	l := current()
	l.Debug("enter", "fn", name)
	start := time.Now()
	return func() {
		l.Debug("exit", "fn", name, "took", time.Since(start))
	}
}

// Trace is an alias for LogEnterExit for convenience.
var Trace = LogEnterExit

// Dump logs a value with its type for debugging complex structures.
func Dump(name string, v any) {
	if !Enabled() {
		return
	}
	current().Debug(name, "type", fmt.Sprintf("%T", v), "value", fmt.Sprintf("%+v", v))
}
