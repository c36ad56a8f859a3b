package lifecycle

import (
	"log/slog"
	"runtime"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/mds"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/watcher"
)

// Capabilities is the backend selection made once at startup. Nothing below
// the command layer reads the environment to decide how to load or watch.
type Capabilities struct {
	// Subprocess runs secondary loads in mds-worker children.
	Subprocess bool
	// Workers bounds concurrent secondary loads.
	Workers int
	// Executable is the binary started for children; empty means the
	// running one.
	Executable string
	// Watch attaches the file watcher; ForcePoll skips fsnotify.
	Watch     bool
	ForcePoll bool
}

// Runner returns the secondary runner the capabilities select.
func (c Capabilities) Runner() mds.SecondaryRunner {
	if c.Subprocess {
		return mds.ProcessRunner{Executable: c.Executable}
	}
	return mds.InProcessRunner{}
}

// StoreOptions returns the mds options for c.
func (c Capabilities) StoreOptions(logger *slog.Logger) []mds.Option {
	if logger == nil {
		logger = slog.Default()
	}
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return []mds.Option{mds.WithLogger(logger), mds.WithRunner(c.Runner()), mds.WithWorkers(workers)}
}

// Apply fills the parts of opts that c decides.
func (c Capabilities) Apply(opts *Options, loop *eventloop.Loop, logger *slog.Logger) {
	opts.Watch = c.Watch
	if c.ForcePoll {
		opts.WatchOptions = append(opts.WatchOptions, watcher.WithForcePoll(true))
	}
	if opts.Store == nil {
		opts.Store = mds.NewStore(loop, c.StoreOptions(logger)...)
	}
}

// LogValue implements slog.LogValuer.
func (c Capabilities) LogValue() slog.Value {
	runner := "in-process"
	if c.Subprocess {
		runner = "subprocess"
	}
	return slog.GroupValue(
		slog.String("secondary", runner),
		slog.Int("workers", c.Workers),
		slog.Bool("watch", c.Watch),
		slog.Bool("force_poll", c.ForcePoll),
	)
}

// ResetFunc adapts a function to Resetter.
type ResetFunc func()

func (f ResetFunc) Reset() { f() }
