// Package statusbar collects the status line of the workbench: a message on
// the left, the active project on the right and the progress of the running
// worker in between. Model renders it as a bubbletea component.
package statusbar

import (
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/worker"
)

// NoProgress is the Progress value when no worker is tracked.
const NoProgress = -2

// State is a snapshot of the status line.
type State struct {
	Left     string
	Right    string
	Progress int // 0-100, -1 while indeterminate, NoProgress when idle
	Worker   string
}

// Busy reports whether a worker is being tracked.
func (s State) Busy() bool { return s.Progress != NoProgress }

// Collector keeps the State current from the bus and tracked workers. All
// methods run on the loop goroutine.
type Collector struct {
	state   State
	conns   []*signals.Connection
	tracked *signals.Connection

	// Changed fires with the new state after every change.
	Changed *signals.Signal[State]
}

// NewCollector returns an idle collector.
func NewCollector() *Collector {
	return &Collector{
		state:   State{Progress: NoProgress},
		Changed: signals.New[State]("statusbar.changed"),
	}
}

// State returns the current snapshot.
func (c *Collector) State() State { return c.state }

// Bind follows the application status channels and project changes.
func (c *Collector) Bind(bus *signals.Bus) {
	c.Unbind()
	app := bus.App()
	c.conns = append(c.conns,
		app.StatusMessage.Connect(c.SetLeft),
		app.StatusRight.Connect(c.SetRight),
		bus.Project().Changed.Connect(func(pc signals.ProjectChange) {
			if pc.New != nil {
				c.SetRight("Project: " + pc.New.Name)
			}
		}),
	)
}

// Unbind disconnects from the bus and stops tracking.
func (c *Collector) Unbind() {
	for _, conn := range c.conns {
		conn.Disconnect()
	}
	c.conns = nil
	c.untrack()
}

// SetLeft replaces the message.
func (c *Collector) SetLeft(msg string) {
	c.state.Left = msg
	c.Changed.Emit(c.state)
}

// SetRight replaces the right-hand text.
func (c *Collector) SetRight(msg string) {
	c.state.Right = msg
	c.Changed.Emit(c.state)
}

// Track shows the progress of w until it completes. A newer worker replaces
// the tracked one.
func (c *Collector) Track(w *worker.Worker) {
	c.untrack()
	c.state.Worker = w.Name()
	c.state.Progress = -1
	c.tracked = w.Status.Connect(c.apply)
	c.Changed.Emit(c.state)
}

func (c *Collector) apply(s worker.Status) {
	if s == worker.Complete {
		c.untrack()
		c.state.Progress = NoProgress
		c.state.Worker = ""
	} else {
		c.state.Progress = s.Percent
		if s.Label != "" {
			c.state.Left = s.Label
		}
	}
	c.Changed.Emit(c.state)
}

func (c *Collector) untrack() {
	c.tracked.Disconnect()
	c.tracked = nil
}
