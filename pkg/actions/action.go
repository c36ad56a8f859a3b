// Package actions is the user command surface. Every menu entry, button and
// shortcut runs an Action through a Dispatcher, which samples late-bound
// arguments and routes failures to a single error dialog.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/logging"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/settings"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/worker"
)

// Placeholder in Meta.Text replaced by the selection summary.
const Placeholder = "***"

// Meta describes how an action is presented.
type Meta struct {
	Icon     string
	Text     string
	ToolTip  string
	Shortcut string
}

// Label returns Text with the placeholder replaced by summary.
func (m Meta) Label(summary string) string {
	if !strings.Contains(m.Text, Placeholder) {
		return m.Text
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(m.Text, Placeholder, summary)), " ")
}

// Action is one user command. Run receives concrete arguments; callables
// have already been evaluated by the Dispatcher.
type Action interface {
	Meta() Meta
	Run(ctx context.Context, args ...any) error
}

// Dialogs is the presentation side the actions talk to. The Ask methods
// return ok=false when the user cancels; actions treat that as a no-op.
type Dialogs interface {
	ShowError(title, msg string)
	AskText(title, prompt, initial string) (string, bool)
	AskConfirm(title, question string) bool
	AskChoice(title, prompt string, options []string) (string, bool)
}

// Env is what the concrete actions operate on.
type Env struct {
	Manager *inventory.Manager
	Bus     *signals.Bus
	Loop    *eventloop.Loop
	Dialogs Dialogs
	Logger  *slog.Logger

	// Settings returns the settings of the current project, or nil.
	Settings func() *settings.Project
	// OnWorker observes every worker an action starts.
	OnWorker func(*worker.Worker)
	// Fanout, when set, gets a per-worker log sink for each worker.
	Fanout *logging.Fanout
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Env) project() (*inventory.Project, error) {
	p := e.Manager.Current()
	if p == nil {
		return nil, model.NewDomainError(model.KindInvalid, "no project is open")
	}
	return p, nil
}

func (e *Env) settings() *settings.Project {
	if e.Settings == nil {
		return nil
	}
	return e.Settings()
}

func (e *Env) status(msg string) {
	if e.Bus != nil {
		e.Bus.App().StatusMessage.Emit(msg)
	}
}

// start runs fn in a worker whose failures reach the error dialog.
func (e *Env) start(ctx context.Context, name string, fn worker.RunFunc) *worker.Worker {
	opts := []worker.Option{worker.WithLoop(e.Loop), worker.WithLogger(e.logger())}
	if e.Fanout != nil {
		opts = append(opts, worker.WithFanout(e.Fanout))
	}
	w := worker.New(name, fn, opts...)
	w.Exception.Connect(func(werr *worker.WorkerError) {
		e.Dialogs.ShowError(Title(werr.Cause), werr.Cause.Error())
	})
	if e.OnWorker != nil {
		e.OnWorker(w)
	}
	if err := w.Start(ctx); err != nil {
		e.logger().Error("worker did not start", "worker", name, "err", err)
	}
	return w
}

func arg[T any](args []any, i int) (T, bool) {
	var zero T
	if i >= len(args) {
		return zero, false
	}
	v, ok := args[i].(T)
	return v, ok
}

func needArg[T any](args []any, i int, what string) (T, error) {
	v, ok := arg[T](args, i)
	if !ok {
		return v, model.NewDomainError(model.KindInvalid, "missing %s", what)
	}
	return v, nil
}

// nodeKeys accepts NodeKey, []NodeKey and *Node in any mix.
func nodeKeys(args []any) ([]model.NodeKey, error) {
	var out []model.NodeKey
	for _, a := range args {
		switch v := a.(type) {
		case model.NodeKey:
			out = append(out, v)
		case []model.NodeKey:
			out = append(out, v...)
		case *model.Node:
			out = append(out, v.Key())
		default:
			return nil, model.NewDomainError(model.KindInvalid, "expected node keys, got %T", a)
		}
	}
	if len(out) == 0 {
		return nil, model.NewDomainError(model.KindInvalid, "no activities selected")
	}
	return out, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	if strings.HasSuffix(word, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(word, "y"))
	}
	return fmt.Sprintf("%d %ss", n, word)
}
