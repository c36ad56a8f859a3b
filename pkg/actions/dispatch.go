package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// ErrShown marks an error whose dialog has already been opened.
var ErrShown = errors.New("error dialog shown")

type shownError struct{ err error }

func (e *shownError) Error() string        { return e.err.Error() }
func (e *shownError) Unwrap() error        { return e.err }
func (e *shownError) Is(target error) bool { return target == ErrShown }

// ExceptionDialogs runs fn. The first failure in a call chain opens one
// dialog titled with the error's kind; outer calls see the mark and pass the
// error through. The error is always returned.
func ExceptionDialogs(d Dialogs, fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, ErrShown) {
		return err
	}
	if d != nil {
		d.ShowError(Title(err), err.Error())
	}
	return &shownError{err: err}
}

// Title names an error for a dialog: the domain kind when there is one,
// otherwise the type of the innermost error.
func Title(err error) string {
	if kind, ok := model.KindOf(err); ok {
		return string(kind)
	}
	var nf *model.NotFoundError
	if errors.As(err, &nf) {
		return "not found"
	}
	inner := err
	for {
		next := errors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}
	return reflect.TypeOf(inner).String()
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Resolve replaces every zero-argument function in args by its result. A
// function may return (value) or (value, error).
func Resolve(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
		v := reflect.ValueOf(a)
		if v.Kind() != reflect.Func || v.IsNil() {
			continue
		}
		t := v.Type()
		if t.NumIn() != 0 || t.NumOut() == 0 || t.NumOut() > 2 {
			continue
		}
		if t.NumOut() == 2 && !t.Out(1).Implements(errorType) {
			continue
		}
		res := v.Call(nil)
		if len(res) == 2 && !res[1].IsNil() {
			return nil, fmt.Errorf("argument %d: %w", i, res[1].Interface().(error))
		}
		out[i] = res[0].Interface()
	}
	return out, nil
}

// MenuEntry is a presentation-side handle on an action: what a menu item or
// button needs to draw itself and to fire.
type MenuEntry struct {
	Icon    string
	Label   string
	ToolTip string
	Key     key.Binding
	run     func(context.Context) error
}

// Activate triggers the action with the entry's arguments.
func (e MenuEntry) Activate(ctx context.Context) error { return e.run(ctx) }

// Dispatcher triggers actions and owns the shortcut table.
type Dispatcher struct {
	dialogs Dialogs
	logger  *slog.Logger

	mu        sync.Mutex
	shortcuts []MenuEntry
	bound     map[string]bool
}

// NewDispatcher returns a dispatcher reporting failures to d.
func NewDispatcher(d Dialogs, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{dialogs: d, logger: logger, bound: map[string]bool{}}
}

// Trigger evaluates late-bound arguments and runs a. Failures open one
// dialog and are logged here, at the outermost level.
func (d *Dispatcher) Trigger(ctx context.Context, a Action, args ...any) error {
	err := ExceptionDialogs(d.dialogs, func() error {
		vals, err := Resolve(args)
		if err != nil {
			return err
		}
		return a.Run(ctx, vals...)
	})
	if err != nil {
		d.logger.Error("action failed", "action", fmt.Sprintf("%T", a), "err", errors.Unwrap(err))
	}
	return err
}

// Entry builds the menu entry for a. The first entry of an action with a
// shortcut binds that shortcut to it.
func (d *Dispatcher) Entry(a Action, summary string, args ...any) MenuEntry {
	m := a.Meta()
	e := MenuEntry{
		Icon:    m.Icon,
		Label:   m.Label(summary),
		ToolTip: m.ToolTip,
		run:     func(ctx context.Context) error { return d.Trigger(ctx, a, args...) },
	}
	if m.Shortcut == "" {
		return e
	}
	e.Key = key.NewBinding(key.WithKeys(m.Shortcut), key.WithHelp(m.Shortcut, e.Label))
	d.mu.Lock()
	if !d.bound[m.Shortcut] {
		d.bound[m.Shortcut] = true
		d.shortcuts = append(d.shortcuts, e)
	}
	d.mu.Unlock()
	return e
}

// Bindings returns the bound shortcuts in binding order.
func (d *Dispatcher) Bindings() []key.Binding {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]key.Binding, len(d.shortcuts))
	for i, e := range d.shortcuts {
		out[i] = e.Key
	}
	return out
}

// HandleKey triggers the action bound to msg, if any.
func (d *Dispatcher) HandleKey(ctx context.Context, msg tea.KeyMsg) (bool, error) {
	d.mu.Lock()
	entries := append([]MenuEntry(nil), d.shortcuts...)
	d.mu.Unlock()
	for _, e := range entries {
		if key.Matches(msg, e.Key) {
			return true, e.Activate(ctx)
		}
	}
	return false, nil
}
