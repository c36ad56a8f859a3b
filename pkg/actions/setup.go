package actions

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/lca"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

// CSNew creates an empty calculation setup.
type CSNew struct{ Env *Env }

func (a *CSNew) Meta() Meta {
	return Meta{Icon: "add", Text: "New calculation setup", ToolTip: "Create a new calculation setup"}
}

func (a *CSNew) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	name, ok := arg[string](args, 0)
	if !ok {
		if name, ok = a.Env.Dialogs.AskText("Create new calculation setup", "Name of new calculation setup:", ""); !ok {
			return nil
		}
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil
	}
	return p.NewSetup(ctx, name)
}

// CSDelete removes a calculation setup after confirmation.
type CSDelete struct{ Env *Env }

func (a *CSDelete) Meta() Meta {
	return Meta{Icon: "delete", Text: "Delete calculation setup"}
}

func (a *CSDelete) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	name, err := needArg[string](args, 0, "calculation setup")
	if err != nil {
		return err
	}
	if _, ok := p.Setup(name); !ok {
		return nil
	}
	if !a.Env.Dialogs.AskConfirm("Delete calculation setup?", fmt.Sprintf("Are you sure you want to delete the calculation setup '%s'?", name)) {
		return nil
	}
	if err := p.DeleteSetup(ctx, name); err != nil {
		return err
	}
	a.Env.status(fmt.Sprintf("Deleted calculation setup: %s", name))
	return nil
}

// CSCalculate validates a setup and computes its results in a worker.
// Results arrive on Done, on the loop goroutine.
type CSCalculate struct {
	Env *Env

	once sync.Once
	done *signals.Signal[*lca.Results]
}

func (a *CSCalculate) Meta() Meta {
	return Meta{Icon: "calculate", Text: "Calculate", ToolTip: "Run the calculation setup", Shortcut: "ctrl+r"}
}

// Done fires with the results of every successful calculation.
func (a *CSCalculate) Done() *signals.Signal[*lca.Results] {
	a.once.Do(func() { a.done = signals.New[*lca.Results]("actions.calculation_done") })
	return a.done
}

func (a *CSCalculate) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	name, err := needArg[string](args, 0, "calculation setup")
	if err != nil {
		return err
	}
	cs, ok := p.Setup(name)
	if !ok {
		return model.NotFound("calculation setup", name)
	}
	if err := lca.Validate(cs); err != nil {
		return err
	}
	done := a.Done()
	if a.Env.Bus != nil {
		a.Env.Bus.App().CalculationRequested.Emit(name)
	}
	a.Env.status(fmt.Sprintf("Calculating %s", name))
	a.Env.start(ctx, "calculate "+name, func(ctx context.Context, _ ...any) error {
		res, err := lca.Calculate(ctx, p, cs)
		if err != nil {
			return err
		}
		deliver := func() { done.Emit(res) }
		if a.Env.Loop != nil {
			a.Env.Loop.Post(deliver)
		} else {
			deliver()
		}
		return nil
	})
	return nil
}
