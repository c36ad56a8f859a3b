package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/actions"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/worker"
)

// openHeadless opens the app for a one-shot command. With yes set every
// confirmation is accepted and text prompts take their default.
func openHeadless(cmd *cobra.Command, yes bool) (*app, error) {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return nil, err
	}
	var answer func(string, string) (string, bool)
	if yes {
		answer = func(string, string) (string, bool) { return "", true }
	}
	a, err := openApp(cmd.Context(), cfg, answer)
	if err != nil {
		return nil, err
	}
	if err := a.settle(cmd.Context()); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// run triggers act and waits for the workers it starts, then lets the loop
// absorb their results.
func (a *app) run(ctx context.Context, act actions.Action, args ...any) error {
	var started []*worker.Worker
	prev := a.env.OnWorker
	a.env.OnWorker = func(w *worker.Worker) {
		started = append(started, w)
		if prev != nil {
			prev(w)
		}
	}
	defer func() { a.env.OnWorker = prev }()

	if err := a.dispatcher.Trigger(ctx, act, args...); err != nil {
		return err
	}
	for _, w := range started {
		if err := w.Wait(); err != nil {
			return err
		}
	}
	return a.settle(ctx)
}
