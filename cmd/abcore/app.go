package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/actions"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/config"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/lifecycle"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/logging"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/mds"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/navigator"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/statusbar"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/version"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/worker"
)

// app is one wired core: manager, loop, bus and the services bound to them.
// Everything but the workers lives on the loop goroutine.
type app struct {
	cfg    runtimeConfig
	caps   lifecycle.Capabilities
	logs   *logging.Fanout
	logger *slog.Logger

	manager    *inventory.Manager
	loop       *eventloop.Loop
	bus        *signals.Bus
	core       *lifecycle.Core
	cache      *navigator.Cache
	collector  *statusbar.Collector
	env        *actions.Env
	dispatcher *actions.Dispatcher
	calculate  *actions.CSCalculate
	shortcuts  []actions.Action
	logFile    *os.File
}

// capabilitiesFor selects the backends once, from the runtime config.
func capabilitiesFor(cfg runtimeConfig) lifecycle.Capabilities {
	return lifecycle.Capabilities{
		Subprocess: cfg.MDS.Subprocess,
		Workers:    cfg.MDS.Workers,
		Watch:      cfg.Watch,
		ForcePoll:  cfg.ForcePoll,
	}
}

// openApp wires the core and opens cfg.Project. answer backs the action
// prompts; nil cancels every prompt.
func openApp(ctx context.Context, cfg runtimeConfig, answer func(title, prompt string) (string, bool)) (*app, error) {
	var out io.Writer = os.Stderr
	var logFile *os.File
	if cfg.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.logFile), 0o750); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log: %w", err)
		}
		out, logFile = f, f
	}
	logs := logging.Setup(logging.Options{Level: logging.ParseLevel(cfg.Log.Level), JSON: cfg.Log.JSON, Output: out})
	logger := slog.Default()
	caps := capabilitiesFor(cfg)
	logger.Info("abcore: starting", "version", version.Version, "base_dir", cfg.BaseDir, "capabilities", caps)

	m, err := inventory.NewManager(cfg.BaseDir, inventory.WithLogger(logger))
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}
	loop := eventloop.New()
	bus := signals.NewWiredBus(loop, m, signals.WithLogger(logger))
	worker.InstallProgress(bus.Registry())

	opts := lifecycle.Options{Logger: logger, ConfigPath: config.ConfigPath()}
	caps.Apply(&opts, loop, logger)
	core := lifecycle.New(m, bus, opts)

	cache, err := navigator.NewCache(cfg.Navigator.CacheSize)
	if err != nil {
		m.Close()
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}
	core.AddResetter(lifecycle.ResetFunc(cache.Purge))

	collector := statusbar.NewCollector()
	collector.Bind(bus)

	dialogs := &actions.BusDialogs{Bus: bus, Answer: answer}
	env := &actions.Env{
		Manager:  m,
		Bus:      bus,
		Loop:     loop,
		Dialogs:  dialogs,
		Logger:   logger,
		Settings: core.Settings,
		OnWorker: collector.Track,
		Fanout:   logs,
	}
	a := &app{
		cfg:        cfg,
		caps:       caps,
		logs:       logs,
		logger:     logger,
		manager:    m,
		loop:       loop,
		bus:        bus,
		core:       core,
		cache:      cache,
		collector:  collector,
		env:        env,
		dispatcher: actions.NewDispatcher(dialogs, logger),
		calculate:  &actions.CSCalculate{Env: env},
		logFile:    logFile,
	}
	a.shortcuts = []actions.Action{
		&actions.DatabaseNew{Env: env},
		&actions.ParameterRecalculate{Env: env},
		a.calculate,
	}
	bus.App().ShowError.Connect(func(d signals.ErrorDialog) {
		collector.SetLeft(fmt.Sprintf("%s: %s", d.Title, d.Message))
	})

	if err := core.Bind(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := m.SetCurrent(ctx, cfg.Project); err != nil {
		a.close()
		return nil, fmt.Errorf("open project %q: %w", cfg.Project, err)
	}
	return a, nil
}

func (a *app) close() {
	a.collector.Unbind()
	a.core.Close()
	if err := a.manager.Close(); err != nil {
		a.logger.Warn("abcore: closing manager", "err", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// settle drives the loop until the secondary load is done and nothing is
// queued, or ctx ends.
func (a *app) settle(ctx context.Context) error {
	for {
		a.loop.ProcessEvents()
		if a.core.Store.SecondaryStatus() != mds.StatusLoading && !a.loop.Pending() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}
