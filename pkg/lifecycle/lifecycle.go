// Package lifecycle keeps the long-lived services of the core in step with
// the active project. It owns the handle registry, the metadata store and
// the per-project settings, and reattaches them whenever the project
// changes.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/config"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/handles"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/mds"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/settings"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/watcher"
)

// Resetter is anything holding project-derived state, such as a navigator.
type Resetter interface {
	Reset()
}

// Options configures a Core.
type Options struct {
	Logger *slog.Logger
	// Store is used instead of a fresh mds.Store.
	Store *mds.Store
	// Watch attaches a file watcher to the project sqlite file.
	Watch        bool
	WatchOptions []watcher.WatcherOption
	// ConfigPath, when set, receives the recent-projects list.
	ConfigPath string
	// Now is the clock for recent-project timestamps.
	Now func() time.Time
}

// Core ties the manager, the bus and the derived services together.
type Core struct {
	Manager *inventory.Manager
	Bus     *signals.Bus
	Handles *handles.Registry
	Store   *mds.Store

	loop    *eventloop.Loop
	logger  *slog.Logger
	opts    Options
	updater *mds.Updater

	mu       sync.Mutex
	settings *settings.Project
	watcher  *watcher.Watcher
	resets   []Resetter
	conns    []*signals.Connection
	unhook   []func()

	// Activated fires on the loop after a project has been attached.
	Activated *signals.Signal[*inventory.Project]
	// External fires on the loop after a write by another process was
	// applied.
	External *signals.Signal[*inventory.Project]
}

// New builds the core services for m. Nothing is connected until Bind.
func New(m *inventory.Manager, bus *signals.Bus, opts Options) *Core {
	if opts.Logger == nil {
		opts.Logger = m.Logger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	loop := bus.Loop()
	store := opts.Store
	if store == nil {
		store = mds.NewStore(loop, mds.WithLogger(opts.Logger))
	}
	return &Core{
		Manager:   m,
		Bus:       bus,
		Handles:   handles.NewRegistry(loop, handles.WithLogger(opts.Logger)),
		Store:     store,
		loop:      loop,
		logger:    opts.Logger,
		opts:      opts,
		updater:   mds.NewUpdater(store),
		Activated: signals.New[*inventory.Project]("lifecycle.activated"),
		External:  signals.New[*inventory.Project]("lifecycle.external"),
	}
}

// AddResetter registers state to be reset on every project change.
func (c *Core) AddResetter(r Resetter) {
	c.mu.Lock()
	c.resets = append(c.resets, r)
	c.mu.Unlock()
}

// Bind connects the services to the bus. If a project is already current it
// is attached immediately.
func (c *Core) Bind(ctx context.Context) error {
	c.Unbind()
	c.Handles.Bind(c.Bus)
	c.updater.Bind(c.Bus)
	c.conns = append(c.conns,
		c.Bus.Project().Changed.Connect(func(pc signals.ProjectChange) {
			if err := c.activate(ctx, pc.New); err != nil {
				c.logger.Error("lifecycle: activating project failed", "err", err)
				c.showError(err)
			}
		}),
		c.Bus.Database().Deleted.Connect(c.forgetDatabase),
		c.Bus.Method().Changed.Connect(func(*model.Method) { c.ownWrite() }),
		c.Bus.Method().Deleted.Connect(func(*model.Method) { c.ownWrite() }),
	)
	c.hookWrites()
	c.Manager.SetWriteGuard(c.guard)
	if p := c.Manager.Current(); p != nil {
		return c.activate(ctx, p)
	}
	return nil
}

// Unbind disconnects from the bus and stops the watcher.
func (c *Core) Unbind() {
	for _, conn := range c.conns {
		conn.Disconnect()
	}
	c.conns = nil
	for _, remove := range c.unhook {
		remove()
	}
	c.unhook = nil
	c.Handles.Unbind()
	c.updater.Unbind()
	c.stopWatcher()
}

// Close unbinds and cancels loads in flight.
func (c *Core) Close() {
	c.Unbind()
	c.Store.Close()
}

// Settings returns the settings of the current project, or nil.
func (c *Core) Settings() *settings.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Watcher returns the active file watcher, or nil.
func (c *Core) Watcher() *watcher.Watcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watcher
}

func (c *Core) guard(db string) error {
	if s := c.Settings(); s != nil {
		return s.Guard(db)
	}
	return nil
}

func (c *Core) activate(ctx context.Context, p *inventory.Project) error {
	c.Handles.Flush()
	c.mu.Lock()
	resets := append([]Resetter(nil), c.resets...)
	c.mu.Unlock()
	for _, r := range resets {
		r.Reset()
	}
	c.stopWatcher()

	if p == nil {
		c.Store.Attach(nil)
		c.mu.Lock()
		c.settings = nil
		c.mu.Unlock()
		return nil
	}

	s, err := settings.LoadProject(p.Dir, p.DatabaseNames())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()

	c.Store.Attach(p)
	var errs []error
	if err := c.Store.LoadAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.opts.Watch {
		if err := c.startWatcher(p.SQLitePath()); err != nil {
			c.logger.Warn("lifecycle: file watcher unavailable", "path", p.SQLitePath(), "err", err)
		}
	}
	if err := c.remember(p); err != nil {
		c.logger.Warn("lifecycle: recording recent project failed", "project", p.Name, "err", err)
	}

	c.logger.Info("lifecycle: project attached", "project", p.Name, "databases", len(p.DatabaseNames()))
	c.Activated.Emit(p)
	c.Bus.App().UpdatesRequested.Emit(struct{}{})
	return errors.Join(errs...)
}

func (c *Core) startWatcher(path string) error {
	opts := append([]watcher.WatcherOption{
		watcher.WithOnChange(func() { c.loop.Post(c.externalWrite) }),
		watcher.WithOnError(func(err error) {
			c.logger.Warn("lifecycle: file watcher error", "path", path, "err", err)
		}),
	}, c.opts.WatchOptions...)
	w, err := watcher.NewWatcher(path, opts...)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	c.mu.Lock()
	c.watcher = w
	c.mu.Unlock()
	return nil
}

// hookWrites mutes the watcher after every write this process makes to the
// project file. The hooks run on the writing goroutine, before the write can
// be noticed.
func (c *Core) hookWrites() {
	h := &c.Manager.Hooks
	c.unhook = append(c.unhook,
		h.DatasetSaved.Add(func(inventory.SaveEvent) { c.ownWrite() }),
		h.DatasetDeleted.Add(func(inventory.DeleteEvent) { c.ownWrite() }),
		h.CodeChanged.Add(func(inventory.MoveEvent) { c.ownWrite() }),
		h.DatabaseChanged.Add(func(inventory.MoveEvent) { c.ownWrite() }),
		h.DatabaseWritten.Add(func(inventory.DatabaseEvent) { c.ownWrite() }),
		h.DatabaseReset.Add(func(inventory.DatabaseEvent) { c.ownWrite() }),
		h.DatabaseDeleted.Add(func(inventory.DatabaseEvent) { c.ownWrite() }),
		h.ParametersRecalculated.Add(func(inventory.RecalculateEvent) { c.ownWrite() }),
	)
}

func (c *Core) ownWrite() {
	if w := c.Watcher(); w != nil {
		w.MuteWrite()
	}
}

func (c *Core) stopWatcher() {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// externalWrite runs on the loop after another process touched the file.
// Metadata is reread first so new and vanished databases are seen, then the
// databases that were already mirrored are reloaded for row changes.
func (c *Core) externalWrite() {
	p := c.Manager.Current()
	if p == nil || c.Store.SQLitePath() != p.SQLitePath() {
		return
	}
	ctx := context.Background()
	changed, err := p.Reload()
	if err != nil {
		c.logger.Warn("lifecycle: metadata reload failed", "project", p.Name, "err", err)
	}
	before := c.Store.Databases()
	if err := c.Store.SyncDatabases(ctx); err != nil {
		c.logger.Warn("lifecycle: database sync failed", "err", err)
	}
	var known []string
	for _, db := range before {
		if _, ok := p.Database(db); ok {
			known = append(known, db)
		}
	}
	if len(known) > 0 {
		if err := c.Store.Load(ctx, known...); err != nil {
			c.logger.Warn("lifecycle: reload after external write failed", "err", err)
		}
	}
	c.logger.Debug("lifecycle: external write applied", "metadata_changed", changed, "databases", len(known))
	c.External.Emit(p)
	if changed {
		c.Bus.App().UpdatesRequested.Emit(struct{}{})
	}
}

func (c *Core) forgetDatabase(name string) {
	if s := c.Settings(); s != nil {
		if err := s.Remove(name); err != nil {
			c.logger.Warn("lifecycle: settings update failed", "database", name, "err", err)
		}
	}
}

func (c *Core) remember(p *inventory.Project) error {
	if c.opts.ConfigPath == "" {
		return nil
	}
	cfg, err := config.LoadFrom(c.opts.ConfigPath)
	if err != nil {
		return err
	}
	cfg.AddRecent(p.Name, c.Manager.BaseDir(), c.opts.Now())
	return config.SaveTo(cfg, c.opts.ConfigPath)
}

func (c *Core) showError(err error) {
	c.Bus.App().ShowError.Emit(signals.ErrorDialog{Title: "Project could not be opened", Message: err.Error()})
}
