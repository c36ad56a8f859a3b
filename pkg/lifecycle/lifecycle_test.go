package lifecycle_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/config"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/lifecycle"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/mds"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/testutil"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/watcher"
)

type counter struct{ n int }

func (c *counter) Reset() { c.n++ }

type fixture struct {
	m       *inventory.Manager
	p       *inventory.Project
	loop    *eventloop.Loop
	bus     *signals.Bus
	core    *lifecycle.Core
	inv     testutil.Inventory
	updates int
}

func newFixture(t *testing.T, opts lifecycle.Options) *fixture {
	t.Helper()
	m, p := testutil.TempProject(t, "lc")
	gen := testutil.NewDefault()
	inv := gen.ToInventory(gen.Chain(4))
	testutil.Install(t, p, inv)

	loop := eventloop.New()
	bus := signals.NewWiredBus(loop, m)
	f := &fixture{m: m, p: p, loop: loop, bus: bus, inv: inv}
	bus.App().UpdatesRequested.Connect(func(struct{}) { f.updates++ })

	f.core = lifecycle.New(m, bus, opts)
	if err := f.core.Bind(context.Background()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	t.Cleanup(f.core.Close)
	return f
}

// settle pumps the loop until no secondary load is in flight.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		f.loop.ProcessEvents()
		if f.core.Store.SecondaryStatus() != mds.StatusLoading && !f.loop.Pending() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("loop did not settle")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestBindAttachesCurrentProject(t *testing.T) {
	f := newFixture(t, lifecycle.Options{})
	f.settle(t)

	want := len(f.inv.Technosphere) + len(f.inv.Biosphere)
	if got := f.core.Store.Len(); got != want {
		t.Errorf("mirrored rows = %d, want %d", got, want)
	}
	if f.updates != 1 {
		t.Errorf("updates requested = %d, want 1", f.updates)
	}
	s := f.core.Settings()
	if s == nil {
		t.Fatal("no project settings loaded")
	}
	if !s.IsReadOnly("tech") || !s.IsReadOnly("bio") {
		t.Error("existing databases should default to read-only")
	}
}

func TestWriteGuardFollowsSettings(t *testing.T) {
	f := newFixture(t, lifecycle.Options{})
	ctx := context.Background()

	n := f.p.NewNode("tech")
	n.Name = "blocked"
	if err := f.p.SaveNode(ctx, n); !errors.Is(err, model.ErrReadOnly) {
		t.Fatalf("write to read-only database: %v", err)
	}
	if err := f.core.Settings().SetReadOnly("tech", false); err != nil {
		t.Fatal(err)
	}
	if err := f.p.SaveNode(ctx, n); err != nil {
		t.Fatalf("write after unlocking: %v", err)
	}
}

func TestProjectSwitchReattaches(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, lifecycle.Options{ConfigPath: cfgPath, Now: func() time.Time { return at }})
	f.settle(t)

	nav := &counter{}
	f.core.AddResetter(nav)
	f.core.Handles.Connect(model.Ref(model.DatabaseIdentity("tech")), func(model.Entity) {}, nil)
	if f.core.Handles.Len() != 1 {
		t.Fatalf("handles = %d", f.core.Handles.Len())
	}
	first := f.core.Settings()

	var activated []string
	f.core.Activated.Connect(func(p *inventory.Project) { activated = append(activated, p.Name) })

	if err := f.m.SetCurrent(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}
	f.settle(t)

	if f.core.Store.Len() != 0 {
		t.Errorf("mirror kept %d rows of the old project", f.core.Store.Len())
	}
	if f.core.Handles.Len() != 0 {
		t.Errorf("handles survived the switch: %d", f.core.Handles.Len())
	}
	if nav.n != 1 {
		t.Errorf("resetter ran %d times", nav.n)
	}
	if f.core.Settings() == first {
		t.Error("settings were not reloaded")
	}
	if f.updates != 2 {
		t.Errorf("updates requested = %d, want 2", f.updates)
	}
	if len(activated) != 1 || activated[0] != "second" {
		t.Errorf("activated = %v", activated)
	}

	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Recent) != 2 || cfg.Recent[0].Name != "second" || cfg.Recent[1].Name != "lc" {
		t.Fatalf("recent = %+v", cfg.Recent)
	}
	if !cfg.Recent[0].Opened.Equal(at) || cfg.Recent[0].BaseDir != f.m.BaseDir() {
		t.Errorf("recent entry = %+v", cfg.Recent[0])
	}
}

func TestDeletedDatabaseLeavesSettings(t *testing.T) {
	f := newFixture(t, lifecycle.Options{})
	s := f.core.Settings()
	if err := s.SetReadOnly("bio", false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetReadOnly("tech", false); err != nil {
		t.Fatal(err)
	}
	if err := f.p.DeleteDatabase(context.Background(), "tech"); err != nil {
		t.Fatal(err)
	}
	f.settle(t)
	for _, db := range s.Editable() {
		if db == "tech" {
			t.Fatal("deleted database still listed in settings")
		}
	}
}

func TestExternalWriteIsMirrored(t *testing.T) {
	f := newFixture(t, lifecycle.Options{
		Watch: true,
		WatchOptions: []watcher.WatcherOption{
			watcher.WithForcePoll(true),
			watcher.WithPollInterval(20 * time.Millisecond),
			watcher.WithDebounceDuration(20 * time.Millisecond),
		},
	})
	f.settle(t)
	w := f.core.Watcher()
	if w == nil || !w.IsStarted() {
		t.Fatal("watcher not attached")
	}
	if w.Path() != f.p.SQLitePath() {
		t.Errorf("watching %q, want %q", w.Path(), f.p.SQLitePath())
	}

	applied := make(chan struct{}, 4)
	f.core.External.Connect(func(*inventory.Project) {
		select {
		case applied <- struct{}{}:
		default:
		}
	})

	// A second manager stands in for another process.
	other, err := inventory.NewManager(f.m.BaseDir())
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	ctx := context.Background()
	if err := other.SetCurrent(ctx, "lc"); err != nil {
		t.Fatal(err)
	}
	op := other.Current()
	n := op.NewNode("ext")
	n.Name = "external activity"
	if err := op.WriteDatabase(ctx, "ext", []*model.Node{n}, nil); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(10 * time.Second)
	for {
		f.loop.ProcessEvents()
		select {
		case <-applied:
			f.settle(t)
			if _, ok := f.core.Store.Get(n.Key()); !ok {
				t.Fatal("externally written node missing from mirror")
			}
			if _, ok := f.p.Database("ext"); !ok {
				t.Error("database metadata not reloaded")
			}
			return
		case <-deadline:
			t.Fatal("external write was not picked up")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestSwitchMovesWatcher(t *testing.T) {
	f := newFixture(t, lifecycle.Options{
		Watch:        true,
		WatchOptions: []watcher.WatcherOption{watcher.WithForcePoll(true)},
	})
	old := f.core.Watcher()
	if err := f.m.SetCurrent(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}
	if old.IsStarted() {
		t.Error("old watcher still running")
	}
	cur := f.core.Watcher()
	if cur == nil || cur.Path() != f.m.Current().SQLitePath() {
		t.Fatalf("watcher not moved to the new project")
	}
}

func TestCapabilitiesSelectRunner(t *testing.T) {
	if _, ok := (lifecycle.Capabilities{}).Runner().(mds.InProcessRunner); !ok {
		t.Error("default runner should be in-process")
	}
	r, ok := (lifecycle.Capabilities{Subprocess: true, Executable: "/bin/abcore"}).Runner().(mds.ProcessRunner)
	if !ok || r.Executable != "/bin/abcore" {
		t.Errorf("subprocess runner = %#v", r)
	}

	var opts lifecycle.Options
	caps := lifecycle.Capabilities{Watch: true, ForcePoll: true, Workers: 2}
	caps.Apply(&opts, eventloop.New(), nil)
	if !opts.Watch || len(opts.WatchOptions) != 1 || opts.Store == nil {
		t.Errorf("applied options = %+v", opts)
	}
}

func TestOwnWritesAreNotExternal(t *testing.T) {
	f := newFixture(t, lifecycle.Options{
		Watch: true,
		WatchOptions: []watcher.WatcherOption{
			watcher.WithForcePoll(true),
			watcher.WithPollInterval(20 * time.Millisecond),
			watcher.WithDebounceDuration(20 * time.Millisecond),
		},
	})
	f.settle(t)
	var external int
	f.core.External.Connect(func(*inventory.Project) { external++ })

	if err := f.core.Settings().SetReadOnly("tech", false); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	n := f.p.NewNode("tech")
	n.Name = "own activity"
	if err := f.p.SaveNode(ctx, n); err != nil {
		t.Fatal(err)
	}

	wait := time.Now().Add(3 * f.core.Watcher().QuietPeriod())
	for time.Now().Before(wait) {
		f.loop.ProcessEvents()
		time.Sleep(5 * time.Millisecond)
	}
	f.settle(t)
	if external != 0 {
		t.Errorf("own write applied as external %d times", external)
	}
	if _, ok := f.core.Store.Get(n.Key()); !ok {
		t.Error("own write missing from the mirror")
	}
}
