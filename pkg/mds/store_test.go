package mds_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/mds"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

// fataler is the part of testing.TB that rapid.T also provides.
type fataler interface {
	Fatal(args ...any)
	Fatalf(format string, args ...any)
}

type harness struct {
	loop  *eventloop.Loop
	mgr   *inventory.Manager
	p     *inventory.Project
	bus   *signals.Bus
	store *mds.Store
	muts  [][]mds.Mutation
}

func newHarness(tb fataler, dir string, opts ...mds.Option) *harness {
	m, err := inventory.NewManager(dir)
	if err != nil {
		tb.Fatal(err)
	}
	ctx := context.Background()
	loop := eventloop.New()
	bus := signals.NewWiredBus(loop, m)
	bus.Node()
	if err := m.SetCurrent(ctx, "mds"); err != nil {
		tb.Fatal(err)
	}
	h := &harness{loop: loop, mgr: m, p: m.Current(), bus: bus}
	h.store = mds.NewStore(loop, opts...)
	h.store.Attach(h.p)
	h.store.Synced.Connect(func(b []mds.Mutation) {
		if len(b) > 0 {
			h.muts = append(h.muts, b)
		}
	})
	mds.NewUpdater(h.store).Bind(bus)
	return h
}

func (h *harness) close() {
	h.store.Close()
	h.mgr.Close()
}

func (h *harness) node(tb fataler, db, name string) *model.Node {
	n := h.p.NewNode(db)
	n.Name = name
	n.Unit = "kg"
	if err := h.p.SaveNode(context.Background(), n); err != nil {
		tb.Fatal(err)
	}
	return n
}

// settle runs the loop until no secondary load is in flight and no work is
// queued.
func (h *harness) settle(tb fataler) {
	deadline := time.Now().Add(20 * time.Second)
	for {
		h.loop.ProcessEvents()
		if h.store.SecondaryStatus() != mds.StatusLoading && !h.loop.Pending() {
			h.loop.ProcessEvents()
			return
		}
		if time.Now().After(deadline) {
			tb.Fatal("secondary load did not finish")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) drain() []mds.Mutation {
	var all []mds.Mutation
	for _, b := range h.muts {
		all = append(all, b...)
	}
	h.muts = nil
	return all
}

func TestNewDatabaseAndNodeAppearInMirror(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()
	ctx := context.Background()

	if err := h.p.RegisterDatabase(ctx, "db1", model.DatabaseMeta{}); err != nil {
		t.Fatal(err)
	}
	h.settle(t)
	if dbs := h.store.Databases(); len(dbs) != 1 || dbs[0] != "db1" {
		t.Fatalf("mirrored databases = %v", dbs)
	}
	h.drain()

	n1 := h.node(t, "db1", "p")
	h.settle(t)

	rows := h.store.DatabaseMetadata("db1")
	if rows.Len() != 1 || !rows.Contains(n1.Key()) {
		t.Fatalf("db1 rows = %v", rows.Keys())
	}
	muts := h.drain()
	if len(muts) != 1 || muts[0].Kind != mds.MutationAdd || muts[0].Key != n1.Key() {
		t.Fatalf("mutations = %v", muts)
	}
	if got := h.store.Categories("database"); len(got) != 1 || got[0] != "db1" {
		t.Errorf("database categories = %v", got)
	}
}

func TestRenameIssuesSingleUpdate(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()
	ctx := context.Background()
	if err := h.p.RegisterDatabase(ctx, "db1", model.DatabaseMeta{}); err != nil {
		t.Fatal(err)
	}
	h.node(t, "db1", "p")
	n2 := h.node(t, "db1", "p")
	if err := h.p.SaveEdge(ctx, &model.Edge{Input: n2.Key(), Output: n2.Key(), Amount: 1, Type: model.EdgeProduction}); err != nil {
		t.Fatal(err)
	}
	h.settle(t)
	h.drain()

	n2.Name = "q"
	if err := h.p.SaveNode(ctx, n2); err != nil {
		t.Fatal(err)
	}
	// the same event twice must not log a second mutation
	h.bus.Node().Changed.Emit(signals.NodeChange{New: n2})
	h.settle(t)

	muts := h.drain()
	if len(muts) != 1 || muts[0].Kind != mds.MutationUpdate || muts[0].Key != n2.Key() {
		t.Fatalf("mutations = %v", muts)
	}
	row, _ := h.store.Get(n2.Key())
	if row.Name != "q" {
		t.Errorf("mirror name = %q", row.Name)
	}
}

func TestDeleteDatabaseDropsRows(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()
	ctx := context.Background()
	for _, db := range []string{"db1", "db2"} {
		if err := h.p.RegisterDatabase(ctx, db, model.DatabaseMeta{}); err != nil {
			t.Fatal(err)
		}
	}
	a := h.node(t, "db1", "a")
	b := h.node(t, "db1", "b")
	keep := h.node(t, "db2", "c")
	h.settle(t)
	h.drain()

	if err := h.p.DeleteDatabase(ctx, "db1"); err != nil {
		t.Fatal(err)
	}
	h.settle(t)

	if h.store.DatabaseMetadata("db1").Len() != 0 {
		t.Fatal("rows of deleted database survived")
	}
	if _, ok := h.store.Get(keep.Key()); !ok {
		t.Fatal("row of another database dropped")
	}
	deleted := map[model.NodeKey]bool{}
	for _, m := range h.drain() {
		if m.Kind == mds.MutationDelete {
			deleted[m.Key] = true
		}
	}
	if !deleted[a.Key()] || !deleted[b.Key()] || len(deleted) != 2 {
		t.Fatalf("delete mutations = %v", deleted)
	}
	// categories never shrink
	found := false
	for _, c := range h.store.Categories("database") {
		found = found || c == "db1"
	}
	if !found {
		t.Error("category dictionary lost db1")
	}
}

func TestPrimaryThenSecondaryLoad(t *testing.T) {
	dir := t.TempDir()
	seedHarness := newHarness(t, dir)
	ctx := context.Background()
	if err := seedHarness.p.RegisterDatabase(ctx, "big", model.DatabaseMeta{}); err != nil {
		t.Fatal(err)
	}
	nodes := make([]*model.Node, 0, 2000)
	for i := 0; i < 2000; i++ {
		n := seedHarness.p.NewNode("big")
		n.Name = fmt.Sprintf("activity %d", i)
		n.Unit = "MJ"
		n.Categories = []string{"energy"}
		nodes = append(nodes, n)
	}
	if err := seedHarness.p.WriteDatabase(ctx, "big", nodes, nil); err != nil {
		t.Fatal(err)
	}
	seedHarness.settle(t)
	seedHarness.close()

	h := newHarness(t, dir)
	defer h.close()
	var trace []mds.StatusChange
	h.store.StatusChanged.Connect(func(c mds.StatusChange) { trace = append(trace, c) })

	if err := h.store.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}
	// the primary phase completes inside the call
	if h.store.PrimaryStatus() != mds.StatusDone || h.store.Len() != 2000 {
		t.Fatalf("primary status %v with %d rows", h.store.PrimaryStatus(), h.store.Len())
	}
	if h.store.SecondaryStatus() != mds.StatusLoading {
		t.Fatalf("secondary status = %v", h.store.SecondaryStatus())
	}

	// the loop stays responsive while workers decode
	pinged := make(chan time.Duration, 1)
	start := time.Now()
	h.loop.Post(func() { pinged <- time.Since(start) })
	h.loop.ProcessEvents()
	if d := <-pinged; d > 100*time.Millisecond {
		t.Errorf("ping took %v", d)
	}

	h.settle(t)
	if h.store.SecondaryStatus() != mds.StatusDone {
		t.Fatalf("secondary status = %v", h.store.SecondaryStatus())
	}
	row, _ := h.store.Get(nodes[10].Key())
	if row.Unit != "MJ" || len(row.Categories) != 1 {
		t.Errorf("secondary columns not merged: %+v", row)
	}

	want := []mds.StatusChange{
		{Phase: mds.PhasePrimary, Status: mds.StatusLoading},
		{Phase: mds.PhasePrimary, Status: mds.StatusDone},
		{Phase: mds.PhaseSecondary, Status: mds.StatusLoading},
		{Phase: mds.PhaseSecondary, Status: mds.StatusDone},
	}
	if len(trace) != len(want) {
		t.Fatalf("status trace = %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("status trace = %v", trace)
		}
	}
}

func corrupt(tb fataler, p *inventory.Project, db string) {
	if _, err := p.DB().ExecContext(context.Background(),
		`UPDATE activitydataset SET data = ? WHERE database = ?`, []byte("{not json"), db); err != nil {
		tb.Fatal(err)
	}
}

func TestFailingWorkerDoesNotBlockSiblings(t *testing.T) {
	runners := map[string]mds.SecondaryRunner{
		"in-process": mds.InProcessRunner{},
		"subprocess": mds.ProcessRunner{Executable: os.Args[0], Env: []string{mds.ChildEnv + "=1"}},
	}
	for name, runner := range runners {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, t.TempDir(), mds.WithRunner(runner), mds.WithWorkers(2))
			defer h.close()
			ctx := context.Background()
			for _, db := range []string{"good", "bad", "fine"} {
				if err := h.p.RegisterDatabase(ctx, db, model.DatabaseMeta{}); err != nil {
					t.Fatal(err)
				}
				h.node(t, db, db+" node")
			}
			corrupt(t, h.p, "bad")
			h.settle(t)

			h.store.Reset()
			if err := h.store.LoadAll(ctx); err != nil {
				t.Fatal(err)
			}
			h.settle(t)

			for _, db := range []string{"good", "fine"} {
				rows := h.store.DatabaseMetadata(db).Rows()
				if len(rows) != 1 || rows[0].Unit != "kg" {
					t.Errorf("%s rows = %+v", db, rows)
				}
			}
			bad := h.store.DatabaseMetadata("bad").Rows()
			if len(bad) != 1 || bad[0].Unit != "" {
				t.Errorf("bad rows = %+v", bad)
			}
		})
	}
}

func TestStaleSecondaryIsDiscarded(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()
	ctx := context.Background()
	if err := h.p.RegisterDatabase(ctx, "db1", model.DatabaseMeta{}); err != nil {
		t.Fatal(err)
	}
	h.node(t, "db1", "x")
	h.settle(t)

	h.store.Reset()
	if err := h.store.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}
	other, err := inventory.NewManager(filepath.Join(t.TempDir(), "other"))
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	if err := other.SetCurrent(ctx, "other"); err != nil {
		t.Fatal(err)
	}
	h.store.Attach(other.Current())
	h.settle(t)
	if h.store.Len() != 0 {
		t.Fatalf("stale rows merged into new source: %d", h.store.Len())
	}
}

func TestMirrorConverges(t *testing.T) {
	base := t.TempDir()
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp(base, "p")
		if err != nil {
			rt.Fatal(err)
		}
		h := newHarness(rt, dir)
		defer h.close()
		ctx := context.Background()
		for _, db := range []string{"a", "b"} {
			if err := h.p.RegisterDatabase(ctx, db, model.DatabaseMeta{}); err != nil {
				rt.Fatal(err)
			}
		}
		var live []*model.Node
		steps := rapid.IntRange(1, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.IntRange(0, 2).Draw(rt, "op")
			switch {
			case op == 0 || len(live) == 0:
				db := rapid.SampledFrom([]string{"a", "b"}).Draw(rt, "db")
				live = append(live, h.node(rt, db, rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "name")))
			case op == 1:
				n := live[rapid.IntRange(0, len(live)-1).Draw(rt, "target")]
				n.Name = rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "rename")
				n.Unit = rapid.SampledFrom([]string{"kg", "MJ", "m3"}).Draw(rt, "unit")
				if err := h.p.SaveNode(ctx, n); err != nil {
					rt.Fatal(err)
				}
			default:
				j := rapid.IntRange(0, len(live)-1).Draw(rt, "victim")
				if err := h.p.DeleteNode(ctx, live[j].Key()); err != nil {
					rt.Fatal(err)
				}
				live = append(live[:j], live[j+1:]...)
			}
		}
		h.settle(rt)

		diff, err := h.store.Verify(ctx)
		if err != nil {
			rt.Fatal(err)
		}
		if diff.HasInconsistencies() {
			rt.Fatalf("mirror diverged:\n%s", diff.Summary())
		}
		for _, n := range live {
			row, ok := h.store.Get(n.Key())
			if !ok || row.Unit != n.Unit {
				rt.Fatalf("secondary of %s: %+v", n.Key(), row)
			}
		}
	})
}
