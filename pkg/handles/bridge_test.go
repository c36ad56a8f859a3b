package handles_test

import (
	"context"
	"testing"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/handles"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

type env struct {
	loop *eventloop.Loop
	reg  *handles.Registry
	p    *inventory.Project
}

func newEnv(t *testing.T) *env {
	t.Helper()
	m, err := inventory.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	loop := eventloop.New()
	bus := signals.NewWiredBus(loop, m)
	reg := handles.NewRegistry(loop)
	reg.Bind(bus)

	ctx := context.Background()
	if err := m.SetCurrent(ctx, "test"); err != nil {
		t.Fatal(err)
	}
	loop.ProcessEvents()
	p := m.Current()
	if err := p.RegisterDatabase(ctx, "db1", model.DatabaseMeta{}); err != nil {
		t.Fatal(err)
	}
	return &env{loop: loop, reg: reg, p: p}
}

func (e *env) node(t *testing.T, name string) *model.Node {
	t.Helper()
	n := e.p.NewNode("db1")
	n.Name = name
	n.Unit = "kg"
	if err := e.p.SaveNode(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	return n
}

type counter struct{ changed, deleted int }

func (e *env) watch(n *model.Node) (*counter, *handles.Subscription) {
	c := &counter{}
	s := e.reg.Connect(n,
		func(model.Entity) { c.changed++ },
		func(model.Entity) { c.deleted++ })
	return c, s
}

func TestRenameReachesOnlyThatNode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	n1 := e.node(t, "p")
	n2 := e.node(t, "p")
	prod := &model.Edge{Input: n2.Key(), Output: n2.Key(), Amount: 1, Type: model.EdgeProduction}
	if err := e.p.SaveEdge(ctx, prod); err != nil {
		t.Fatal(err)
	}
	e.loop.ProcessEvents()

	c1, _ := e.watch(n1)
	c2, _ := e.watch(n2)

	n2.Name = "q"
	if err := e.p.SaveNode(ctx, n2); err != nil {
		t.Fatal(err)
	}
	e.loop.ProcessEvents()

	if c1.changed != 0 || c1.deleted != 0 {
		t.Errorf("N1 saw %+v", *c1)
	}
	if c2.changed != 1 || c2.deleted != 0 {
		t.Errorf("N2 saw %+v", *c2)
	}
}

func TestEdgeWriteTouchesBothEndpoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.node(t, "a")
	b := e.node(t, "b")
	e.loop.ProcessEvents()
	ca, _ := e.watch(a)
	cb, _ := e.watch(b)

	edge := &model.Edge{Input: a.Key(), Output: b.Key(), Amount: 3, Type: model.EdgeTechnosphere}
	if err := e.p.SaveEdge(ctx, edge); err != nil {
		t.Fatal(err)
	}
	edge.Amount = 4
	if err := e.p.SaveEdge(ctx, edge); err != nil {
		t.Fatal(err)
	}
	e.loop.ProcessEvents()
	if ca.changed != 1 || cb.changed != 1 {
		t.Fatalf("a=%+v b=%+v", *ca, *cb)
	}
}

func TestDatabaseDeleteFiresChangedThenDeleted(t *testing.T) {
	e := newEnv(t)
	n1 := e.node(t, "p")
	n2 := e.node(t, "q")
	e.loop.ProcessEvents()

	var trace []string
	for _, n := range []*model.Node{n1, n2} {
		name := n.Name
		e.reg.Connect(n,
			func(model.Entity) { trace = append(trace, name+" changed") },
			func(model.Entity) { trace = append(trace, name+" deleted") })
	}

	if err := e.p.DeleteDatabase(context.Background(), "db1"); err != nil {
		t.Fatal(err)
	}
	if len(trace) != 0 {
		t.Fatal("handles fired before the idle tick")
	}
	e.loop.ProcessEvents()

	if len(trace) != 4 {
		t.Fatalf("trace = %v", trace)
	}
	pos := map[string]int{}
	for i, s := range trace {
		pos[s] = i
	}
	for _, name := range []string{"p", "q"} {
		if pos[name+" changed"] > pos[name+" deleted"] {
			t.Errorf("%s: deleted before changed in %v", name, trace)
		}
	}
}

func TestNodeDeleteAndMethodHandles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	n := e.node(t, "gone")
	id := model.MethodID{"m", "1"}
	if err := e.p.RegisterMethod(ctx, id, model.MethodMeta{}); err != nil {
		t.Fatal(err)
	}
	e.loop.ProcessEvents()

	cn, _ := e.watch(n)
	var methodDeleted int
	e.reg.Connect(&model.Method{ID: id}, nil, func(model.Entity) { methodDeleted++ })

	if err := e.p.DeleteNode(ctx, n.Key()); err != nil {
		t.Fatal(err)
	}
	if err := e.p.DeregisterMethod(ctx, id); err != nil {
		t.Fatal(err)
	}
	e.loop.ProcessEvents()
	if cn.deleted != 1 {
		t.Errorf("node handle deleted=%d", cn.deleted)
	}
	if methodDeleted != 1 {
		t.Errorf("method handle deleted=%d", methodDeleted)
	}
}

func TestSetupHandleFollowsMetadata(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.p.NewSetup(ctx, "cs"); err != nil {
		t.Fatal(err)
	}
	e.loop.ProcessEvents()

	c := &counter{}
	e.reg.Connect(model.Ref(model.SetupIdentity("cs")),
		func(model.Entity) { c.changed++ },
		func(model.Entity) { c.deleted++ })

	cs, _ := e.p.Setup("cs")
	cs.Inv = append(cs.Inv, model.FunctionalUnit{Node: model.NodeKey{Database: "db1", Code: "x"}, Amount: 1})
	if err := e.p.SaveSetup(ctx, cs); err != nil {
		t.Fatal(err)
	}
	if err := e.p.DeleteSetup(ctx, "cs"); err != nil {
		t.Fatal(err)
	}
	e.loop.ProcessEvents()
	if c.changed != 1 || c.deleted != 1 {
		t.Fatalf("setup handle saw %+v", *c)
	}
}
