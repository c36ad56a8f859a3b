package handles_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/handles"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

var nodeA = &model.Node{Database: "db1", Code: "a"}

func TestHandleWithoutSubscriberIsCollected(t *testing.T) {
	loop := eventloop.New()
	reg := handles.NewRegistry(loop)
	h := reg.GetOrCreate(nodeA)
	if reg.GetOrCreate(nodeA) != h {
		t.Fatal("second GetOrCreate returned a different handle")
	}
	loop.ProcessEvents()
	if _, ok := reg.Lookup(nodeA.Identity()); ok {
		t.Fatal("unsubscribed handle survived the idle tick")
	}
	if !h.Destroyed() {
		t.Fatal("handle not destroyed")
	}
}

func TestLastDisconnectDetachesThenDestroys(t *testing.T) {
	loop := eventloop.New()
	reg := handles.NewRegistry(loop)
	a := reg.Connect(nodeA, func(model.Entity) {}, nil)
	b := reg.Connect(nodeA, nil, func(model.Entity) {})
	h := a.Handle
	if b.Handle != h {
		t.Fatal("subscriptions on one identity got different handles")
	}
	loop.ProcessEvents()
	if h.Destroyed() {
		t.Fatal("subscribed handle collected")
	}

	a.Disconnect()
	if _, ok := reg.Lookup(h.Identity()); !ok {
		t.Fatal("handle detached while a subscriber remains")
	}
	b.Disconnect()
	if _, ok := reg.Lookup(h.Identity()); ok {
		t.Fatal("handle still registered after last disconnect")
	}
	if h.Destroyed() {
		t.Fatal("handle destroyed before the idle tick")
	}
	loop.ProcessEvents()
	if !h.Destroyed() {
		t.Fatal("handle not destroyed on the idle tick")
	}
}

func TestEmitLaterCoalesces(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		loop := eventloop.New()
		reg := handles.NewRegistry(loop)
		var got []model.Entity
		sub := reg.Connect(nodeA, func(e model.Entity) { got = append(got, e) }, nil)
		defer sub.Disconnect()

		n := rapid.IntRange(1, 50).Draw(t, "n")
		for i := 0; i < n; i++ {
			reg.EmitLater(sub.Handle.Changed, nodeA)
		}
		if len(got) != 0 {
			t.Fatalf("EmitLater delivered synchronously")
		}
		loop.ProcessEvents()
		if len(got) != 1 || got[0] != nodeA {
			t.Fatalf("%d emissions gave %d callbacks", n, len(got))
		}
		loop.ProcessEvents()
		if len(got) != 1 {
			t.Fatalf("emission repeated on a second tick")
		}
	})
}

func TestEmitLaterKeepsOrder(t *testing.T) {
	loop := eventloop.New()
	reg := handles.NewRegistry(loop)
	nodeB := &model.Node{Database: "db1", Code: "b"}
	var order []model.Identity
	record := func(e model.Entity) { order = append(order, e.Identity()) }
	a := reg.Connect(nodeA, record, record)
	b := reg.Connect(nodeB, record, nil)

	reg.EmitLater(b.Handle.Changed, nodeB)
	reg.EmitLater(a.Handle.Changed, nodeA)
	reg.EmitLater(b.Handle.Changed, nodeB)
	reg.EmitLater(a.Handle.Deleted, nodeA)
	loop.ProcessEvents()

	want := []model.Identity{nodeB.Identity(), nodeA.Identity(), nodeA.Identity()}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestEmitLaterPrefersFullPayload(t *testing.T) {
	loop := eventloop.New()
	reg := handles.NewRegistry(loop)
	var got model.Entity
	sub := reg.Connect(nodeA, func(e model.Entity) { got = e }, nil)
	reg.EmitLater(sub.Handle.Changed, nodeA)
	reg.EmitLater(sub.Handle.Changed, model.Ref(nodeA.Identity()))
	loop.ProcessEvents()
	if got != nodeA {
		t.Fatalf("payload = %#v", got)
	}
}

func TestHandleLifecycleProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		loop := eventloop.New()
		reg := handles.NewRegistry(loop)
		var live []*handles.Subscription
		var seen []*handles.Handle

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				s := reg.Connect(nodeA, func(model.Entity) {}, nil)
				live = append(live, s)
				seen = append(seen, s.Handle)
			case 1:
				if len(live) == 0 {
					continue
				}
				j := rapid.IntRange(0, len(live)-1).Draw(t, "victim")
				live[j].Disconnect()
				live = append(live[:j], live[j+1:]...)
			case 2:
				loop.ProcessEvents()
				if len(live) == 0 {
					for _, h := range seen {
						if !h.Destroyed() {
							t.Fatalf("handle alive on the idle tick after its last subscriber left")
						}
					}
				}
			}
			_, ok := reg.Lookup(nodeA.Identity())
			if ok != (len(live) > 0) {
				t.Fatalf("registered=%v with %d subscribers", ok, len(live))
			}
			for _, s := range live {
				if s.Handle.Destroyed() {
					t.Fatalf("subscribed handle destroyed")
				}
			}
		}
	})
}

func TestFlushDestroysEverything(t *testing.T) {
	loop := eventloop.New()
	reg := handles.NewRegistry(loop)
	fired := 0
	sub := reg.Connect(nodeA, func(model.Entity) { fired++ }, nil)
	reg.EmitLater(sub.Handle.Changed, nodeA)

	reg.Flush()
	loop.ProcessEvents()
	if fired != 0 {
		t.Fatal("queued emission survived Flush")
	}
	if reg.Len() != 0 || !sub.Handle.Destroyed() {
		t.Fatalf("Len=%d destroyed=%v", reg.Len(), sub.Handle.Destroyed())
	}
	if sub.Handle.Subscribers() != 0 {
		t.Fatal("flushed handle kept its subscribers")
	}
}

func TestEvictionsAreCounted(t *testing.T) {
	loop := eventloop.New()
	reg := handles.NewRegistry(loop)
	start := metrics.HandleRegistry.Evictions()

	reg.GetOrCreate(nodeA)
	loop.ProcessEvents()
	if got := metrics.HandleRegistry.Evictions() - start; got != 1 {
		t.Fatalf("evictions after idle collection = %d, want 1", got)
	}

	reg.Connect(nodeA, func(model.Entity) {}, nil)
	reg.Connect(&model.Node{Database: "db1", Code: "b"}, func(model.Entity) {}, nil)
	reg.Flush()
	if got := metrics.HandleRegistry.Evictions() - start; got != 3 {
		t.Fatalf("evictions after Flush = %d, want 3", got)
	}
}

func TestBindIgnoresUnwatchedEntities(t *testing.T) {
	loop := eventloop.New()
	bus := signals.NewBus(loop)
	reg := handles.NewRegistry(loop)
	reg.Bind(bus)
	defer reg.Unbind()

	bus.Node().Changed.Emit(signals.NodeChange{New: nodeA})
	loop.ProcessEvents()
	if reg.Len() != 0 {
		t.Fatal("bus event created a handle")
	}
}
