package traversal_test

import (
	"context"
	"testing"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/lca"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/testutil"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/traversal"
)

func setup(t *testing.T, gf testutil.GraphFixture) (*lca.LCA, testutil.Inventory) {
	t.Helper()
	_, p := testutil.TempProject(t, "traversal")
	gen := testutil.NewDefault()
	inv := gen.ToInventory(gf)
	testutil.Install(t, p, inv)

	ctx := context.Background()
	l, err := lca.New(ctx, p, map[model.NodeKey]float64{inv.Root(): 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.SwitchMethod(ctx, inv.Method.ID); err != nil {
		t.Fatal(err)
	}
	return l, inv
}

func TestTraverseChainVisitsEverything(t *testing.T) {
	l, inv := setup(t, testutil.NewDefault().Chain(4))
	res, err := traversal.Traverse(l, inv.Root(), 1, traversal.Settings{Cutoff: 0, MaxCalc: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Nodes) != 4 || len(res.Edges) != 3 {
		t.Fatalf("%d nodes, %d edges", len(res.Nodes), len(res.Edges))
	}
	var direct float64
	for _, n := range res.Nodes {
		direct += n.Direct
		if n.Key == inv.Root() {
			testutil.AssertNear(t, "root cumulative", n.Cumulative, res.Total)
		}
	}
	// with no cutoff the direct emissions add up to the total
	testutil.AssertNear(t, "sum of direct scores", direct, res.Total)
	if res.Unit != "kg CO2-eq" {
		t.Errorf("unit = %q", res.Unit)
	}
}

func TestCutoffPrunes(t *testing.T) {
	l, inv := setup(t, testutil.NewDefault().Star(6))
	full, err := traversal.Traverse(l, inv.Root(), 1, traversal.Settings{MaxCalc: 100})
	if err != nil {
		t.Fatal(err)
	}
	pruned, err := traversal.Traverse(l, inv.Root(), 1, traversal.Settings{Cutoff: 0.9, MaxCalc: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(pruned.Edges) >= len(full.Edges) {
		t.Fatalf("cutoff kept %d of %d edges", len(pruned.Edges), len(full.Edges))
	}
	for _, e := range pruned.Edges {
		if e.Impact < 0.9*pruned.Total {
			t.Errorf("edge below cutoff kept: %+v", e)
		}
	}
}

func TestMaxCalcBoundsSolves(t *testing.T) {
	l, inv := setup(t, testutil.NewDefault().Tree(3, 3))
	res, err := traversal.Traverse(l, inv.Root(), 1, traversal.Settings{MaxCalc: 5})
	if err != nil {
		t.Fatal(err)
	}
	if res.Calcs > 5 {
		t.Fatalf("ran %d calculations", res.Calcs)
	}
	if len(res.Nodes) > 5 {
		t.Fatalf("visited %d nodes with 5 calculations", len(res.Nodes))
	}
}

func TestTagAggregates(t *testing.T) {
	gen := testutil.NewDefault()
	gf := gen.Chain(2)
	_, p := testutil.TempProject(t, "tags")
	inv := gen.ToInventory(gf)
	inv.Technosphere[0].Tags = map[string]string{"sector": "metal"}
	testutil.Install(t, p, inv)

	ctx := context.Background()
	l, err := lca.New(ctx, p, map[model.NodeKey]float64{inv.Root(): 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.SwitchMethod(ctx, inv.Method.ID); err != nil {
		t.Fatal(err)
	}
	res, err := traversal.Traverse(l, inv.Root(), 1, traversal.Settings{MaxCalc: 10, Tags: []string{"sector"}})
	if err != nil {
		t.Fatal(err)
	}
	metal, other := res.Tags["sector=metal"], res.Tags["sector=(unspecified)"]
	if metal <= 0 || other <= 0 {
		t.Fatalf("tag scores = %v", res.Tags)
	}
	testutil.AssertNear(t, "tag total", metal+other, res.Total)
}

func TestUnknownDemand(t *testing.T) {
	l, _ := setup(t, testutil.NewDefault().Chain(2))
	if _, err := traversal.Traverse(l, model.NodeKey{Database: "tech", Code: "nope"}, 1, traversal.DefaultSettings); err == nil {
		t.Fatal("expected an error")
	}
}
