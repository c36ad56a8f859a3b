package lca_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/lca"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// fixture is a two-activity system: one kg of steel takes 2 MJ of
// electricity and emits 1 kg CO2; one MJ of electricity emits 0.5 kg CO2.
type fixture struct {
	p     *inventory.Project
	steel model.NodeKey
	elec  model.NodeKey
	co2   model.NodeKey
	gwp   model.MethodID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := inventory.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	ctx := context.Background()
	if err := m.SetCurrent(ctx, "lca"); err != nil {
		t.Fatal(err)
	}
	p := m.Current()

	co2 := &model.Node{Database: "bio", Code: "co2", Name: "carbon dioxide", Type: model.TypeEmission, Unit: "kg"}
	if err := p.WriteDatabase(ctx, "bio", []*model.Node{co2}, nil); err != nil {
		t.Fatal(err)
	}
	steel := &model.Node{Database: "tech", Code: "steel", Name: "steel", Type: model.TypeProcess, Unit: "kg"}
	elec := &model.Node{Database: "tech", Code: "elec", Name: "electricity", Type: model.TypeProcess, Unit: "MJ"}
	edges := []*model.Edge{
		{Input: steel.Key(), Output: steel.Key(), Amount: 1, Type: model.EdgeProduction},
		{Input: elec.Key(), Output: elec.Key(), Amount: 1, Type: model.EdgeProduction},
		{Input: elec.Key(), Output: steel.Key(), Amount: 2, Type: model.EdgeTechnosphere},
		{Input: co2.Key(), Output: steel.Key(), Amount: 1, Type: model.EdgeBiosphere},
		{Input: co2.Key(), Output: elec.Key(), Amount: 0.5, Type: model.EdgeBiosphere},
	}
	if err := p.WriteDatabase(ctx, "tech", []*model.Node{steel, elec}, edges); err != nil {
		t.Fatal(err)
	}
	gwp := model.MethodID{"IPCC", "GWP100"}
	if err := p.RegisterMethod(ctx, gwp, model.MethodMeta{Unit: "kg CO2-eq"}); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteMethod(ctx, &model.Method{ID: gwp, CFs: []model.CF{{Flow: co2.Key(), Amount: 1}}}); err != nil {
		t.Fatal(err)
	}
	return &fixture{p: p, steel: steel.Key(), elec: elec.Key(), co2: co2.Key(), gwp: gwp}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSolveAndSwitchMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := lca.New(ctx, f.p, map[model.NodeKey]float64{f.steel: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := l.Databases(); len(got) != 2 {
		t.Fatalf("databases = %v", got)
	}
	if err := l.Solve(map[model.NodeKey]float64{f.steel: 1}); err != nil {
		t.Fatal(err)
	}
	if s := l.Supply(); !near(s[f.elec], 2) || !near(s[f.steel], 1) {
		t.Fatalf("supply = %v", s)
	}
	if inv := l.Inventory(); !near(inv[f.co2], 2) {
		t.Fatalf("inventory = %v", inv)
	}
	if err := l.SwitchMethod(ctx, f.gwp); err != nil {
		t.Fatal(err)
	}
	if !near(l.Score(), 2) || l.Unit() != "kg CO2-eq" {
		t.Fatalf("score = %v %s", l.Score(), l.Unit())
	}
	if l.Solves() != 1 {
		t.Fatalf("switching method solved again: %d", l.Solves())
	}
	j, _ := l.Index(f.elec)
	if us, err := l.UnitScore(j); err != nil || !near(us, 0.5) {
		t.Fatalf("unit score of electricity = %v, %v", us, err)
	}
}

func TestCalculateRejectsEmptySetups(t *testing.T) {
	f := newFixture(t)
	before := metrics.LCAFactorize.Count()
	_, err := lca.Calculate(context.Background(), f.p, model.CalculationSetup{
		Name: "cs",
		Inv:  []model.FunctionalUnit{{Node: f.steel, Amount: 1}},
	})
	if !errors.Is(err, model.ErrNoMethods) {
		t.Fatalf("err = %v", err)
	}
	_, err = lca.Calculate(context.Background(), f.p, model.CalculationSetup{Name: "cs", IA: []model.MethodID{f.gwp}})
	if !errors.Is(err, model.ErrNoFunctional) {
		t.Fatalf("err = %v", err)
	}
	if metrics.Enabled() && metrics.LCAFactorize.Count() != before {
		t.Error("rejected setup reached the solver")
	}
}

func TestCalculateReportsMissingEntities(t *testing.T) {
	f := newFixture(t)
	missingNode := model.NodeKey{Database: "tech", Code: "gone"}
	missingMethod := model.MethodID{"gone"}
	res, err := lca.Calculate(context.Background(), f.p, model.CalculationSetup{
		Name: "cs",
		Inv: []model.FunctionalUnit{
			{Node: f.steel, Amount: 3},
			{Node: missingNode, Amount: 1},
		},
		IA: []model.MethodID{f.gwp, missingMethod},
	})
	if err != nil {
		t.Fatal(err)
	}
	errs := res.Errors()
	if len(errs) != 2 || errs[0] != "NOT FOUND: tech|gone" || errs[1] != "NOT FOUND: (gone)" {
		t.Fatalf("errors = %q", errs)
	}
	if s, ok := res.Score(f.steel, f.gwp); !ok || !near(s, 6) {
		t.Fatalf("score = %v, %v", s, ok)
	}
	if _, ok := res.Score(f.steel, missingMethod); ok {
		t.Error("missing method should have no score")
	}
}
