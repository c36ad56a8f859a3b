//go:build ignore

// generate_testdata.go creates benchmark projects for the metadata store and
// the navigator.
// Usage: go run scripts/generate_testdata.go [base-dir]
//
// Creates, under base-dir (default testdata/benchmark):
//
//	bench-small   (100 activities)
//	bench-medium  (1000 activities)
//	bench-large   (5000 activities)
//	bench-huge    (50000 activities, chain only)
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/testutil"
)

type datasetSpec struct {
	name string
	size int
	desc string
}

var datasets = []datasetSpec{
	{"bench-small", 100, "100 activities - sparse random DAG with ~10% edge density"},
	{"bench-medium", 1000, "1000 activities - sparse random DAG with ~5% edge density"},
	{"bench-large", 5000, "5000 activities - sparse random DAG with ~2% edge density"},
	{"bench-huge", 50000, "50000 activities - linear supply chain"},
}

func main() {
	baseDir := "testdata/benchmark"
	if len(os.Args) > 1 {
		baseDir = os.Args[1]
	}
	m, err := inventory.NewManager(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", baseDir, err)
		os.Exit(1)
	}
	defer m.Close()

	ctx := context.Background()
	for _, ds := range datasets {
		fmt.Printf("Generating %s (%d activities)...\n", ds.name, ds.size)
		if m.Exists(ds.name) {
			if err := m.Delete(ctx, ds.name); err != nil {
				fail(ds.name, err)
			}
		}
		if err := m.SetCurrent(ctx, ds.name); err != nil {
			fail(ds.name, err)
		}

		gen := testutil.New(testutil.GeneratorConfig{Seed: int64(ds.size)})
		var gf testutil.GraphFixture
		if ds.size > 10000 {
			// RandomDAG is quadratic in size
			gf = gen.Chain(ds.size)
		} else {
			gf = gen.RandomDAG(ds.size, calculateDensity(ds.size))
		}
		inv := gen.ToInventory(gf)
		addRealisticContent(inv.Technosphere, ds.desc)

		if err := install(ctx, m.Current(), inv); err != nil {
			fail(ds.name, err)
		}
		fmt.Printf("  Written %s (%d edges)\n", m.Dir(ds.name), len(inv.Edges))
	}

	fmt.Println("\nDone! Benchmark projects created in", baseDir)
}

func fail(name string, err error) {
	fmt.Fprintf(os.Stderr, "Failed to generate %s: %v\n", name, err)
	os.Exit(1)
}

func install(ctx context.Context, p *inventory.Project, inv testutil.Inventory) error {
	bio := inv.Biosphere[0].Database
	if err := p.WriteDatabase(ctx, bio, inv.Biosphere, nil); err != nil {
		return err
	}
	tech := inv.Technosphere[0].Database
	if err := p.WriteDatabase(ctx, tech, inv.Technosphere, inv.Edges); err != nil {
		return err
	}
	if err := p.RegisterMethod(ctx, inv.Method.ID, inv.Method.Meta); err != nil {
		return err
	}
	if err := p.WriteMethod(ctx, inv.Method); err != nil {
		return err
	}
	return p.SaveSetup(ctx, model.CalculationSetup{
		Name: "benchmark",
		Inv:  []model.FunctionalUnit{{Node: inv.Root(), Amount: 1}},
		IA:   []model.MethodID{inv.Method.ID},
	})
}

func calculateDensity(size int) float64 {
	// Scale density inversely with size to keep edge count reasonable
	switch {
	case size <= 100:
		return 0.1
	case size <= 1000:
		return 0.05
	default:
		return 0.02
	}
}

func addRealisticContent(nodes []*model.Node, datasetDesc string) {
	names := []string{
		"steel production, converter",
		"electricity, high voltage",
		"transport, freight, lorry",
		"cement production, Portland",
		"aluminium, primary, ingot",
		"heat, district or industrial",
		"polyethylene, high density",
		"market for diesel",
		"clinker production",
		"sawnwood, softwood, kiln dried",
	}
	locations := []string{"GLO", "RER", "CH", "DE", "CN", "US"}

	for i, n := range nodes {
		n.Name = fmt.Sprintf("%s #%d", names[i%len(names)], i)
		n.Location = locations[i%len(locations)]
		n.Comment = datasetDesc
	}
}
