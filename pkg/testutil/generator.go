// Package testutil provides inventory fixture generators for various supply
// chain topologies. All generators produce deterministic output for
// reproducible tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// GraphFixture represents an abstract supply chain.
type GraphFixture struct {
	Description string     `json:"description"`
	Nodes       []string   `json:"nodes"`
	Edges       [][2]int   `json:"edges"` // [consumer_idx, supplier_idx]
	Properties  Properties `json:"properties,omitempty"`
}

// Properties holds optional metadata about the fixture.
type Properties struct {
	HasCycles     bool `json:"has_cycles,omitempty"`
	ExpectedDepth int  `json:"expected_depth,omitempty"`
}

// GeneratorConfig controls inventory generation.
type GeneratorConfig struct {
	Seed      int64  // Random seed for determinism (0 = use current time)
	Database  string // Technosphere database name (default: "tech")
	Biosphere string // Biosphere database name (default: "bio")
	Unit      string // Unit of every activity (default: "kg")
	MaxAmount float64
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:      42, // Deterministic
		Database:  "tech",
		Biosphere: "bio",
		Unit:      "kg",
		MaxAmount: 2,
	}
}

// Generator creates test fixtures with various topologies.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	def := DefaultConfig()
	if cfg.Database == "" {
		cfg.Database = def.Database
	}
	if cfg.Biosphere == "" {
		cfg.Biosphere = def.Biosphere
	}
	if cfg.Unit == "" {
		cfg.Unit = def.Unit
	}
	if cfg.MaxAmount <= 0 {
		cfg.MaxAmount = def.MaxAmount
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// ============================================================================
// Topology Generators
// ============================================================================

// Chain creates a linear supply chain: n0 consumes n1, n1 consumes n2, ...
// n0 is the final product, n{size-1} the raw material.
func (g *Generator) Chain(size int) GraphFixture {
	nodes := make([]string, size)
	edges := make([][2]int, 0, size)
	for i := 0; i < size; i++ {
		nodes[i] = fmt.Sprintf("n%d", i)
		if i > 0 {
			edges = append(edges, [2]int{i - 1, i})
		}
	}
	depth := size - 1
	if depth < 0 {
		depth = 0
	}
	return GraphFixture{
		Description: fmt.Sprintf("Linear chain of %d activities", size),
		Nodes:       nodes,
		Edges:       edges,
		Properties:  Properties{ExpectedDepth: depth},
	}
}

// Star creates an assembly that consumes `spokes` parts directly.
func (g *Generator) Star(spokes int) GraphFixture {
	nodes := make([]string, spokes+1)
	edges := make([][2]int, spokes)
	nodes[0] = "hub"
	for i := 1; i <= spokes; i++ {
		nodes[i] = fmt.Sprintf("spoke%d", i)
		edges[i-1] = [2]int{0, i}
	}
	return GraphFixture{
		Description: fmt.Sprintf("Assembly of %d parts", spokes),
		Nodes:       nodes,
		Edges:       edges,
		Properties:  Properties{ExpectedDepth: 1},
	}
}

// Diamond creates a product made from `width` intermediates that all share
// one raw material.
func (g *Generator) Diamond(width int) GraphFixture {
	if width < 1 {
		width = 1
	}
	size := width + 2
	nodes := make([]string, size)
	edges := make([][2]int, 0, width*2)
	nodes[0] = "top"
	nodes[size-1] = "bottom"
	for i := 1; i <= width; i++ {
		nodes[i] = fmt.Sprintf("mid%d", i)
		edges = append(edges, [2]int{0, i}, [2]int{i, size - 1})
	}
	return GraphFixture{
		Description: fmt.Sprintf("Diamond with %d intermediates", width),
		Nodes:       nodes,
		Edges:       edges,
		Properties:  Properties{ExpectedDepth: 2},
	}
}

// Tree creates a supply tree with given depth and branching factor.
func (g *Generator) Tree(depth, breadth int) GraphFixture {
	if depth < 1 {
		depth = 1
	}
	if breadth < 1 {
		breadth = 1
	}
	nodes := []string{"n0"}
	var edges [][2]int
	level := []int{0}
	for d := 0; d < depth; d++ {
		var next []int
		for _, parent := range level {
			for b := 0; b < breadth; b++ {
				child := len(nodes)
				nodes = append(nodes, fmt.Sprintf("n%d", child))
				edges = append(edges, [2]int{parent, child})
				next = append(next, child)
			}
		}
		level = next
	}
	return GraphFixture{
		Description: fmt.Sprintf("Tree with depth=%d, breadth=%d (%d activities)", depth, breadth, len(nodes)),
		Nodes:       nodes,
		Edges:       edges,
		Properties:  Properties{ExpectedDepth: depth},
	}
}

// Cycle creates a loop of activities each consuming the next. With amounts
// below one the system stays solvable.
func (g *Generator) Cycle(size int) GraphFixture {
	nodes := make([]string, size)
	edges := make([][2]int, size)
	for i := 0; i < size; i++ {
		nodes[i] = fmt.Sprintf("n%d", i)
		edges[i] = [2]int{i, (i + 1) % size}
	}
	return GraphFixture{
		Description: fmt.Sprintf("Cycle of %d activities", size),
		Nodes:       nodes,
		Edges:       edges,
		Properties:  Properties{HasCycles: true},
	}
}

// RandomDAG creates a random acyclic supply chain. density is the
// probability of an edge existing (0.0 to 1.0).
func (g *Generator) RandomDAG(size int, density float64) GraphFixture {
	density = math.Max(0, math.Min(1, density))
	nodes := make([]string, size)
	var edges [][2]int
	for i := 0; i < size; i++ {
		nodes[i] = fmt.Sprintf("n%d", i)
	}
	// lower index consumes higher index only, so no cycles
	for i := 0; i < size; i++ {
		for j := i + 1; j < size; j++ {
			if g.rng.Float64() < density {
				edges = append(edges, [2]int{i, j})
			}
		}
	}
	return GraphFixture{
		Description: fmt.Sprintf("Random DAG with %d activities, density=%.2f (%d edges)", size, density, len(edges)),
		Nodes:       nodes,
		Edges:       edges,
	}
}

// ============================================================================
// Inventory Generators
// ============================================================================

// Inventory is a fixture converted to storable records.
type Inventory struct {
	Technosphere []*model.Node
	Biosphere    []*model.Node
	Edges        []*model.Edge
	Method       *model.Method
}

// Root returns the key of the first activity, the final product.
func (inv Inventory) Root() model.NodeKey {
	return inv.Technosphere[0].Key()
}

// CO2 is the code of the single elementary flow every fixture emits.
const CO2 = "co2"

// ToInventory converts a GraphFixture to activities producing one unit each,
// technosphere inputs with random amounts and one CO2 emission per activity.
// The method characterises CO2 with a factor of 1.
func (g *Generator) ToInventory(gf GraphFixture) Inventory {
	flow := &model.Node{Database: g.cfg.Biosphere, Code: CO2, Name: "carbon dioxide", Type: model.TypeEmission, Unit: "kg"}
	inv := Inventory{Biosphere: []*model.Node{flow}}
	for _, name := range gf.Nodes {
		n := &model.Node{
			Database: g.cfg.Database,
			Code:     name,
			Name:     name,
			Type:     model.TypeProcess,
			Unit:     g.cfg.Unit,
			Location: "GLO",
		}
		inv.Technosphere = append(inv.Technosphere, n)
		inv.Edges = append(inv.Edges,
			&model.Edge{Input: n.Key(), Output: n.Key(), Amount: 1, Type: model.EdgeProduction},
			&model.Edge{Input: flow.Key(), Output: n.Key(), Amount: g.amount(), Type: model.EdgeBiosphere},
		)
	}
	for _, e := range gf.Edges {
		amount := g.amount()
		if gf.Properties.HasCycles {
			amount /= 2 * g.cfg.MaxAmount
		}
		inv.Edges = append(inv.Edges, &model.Edge{
			Input:  inv.Technosphere[e[1]].Key(),
			Output: inv.Technosphere[e[0]].Key(),
			Amount: amount,
			Type:   model.EdgeTechnosphere,
		})
	}
	inv.Method = &model.Method{
		ID:   model.MethodID{"fixture", "climate change", "GWP100"},
		Meta: model.MethodMeta{Unit: "kg CO2-eq"},
		CFs:  []model.CF{{Flow: flow.Key(), Amount: 1}},
	}
	return inv
}

// amount returns a random amount in (0, MaxAmount], rounded to two decimals.
func (g *Generator) amount() float64 {
	v := math.Round(g.rng.Float64()*g.cfg.MaxAmount*100) / 100
	if v == 0 {
		v = 0.01
	}
	return v
}
