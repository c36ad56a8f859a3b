// Package lca computes life cycle impact scores from the inventory. It builds
// the technosphere matrix A and biosphere matrix B of the databases a demand
// depends on, factorises A once and then solves for any number of demands
// and methods against the same factorisation.
package lca

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// Source is the part of an inventory project an LCA reads.
type Source interface {
	Database(name string) (model.DatabaseMeta, bool)
	Nodes(ctx context.Context, database string) ([]*model.Node, error)
	DatabaseEdges(ctx context.Context, database string) ([]*model.Edge, error)
	NodeExists(ctx context.Context, key model.NodeKey) (bool, error)
	MethodMeta(id model.MethodID) (model.MethodMeta, bool)
	LoadMethod(ctx context.Context, id model.MethodID) (*model.Method, error)
}

// LCA holds the matrices of one set of databases.
type LCA struct {
	src Source

	databases  []string
	activities []model.NodeKey
	flows      []model.NodeKey
	nodes      map[model.NodeKey]*model.Node
	actIndex   map[model.NodeKey]int
	flowIndex  map[model.NodeKey]int

	A *mat.Dense // technosphere, activities x activities
	B *mat.Dense // biosphere, flows x activities

	lu         mat.LU
	factorized bool

	method model.MethodID
	unit   string
	cf     *mat.VecDense // characterisation factor per flow
	cfs    map[string]*mat.VecDense

	supply *mat.VecDense
	inv    *mat.VecDense
	score  float64
	solves int
}

// New builds the matrices for the databases the demand nodes live in and
// every database they depend on.
func New(ctx context.Context, src Source, demand map[model.NodeKey]float64) (*LCA, error) {
	seeds := make([]string, 0, len(demand))
	for k := range demand {
		seeds = append(seeds, k.Database)
	}
	dbs, err := dependencies(src, seeds)
	if err != nil {
		return nil, err
	}
	l := &LCA{
		src:       src,
		databases: dbs,
		nodes:     make(map[model.NodeKey]*model.Node),
		actIndex:  make(map[model.NodeKey]int),
		flowIndex: make(map[model.NodeKey]int),
		cfs:       make(map[string]*mat.VecDense),
	}
	if err := l.build(ctx); err != nil {
		return nil, err
	}
	for k := range demand {
		if _, ok := l.actIndex[k]; !ok {
			return nil, model.NotFound("activity", k.String())
		}
	}
	return l, nil
}

// dependencies returns seeds plus every database reachable through the
// depends lists, sorted.
func dependencies(src Source, seeds []string) ([]string, error) {
	seen := map[string]bool{}
	stack := append([]string(nil), seeds...)
	for len(stack) > 0 {
		db := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[db] {
			continue
		}
		meta, ok := src.Database(db)
		if !ok {
			return nil, model.NotFound("database", db)
		}
		seen[db] = true
		stack = append(stack, meta.Depends...)
	}
	out := make([]string, 0, len(seen))
	for db := range seen {
		out = append(out, db)
	}
	sort.Strings(out)
	return out, nil
}

func (l *LCA) build(ctx context.Context) error {
	var edges []*model.Edge
	for _, db := range l.databases {
		nodes, err := l.src.Nodes(ctx, db)
		if err != nil {
			return fmt.Errorf("lca: nodes of %q: %w", db, err)
		}
		for _, n := range nodes {
			k := n.Key()
			l.nodes[k] = n
			if n.IsBiosphere() {
				l.flowIndex[k] = len(l.flows)
				l.flows = append(l.flows, k)
			} else {
				l.actIndex[k] = len(l.activities)
				l.activities = append(l.activities, k)
			}
		}
		es, err := l.src.DatabaseEdges(ctx, db)
		if err != nil {
			return fmt.Errorf("lca: edges of %q: %w", db, err)
		}
		edges = append(edges, es...)
	}
	if len(l.activities) == 0 {
		return model.NewDomainError(model.KindInvalid, "no activities in %v", l.databases)
	}

	na, nf := len(l.activities), len(l.flows)
	l.A = mat.NewDense(na, na, nil)
	if nf > 0 {
		l.B = mat.NewDense(nf, na, nil)
	}
	produced := make([]bool, na)
	for _, e := range edges {
		j, ok := l.actIndex[e.Output]
		if !ok {
			continue
		}
		switch e.Type {
		case model.EdgeProduction:
			if i, ok := l.actIndex[e.Input]; ok {
				l.A.Set(i, j, l.A.At(i, j)+e.Amount)
				produced[j] = produced[j] || i == j
			}
		case model.EdgeTechnosphere:
			if i, ok := l.actIndex[e.Input]; ok {
				l.A.Set(i, j, l.A.At(i, j)-e.Amount)
			}
		case model.EdgeSubstitution:
			if i, ok := l.actIndex[e.Input]; ok {
				l.A.Set(i, j, l.A.At(i, j)+e.Amount)
			}
		case model.EdgeBiosphere:
			if i, ok := l.flowIndex[e.Input]; ok {
				l.B.Set(i, j, l.B.At(i, j)+e.Amount)
			}
		}
	}
	// an activity without a production exchange produces one unit of itself
	for j, ok := range produced {
		if !ok {
			l.A.Set(j, j, l.A.At(j, j)+1)
		}
	}
	return nil
}

// Factorize computes the LU decomposition of A. It runs once per LCA.
func (l *LCA) Factorize() error {
	if l.factorized {
		return nil
	}
	defer metrics.Timer(metrics.LCAFactorize)()
	l.lu.Factorize(l.A)
	if math.IsInf(l.lu.Cond(), 1) {
		return model.NewDomainError(model.KindInvalid, "technosphere matrix is singular")
	}
	l.factorized = true
	return nil
}

// DemandVector converts a demand map into a vector over the activities.
func (l *LCA) DemandVector(demand map[model.NodeKey]float64) (*mat.VecDense, error) {
	f := mat.NewVecDense(len(l.activities), nil)
	for k, amount := range demand {
		j, ok := l.actIndex[k]
		if !ok {
			return nil, model.NotFound("activity", k.String())
		}
		f.SetVec(j, f.AtVec(j)+amount)
	}
	return f, nil
}

// Solve computes the supply vector s with A s = f, the inventory B s and,
// when a method is set, the score.
func (l *LCA) Solve(demand map[model.NodeKey]float64) error {
	f, err := l.DemandVector(demand)
	if err != nil {
		return err
	}
	s, err := l.solve(f)
	if err != nil {
		return err
	}
	l.supply = s
	l.inv = nil
	if l.B != nil {
		l.inv = mat.NewVecDense(len(l.flows), nil)
		l.inv.MulVec(l.B, s)
	}
	l.score = l.characterize(l.inv)
	return nil
}

func (l *LCA) solve(f *mat.VecDense) (*mat.VecDense, error) {
	if err := l.Factorize(); err != nil {
		return nil, err
	}
	defer metrics.Timer(metrics.LCASolve)()
	var s mat.VecDense
	if err := l.lu.SolveVecTo(&s, false, f); err != nil {
		return nil, fmt.Errorf("lca: solve: %w", err)
	}
	l.solves++
	return &s, nil
}

func (l *LCA) characterize(inv *mat.VecDense) float64 {
	if inv == nil || l.cf == nil {
		return 0
	}
	return mat.Dot(l.cf, inv)
}

// SwitchMethod loads the characterisation factors of id and rescores the
// last solution without solving again.
func (l *LCA) SwitchMethod(ctx context.Context, id model.MethodID) error {
	cf, ok := l.cfs[id.Key()]
	if !ok {
		m, err := l.src.LoadMethod(ctx, id)
		if err != nil {
			return err
		}
		if len(l.flows) > 0 {
			cf = mat.NewVecDense(len(l.flows), nil)
			for _, c := range m.CFs {
				if i, ok := l.flowIndex[c.Flow]; ok {
					cf.SetVec(i, cf.AtVec(i)+c.Amount)
				}
			}
		}
		l.cfs[id.Key()] = cf
	}
	meta, _ := l.src.MethodMeta(id)
	l.method = id
	l.unit = meta.Unit
	l.cf = cf
	l.score = l.characterize(l.inv)
	return nil
}

// ForgetMethod drops the characterisation factors loaded for id, so the
// next SwitchMethod reads the method again.
func (l *LCA) ForgetMethod(id model.MethodID) {
	delete(l.cfs, id.Key())
}

// Score returns the characterised score of the last solution.
func (l *LCA) Score() float64 { return l.score }

// Method returns the current method.
func (l *LCA) Method() model.MethodID { return l.method }

// Unit returns the unit of the current method.
func (l *LCA) Unit() string { return l.unit }

// Solves returns how often the factorised system was solved.
func (l *LCA) Solves() int { return l.solves }

// Databases returns the databases the matrices were built from.
func (l *LCA) Databases() []string { return append([]string(nil), l.databases...) }

// Supply returns the activity amounts of the last solution.
func (l *LCA) Supply() map[model.NodeKey]float64 {
	out := make(map[model.NodeKey]float64, len(l.activities))
	if l.supply == nil {
		return out
	}
	for j, k := range l.activities {
		if v := l.supply.AtVec(j); v != 0 {
			out[k] = v
		}
	}
	return out
}

// Inventory returns the elementary flow amounts of the last solution.
func (l *LCA) Inventory() map[model.NodeKey]float64 {
	out := make(map[model.NodeKey]float64, len(l.flows))
	if l.inv == nil {
		return out
	}
	for i, k := range l.flows {
		if v := l.inv.AtVec(i); v != 0 {
			out[k] = v
		}
	}
	return out
}

// Activities returns the matrix column order.
func (l *LCA) Activities() []model.NodeKey { return l.activities }

// Index returns the matrix index of an activity.
func (l *LCA) Index(k model.NodeKey) (int, bool) {
	j, ok := l.actIndex[k]
	return j, ok
}

// Node returns the record of an activity or flow.
func (l *LCA) Node(k model.NodeKey) *model.Node { return l.nodes[k] }

// UnitScore solves for one unit of activity j and returns its cumulative
// score under the current method.
func (l *LCA) UnitScore(j int) (float64, error) {
	f := mat.NewVecDense(len(l.activities), nil)
	f.SetVec(j, 1)
	s, err := l.solve(f)
	if err != nil {
		return 0, err
	}
	if l.B == nil || l.cf == nil {
		return 0, nil
	}
	var inv mat.VecDense
	inv.MulVec(l.B, s)
	return mat.Dot(l.cf, &inv), nil
}

// DirectScore is the score of the elementary flows activity j emits per
// unit of operation.
func (l *LCA) DirectScore(j int) float64 {
	if l.B == nil || l.cf == nil {
		return 0
	}
	return mat.Dot(l.cf, l.B.ColView(j))
}

// Production returns the diagonal of A at j.
func (l *LCA) Production(j int) float64 { return l.A.At(j, j) }

// Inputs returns the technosphere inputs of activity j as (supplier index,
// amount per unit of production) pairs.
func (l *LCA) Inputs(j int) []Input {
	var out []Input
	for i := range l.activities {
		if i == j {
			continue
		}
		if v := l.A.At(i, j); v != 0 {
			out = append(out, Input{Supplier: i, Amount: -v})
		}
	}
	return out
}

// Flows returns the characterised biosphere flows of activity j.
func (l *LCA) Flows(j int) []Flow {
	if l.B == nil {
		return nil
	}
	var out []Flow
	for i, k := range l.flows {
		v := l.B.At(i, j)
		if v == 0 {
			continue
		}
		fl := Flow{Flow: k, Amount: v}
		if l.cf != nil {
			fl.Impact = v * l.cf.AtVec(i)
		}
		out = append(out, fl)
	}
	return out
}

// Input is one technosphere input.
type Input struct {
	Supplier int
	Amount   float64
}

// Flow is one biosphere exchange of an activity.
type Flow struct {
	Flow   model.NodeKey
	Amount float64
	Impact float64
}
