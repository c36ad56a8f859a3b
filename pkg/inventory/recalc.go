package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

type nameCollector struct {
	idents  []string
	callees map[string]bool
}

func (c *nameCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents = append(c.idents, n.Value)
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.callees[id.Value] = true
		}
	}
}

// formulaNames returns the variable names a formula refers to, sorted and
// without duplicates. Function names are excluded.
func formulaNames(formula string) ([]string, error) {
	tree, err := parser.Parse(formula)
	if err != nil {
		return nil, model.NewDomainError(model.KindInvalid, "formula %q: %v", formula, err)
	}
	c := &nameCollector{callees: map[string]bool{}}
	ast.Walk(&tree.Node, c)
	seen := map[string]bool{}
	var out []string
	for _, id := range c.idents {
		if c.callees[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// scopeResolver answers which parameter a name in a formula refers to.
// Activity groups see themselves, their ordered upstream groups, the database
// of their activities and the project; database parameters see their database
// and the project.
type scopeResolver struct {
	byKey   map[model.ParameterKey]*model.Parameter
	groups  map[string]model.Group
	groupDB map[string]string
	nodeGrp map[model.NodeKey]string
}

func newScopeResolver(params []*model.Parameter, groups []model.Group) *scopeResolver {
	r := &scopeResolver{
		byKey:   make(map[model.ParameterKey]*model.Parameter, len(params)),
		groups:  make(map[string]model.Group, len(groups)),
		groupDB: map[string]string{},
		nodeGrp: map[model.NodeKey]string{},
	}
	for _, g := range groups {
		r.groups[g.Name] = g
	}
	for _, prm := range params {
		r.byKey[prm.Key()] = prm
		if prm.Kind == model.ParamActivity && prm.Node != nil {
			if _, ok := r.groupDB[prm.Scope]; !ok {
				r.groupDB[prm.Scope] = prm.Node.Database
			}
			r.nodeGrp[*prm.Node] = prm.Scope
		}
	}
	return r
}

func (r *scopeResolver) groupScopes(group string) []string {
	scopes := []string{group}
	scopes = append(scopes, r.groups[group].Order...)
	if db := r.groupDB[group]; db != "" {
		scopes = append(scopes, db)
	}
	return append(scopes, model.ProjectScope)
}

func (r *scopeResolver) scopes(prm *model.Parameter) []string {
	switch prm.Kind {
	case model.ParamDatabase:
		return []string{prm.Scope, model.ProjectScope}
	case model.ParamActivity:
		return r.groupScopes(prm.Scope)
	default:
		return []string{model.ProjectScope}
	}
}

func (r *scopeResolver) edgeScopes(owner model.NodeKey) []string {
	if g, ok := r.nodeGrp[owner]; ok {
		return r.groupScopes(g)
	}
	return []string{owner.Database, model.ProjectScope}
}

func (r *scopeResolver) lookup(scopes []string, name string) (*model.Parameter, bool) {
	for _, s := range scopes {
		if prm, ok := r.byKey[model.ParameterKey{Scope: s, Name: name}]; ok {
			return prm, true
		}
	}
	return nil, false
}

func (r *scopeResolver) resolve(prm *model.Parameter, name string) (*model.Parameter, bool) {
	return r.lookup(r.scopes(prm), name)
}

func (r *scopeResolver) env(scopes []string, values map[model.ParameterKey]float64) map[string]any {
	env := map[string]any{}
	for i := len(scopes) - 1; i >= 0; i-- {
		for key, v := range values {
			if key.Scope == scopes[i] {
				env[key.Name] = v
			}
		}
	}
	return env
}

func evaluate(formula string, env map[string]any) (float64, error) {
	out, err := expr.Eval(formula, env)
	if err != nil {
		return 0, model.NewDomainError(model.KindInvalid, "formula %q: %v", formula, err)
	}
	var v float64
	switch x := out.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case bool:
		if x {
			v = 1
		}
	default:
		return 0, model.NewDomainError(model.KindInvalid, "formula %q returned %T", formula, out)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, model.NewDomainError(model.KindInvalid, "formula %q is not finite", formula)
	}
	return v, nil
}

// Recalculate re-evaluates every parameter formula in dependency order, then
// every edge formula, and fires ParametersRecalculated once.
func (p *Project) Recalculate(ctx context.Context) error {
	params, err := p.Parameters(ctx)
	if err != nil {
		return err
	}
	groups, err := p.Groups(ctx)
	if err != nil {
		return err
	}
	r := newScopeResolver(params, groups)

	index := make(map[model.ParameterKey]int64, len(params))
	g := simple.NewDirectedGraph()
	for i, prm := range params {
		index[prm.Key()] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}
	for i, prm := range params {
		if prm.Formula == "" {
			continue
		}
		names, err := formulaNames(prm.Formula)
		if err != nil {
			return err
		}
		for _, n := range names {
			dep, ok := r.resolve(prm, n)
			if !ok {
				return model.NewDomainError(model.KindInvalid, "unknown name %q in formula of %s", n, prm.Key())
			}
			j := index[dep.Key()]
			if j == int64(i) {
				return model.NewDomainError(model.KindParameterCycle, "%s refers to itself", prm.Key())
			}
			g.SetEdge(g.NewEdge(simple.Node(j), simple.Node(int64(i))))
		}
	}

	order, err := topo.Sort(g)
	if err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) {
			var parts []string
			for _, c := range cycles {
				var names []string
				for _, n := range c {
					names = append(names, params[n.ID()].Key().String())
				}
				sort.Strings(names)
				parts = append(parts, strings.Join(names, ", "))
			}
			return model.NewDomainError(model.KindParameterCycle, "%s", strings.Join(parts, "; "))
		}
		return fmt.Errorf("order parameters: %w", err)
	}

	values := make(map[model.ParameterKey]float64, len(params))
	for _, prm := range params {
		values[prm.Key()] = prm.Amount
	}
	var changed []*model.Parameter
	for _, n := range order {
		prm := params[n.ID()]
		if prm.Formula == "" {
			continue
		}
		v, err := evaluate(prm.Formula, r.env(r.scopes(prm), values))
		if err != nil {
			return fmt.Errorf("parameter %s: %w", prm.Key(), err)
		}
		values[prm.Key()] = v
		if v != prm.Amount {
			prm.Amount = v
			changed = append(changed, prm)
		}
	}

	q, err := p.q(ctx)
	if err != nil {
		return err
	}
	edges, err := queryEdges(ctx, q, `WHERE formula IS NOT NULL AND formula != '' ORDER BY id`)
	if err != nil {
		return err
	}
	var changedEdges []*model.Edge
	for _, e := range edges {
		v, err := evaluate(e.Formula, r.env(r.edgeScopes(e.Output), values))
		if err != nil {
			return fmt.Errorf("edge %d: %w", e.ID, err)
		}
		if v != e.Amount {
			e.Amount = v
			changedEdges = append(changedEdges, e)
		}
	}

	err = p.withTx(ctx, func(tx *sql.Tx) error {
		for _, prm := range changed {
			if err := upsertParameter(ctx, tx, prm); err != nil {
				return err
			}
		}
		for _, e := range changedEdges {
			if err := updateEdge(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.mgr.logger.Info("parameters recalculated", "parameters", len(params), "changed", len(changed), "edges", len(changedEdges))
	p.mgr.Hooks.ParametersRecalculated.fire(RecalculateEvent{Ctx: ctx, Parameters: len(params), EdgesChanged: len(changedEdges)})
	return nil
}
