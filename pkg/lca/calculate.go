package lca

import (
	"context"
	"fmt"
	"math"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// NotFoundLabel is the text of an error row for a vanished entity.
func NotFoundLabel(key string) string {
	return "NOT FOUND: " + key
}

// Column is one method of a result grid.
type Column struct {
	Method model.MethodID
	Unit   string
	Err    string // set when the method no longer exists
}

// Row is one functional unit of a result grid. Rows whose activity vanished
// carry Err and no scores.
type Row struct {
	Node   model.NodeKey
	Amount float64
	Scores []float64 // one per column, NaN for missing methods
	Err    string
}

// Results is a functional unit x method score grid.
type Results struct {
	Setup     string
	Columns   []Column
	Rows      []Row
	Databases []string
}

// Errors returns the error labels of the grid, rows first.
func (r *Results) Errors() []string {
	var out []string
	for _, row := range r.Rows {
		if row.Err != "" {
			out = append(out, row.Err)
		}
	}
	for _, c := range r.Columns {
		if c.Err != "" {
			out = append(out, c.Err)
		}
	}
	return out
}

// Score returns the score for one functional unit and method.
func (r *Results) Score(node model.NodeKey, method model.MethodID) (float64, bool) {
	col := -1
	for i, c := range r.Columns {
		if c.Method.Equal(method) {
			col = i
			break
		}
	}
	if col < 0 {
		return 0, false
	}
	for _, row := range r.Rows {
		if row.Node == node && row.Err == "" {
			v := row.Scores[col]
			return v, !math.IsNaN(v)
		}
	}
	return 0, false
}

// Validate checks that a setup can be calculated at all.
func Validate(cs model.CalculationSetup) error {
	if len(cs.IA) == 0 {
		return model.NewDomainError(model.KindNoMethods, "calculation setup %q has no impact assessment methods", cs.Name)
	}
	if len(cs.Inv) == 0 {
		return model.NewDomainError(model.KindNoFunctional, "calculation setup %q has no functional units", cs.Name)
	}
	return nil
}

// Calculate scores every functional unit of cs against every method, with
// one factorisation for the whole setup. Vanished activities and methods
// become error rows and columns; the setup itself is left alone.
func Calculate(ctx context.Context, src Source, cs model.CalculationSetup) (*Results, error) {
	if err := Validate(cs); err != nil {
		return nil, err
	}
	res := &Results{Setup: cs.Name}
	for _, id := range cs.IA {
		meta, ok := src.MethodMeta(id)
		col := Column{Method: id, Unit: meta.Unit}
		if !ok {
			col.Err = NotFoundLabel(id.String())
		}
		res.Columns = append(res.Columns, col)
	}

	demand := map[model.NodeKey]float64{}
	for _, fu := range cs.Inv {
		if _, ok := src.Database(fu.Node.Database); !ok {
			continue
		}
		ok, err := src.NodeExists(ctx, fu.Node)
		if err != nil {
			return nil, err
		}
		if ok {
			demand[fu.Node] = fu.Amount
		}
	}

	var l *LCA
	if len(demand) > 0 {
		var err error
		if l, err = New(ctx, src, demand); err != nil {
			return nil, err
		}
		if err := l.Factorize(); err != nil {
			return nil, err
		}
		res.Databases = l.Databases()
	}

	for _, fu := range cs.Inv {
		row := Row{Node: fu.Node, Amount: fu.Amount}
		if _, ok := demand[fu.Node]; !ok {
			row.Err = NotFoundLabel(fu.Node.String())
			res.Rows = append(res.Rows, row)
			continue
		}
		if err := l.Solve(map[model.NodeKey]float64{fu.Node: fu.Amount}); err != nil {
			return nil, fmt.Errorf("lca: %s: %w", fu.Node, err)
		}
		row.Scores = make([]float64, len(res.Columns))
		for i, col := range res.Columns {
			if col.Err != "" {
				row.Scores[i] = math.NaN()
				continue
			}
			if err := l.SwitchMethod(ctx, col.Method); err != nil {
				return nil, err
			}
			row.Scores[i] = l.Score()
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
