// Package traversal walks the supply chain of a demand depth-first and
// attributes cumulative scores to the activities it visits.
package traversal

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/lca"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// Settings bound a traversal.
type Settings struct {
	Cutoff  float64  // share of the total score below which edges are pruned
	MaxCalc int      // maximum number of solves
	Tags    []string // node tag keys to aggregate scores by
}

// DefaultSettings match the navigator defaults.
var DefaultSettings = Settings{Cutoff: 0.05, MaxCalc: 250}

// Node is a visited activity.
type Node struct {
	Key        model.NodeKey     `json:"key"`
	Name       string            `json:"name"`
	Location   string            `json:"location,omitempty"`
	Unit       string            `json:"unit,omitempty"`
	Amount     float64           `json:"amount"`
	Cumulative float64           `json:"cumulative"`
	Direct     float64           `json:"direct"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// Edge is a technosphere exchange kept by the walk. From supplies To.
type Edge struct {
	From   model.NodeKey `json:"from"`
	To     model.NodeKey `json:"to"`
	Amount float64       `json:"amount"`
	Impact float64       `json:"impact"`
}

// Flow is the characterised emission of a visited activity.
type Flow struct {
	Flow   model.NodeKey `json:"flow"`
	Name   string        `json:"name"`
	To     model.NodeKey `json:"to"`
	Amount float64       `json:"amount"`
	Impact float64       `json:"impact"`
}

// Result is the outcome of one walk.
type Result struct {
	Demand model.NodeKey      `json:"demand"`
	Method model.MethodID     `json:"method"`
	Unit   string             `json:"unit"`
	Total  float64            `json:"total"`
	Nodes  []Node             `json:"nodes"`
	Edges  []Edge             `json:"edges"`
	Flows  []Flow             `json:"flows"`
	Tags   map[string]float64 `json:"tags,omitempty"`
	Calcs  int                `json:"calculations"`
}

// Traverse walks from the demand along technosphere inputs. l must have a
// method set. Inputs whose impact share is below the cutoff are not
// followed; no new activity is scored once MaxCalc solves have run.
func Traverse(l *lca.LCA, demand model.NodeKey, amount float64, s Settings) (*Result, error) {
	defer metrics.Timer(metrics.Traversal)()

	root, ok := l.Index(demand)
	if !ok {
		return nil, model.NotFound("activity", demand.String())
	}
	if err := l.Solve(map[model.NodeKey]float64{demand: amount}); err != nil {
		return nil, err
	}
	supply := l.Supply()
	acts := l.Activities()
	maxCalc := s.MaxCalc
	if maxCalc <= 0 {
		maxCalc = DefaultSettings.MaxCalc
	}

	g := simple.NewDirectedGraph()
	for j := range acts {
		g.AddNode(simple.Node(j))
	}
	for j := range acts {
		for _, in := range l.Inputs(j) {
			g.SetEdge(g.NewEdge(simple.Node(j), simple.Node(in.Supplier)))
		}
	}

	res := &Result{Demand: demand, Method: l.Method(), Unit: l.Unit()}
	calcs := 1
	unit := map[int]float64{}
	scoreOf := func(j int) (float64, bool) {
		if v, ok := unit[j]; ok {
			return v, true
		}
		if calcs >= maxCalc {
			return 0, false
		}
		v, err := l.UnitScore(j)
		calcs++
		if err != nil {
			return 0, false
		}
		unit[j] = v
		return v, true
	}
	rootScore, _ := scoreOf(root)
	res.Total = rootScore * amount
	limit := math.Abs(res.Total) * s.Cutoff

	visited := map[int]bool{}
	df := traverse.DepthFirst{
		Traverse: func(e graph.Edge) bool {
			consumer, supplier := int(e.From().ID()), int(e.To().ID())
			var perUnit float64
			for _, in := range l.Inputs(consumer) {
				if in.Supplier == supplier {
					perUnit += in.Amount
				}
			}
			flow := perUnit * supply[acts[consumer]]
			us, ok := scoreOf(supplier)
			if !ok {
				return false
			}
			impact := flow * us
			if math.Abs(impact) < limit {
				return false
			}
			res.Edges = append(res.Edges, Edge{From: acts[supplier], To: acts[consumer], Amount: flow, Impact: impact})
			return true
		},
		Visit: func(n graph.Node) {
			j := int(n.ID())
			visited[j] = true
		},
	}
	df.Walk(g, simple.Node(root), nil)
	sort.Slice(res.Edges, func(a, b int) bool {
		ea, eb := res.Edges[a], res.Edges[b]
		if ea.To != eb.To {
			return ea.To.String() < eb.To.String()
		}
		return ea.From.String() < eb.From.String()
	})

	tagScores := map[string]float64{}
	keys := make([]int, 0, len(visited))
	for j := range visited {
		keys = append(keys, j)
	}
	sort.Ints(keys)
	for _, j := range keys {
		k := acts[j]
		rec := l.Node(k)
		ops := supply[k]
		produced := ops * l.Production(j)
		direct := l.DirectScore(j) * ops
		n := Node{Key: k, Amount: produced, Cumulative: unit[j] * produced, Direct: direct}
		if rec != nil {
			n.Name, n.Location, n.Unit = rec.Name, rec.Location, rec.Unit
			n.Tags = pickTags(rec.Tags, s.Tags)
		}
		for _, tag := range s.Tags {
			label := "(unspecified)"
			if v, ok := n.Tags[tag]; ok {
				label = v
			}
			tagScores[tag+"="+label] += direct
		}
		res.Nodes = append(res.Nodes, n)
		for _, fl := range l.Flows(j) {
			if fl.Impact == 0 {
				continue
			}
			out := Flow{Flow: fl.Flow, To: k, Amount: fl.Amount * ops, Impact: fl.Impact * ops}
			if fr := l.Node(fl.Flow); fr != nil {
				out.Name = fr.Name
			}
			res.Flows = append(res.Flows, out)
		}
	}
	if len(s.Tags) > 0 {
		res.Tags = tagScores
	}
	res.Calcs = calcs
	return res, nil
}

func pickTags(all map[string]string, keys []string) map[string]string {
	if len(keys) == 0 || len(all) == 0 {
		return nil
	}
	out := map[string]string{}
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}
