package navigator

import (
	"math"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/traversal"
)

type graphNode struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Location   string  `json:"location,omitempty"`
	Unit       string  `json:"unit,omitempty"`
	Amount     float64 `json:"amount"`
	Cumulative float64 `json:"cum"`
	Direct     float64 `json:"ind"`
	Share      float64 `json:"share"`
}

type graphEdge struct {
	Source string  `json:"source_id"`
	Target string  `json:"target_id"`
	Amount float64 `json:"amount"`
	Impact float64 `json:"impact"`
	Share  float64 `json:"share"`
}

type graphFlow struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Target string  `json:"target_id"`
	Amount float64 `json:"amount"`
	Impact float64 `json:"impact"`
}

type graph struct {
	Title string             `json:"title"`
	Unit  string             `json:"lcia_unit"`
	Total float64            `json:"total"`
	Calcs int                `json:"calculations"`
	Nodes []graphNode        `json:"nodes"`
	Edges []graphEdge        `json:"edges"`
	Flows []graphFlow        `json:"flows"`
	Tags  map[string]float64 `json:"tags,omitempty"`
}

// Render converts a traversal to the graph JSON the navigator views draw.
func Render(res *traversal.Result) ([]byte, error) {
	g := graph{
		Title: res.Method.String(),
		Unit:  res.Unit,
		Total: res.Total,
		Calcs: res.Calcs,
		Nodes: make([]graphNode, 0, len(res.Nodes)),
		Edges: make([]graphEdge, 0, len(res.Edges)),
		Flows: make([]graphFlow, 0, len(res.Flows)),
		Tags:  res.Tags,
	}
	for _, n := range res.Nodes {
		g.Nodes = append(g.Nodes, graphNode{
			ID:         n.Key.String(),
			Name:       n.Name,
			Location:   n.Location,
			Unit:       n.Unit,
			Amount:     n.Amount,
			Cumulative: n.Cumulative,
			Direct:     n.Direct,
			Share:      share(n.Cumulative, res.Total),
		})
	}
	for _, e := range res.Edges {
		g.Edges = append(g.Edges, graphEdge{
			Source: e.From.String(),
			Target: e.To.String(),
			Amount: e.Amount,
			Impact: e.Impact,
			Share:  share(e.Impact, res.Total),
		})
	}
	for _, f := range res.Flows {
		g.Flows = append(g.Flows, graphFlow{
			ID:     f.Flow.String(),
			Name:   f.Name,
			Target: f.To.String(),
			Amount: f.Amount,
			Impact: f.Impact,
		})
	}
	return json.Marshal(g)
}

func share(v, total float64) float64 {
	if total == 0 || math.IsNaN(total) {
		return 0
	}
	return v / total
}
