package model

import "fmt"

// EdgeType classifies an exchange.
type EdgeType string

const (
	EdgeTechnosphere EdgeType = "technosphere"
	EdgeBiosphere    EdgeType = "biosphere"
	EdgeProduction   EdgeType = "production"
	EdgeSubstitution EdgeType = "substitution"
)

// IsValid reports whether t is a known edge type.
func (t EdgeType) IsValid() bool {
	switch t {
	case EdgeTechnosphere, EdgeBiosphere, EdgeProduction, EdgeSubstitution:
		return true
	}
	return false
}

// Uncertainty is the distribution attached to an amount.
type Uncertainty struct {
	Type     int       `json:"uncertainty type,omitempty"`
	Loc      *float64  `json:"loc,omitempty"`
	Scale    *float64  `json:"scale,omitempty"`
	Shape    *float64  `json:"shape,omitempty"`
	Minimum  *float64  `json:"minimum,omitempty"`
	Maximum  *float64  `json:"maximum,omitempty"`
	Negative bool      `json:"negative,omitempty"`
	Pedigree *Pedigree `json:"pedigree,omitempty"`
}

// Pedigree is the conventional 5-tuple of data quality scores.
type Pedigree struct {
	Reliability  int `json:"reliability"`
	Completeness int `json:"completeness"`
	Temporal     int `json:"temporal correlation"`
	Geographical int `json:"geographical correlation"`
	FurtherTech  int `json:"further technological correlation"`
}

// Edge is an exchange between two nodes. Input flows into Output.
type Edge struct {
	ID          int64        `json:"id,omitempty"`
	Input       NodeKey      `json:"input"`
	Output      NodeKey      `json:"output"`
	Amount      float64      `json:"amount"`
	Type        EdgeType     `json:"type"`
	Formula     string       `json:"formula,omitempty"`
	Uncertainty *Uncertainty `json:"uncertainty,omitempty"`
	Comment     string       `json:"comment,omitempty"`
}

// Identity implements Entity.
func (e *Edge) Identity() Identity {
	return EdgeIdentity(e.ID)
}

// Databases returns the databases of both endpoints, deduplicated.
func (e *Edge) Databases() []string {
	if e.Input.Database == e.Output.Database {
		return []string{e.Output.Database}
	}
	return []string{e.Input.Database, e.Output.Database}
}

// Clone returns a copy of e.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	if e.Uncertainty != nil {
		u := *e.Uncertainty
		c.Uncertainty = &u
	}
	return &c
}

func (e *Edge) String() string {
	return fmt.Sprintf("Exchange %d: %g %s -> %s (%s)", e.ID, e.Amount, e.Input, e.Output, e.Type)
}
