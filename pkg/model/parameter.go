package model

// ParamKind discriminates the three parameter scopes.
type ParamKind string

const (
	ParamProject  ParamKind = "project"
	ParamDatabase ParamKind = "database"
	ParamActivity ParamKind = "activity"
)

// ProjectScope is the scope string of project parameters.
const ProjectScope = "project"

// ParameterKey is unique per scope.
type ParameterKey struct {
	Scope string `json:"scope"`
	Name  string `json:"name"`
}

func (k ParameterKey) String() string { return k.Scope + "|" + k.Name }

// Parameter is a named symbolic quantity. Scope is "project" for project
// parameters, the database name for database parameters and the group name
// for activity parameters.
type Parameter struct {
	Kind        ParamKind      `json:"kind"`
	Scope       string         `json:"scope"`
	Name        string         `json:"name"`
	Amount      float64        `json:"amount"`
	Formula     string         `json:"formula,omitempty"`
	Uncertainty *Uncertainty   `json:"uncertainty,omitempty"`
	Node        *NodeKey       `json:"node,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Key returns the (scope, name) key.
func (p *Parameter) Key() ParameterKey {
	return ParameterKey{Scope: p.Scope, Name: p.Name}
}

// Identity implements Entity.
func (p *Parameter) Identity() Identity {
	return ParameterIdentity(p.Scope, p.Name)
}

// Clone returns a deep copy of p.
func (p *Parameter) Clone() *Parameter {
	if p == nil {
		return nil
	}
	c := *p
	if p.Uncertainty != nil {
		u := *p.Uncertainty
		if u.Pedigree != nil {
			ped := *u.Pedigree
			u.Pedigree = &ped
		}
		c.Uncertainty = &u
	}
	if p.Node != nil {
		n := *p.Node
		c.Node = &n
	}
	if p.Data != nil {
		c.Data = make(map[string]any, len(p.Data))
		for k, v := range p.Data {
			c.Data[k] = v
		}
	}
	return &c
}

// Group holds activity parameters. Order lists upstream groups whose names
// are visible to formulas of this group.
type Group struct {
	Name  string   `json:"name"`
	Order []string `json:"order"`
	Fresh bool     `json:"fresh"`
}
