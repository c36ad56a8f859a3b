// Package model defines the inventory entities the reactive core passes around:
// nodes (activities), edges (exchanges), databases, methods, calculation setups
// and parameters, together with their identities.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// Node types as stored in the activity table.
const (
	TypeProcess     = "process"
	TypeProduct     = "product"
	TypeWaste       = "waste"
	TypeProcessing  = "processwithreferenceproduct"
	TypeEmission    = "emission"
	TypeResource    = "natural resource"
	TypeEconomic    = "economic"
	TypeInventory   = "inventory indicator"
	TypeSocial      = "social"
	TypeMultifunc   = "multifunctional"
	TypeReadonlyRef = "readonly_process"
)

// biosphereTypes are node types that live in biosphere databases.
var biosphereTypes = map[string]bool{
	TypeEmission:  true,
	TypeResource:  true,
	TypeEconomic:  true,
	TypeInventory: true,
	TypeSocial:    true,
}

// IsBiosphereType reports whether a node of type t is an elementary flow.
func IsBiosphereType(t string) bool {
	return biosphereTypes[t]
}

// NodeKey identifies a node: (database name, code).
type NodeKey struct {
	Database string `json:"database"`
	Code     string `json:"code"`
}

// String returns the "database|code" form used as registry and cache key.
func (k NodeKey) String() string {
	return k.Database + "|" + k.Code
}

// IsZero reports whether the key is unset.
func (k NodeKey) IsZero() bool {
	return k.Database == "" && k.Code == ""
}

// ParseNodeKey is the inverse of NodeKey.String.
func ParseNodeKey(s string) (NodeKey, error) {
	db, code, ok := strings.Cut(s, "|")
	if !ok || db == "" || code == "" {
		return NodeKey{}, fmt.Errorf("malformed node key %q", s)
	}
	return NodeKey{Database: db, Code: code}, nil
}

// SortKeys orders keys by database then code.
func SortKeys(keys []NodeKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Database != keys[j].Database {
			return keys[i].Database < keys[j].Database
		}
		return keys[i].Code < keys[j].Code
	})
}

// Node is an activity, process or product record.
//
// Primary fields (ID through Type) are stored as columns of the activity table;
// everything is also serialised into the opaque data blob.
type Node struct {
	ID       int64  `json:"id,omitempty"`
	Database string `json:"database"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Product  string `json:"reference product,omitempty"`
	Location string `json:"location,omitempty"`
	Type     string `json:"type"`

	Unit             string            `json:"unit,omitempty"`
	Categories       []string          `json:"categories,omitempty"`
	Synonyms         []string          `json:"synonyms,omitempty"`
	CAS              string            `json:"CAS number,omitempty"`
	Processor        *NodeKey          `json:"processor,omitempty"`
	Allocation       string            `json:"allocation,omitempty"`
	AllocationFactor *float64          `json:"allocation_factor,omitempty"`
	Comment          string            `json:"comment,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
	Properties       map[string]any    `json:"properties,omitempty"`
}

// Key returns the node identity.
func (n *Node) Key() NodeKey {
	return NodeKey{Database: n.Database, Code: n.Code}
}

// Identity implements Entity.
func (n *Node) Identity() Identity {
	return NodeIdentity(n.Key())
}

// Clone returns a deep copy so callers can keep "old" snapshots across writes.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Categories = append([]string(nil), n.Categories...)
	c.Synonyms = append([]string(nil), n.Synonyms...)
	if n.Processor != nil {
		p := *n.Processor
		c.Processor = &p
	}
	if n.AllocationFactor != nil {
		f := *n.AllocationFactor
		c.AllocationFactor = &f
	}
	if n.Tags != nil {
		c.Tags = make(map[string]string, len(n.Tags))
		for k, v := range n.Tags {
			c.Tags[k] = v
		}
	}
	if n.Properties != nil {
		c.Properties = make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// IsBiosphere reports whether the node is an elementary flow.
func (n *Node) IsBiosphere() bool {
	return IsBiosphereType(n.Type)
}

func (n *Node) String() string {
	return fmt.Sprintf("'%s' (%s, %s, %s)", n.Name, n.Unit, n.Location, n.Key())
}
