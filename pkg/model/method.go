package model

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// MethodID is the ordered path identifying an impact category.
type MethodID []string

// Key returns the canonical string form (a JSON array), usable as a map key.
func (m MethodID) Key() string {
	b, err := json.Marshal([]string(m))
	if err != nil {
		return strings.Join(m, "|")
	}
	return string(b)
}

// Equal reports whether m and o name the same method.
func (m MethodID) Equal(o MethodID) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		if m[i] != o[i] {
			return false
		}
	}
	return true
}

// ParseMethodKey is the inverse of MethodID.Key.
func ParseMethodKey(s string) (MethodID, error) {
	var id []string
	if err := json.Unmarshal([]byte(s), &id); err != nil {
		return nil, fmt.Errorf("malformed method key %q: %w", s, err)
	}
	if len(id) == 0 {
		return nil, fmt.Errorf("empty method key %q", s)
	}
	return MethodID(id), nil
}

func (m MethodID) String() string {
	return "(" + strings.Join(m, ", ") + ")"
}

// CF is a characterisation factor: the impact of one unit of a flow.
type CF struct {
	Flow   NodeKey `json:"flow"`
	Amount float64 `json:"amount"`
}

// MethodMeta is the metadata record kept for every registered method.
type MethodMeta struct {
	ID          MethodID `json:"-"`
	Unit        string   `json:"unit"`
	NumCFs      int      `json:"num_cfs"`
	Description string   `json:"description,omitempty"`
	ABBR        string   `json:"abbreviation,omitempty"`
}

// Identity implements Entity.
func (m *MethodMeta) Identity() Identity {
	return MethodIdentity(m.ID)
}

// Method is a method identity with its loaded factors.
type Method struct {
	ID   MethodID
	Meta MethodMeta
	CFs  []CF
}

// Identity implements Entity.
func (m *Method) Identity() Identity {
	return MethodIdentity(m.ID)
}
