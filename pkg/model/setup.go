package model

// FunctionalUnit maps one activity to the amount demanded of it.
type FunctionalUnit struct {
	Node   NodeKey `json:"node"`
	Amount float64 `json:"amount"`
}

// CalculationSetup is a named bundle of functional units and methods. It stores
// identities only; missing records are reported at evaluation time.
type CalculationSetup struct {
	Name string           `json:"-"`
	Inv  []FunctionalUnit `json:"inv"`
	IA   []MethodID       `json:"ia"`
}

// Identity implements Entity.
func (c *CalculationSetup) Identity() Identity {
	return SetupIdentity(c.Name)
}

// Clone returns a deep copy of c.
func (c CalculationSetup) Clone() CalculationSetup {
	c.Inv = append([]FunctionalUnit(nil), c.Inv...)
	ia := make([]MethodID, len(c.IA))
	for i, m := range c.IA {
		ia[i] = append(MethodID(nil), m...)
	}
	c.IA = ia
	return c
}

// References reports whether the setup uses the given node.
func (c CalculationSetup) References(k NodeKey) bool {
	for _, fu := range c.Inv {
		if fu.Node == k {
			return true
		}
	}
	return false
}
