package model

import "time"

// Backend kinds.
const (
	BackendSQLite = "sqlite"
)

// DatabaseMeta is the metadata record kept for every registered database.
type DatabaseMeta struct {
	Name              string    `json:"-"`
	Backend           string    `json:"backend"`
	Depends           []string  `json:"depends"`
	Format            string    `json:"format,omitempty"`
	DefaultAllocation string    `json:"default_allocation,omitempty"`
	Modified          time.Time `json:"modified"`
	Number            int       `json:"number"`
	Geocollections    []string  `json:"geocollections,omitempty"`
}

// Identity implements Entity.
func (d *DatabaseMeta) Identity() Identity {
	return DatabaseIdentity(d.Name)
}

// Clone returns a copy of d.
func (d DatabaseMeta) Clone() DatabaseMeta {
	d.Depends = append([]string(nil), d.Depends...)
	d.Geocollections = append([]string(nil), d.Geocollections...)
	return d
}

// IsBiosphere reports whether the database only holds elementary flows
// according to its naming convention or format.
func (d DatabaseMeta) IsBiosphere() bool {
	return d.Format == "biosphere"
}
