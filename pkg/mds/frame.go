// Package mds is the metadata store: an in-memory table mirroring every
// activity of the current project, indexed by (database, code).
//
// Rows are loaded in two stages. The primary columns come from one SQL query
// on the loop goroutine; the secondary columns are decoded from the data
// blobs by one worker per database. The Updater keeps the mirror in step
// with bus events afterwards.
package mds

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// Column names.
const (
	ColKey              = "key"
	ColID               = "id"
	ColCode             = "code"
	ColDatabase         = "database"
	ColLocation         = "location"
	ColName             = "name"
	ColProduct          = "product"
	ColType             = "type"
	ColSynonyms         = "synonyms"
	ColUnit             = "unit"
	ColCAS              = "CAS"
	ColCategories       = "categories"
	ColProcessor        = "processor"
	ColAllocation       = "allocation"
	ColAllocationFactor = "allocation_factor"
)

var (
	primaryColumns   = []string{ColKey, ColID, ColCode, ColDatabase, ColLocation, ColName, ColProduct, ColType}
	secondaryColumns = []string{ColSynonyms, ColUnit, ColCAS, ColCategories, ColProcessor, ColAllocation, ColAllocationFactor}
	allColumns       = append(append([]string(nil), primaryColumns...), secondaryColumns...)
	indexNames       = []string{ColDatabase, ColCode}

	// categorical columns carry a category dictionary that only grows
	categoricalColumns = []string{ColDatabase, ColLocation, ColType, ColUnit, ColAllocation}
)

// Columns returns the canonical column list.
func Columns() []string { return slices.Clone(allColumns) }

// PrimaryColumns returns the columns filled by the primary load.
func PrimaryColumns() []string { return slices.Clone(primaryColumns) }

// SecondaryColumns returns the columns filled by the secondary load.
func SecondaryColumns() []string { return slices.Clone(secondaryColumns) }

// IndexNames returns the index levels.
func IndexNames() []string { return slices.Clone(indexNames) }

// CategoricalColumns returns the columns with category dictionaries.
func CategoricalColumns() []string { return slices.Clone(categoricalColumns) }

// Secondary holds the columns decoded from the data blob.
type Secondary struct {
	Synonyms         []string       `json:"synonyms,omitempty"`
	Unit             string         `json:"unit,omitempty"`
	CAS              string         `json:"CAS,omitempty"`
	Categories       []string       `json:"categories,omitempty"`
	Processor        *model.NodeKey `json:"processor,omitempty"`
	Allocation       string         `json:"allocation,omitempty"`
	AllocationFactor *float64       `json:"allocation_factor,omitempty"`
}

// SecondaryOf projects a node onto the secondary columns.
func SecondaryOf(n *model.Node) Secondary {
	s := Secondary{
		Synonyms:   slices.Clone(n.Synonyms),
		Unit:       n.Unit,
		CAS:        n.CAS,
		Categories: slices.Clone(n.Categories),
		Allocation: n.Allocation,
	}
	if n.Processor != nil {
		p := *n.Processor
		s.Processor = &p
	}
	if n.AllocationFactor != nil {
		f := *n.AllocationFactor
		s.AllocationFactor = &f
	}
	return s
}

// Row is one mirrored activity.
type Row struct {
	Key      model.NodeKey
	ID       int64
	Code     string
	Database string
	Location string
	Name     string
	Product  string
	Type     string

	Synonyms         []string
	Unit             string
	CAS              string
	Categories       []string
	Processor        *model.NodeKey
	Allocation       string
	AllocationFactor float64 // NaN when unset
}

// NewRow returns a row for key with only the index columns set.
func NewRow(key model.NodeKey) Row {
	return Row{Key: key, Database: key.Database, Code: key.Code, AllocationFactor: math.NaN()}
}

// RowFromNode builds a full row from a node record.
func RowFromNode(n *model.Node) Row {
	r := NewRow(n.Key())
	r.ID = n.ID
	r.Location = n.Location
	r.Name = n.Name
	r.Product = n.Product
	r.Type = n.Type
	r.SetSecondary(SecondaryOf(n))
	return r
}

// SetSecondary overwrites the secondary columns.
func (r *Row) SetSecondary(s Secondary) {
	r.Synonyms = slices.Clone(s.Synonyms)
	r.Unit = s.Unit
	r.CAS = s.CAS
	r.Categories = slices.Clone(s.Categories)
	r.Processor = nil
	if s.Processor != nil {
		p := *s.Processor
		r.Processor = &p
	}
	r.Allocation = s.Allocation
	r.AllocationFactor = math.NaN()
	if s.AllocationFactor != nil {
		r.AllocationFactor = *s.AllocationFactor
	}
}

// Secondary returns the secondary columns of r.
func (r Row) Secondary() Secondary {
	s := Secondary{
		Synonyms:   slices.Clone(r.Synonyms),
		Unit:       r.Unit,
		CAS:        r.CAS,
		Categories: slices.Clone(r.Categories),
		Allocation: r.Allocation,
	}
	if r.Processor != nil {
		p := *r.Processor
		s.Processor = &p
	}
	if !math.IsNaN(r.AllocationFactor) {
		f := r.AllocationFactor
		s.AllocationFactor = &f
	}
	return s
}

// Clone returns a deep copy.
func (r Row) Clone() Row {
	c := r
	c.Synonyms = slices.Clone(r.Synonyms)
	c.Categories = slices.Clone(r.Categories)
	if r.Processor != nil {
		p := *r.Processor
		c.Processor = &p
	}
	return c
}

// Equal compares every column. NaN allocation factors compare equal.
func (r Row) Equal(o Row) bool {
	if r.Key != o.Key || r.ID != o.ID || r.Code != o.Code || r.Database != o.Database ||
		r.Location != o.Location || r.Name != o.Name || r.Product != o.Product || r.Type != o.Type ||
		r.Unit != o.Unit || r.CAS != o.CAS || r.Allocation != o.Allocation {
		return false
	}
	if !slices.Equal(r.Synonyms, o.Synonyms) || !slices.Equal(r.Categories, o.Categories) {
		return false
	}
	if (r.Processor == nil) != (o.Processor == nil) || (r.Processor != nil && *r.Processor != *o.Processor) {
		return false
	}
	a, b := r.AllocationFactor, o.AllocationFactor
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// Value returns the value of one column.
func (r Row) Value(col string) (any, bool) {
	switch col {
	case ColKey:
		return r.Key, true
	case ColID:
		return r.ID, true
	case ColCode:
		return r.Code, true
	case ColDatabase:
		return r.Database, true
	case ColLocation:
		return r.Location, true
	case ColName:
		return r.Name, true
	case ColProduct:
		return r.Product, true
	case ColType:
		return r.Type, true
	case ColSynonyms:
		return slices.Clone(r.Synonyms), true
	case ColUnit:
		return r.Unit, true
	case ColCAS:
		return r.CAS, true
	case ColCategories:
		return slices.Clone(r.Categories), true
	case ColProcessor:
		if r.Processor == nil {
			return nil, true
		}
		return *r.Processor, true
	case ColAllocation:
		return r.Allocation, true
	case ColAllocationFactor:
		return r.AllocationFactor, true
	}
	return nil, false
}

// Record is the loose form of a row: column name to value.
type Record map[string]any

// Record returns r restricted to columns, or all columns when none are given.
// Unknown columns are skipped.
func (r Row) Record(columns ...string) Record {
	if len(columns) == 0 {
		columns = allColumns
	}
	rec := make(Record, len(columns))
	for _, c := range columns {
		if v, ok := r.Value(c); ok {
			rec[c] = v
		}
	}
	return rec
}

// Coerce reindexes a record to the canonical columns and converts each value
// to the column type. Unknown columns are dropped; missing ones take their
// zero value, except allocation_factor which defaults to NaN. The key is
// derived from database and code when absent.
func Coerce(rec Record) Row {
	r := Row{AllocationFactor: math.NaN()}
	r.ID = toInt(rec[ColID])
	r.Code = toString(rec[ColCode])
	r.Database = toString(rec[ColDatabase])
	r.Location = toString(rec[ColLocation])
	r.Name = toString(rec[ColName])
	r.Product = toString(rec[ColProduct])
	r.Type = toString(rec[ColType])
	r.Synonyms = toStrings(rec[ColSynonyms])
	r.Unit = toString(rec[ColUnit])
	r.CAS = toString(rec[ColCAS])
	r.Categories = toStrings(rec[ColCategories])
	r.Processor = toKey(rec[ColProcessor])
	r.Allocation = toString(rec[ColAllocation])
	if v, ok := rec[ColAllocationFactor]; ok && v != nil {
		r.AllocationFactor = toFloat(v)
	}

	if k := toKey(rec[ColKey]); k != nil {
		r.Key = *k
		if r.Database == "" {
			r.Database = k.Database
		}
		if r.Code == "" {
			r.Code = k.Code
		}
	}
	if r.Key.IsZero() {
		r.Key = model.NodeKey{Database: r.Database, Code: r.Code}
	}
	return r
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

func toInt(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float64:
		if math.IsNaN(x) {
			return 0
		}
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n
	}
	return 0
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case *float64:
		if x == nil {
			return math.NaN()
		}
		return *x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		return slices.Clone(x)
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, toString(e))
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	}
	return []string{toString(v)}
}

func toKey(v any) *model.NodeKey {
	switch x := v.(type) {
	case model.NodeKey:
		if x.IsZero() {
			return nil
		}
		return &x
	case *model.NodeKey:
		if x == nil {
			return nil
		}
		k := *x
		return &k
	case string:
		k, err := model.ParseNodeKey(x)
		if err != nil {
			return nil
		}
		return &k
	case []any:
		if len(x) == 2 {
			return &model.NodeKey{Database: toString(x[0]), Code: toString(x[1])}
		}
	case []string:
		if len(x) == 2 {
			return &model.NodeKey{Database: x[0], Code: x[1]}
		}
	}
	return nil
}

// Frame is an ordered set of rows with a unique (database, code) index.
type Frame struct {
	rows  []Row
	index map[model.NodeKey]int
}

// NewFrame builds a frame from rows. A later row replaces an earlier one
// with the same key.
func NewFrame(rows []Row) Frame {
	f := Frame{index: make(map[model.NodeKey]int, len(rows))}
	for _, r := range rows {
		f.Set(r)
	}
	return f
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.rows) }

// Rows returns a copy of the rows in order.
func (f Frame) Rows() []Row {
	out := make([]Row, len(f.rows))
	for i, r := range f.rows {
		out[i] = r.Clone()
	}
	return out
}

// Keys returns the index in order.
func (f Frame) Keys() []model.NodeKey {
	out := make([]model.NodeKey, len(f.rows))
	for i, r := range f.rows {
		out[i] = r.Key
	}
	return out
}

// Get returns the row at key.
func (f Frame) Get(key model.NodeKey) (Row, bool) {
	i, ok := f.index[key]
	if !ok {
		return Row{}, false
	}
	return f.rows[i].Clone(), true
}

// Contains reports whether key is indexed.
func (f Frame) Contains(key model.NodeKey) bool {
	_, ok := f.index[key]
	return ok
}

// Set inserts or replaces the row at r.Key.
func (f *Frame) Set(r Row) {
	if f.index == nil {
		f.index = make(map[model.NodeKey]int)
	}
	if r.Key.IsZero() {
		r.Key = model.NodeKey{Database: r.Database, Code: r.Code}
	}
	r.Database, r.Code = r.Key.Database, r.Key.Code
	if i, ok := f.index[r.Key]; ok {
		f.rows[i] = r.Clone()
		return
	}
	f.index[r.Key] = len(f.rows)
	f.rows = append(f.rows, r.Clone())
}

// Delete removes the row at key and reports whether it was present.
func (f *Frame) Delete(key model.NodeKey) bool {
	i, ok := f.index[key]
	if !ok {
		return false
	}
	f.rows = append(f.rows[:i], f.rows[i+1:]...)
	delete(f.index, key)
	for j := i; j < len(f.rows); j++ {
		f.index[f.rows[j].Key] = j
	}
	return true
}

// DeleteDatabase removes every row of a database and returns their keys.
func (f *Frame) DeleteDatabase(name string) []model.NodeKey {
	var gone []model.NodeKey
	kept := f.rows[:0]
	for _, r := range f.rows {
		if r.Database == name {
			gone = append(gone, r.Key)
			continue
		}
		kept = append(kept, r)
	}
	if len(gone) == 0 {
		return nil
	}
	f.rows = kept
	f.reindex()
	return gone
}

func (f *Frame) reindex() {
	f.index = make(map[model.NodeKey]int, len(f.rows))
	for i, r := range f.rows {
		f.index[r.Key] = i
	}
}

// Filter returns the rows for which keep is true.
func (f Frame) Filter(keep func(Row) bool) Frame {
	out := Frame{index: make(map[model.NodeKey]int)}
	for _, r := range f.rows {
		if keep(r) {
			out.Set(r)
		}
	}
	return out
}

// Databases returns the distinct databases in the frame, sorted.
func (f Frame) Databases() []string {
	seen := make(map[string]bool)
	for _, r := range f.rows {
		seen[r.Database] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (f Frame) Clone() Frame {
	return NewFrame(f.rows)
}

// Columns returns the canonical column list.
func (f Frame) Columns() []string { return Columns() }

// IndexNames returns the index levels.
func (f Frame) IndexNames() []string { return IndexNames() }

// Category is an append-only value dictionary of one column.
type Category struct {
	values []string
	codes  map[string]int
}

// Extend adds v and reports whether it was new.
func (c *Category) Extend(v string) bool {
	if c.codes == nil {
		c.codes = make(map[string]int)
	}
	if _, ok := c.codes[v]; ok {
		return false
	}
	c.codes[v] = len(c.values)
	c.values = append(c.values, v)
	return true
}

// Contains reports whether v is in the dictionary.
func (c *Category) Contains(v string) bool {
	_, ok := c.codes[v]
	return ok
}

// Code returns the integer code of v.
func (c *Category) Code(v string) (int, bool) {
	i, ok := c.codes[v]
	return i, ok
}

// Values returns the dictionary in insertion order.
func (c *Category) Values() []string { return slices.Clone(c.values) }

func categoryValue(r Row, col string) string {
	switch col {
	case ColDatabase:
		return r.Database
	case ColLocation:
		return r.Location
	case ColType:
		return r.Type
	case ColUnit:
		return r.Unit
	case ColAllocation:
		return r.Allocation
	}
	return ""
}
