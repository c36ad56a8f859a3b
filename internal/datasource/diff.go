package datasource

import (
	"fmt"
	"sort"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// MirrorDiff represents differences between an in-memory mirror and the
// sqlite file it mirrors.
type MirrorDiff struct {
	// MissingInMirror contains keys present in the store but not the mirror
	MissingInMirror []model.NodeKey
	// MissingInStore contains keys present in the mirror but not the store
	MissingInStore []model.NodeKey
	// Mismatch contains primary fields that differ
	Mismatch []FieldDifference
	// CountMirror is the number of rows in the mirror
	CountMirror int
	// CountStore is the number of rows in the store
	CountStore int
}

// FieldDifference represents one differing primary column of one row
type FieldDifference struct {
	Key    model.NodeKey `json:"key"`
	Field  string        `json:"field"`
	Mirror string        `json:"mirror"`
	Store  string        `json:"store"`
}

// HasInconsistencies returns true if there are any differences
func (d MirrorDiff) HasInconsistencies() bool {
	return len(d.MissingInMirror) > 0 || len(d.MissingInStore) > 0 || len(d.Mismatch) > 0
}

// Summary returns a human-readable summary of the differences
func (d MirrorDiff) Summary() string {
	if !d.HasInconsistencies() {
		return fmt.Sprintf("Mirror matches store (%d rows)", d.CountStore)
	}

	summary := "Mirror differs from store:\n"
	if d.CountMirror != d.CountStore {
		summary += fmt.Sprintf("  - Count mismatch: %d vs %d\n", d.CountMirror, d.CountStore)
	}
	if len(d.MissingInMirror) > 0 {
		summary += fmt.Sprintf("  - %d rows missing from the mirror\n", len(d.MissingInMirror))
		if len(d.MissingInMirror) <= 5 {
			for _, k := range d.MissingInMirror {
				summary += fmt.Sprintf("    - %s\n", k)
			}
		}
	}
	if len(d.MissingInStore) > 0 {
		summary += fmt.Sprintf("  - %d stale rows in the mirror\n", len(d.MissingInStore))
		if len(d.MissingInStore) <= 5 {
			for _, k := range d.MissingInStore {
				summary += fmt.Sprintf("    - %s\n", k)
			}
		}
	}
	if len(d.Mismatch) > 0 {
		summary += fmt.Sprintf("  - %d differing fields\n", len(d.Mismatch))
		if len(d.Mismatch) <= 5 {
			for _, m := range d.Mismatch {
				summary += fmt.Sprintf("    - %s %s: %q vs %q\n", m.Key, m.Field, m.Mirror, m.Store)
			}
		}
	}
	return summary
}

// DiffPrimary compares mirror rows against store rows on the primary columns.
// maxDifferences limits the number of tracked differences (0 = unlimited).
func DiffPrimary(mirror, store []PrimaryRow, maxDifferences int) MirrorDiff {
	mapM := make(map[model.NodeKey]PrimaryRow, len(mirror))
	for _, r := range mirror {
		mapM[r.Key()] = r
	}
	mapS := make(map[model.NodeKey]PrimaryRow, len(store))
	for _, r := range store {
		mapS[r.Key()] = r
	}
	diff := MirrorDiff{CountMirror: len(mapM), CountStore: len(mapS)}
	room := func(n int) bool { return maxDifferences == 0 || n < maxDifferences }

	for k := range mapM {
		if _, ok := mapS[k]; !ok && room(len(diff.MissingInStore)) {
			diff.MissingInStore = append(diff.MissingInStore, k)
		}
	}
	for k, s := range mapS {
		m, ok := mapM[k]
		if !ok {
			if room(len(diff.MissingInMirror)) {
				diff.MissingInMirror = append(diff.MissingInMirror, k)
			}
			continue
		}
		for _, f := range [][3]string{
			{"name", m.Name, s.Name},
			{"location", m.Location, s.Location},
			{"product", m.Product, s.Product},
			{"type", m.Type, s.Type},
		} {
			if f[1] != f[2] && room(len(diff.Mismatch)) {
				diff.Mismatch = append(diff.Mismatch, FieldDifference{Key: k, Field: f[0], Mirror: f[1], Store: f[2]})
			}
		}
	}

	model.SortKeys(diff.MissingInMirror)
	model.SortKeys(diff.MissingInStore)
	sort.Slice(diff.Mismatch, func(i, j int) bool {
		a, b := diff.Mismatch[i], diff.Mismatch[j]
		if a.Key != b.Key {
			return a.Key.String() < b.Key.String()
		}
		return a.Field < b.Field
	})
	return diff
}
