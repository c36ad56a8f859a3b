package mds_test

import (
	"math"
	"slices"
	"testing"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/mds"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		rec   mds.Record
		check func(t *testing.T, r mds.Row)
	}{
		{
			name: "derives key and defaults allocation factor",
			rec:  mds.Record{"database": "db", "code": "c", "id": 7.0, "bogus": 1},
			check: func(t *testing.T, r mds.Row) {
				if r.Key != (model.NodeKey{Database: "db", Code: "c"}) || r.ID != 7 {
					t.Errorf("row = %+v", r)
				}
				if !math.IsNaN(r.AllocationFactor) {
					t.Errorf("allocation_factor = %v, want NaN", r.AllocationFactor)
				}
			},
		},
		{
			name: "key string fills index columns",
			rec:  mds.Record{"key": "db|x", "allocation_factor": "0.25", "categories": []any{"air", "urban"}},
			check: func(t *testing.T, r mds.Row) {
				if r.Database != "db" || r.Code != "x" {
					t.Errorf("index = %s/%s", r.Database, r.Code)
				}
				if r.AllocationFactor != 0.25 {
					t.Errorf("allocation_factor = %v", r.AllocationFactor)
				}
				if !slices.Equal(r.Categories, []string{"air", "urban"}) {
					t.Errorf("categories = %v", r.Categories)
				}
			},
		},
		{
			name: "processor from pair",
			rec:  mds.Record{"database": "db", "code": "p", "processor": []any{"db", "q"}, "synonyms": "alias"},
			check: func(t *testing.T, r mds.Row) {
				if r.Processor == nil || r.Processor.Code != "q" {
					t.Errorf("processor = %v", r.Processor)
				}
				if !slices.Equal(r.Synonyms, []string{"alias"}) {
					t.Errorf("synonyms = %v", r.Synonyms)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, mds.Coerce(tt.rec))
		})
	}
}

func TestRecordHasCanonicalColumns(t *testing.T) {
	r := mds.NewRow(model.NodeKey{Database: "db", Code: "c"})
	rec := r.Record()
	if len(rec) != len(mds.Columns()) {
		t.Fatalf("record has %d columns, want %d", len(rec), len(mds.Columns()))
	}
	for _, c := range mds.Columns() {
		if _, ok := rec[c]; !ok {
			t.Errorf("missing column %q", c)
		}
	}
	if got := mds.IndexNames(); !slices.Equal(got, []string{"database", "code"}) {
		t.Errorf("IndexNames = %v", got)
	}
}

func TestFrameUniqueIndex(t *testing.T) {
	a := mds.NewRow(model.NodeKey{Database: "db", Code: "a"})
	a2 := a
	a2.Name = "second"
	b := mds.NewRow(model.NodeKey{Database: "other", Code: "b"})
	f := mds.NewFrame([]mds.Row{a, b, a2})
	if f.Len() != 2 {
		t.Fatalf("Len = %d", f.Len())
	}
	got, _ := f.Get(a.Key)
	if got.Name != "second" {
		t.Errorf("later row did not replace earlier: %q", got.Name)
	}
	if !f.Delete(a.Key) || f.Contains(a.Key) || f.Len() != 1 {
		t.Fatal("Delete failed")
	}
	if got, ok := f.Get(b.Key); !ok || got.Key != b.Key {
		t.Fatal("index broken after delete")
	}
	if gone := f.DeleteDatabase("other"); len(gone) != 1 || f.Len() != 0 {
		t.Fatalf("DeleteDatabase removed %v", gone)
	}
}

func TestRowEqualTreatsNaNAsEqual(t *testing.T) {
	r := mds.NewRow(model.NodeKey{Database: "db", Code: "a"})
	if !r.Equal(r.Clone()) {
		t.Fatal("clone not equal")
	}
	o := r.Clone()
	o.AllocationFactor = 0.5
	if r.Equal(o) {
		t.Fatal("different allocation factors compare equal")
	}
}
