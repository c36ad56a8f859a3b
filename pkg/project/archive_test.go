package project_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/project"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/testutil"
)

func populate(t *testing.T, p *inventory.Project) {
	t.Helper()
	ctx := context.Background()
	gen := testutil.NewDefault()
	inv := gen.ToInventory(gen.Diamond(2))
	testutil.Install(t, p, inv)
	if err := p.NewSetup(ctx, "cs"); err != nil {
		t.Fatal(err)
	}
	cs := model.CalculationSetup{
		Name: "cs",
		Inv:  []model.FunctionalUnit{{Node: inv.Root(), Amount: 1}},
		IA:   []model.MethodID{inv.Method.ID},
	}
	if err := p.SaveSetup(ctx, cs); err != nil {
		t.Fatal(err)
	}
	if err := p.NewParameter(ctx, &model.Parameter{Kind: model.ParamProject, Name: "yield", Amount: 0.8}); err != nil {
		t.Fatal(err)
	}
	if err := p.NewParameter(ctx, &model.Parameter{Kind: model.ParamProject, Name: "loss", Formula: "1 - yield"}); err != nil {
		t.Fatal(err)
	}
}

type snapshot struct {
	Databases  map[string][2]any
	Nodes      map[string][]*model.Node
	Edges      map[string][]*model.Edge
	Methods    map[string][]model.CF
	Setups     map[string]model.CalculationSetup
	Parameters []*model.Parameter
}

func snap(t *testing.T, p *inventory.Project) snapshot {
	t.Helper()
	ctx := context.Background()
	s := snapshot{
		Databases: map[string][2]any{},
		Nodes:     map[string][]*model.Node{},
		Edges:     map[string][]*model.Edge{},
		Methods:   map[string][]model.CF{},
		Setups:    map[string]model.CalculationSetup{},
	}
	for _, db := range p.DatabaseNames() {
		meta, _ := p.Database(db)
		s.Databases[db] = [2]any{meta.Number, strings.Join(meta.Depends, ",")}
		var err error
		if s.Nodes[db], err = p.Nodes(ctx, db); err != nil {
			t.Fatal(err)
		}
		if s.Edges[db], err = p.DatabaseEdges(ctx, db); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range p.MethodIDs() {
		m, err := p.LoadMethod(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		s.Methods[id.Key()] = m.CFs
	}
	for _, name := range p.SetupNames() {
		s.Setups[name], _ = p.Setup(name)
	}
	params, err := p.Parameters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s.Parameters = params
	return s
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, p := testutil.TempProject(t, "steel study")
	populate(t, p)
	want := snap(t, p)

	var buf bytes.Buffer
	if err := project.Export(ctx, m, "steel study", &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	orig, err := project.Import(ctx, m, bytes.NewReader(buf.Bytes()), "steel study copy")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if orig != "steel study" {
		t.Errorf("marker name = %q", orig)
	}
	if err := m.SetCurrent(ctx, "steel study copy"); err != nil {
		t.Fatal(err)
	}
	got := snap(t, m.Current())
	for _, part := range []struct {
		name      string
		got, want any
	}{
		{"databases", got.Databases, want.Databases},
		{"nodes", got.Nodes, want.Nodes},
		{"edges", got.Edges, want.Edges},
		{"methods", got.Methods, want.Methods},
		{"setups", got.Setups, want.Setups},
		{"parameters", got.Parameters, want.Parameters},
	} {
		if !reflect.DeepEqual(part.got, part.want) {
			t.Errorf("%s differ after round trip:\n got %+v\nwant %+v", part.name, part.got, part.want)
		}
	}
}

func TestArchiveLayout(t *testing.T) {
	ctx := context.Background()
	m, _ := testutil.TempProject(t, "layout")

	var buf bytes.Buffer
	if err := project.Export(ctx, m, "layout", &buf); err != nil {
		t.Fatal(err)
	}
	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)
	top := model.SafeFilename("layout")
	found := false
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(hdr.Name, top+"/") {
			t.Errorf("entry %q outside %q", hdr.Name, top)
		}
		if hdr.Name == top+"/"+project.MarkerFile {
			found = true
			var mk struct{ Name string }
			data, _ := io.ReadAll(tr)
			if err := json.Unmarshal(data, &mk); err != nil || mk.Name != "layout" {
				t.Errorf("marker = %s (%v)", data, err)
			}
		}
	}
	if !found {
		t.Error("marker missing")
	}
}

func archive(t *testing.T, entries map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	gz.Close()
	return &buf
}

func TestImportRejectsUnsafeArchives(t *testing.T) {
	ctx := context.Background()
	m, _ := testutil.TempProject(t, "host")
	tests := []struct {
		name    string
		entries map[string]string
	}{
		{"parent", map[string]string{"p/../../evil.txt": "x"}},
		{"absolute", map[string]string{"/etc/evil": "x"}},
		{"dotdot", map[string]string{"../p/.project-name.json": `{"name":"p"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := project.Import(ctx, m, archive(t, tt.entries), "target-"+tt.name)
			if !errors.Is(err, project.ErrUnsafePath) {
				t.Fatalf("err = %v, want ErrUnsafePath", err)
			}
			if m.Exists("target-" + tt.name) {
				t.Error("project registered despite error")
			}
		})
	}
}

func TestImportRequiresMarkerAndFreshName(t *testing.T) {
	ctx := context.Background()
	m, _ := testutil.TempProject(t, "host")

	_, err := project.Import(ctx, m, archive(t, map[string]string{"p/databases.json": "{}"}), "nomarker")
	if err == nil || !strings.Contains(err.Error(), project.MarkerFile) {
		t.Errorf("err = %v", err)
	}

	_, err = project.Import(ctx, m, archive(t, map[string]string{"p/" + project.MarkerFile: `{"name":"p"}`}), "host")
	if !errors.Is(err, model.ErrNameExists) {
		t.Errorf("err = %v, want name exists", err)
	}

	_, err = project.Import(ctx, m, archive(t, map[string]string{"a/x": "1", "b/y": "2"}), "split")
	if err == nil {
		t.Error("two top-level directories should be rejected")
	}
}
