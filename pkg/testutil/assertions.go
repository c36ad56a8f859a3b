package testutil

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// TempProject opens a manager in a temporary base directory and activates a
// project called name. Both are closed when the test ends.
func TempProject(t *testing.T, name string) (*inventory.Manager, *inventory.Project) {
	t.Helper()
	m, err := inventory.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	if err := m.SetCurrent(context.Background(), name); err != nil {
		t.Fatalf("failed to activate project %q: %v", name, err)
	}
	return m, m.Current()
}

// Install writes the biosphere, the technosphere and the method of inv.
func Install(t *testing.T, p *inventory.Project, inv Inventory) {
	t.Helper()
	ctx := context.Background()
	bio := inv.Biosphere[0].Database
	if err := p.WriteDatabase(ctx, bio, inv.Biosphere, nil); err != nil {
		t.Fatalf("failed to write %s: %v", bio, err)
	}
	tech := inv.Technosphere[0].Database
	if err := p.WriteDatabase(ctx, tech, inv.Technosphere, inv.Edges); err != nil {
		t.Fatalf("failed to write %s: %v", tech, err)
	}
	if err := p.RegisterMethod(ctx, inv.Method.ID, inv.Method.Meta); err != nil {
		t.Fatalf("failed to register method: %v", err)
	}
	if err := p.WriteMethod(ctx, inv.Method); err != nil {
		t.Fatalf("failed to write method: %v", err)
	}
}

// AssertNear fails when got and want differ by more than 1e-9 relative.
func AssertNear(t *testing.T, what string, got, want float64) {
	t.Helper()
	tol := 1e-9 * math.Max(1, math.Abs(want))
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

// AssertKeys verifies got holds exactly want, in any order.
func AssertKeys(t *testing.T, got []model.NodeKey, want ...model.NodeKey) {
	t.Helper()
	seen := make(map[model.NodeKey]int, len(got))
	for _, k := range got {
		seen[k]++
	}
	for _, k := range want {
		if seen[k] == 0 {
			t.Errorf("missing key %s in %v", k, got)
			continue
		}
		seen[k]--
	}
	for k, n := range seen {
		if n > 0 {
			t.Errorf("unexpected key %s", k)
		}
	}
}

// AssertJSONEqual compares two values after JSON round-tripping.
// Useful for comparing structs that may have different Go representations
// but equivalent JSON forms.
func AssertJSONEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}
	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual:   %s", expectedJSON, actualJSON)
	}
}

// Golden file helpers

// GoldenFile handles golden file comparisons.
type GoldenFile struct {
	t      *testing.T
	dir    string
	name   string
	update bool
}

// NewGoldenFile creates a golden file helper.
// If GENERATE_GOLDEN env var is set, golden files will be updated.
func NewGoldenFile(t *testing.T, dir, name string) *GoldenFile {
	t.Helper()
	return &GoldenFile{
		t:      t,
		dir:    dir,
		name:   name,
		update: os.Getenv("GENERATE_GOLDEN") != "",
	}
}

// Path returns the full path to the golden file.
func (g *GoldenFile) Path() string {
	return filepath.Join(g.dir, g.name)
}

// Assert compares actual content against the golden file.
// If GENERATE_GOLDEN is set, updates the golden file instead.
func (g *GoldenFile) Assert(actual string) {
	g.t.Helper()
	path := g.Path()

	if g.update {
		if err := os.MkdirAll(g.dir, 0755); err != nil {
			g.t.Fatalf("failed to create golden dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual), 0644); err != nil {
			g.t.Fatalf("failed to write golden file: %v", err)
		}
		g.t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			g.t.Fatalf("golden file does not exist: %s\nRun with GENERATE_GOLDEN=1 to create it", path)
		}
		g.t.Fatalf("failed to read golden file: %v", err)
	}
	if string(expected) == actual {
		return
	}
	expectedLines := strings.Split(string(expected), "\n")
	actualLines := strings.Split(actual, "\n")
	for i := 0; i < len(expectedLines) || i < len(actualLines); i++ {
		var expLine, actLine string
		if i < len(expectedLines) {
			expLine = expectedLines[i]
		}
		if i < len(actualLines) {
			actLine = actualLines[i]
		}
		if expLine != actLine {
			g.t.Errorf("golden file mismatch at line %d:\nexpected: %s\nactual:   %s", i+1, expLine, actLine)
			return
		}
	}
	g.t.Errorf("golden file mismatch (length differs)")
}

// AssertJSON compares actual value as JSON against the golden file.
func (g *GoldenFile) AssertJSON(actual interface{}) {
	g.t.Helper()
	data, err := json.MarshalIndent(actual, "", "  ")
	if err != nil {
		g.t.Fatalf("failed to marshal actual value: %v", err)
	}
	g.Assert(string(data))
}
