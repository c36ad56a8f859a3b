package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Navigator.Cutoff != 0.05 {
		t.Errorf("expected cutoff 0.05, got %f", cfg.Navigator.Cutoff)
	}
	if cfg.Navigator.MaxCalc != 250 {
		t.Errorf("expected max_calc 250, got %d", cfg.Navigator.MaxCalc)
	}
	if cfg.Allocation != "equal" {
		t.Errorf("expected allocation 'equal', got %q", cfg.Allocation)
	}
}

func TestLoadFrom_NonExistent(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Window.Width != 1280 {
		t.Errorf("expected default config, got width %d", cfg.Window.Width)
	}
}

func TestLoadFrom_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
recent:
  - name: ecoinvent-3.9
    base_dir: ~/lca/projects
    opened: 2024-05-01T10:00:00Z
  - name: default
    opened: 2024-04-01T10:00:00Z

window:
  width: 1600
  height: 900
  maximized: true

default_allocation: economic

navigator:
  cutoff: 0.01
  max_calc: 100
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Recent) != 2 {
		t.Fatalf("expected 2 recent projects, got %d", len(cfg.Recent))
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, "lca/projects"); cfg.Recent[0].BaseDir != want {
		t.Errorf("expected expanded base dir %q, got %q", want, cfg.Recent[0].BaseDir)
	}
	if cfg.Recent[1].BaseDir != "" {
		t.Errorf("expected empty base dir, got %q", cfg.Recent[1].BaseDir)
	}
	if !cfg.Window.Maximized || cfg.Window.Width != 1600 {
		t.Errorf("unexpected window %+v", cfg.Window)
	}
	if cfg.Allocation != "economic" {
		t.Errorf("expected allocation 'economic', got %q", cfg.Allocation)
	}
	if cfg.Navigator.MaxCalc != 100 || cfg.Navigator.Cutoff != 0.01 {
		t.Errorf("unexpected navigator %+v", cfg.Navigator)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.AddRecent("default", "", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	cfg.Window.X = 40

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Recent) != 1 || got.Recent[0].Name != "default" || !got.Recent[0].Opened.Equal(cfg.Recent[0].Opened) {
		t.Errorf("recent not preserved: %+v", got.Recent)
	}
	if got.Window.X != 40 {
		t.Errorf("expected x 40, got %d", got.Window.X)
	}
}

func TestAddRecent(t *testing.T) {
	var cfg Config
	now := time.Now()
	for i := 0; i < MaxRecent+3; i++ {
		cfg.AddRecent(fmt.Sprintf("p%d", i), "", now)
	}
	if len(cfg.Recent) != MaxRecent {
		t.Fatalf("expected %d entries, got %d", MaxRecent, len(cfg.Recent))
	}
	if cfg.Recent[0].Name != fmt.Sprintf("p%d", MaxRecent+2) {
		t.Errorf("newest should come first, got %q", cfg.Recent[0].Name)
	}

	cfg.AddRecent("P5", "", now)
	if cfg.Recent[0].Name != "P5" {
		t.Errorf("re-added project should move to front, got %q", cfg.Recent[0].Name)
	}
	seen := 0
	for _, r := range cfg.Recent {
		if r.Name == "p5" || r.Name == "P5" {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("expected one entry for p5, got %d", seen)
	}
	if cfg.FindRecent("p5") == nil {
		t.Error("FindRecent should be case-insensitive")
	}

	cfg.ForgetRecent("p5")
	if cfg.FindRecent("p5") != nil {
		t.Error("ForgetRecent left the entry")
	}
}

func TestXDGDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/cfg")
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	if got := ConfigPath(); got != "/tmp/cfg/activity-browser/config.yaml" {
		t.Errorf("ConfigPath = %q", got)
	}
	if got := DataDir(); got != "/tmp/data/activity-browser" {
		t.Errorf("DataDir = %q", got)
	}
	if got := StateDir(); got != "/tmp/state/activity-browser" {
		t.Errorf("StateDir = %q", got)
	}
}
