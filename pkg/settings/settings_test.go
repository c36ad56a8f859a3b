package settings_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/settings"
)

func TestUserDefaults(t *testing.T) {
	dir := t.TempDir()
	u, err := settings.LoadUser(dir)
	if err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	if u.StartupProject != settings.DefaultStartupProject {
		t.Errorf("startup project = %q", u.StartupProject)
	}
	if u.ReadOnlyDatabases == nil || u.Plugins == nil {
		t.Error("collections should be initialised")
	}

	u.StartupProject = "ecoinvent"
	u.ReadOnlyDatabases["biosphere3"] = true
	if err := u.Save(); err != nil {
		t.Fatal(err)
	}
	again, err := settings.LoadUser(dir)
	if err != nil {
		t.Fatal(err)
	}
	if again.StartupProject != "ecoinvent" || !again.ReadOnlyDatabases["biosphere3"] {
		t.Errorf("reloaded = %+v", again)
	}
}

func TestUserFileKeys(t *testing.T) {
	dir := t.TempDir()
	u, _ := settings.LoadUser(dir)
	u.Plugins = []string{"ab_plugin_matrix"}
	if err := u.Save(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, settings.UserFile))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"custom_bw_dir", "startup_project", "read_only_databases", "plugins_list"} {
		if _, ok := raw[k]; !ok {
			t.Errorf("missing key %q in %s", k, data)
		}
	}
}

func TestProjectReadOnlyDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := settings.LoadProject(dir, []string{"biosphere3", "ecoinvent"})
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if !s.IsReadOnly("biosphere3") || !s.IsReadOnly("never-seen") {
		t.Error("databases should default to read-only")
	}
	if err := s.SetReadOnly("mine", false); err != nil {
		t.Fatal(err)
	}
	if s.IsReadOnly("mine") {
		t.Error("mine should be editable")
	}
	if got := s.Editable(); len(got) != 1 || got[0] != "mine" {
		t.Errorf("editable = %v", got)
	}

	again, err := settings.LoadProject(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.IsReadOnly("mine") || !again.IsReadOnly("ecoinvent") {
		t.Error("flags not persisted")
	}

	if err := again.Remove("mine"); err != nil {
		t.Fatal(err)
	}
	if !again.IsReadOnly("mine") {
		t.Error("removed database should fall back to read-only")
	}
}

func TestProjectFileKeys(t *testing.T) {
	dir := t.TempDir()
	s, _ := settings.LoadProject(dir, []string{"db"})
	if err := s.SetPlugins([]string{"p"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, settings.ProjectFile))
	if err != nil {
		t.Fatal(err)
	}
	var raw struct {
		ReadOnly map[string]bool `json:"read-only-databases"`
		Plugins  []string        `json:"plugins_list"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if !raw.ReadOnly["db"] || len(raw.Plugins) != 1 {
		t.Errorf("file = %s", data)
	}
}

func TestGuard(t *testing.T) {
	s, _ := settings.LoadProject(t.TempDir(), []string{"locked"})
	err := s.Guard("locked")
	if !errors.Is(err, model.ErrReadOnly) {
		t.Fatalf("Guard(locked) = %v", err)
	}
	_ = s.SetReadOnly("open", false)
	if err := s.Guard("open"); err != nil {
		t.Errorf("Guard(open) = %v", err)
	}
}

func TestCorruptProjectFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, settings.ProjectFile), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := settings.LoadProject(dir, nil)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !s.IsReadOnly("x") {
		t.Error("fallback settings should still be read-only")
	}
}
