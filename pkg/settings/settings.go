// Package settings persists the user-level and project-level workbench
// settings as JSON documents next to the data they describe.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/config"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

const (
	UserFile    = "ABsettings.json"
	ProjectFile = "AB_project_settings.json"

	// DefaultStartupProject is opened when nothing else is configured.
	DefaultStartupProject = "default"
)

// User holds the per-user settings.
type User struct {
	CustomDir         string          `json:"custom_bw_dir"`
	StartupProject    string          `json:"startup_project"`
	ReadOnlyDatabases map[string]bool `json:"read_only_databases"`
	Plugins           []string        `json:"plugins_list"`

	path string
}

// LoadUser reads dir/ABsettings.json, or returns defaults when it is missing.
// An empty dir means the XDG config directory.
func LoadUser(dir string) (*User, error) {
	if dir == "" {
		dir = config.ConfigDir()
	}
	u := &User{
		CustomDir:         filepath.Join(config.DataDir(), "projects"),
		StartupProject:    DefaultStartupProject,
		ReadOnlyDatabases: map[string]bool{},
		Plugins:           []string{},
		path:              filepath.Join(dir, UserFile),
	}
	if err := readJSON(u.path, u); err != nil && !errors.Is(err, errMissing) {
		return u, err
	}
	if u.ReadOnlyDatabases == nil {
		u.ReadOnlyDatabases = map[string]bool{}
	}
	if u.StartupProject == "" {
		u.StartupProject = DefaultStartupProject
	}
	return u, nil
}

// Path returns the settings file location.
func (u *User) Path() string { return u.path }

// Save writes the settings back.
func (u *User) Save() error { return writeJSON(u.path, u) }

// Project holds the read-only flags and plugins of one project.
type Project struct {
	mu       sync.Mutex
	readOnly map[string]bool
	plugins  []string
	path     string
}

type projectDoc struct {
	ReadOnly map[string]bool `json:"read-only-databases"`
	Plugins  []string        `json:"plugins_list"`
}

// LoadProject reads the project settings in dir. When the file does not
// exist yet every database in databases starts read-only and the file is
// written.
func LoadProject(dir string, databases []string) (*Project, error) {
	s := &Project{readOnly: map[string]bool{}, plugins: []string{}, path: filepath.Join(dir, ProjectFile)}
	var doc projectDoc
	err := readJSON(s.path, &doc)
	switch {
	case errors.Is(err, errMissing):
		for _, db := range databases {
			s.readOnly[db] = true
		}
		return s, s.Save()
	case err != nil:
		return s, err
	}
	if doc.ReadOnly != nil {
		s.readOnly = doc.ReadOnly
	}
	if doc.Plugins != nil {
		s.plugins = doc.Plugins
	}
	return s, nil
}

// IsReadOnly reports whether writes to db are refused. Unknown databases are
// read-only.
func (s *Project) IsReadOnly(db string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ro, ok := s.readOnly[db]
	return !ok || ro
}

// SetReadOnly records the flag of db and saves.
func (s *Project) SetReadOnly(db string, ro bool) error {
	s.mu.Lock()
	s.readOnly[db] = ro
	s.mu.Unlock()
	return s.Save()
}

// Remove forgets db and saves.
func (s *Project) Remove(db string) error {
	s.mu.Lock()
	_, ok := s.readOnly[db]
	delete(s.readOnly, db)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Save()
}

// Editable returns the databases that accept writes, sorted.
func (s *Project) Editable() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for db, ro := range s.readOnly {
		if !ro {
			out = append(out, db)
		}
	}
	sort.Strings(out)
	return out
}

// Plugins returns the enabled plugins of the project.
func (s *Project) Plugins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.plugins...)
}

// SetPlugins replaces the plugin list and saves.
func (s *Project) SetPlugins(names []string) error {
	s.mu.Lock()
	s.plugins = append([]string{}, names...)
	s.mu.Unlock()
	return s.Save()
}

// Guard is an inventory write guard: it refuses writes to read-only
// databases with a read-only domain error.
func (s *Project) Guard(db string) error {
	if s.IsReadOnly(db) {
		return model.NewDomainError(model.KindReadOnly, "database %q is read-only", db)
	}
	return nil
}

// Save writes the settings file.
func (s *Project) Save() error {
	s.mu.Lock()
	doc := projectDoc{ReadOnly: make(map[string]bool, len(s.readOnly)), Plugins: append([]string{}, s.plugins...)}
	for k, v := range s.readOnly {
		doc.ReadOnly[k] = v
	}
	s.mu.Unlock()
	return writeJSON(s.path, doc)
}

var errMissing = errors.New("settings file missing")

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return errMissing
	}
	if err != nil {
		return fmt.Errorf("reading settings: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return os.Rename(tmp, path)
}
