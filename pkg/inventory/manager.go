// Package inventory is the sqlite-backed LCA store: projects, databases of
// nodes and edges, impact methods, calculation setups and parameters.
//
// Writes fire the primitive hooks in Hooks. The few operations that bypass
// those hooks (method write and deregister, metadata flush, project delete)
// dispatch through the patchable tables in Classes instead.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
)

// ProjectInfo is one entry of projects.json.
type ProjectInfo struct {
	Dir     string    `json:"dir"`
	Created time.Time `json:"created"`
}

// Manager owns the project registry and the current project.
type Manager struct {
	Hooks   Hooks
	Classes Classes

	baseDir string
	logger  *slog.Logger

	mu       sync.Mutex
	projects *Metadata[ProjectInfo]
	current  *Project
	guard    func(database string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager opens (or creates) the project registry under baseDir.
func NewManager(baseDir string, opts ...Option) (*Manager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("inventory: empty base dir")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	m := &Manager{
		Classes: newClasses(),
		baseDir: baseDir,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	registry := patch.NewClass("Projects", nil).
		Define(AttrFlush, FlushFunc[ProjectInfo](writeMetadata[ProjectInfo]))
	projects, err := openMetadata[ProjectInfo]("projects", filepath.Join(baseDir, "projects.json"), registry)
	if err != nil {
		return nil, err
	}
	m.projects = projects
	return m, nil
}

// BaseDir returns the directory holding all projects.
func (m *Manager) BaseDir() string { return m.baseDir }

// Logger returns the manager logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// Projects returns the registered project names, sorted.
func (m *Manager) Projects() []string { return m.projects.Keys() }

// Exists reports whether a project is registered.
func (m *Manager) Exists(name string) bool { return m.projects.Contains(name) }

// Dir returns the directory of a project, registered or not.
func (m *Manager) Dir(name string) string {
	if info, ok := m.projects.Get(name); ok && info.Dir != "" {
		return filepath.Join(m.baseDir, info.Dir)
	}
	return filepath.Join(m.baseDir, model.SafeFilename(name))
}

// Current returns the active project, or nil.
func (m *Manager) Current() *Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetWriteGuard installs the policy that decides whether a database may be
// written. A nil guard allows everything.
func (m *Manager) SetWriteGuard(fn func(database string) error) {
	m.mu.Lock()
	m.guard = fn
	m.mu.Unlock()
}

func (m *Manager) checkWritable(database string) error {
	m.mu.Lock()
	guard := m.guard
	m.mu.Unlock()
	if guard == nil {
		return nil
	}
	return guard(database)
}

// Create registers a new empty project.
func (m *Manager) Create(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return model.NewDomainError(model.KindInvalid, "empty project name")
	}
	if m.Exists(name) {
		return model.NewDomainError(model.KindNameExists, "project %q already exists", name)
	}
	dir := model.SafeFilename(name)
	if err := os.MkdirAll(filepath.Join(m.baseDir, dir), 0o750); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	return m.register(ctx, name, dir)
}

// Register adds a project whose directory already exists under the base dir,
// e.g. after an import.
func (m *Manager) Register(ctx context.Context, name string) error {
	if m.Exists(name) {
		return model.NewDomainError(model.KindNameExists, "project %q already exists", name)
	}
	dir := model.SafeFilename(name)
	if _, err := os.Stat(filepath.Join(m.baseDir, dir)); err != nil {
		return fmt.Errorf("register project %q: %w", name, err)
	}
	return m.register(ctx, name, dir)
}

func (m *Manager) register(ctx context.Context, name, dir string) error {
	m.projects.Set(name, ProjectInfo{Dir: dir, Created: time.Now().UTC()})
	if err := m.projects.Flush(ctx); err != nil {
		return err
	}
	m.logger.Info("project created", "project", name)
	m.Hooks.ProjectCreated.fire(CreatedEvent{Ctx: ctx, Name: name})
	return nil
}

// SetCurrent activates a project, creating it if needed.
func (m *Manager) SetCurrent(ctx context.Context, name string) error {
	if cur := m.Current(); cur != nil && cur.Name == name {
		return nil
	}
	if !m.Exists(name) {
		if err := m.Create(ctx, name); err != nil {
			return err
		}
	}
	p, err := openProject(m, name, m.Dir(name))
	if err != nil {
		return fmt.Errorf("open project %q: %w", name, err)
	}

	m.mu.Lock()
	old := m.current
	m.current = p
	m.mu.Unlock()

	m.logger.Info("project activated", "project", name)
	m.Hooks.ProjectChanged.fire(ProjectEvent{Ctx: ctx, New: p, Old: old})
	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Warn("closing previous project", "project", old.Name, "err", err)
		}
	}
	return nil
}

// Delete removes a project. It dispatches through Classes.Manager.
func (m *Manager) Delete(ctx context.Context, name string) error {
	del, ok := patch.Lookup[ProjectDeleteFunc](m.Classes.Manager, AttrDelete)
	if !ok {
		return deleteProject(ctx, m, name)
	}
	return del(ctx, m, name)
}

func deleteProject(ctx context.Context, m *Manager, name string) error {
	if !m.Exists(name) {
		return model.NotFound("project", name)
	}
	if cur := m.Current(); cur != nil && cur.Name == name {
		return model.NewDomainError(model.KindInUse, "cannot delete the current project %q", name)
	}
	dir := m.Dir(name)
	m.projects.Delete(name)
	if err := m.projects.Flush(ctx); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove project dir: %w", err)
	}
	m.logger.Info("project deleted", "project", name)
	return nil
}

// Copy duplicates a project directory under a new name.
func (m *Manager) Copy(ctx context.Context, src, dst string) error {
	if !m.Exists(src) {
		return model.NotFound("project", src)
	}
	if m.Exists(dst) {
		return model.NewDomainError(model.KindNameExists, "project %q already exists", dst)
	}
	if cur := m.Current(); cur != nil && cur.Name == src {
		if err := cur.Checkpoint(ctx); err != nil {
			return err
		}
	}
	to := filepath.Join(m.baseDir, model.SafeFilename(dst))
	if err := CopyDir(m.Dir(src), to); err != nil {
		return fmt.Errorf("copy project: %w", err)
	}
	return m.register(ctx, dst, model.SafeFilename(dst))
}

// Close closes the current project.
func (m *Manager) Close() error {
	m.mu.Lock()
	p := m.current
	m.current = nil
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close()
}

// CopyDir copies a directory tree, skipping sqlite sidecar files.
func CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if strings.HasSuffix(path, "-wal") || strings.HasSuffix(path, "-shm") {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
