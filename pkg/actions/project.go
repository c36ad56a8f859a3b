package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/project"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/settings"
)

// ProjectNew creates a project and switches to it.
type ProjectNew struct{ Env *Env }

func (a *ProjectNew) Meta() Meta {
	return Meta{Icon: "add", Text: "New project", ToolTip: "Make a new project"}
}

func (a *ProjectNew) Run(ctx context.Context, args ...any) error {
	name, ok := arg[string](args, 0)
	if !ok {
		if name, ok = a.Env.Dialogs.AskText("Create a new project", "Name of new project:", ""); !ok {
			return nil
		}
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil
	}
	if a.Env.Manager.Exists(name) {
		return model.NewDomainError(model.KindNameExists, "a project with the name %q already exists", name)
	}
	if err := a.Env.Manager.Create(ctx, name); err != nil {
		return err
	}
	return a.Env.Manager.SetCurrent(ctx, name)
}

// ProjectSwitch activates another project.
type ProjectSwitch struct{ Env *Env }

func (a *ProjectSwitch) Meta() Meta { return Meta{Icon: "switch", Text: "Switch project"} }

func (a *ProjectSwitch) Run(ctx context.Context, args ...any) error {
	name, err := needArg[string](args, 0, "project name")
	if err != nil {
		return err
	}
	if cur := a.Env.Manager.Current(); cur != nil && cur.Name == name {
		return nil
	}
	if !a.Env.Manager.Exists(name) {
		return model.NotFound("project", name)
	}
	return a.Env.Manager.SetCurrent(ctx, name)
}

// ProjectDelete deletes a project. Deleting the current project first
// switches to the startup project.
type ProjectDelete struct{ Env *Env }

func (a *ProjectDelete) Meta() Meta {
	return Meta{Icon: "delete", Text: "Delete project", ToolTip: "Delete the project"}
}

func (a *ProjectDelete) Run(ctx context.Context, args ...any) error {
	m := a.Env.Manager
	name, ok := arg[string](args, 0)
	if !ok {
		cur := m.Current()
		if cur == nil {
			return nil
		}
		name = cur.Name
	}
	if !m.Exists(name) {
		return nil
	}
	if len(m.Projects()) == 1 {
		return model.NewDomainError(model.KindInUse, "cannot delete the only project %q", name)
	}
	if !a.Env.Dialogs.AskConfirm("Confirm project deletion", fmt.Sprintf("Are you sure you want to delete project '%s'?", name)) {
		return nil
	}
	if cur := m.Current(); cur != nil && cur.Name == name {
		if err := m.SetCurrent(ctx, fallbackProject(m.Projects(), name)); err != nil {
			return err
		}
	}
	if err := m.Delete(ctx, name); err != nil {
		return err
	}
	a.Env.status(fmt.Sprintf("Project deleted: %s", name))
	return nil
}

func fallbackProject(projects []string, deleting string) string {
	for _, p := range projects {
		if p == settings.DefaultStartupProject && p != deleting {
			return p
		}
	}
	for _, p := range projects {
		if p != deleting {
			return p
		}
	}
	return settings.DefaultStartupProject
}

// ProjectExport writes a project tarball in a worker. Args: [project[, path]].
type ProjectExport struct{ Env *Env }

func (a *ProjectExport) Meta() Meta { return Meta{Icon: "export", Text: "Export this project"} }

func (a *ProjectExport) Run(ctx context.Context, args ...any) error {
	m := a.Env.Manager
	name, ok := arg[string](args, 0)
	if !ok {
		cur := m.Current()
		if cur == nil {
			return nil
		}
		name = cur.Name
	}
	if !m.Exists(name) {
		return model.NotFound("project", name)
	}
	path, ok := arg[string](args, 1)
	if !ok {
		if path, ok = a.Env.Dialogs.AskText("Export project", "Save the project to:", model.SafeFilenameOpt(name, false)+".tar.gz"); !ok {
			return nil
		}
	}
	if path = strings.TrimSpace(path); path == "" {
		return nil
	}
	a.Env.start(ctx, "export project", func(ctx context.Context, _ ...any) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("export project: %w", err)
		}
		if err := project.Export(ctx, m, name, f); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
		return f.Close()
	})
	return nil
}

// ProjectImport extracts a project tarball in a worker. Args: path[, name].
type ProjectImport struct{ Env *Env }

func (a *ProjectImport) Meta() Meta { return Meta{Icon: "import", Text: "Import a project"} }

func (a *ProjectImport) Run(ctx context.Context, args ...any) error {
	m := a.Env.Manager
	path, ok := arg[string](args, 0)
	if !ok {
		if path, ok = a.Env.Dialogs.AskText("Import project", "Project archive:", ""); !ok {
			return nil
		}
	}
	if path = strings.TrimSpace(path); path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("import project: %w", err)
	}
	name, ok := arg[string](args, 1)
	if !ok {
		guess := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".gz"), ".tar")
		if name, ok = a.Env.Dialogs.AskText("Import project", "Name of the imported project:", guess); !ok {
			return nil
		}
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil
	}
	if m.Exists(name) {
		return model.NewDomainError(model.KindNameExists, "a project with the name %q already exists", name)
	}
	a.Env.start(ctx, "import project", func(ctx context.Context, _ ...any) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("import project: %w", err)
		}
		defer f.Close()
		_, err = project.Import(ctx, m, f, name)
		return err
	})
	return nil
}
