package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// DatabaseNew asks for a name and creates an empty, editable database.
type DatabaseNew struct{ Env *Env }

func (a *DatabaseNew) Meta() Meta {
	return Meta{Icon: "add", Text: "New database...", ToolTip: "Make a new database", Shortcut: "ctrl+n"}
}

func (a *DatabaseNew) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	name, ok := arg[string](args, 0)
	if !ok {
		if name, ok = a.Env.Dialogs.AskText("Create new database", "Name of new database:", ""); !ok {
			return nil
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if _, exists := p.Database(name); exists {
		return model.NewDomainError(model.KindNameExists, "a database with the name %q already exists", name)
	}
	if s := a.Env.settings(); s != nil {
		if err := s.SetReadOnly(name, false); err != nil {
			return err
		}
	}
	if err := p.RegisterDatabase(ctx, name, model.DatabaseMeta{}); err != nil {
		return err
	}
	return p.WriteDatabase(ctx, name, nil, nil)
}

// DatabaseDelete removes a database after confirmation.
type DatabaseDelete struct{ Env *Env }

func (a *DatabaseDelete) Meta() Meta {
	return Meta{Icon: "delete", Text: "Delete database", ToolTip: "Delete the selected database"}
}

func (a *DatabaseDelete) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	name, err := needArg[string](args, 0, "database name")
	if err != nil {
		return err
	}
	meta, ok := p.Database(name)
	if !ok {
		return model.NotFound("database", name)
	}
	q := fmt.Sprintf("Are you sure you want to delete database '%s'? It has %s.", name, plural(meta.Number, "activity record"))
	if !a.Env.Dialogs.AskConfirm("Delete database?", q) {
		return nil
	}
	if err := p.DeleteDatabase(ctx, name); err != nil {
		return err
	}
	if s := a.Env.settings(); s != nil {
		if err := s.Remove(name); err != nil {
			a.Env.logger().Warn("forgetting deleted database", "database", name, "err", err)
		}
	}
	a.Env.status(fmt.Sprintf("Deleted database %s", name))
	return nil
}

// DatabaseDuplicate copies a database in a worker.
type DatabaseDuplicate struct{ Env *Env }

func (a *DatabaseDuplicate) Meta() Meta {
	return Meta{Icon: "duplicate_database", Text: "Duplicate database...", ToolTip: "Copy this database"}
}

func (a *DatabaseDuplicate) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	src, err := needArg[string](args, 0, "database name")
	if err != nil {
		return err
	}
	if _, ok := p.Database(src); !ok {
		return model.NotFound("database", src)
	}
	dst, ok := arg[string](args, 1)
	if !ok {
		if dst, ok = a.Env.Dialogs.AskText("Copy "+src, "Name of new database:", src+"_copy"); !ok {
			return nil
		}
	}
	if dst = strings.TrimSpace(dst); dst == "" {
		return nil
	}
	if _, exists := p.Database(dst); exists {
		return model.NewDomainError(model.KindNameExists, "a database with the name %q already exists", dst)
	}
	if s := a.Env.settings(); s != nil {
		if err := s.SetReadOnly(dst, false); err != nil {
			return err
		}
	}
	a.Env.start(ctx, "duplicate database", func(ctx context.Context, _ ...any) error {
		return p.CopyDatabase(ctx, src, dst)
	})
	return nil
}
