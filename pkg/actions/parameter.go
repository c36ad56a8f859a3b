package actions

import (
	"context"
	"errors"
	"strings"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// ParameterNew stores a new parameter. Args: *model.Parameter; the name is
// asked for when empty.
type ParameterNew struct{ Env *Env }

func (a *ParameterNew) Meta() Meta { return Meta{Icon: "add", Text: "New parameter"} }

func (a *ParameterNew) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	tmpl, err := needArg[*model.Parameter](args, 0, "parameter")
	if err != nil {
		return err
	}
	prm := tmpl.Clone()
	if prm.Name == "" {
		name, ok := a.Env.Dialogs.AskText("New parameter", "Name of the new parameter:", "")
		if !ok {
			return nil
		}
		if prm.Name = strings.TrimSpace(name); prm.Name == "" {
			return nil
		}
	}
	if prm.Kind == "" {
		prm.Kind = model.ParamProject
	}
	if prm.Amount == 0 && prm.Formula == "" {
		prm.Amount = 1
	}
	return p.NewParameter(ctx, prm)
}

// ParameterModify sets the amount or formula of a parameter and recalculates.
// Args: key, field, value.
type ParameterModify struct{ Env *Env }

func (a *ParameterModify) Meta() Meta { return Meta{Icon: "edit", Text: "Modify parameter"} }

func (a *ParameterModify) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	k, err := needArg[model.ParameterKey](args, 0, "parameter")
	if err != nil {
		return err
	}
	field, err := needArg[string](args, 1, "field")
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return model.NewDomainError(model.KindInvalid, "missing value for %q", field)
	}
	prm, err := p.Parameter(ctx, k)
	if err != nil {
		return err
	}
	switch v := args[2]; field {
	case "amount":
		f, ok := v.(float64)
		if !ok {
			return fieldType(field, "number", v)
		}
		prm.Amount = f
	case "formula":
		s, ok := v.(string)
		if !ok {
			return fieldType(field, "string", v)
		}
		prm.Formula = s
	default:
		return model.NewDomainError(model.KindInvalid, "parameter field %q cannot be modified", field)
	}
	if err := p.SaveParameter(ctx, prm); err != nil {
		return err
	}
	return p.Recalculate(ctx)
}

// ParameterDelete removes parameters. Missing ones are skipped; parameters
// still referenced by a formula are refused by the store.
type ParameterDelete struct{ Env *Env }

func (a *ParameterDelete) Meta() Meta { return Meta{Icon: "delete", Text: "Delete parameter"} }

func (a *ParameterDelete) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	for _, v := range args {
		k, ok := v.(model.ParameterKey)
		if !ok {
			return model.NewDomainError(model.KindInvalid, "expected parameter keys, got %T", v)
		}
		err := p.DeleteParameter(ctx, k)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ParameterRecalculate re-evaluates every formula.
type ParameterRecalculate struct{ Env *Env }

func (a *ParameterRecalculate) Meta() Meta {
	return Meta{Icon: "switch", Text: "Recalculate parameters", Shortcut: "f5"}
}

func (a *ParameterRecalculate) Run(ctx context.Context, _ ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	return p.Recalculate(ctx)
}
