package actions

import (
	"context"
	"fmt"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// MethodDelete deregisters impact assessment methods after confirmation.
type MethodDelete struct{ Env *Env }

func (a *MethodDelete) Meta() Meta {
	return Meta{Icon: "delete", Text: "Delete ***", ToolTip: "Remove the impact category from the project"}
}

func (a *MethodDelete) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	var ids []model.MethodID
	for _, v := range args {
		switch id := v.(type) {
		case model.MethodID:
			ids = append(ids, id)
		case []model.MethodID:
			ids = append(ids, id...)
		default:
			return model.NewDomainError(model.KindInvalid, "expected methods, got %T", v)
		}
	}
	var live []model.MethodID
	for _, id := range ids {
		if _, ok := p.MethodMeta(id); ok {
			live = append(live, id)
		}
	}
	if len(live) == 0 {
		return nil
	}
	q := fmt.Sprintf("Are you sure you want to delete %s? This cannot be undone.", plural(len(live), "impact category"))
	if len(live) == 1 {
		q = fmt.Sprintf("Are you sure you want to delete %s? This cannot be undone.", live[0])
	}
	if !a.Env.Dialogs.AskConfirm("Deleting methods", q) {
		return nil
	}
	for _, id := range live {
		if err := p.DeregisterMethod(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
