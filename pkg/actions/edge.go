package actions

import (
	"context"
	"errors"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// EdgeNew adds exchanges from the given inputs to one consumer.
// Args: consumer, inputs...
type EdgeNew struct{ Env *Env }

func (a *EdgeNew) Meta() Meta { return Meta{Icon: "add", Text: "Add exchanges"} }

func (a *EdgeNew) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	to, err := needArg[model.NodeKey](args, 0, "consumer")
	if err != nil {
		return err
	}
	inputs, err := nodeKeys(args[1:])
	if err != nil {
		return err
	}
	for _, k := range inputs {
		n, err := p.Node(ctx, k)
		if err != nil {
			return err
		}
		e := &model.Edge{Input: k, Output: to, Amount: 1, Type: model.EdgeTechnosphere}
		switch {
		case n.IsBiosphere():
			e.Type = model.EdgeBiosphere
		case k == to:
			e.Type = model.EdgeProduction
		}
		if err := p.SaveEdge(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// EdgeModify sets one field of an exchange. Args: id, field, value.
type EdgeModify struct{ Env *Env }

func (a *EdgeModify) Meta() Meta { return Meta{Icon: "edit", Text: "Modify exchange"} }

func (a *EdgeModify) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	id, err := needArg[int64](args, 0, "exchange id")
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
	e, err := p.Edge(ctx, id)
	if err != nil {
		return err
	}
	switch v := args[2]; field {
	case "amount":
		f, ok := v.(float64)
		if !ok {
			return fieldType(field, "number", v)
		}
		e.Amount = f
	case "formula":
		s, ok := v.(string)
		if !ok {
			return fieldType(field, "string", v)
		}
		e.Formula = s
	case "comment":
		s, ok := v.(string)
		if !ok {
			return fieldType(field, "string", v)
		}
		e.Comment = s
	case "type":
		t, ok := v.(model.EdgeType)
		if !ok || !t.IsValid() {
			return model.NewDomainError(model.KindInvalid, "unknown exchange type %v", v)
		}
		e.Type = t
	default:
		return model.NewDomainError(model.KindInvalid, "exchange field %q cannot be modified", field)
	}
	return p.SaveEdge(ctx, e)
}

// EdgeDelete removes exchanges by id. Missing ids are skipped.
type EdgeDelete struct{ Env *Env }

func (a *EdgeDelete) Meta() Meta {
	return Meta{Icon: "delete", Text: "Delete exchange(s)"}
}

func (a *EdgeDelete) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	var ids []int64
	for _, v := range args {
		switch id := v.(type) {
		case int64:
			ids = append(ids, id)
		case []int64:
			ids = append(ids, id...)
		case *model.Edge:
			ids = append(ids, id.ID)
		default:
			return model.NewDomainError(model.KindInvalid, "expected exchange ids, got %T", v)
		}
	}
	for _, id := range ids {
		err := p.DeleteEdge(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
