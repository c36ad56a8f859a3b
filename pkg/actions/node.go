package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// NodeNew creates a process with a production exchange to itself and opens it.
// Args: database[, name].
type NodeNew struct{ Env *Env }

func (a *NodeNew) Meta() Meta {
	return Meta{Icon: "add", Text: "New activity", ToolTip: "Make a new activity in this database"}
}

func (a *NodeNew) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	db, err := needArg[string](args, 0, "database name")
	if err != nil {
		return err
	}
	name, ok := arg[string](args, 1)
	if !ok {
		if name, ok = a.Env.Dialogs.AskText("Create new activity", "Please specify an activity name:", ""); !ok {
			return nil
		}
	}
	if name = strings.TrimSpace(name); name == "" {
		return nil
	}
	n := p.NewNode(db)
	n.Name = name
	n.Product = name
	n.Unit = "kilogram"
	if unit, ok := arg[string](args, 2); ok {
		n.Unit = unit
	}
	if err := p.SaveNode(ctx, n); err != nil {
		return err
	}
	production := &model.Edge{Input: n.Key(), Output: n.Key(), Amount: 1, Type: model.EdgeProduction}
	if err := p.SaveEdge(ctx, production); err != nil {
		return err
	}
	if a.Env.Bus != nil {
		a.Env.Bus.App().OpenNode.Emit(n.Key())
	}
	return nil
}

// NodeModify sets one field of an activity. Args: key, field, value.
type NodeModify struct{ Env *Env }

func (a *NodeModify) Meta() Meta { return Meta{Icon: "edit", Text: "Modify activity"} }

func (a *NodeModify) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	k, err := needArg[model.NodeKey](args, 0, "activity")
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
	n, err := p.Node(ctx, k)
	if err != nil {
		return err
	}
	if err := setNodeField(n, field, args[2]); err != nil {
		return err
	}
	return p.SaveNode(ctx, n)
}

func setNodeField(n *model.Node, field string, v any) error {
	if tag, ok := strings.CutPrefix(field, "tags."); ok {
		s, ok := v.(string)
		if !ok {
			return fieldType(field, "string", v)
		}
		if n.Tags == nil {
			n.Tags = map[string]string{}
		}
		if s == "" {
			delete(n.Tags, tag)
		} else {
			n.Tags[tag] = s
		}
		return nil
	}
	switch field {
	case "name", "reference product", "unit", "location", "comment", "allocation":
		s, ok := v.(string)
		if !ok {
			return fieldType(field, "string", v)
		}
		switch field {
		case "name":
			n.Name = s
		case "reference product":
			n.Product = s
		case "unit":
			n.Unit = s
		case "location":
			n.Location = s
		case "comment":
			n.Comment = s
		case "allocation":
			n.Allocation = s
		}
	case "categories":
		c, ok := v.([]string)
		if !ok {
			return fieldType(field, "[]string", v)
		}
		n.Categories = append([]string(nil), c...)
	default:
		return model.NewDomainError(model.KindInvalid, "activity field %q cannot be modified", field)
	}
	return nil
}

func fieldType(field, want string, got any) error {
	return model.NewDomainError(model.KindInvalid, "%s must be a %s, got %T", field, want, got)
}

// NodeDelete deletes one or more activities. It serves both the table and
// the graph views. Keys that are already gone are skipped.
type NodeDelete struct{ Env *Env }

func (a *NodeDelete) Meta() Meta {
	return Meta{Icon: "delete", Text: "Delete ***", ToolTip: "Delete the selected activities", Shortcut: "delete"}
}

func (a *NodeDelete) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	keys, err := nodeKeys(args)
	if err != nil {
		return err
	}
	var live []model.NodeKey
	deleting := map[model.NodeKey]bool{}
	for _, k := range keys {
		ok, err := p.NodeExists(ctx, k)
		if err != nil {
			return err
		}
		if ok && !deleting[k] {
			live = append(live, k)
			deleting[k] = true
		}
	}
	if len(live) == 0 {
		return nil
	}

	downstream := 0
	for _, k := range live {
		consumers, err := p.Consumers(ctx, k)
		if err != nil {
			return err
		}
		for _, e := range consumers {
			if !deleting[e.Output] {
				downstream++
			}
		}
	}
	q := fmt.Sprintf("Are you sure you want to delete %s?", plural(len(live), "activity"))
	if downstream > 0 {
		q += fmt.Sprintf(" %s in other activities will be removed as well.", plural(downstream, "exchange"))
	}
	if !a.Env.Dialogs.AskConfirm("Deleting activities", q) {
		return nil
	}
	for _, k := range live {
		if err := p.DeleteNode(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// NodeDuplicate copies activities with their exchanges. Args: keys[, target
// database]. The copies keep their names and get new codes.
type NodeDuplicate struct{ Env *Env }

func (a *NodeDuplicate) Meta() Meta {
	return Meta{Icon: "copy", Text: "Duplicate ***", ToolTip: "Duplicate the selected activities"}
}

func (a *NodeDuplicate) Run(ctx context.Context, args ...any) error {
	p, err := a.Env.project()
	if err != nil {
		return err
	}
	target := ""
	if len(args) > 1 {
		if s, ok := args[len(args)-1].(string); ok {
			target = s
			args = args[:len(args)-1]
		}
	}
	keys, err := nodeKeys(args)
	if err != nil {
		return err
	}
	var last model.NodeKey
	for _, k := range keys {
		n, err := p.Node(ctx, k)
		if err != nil {
			return err
		}
		edges, err := p.Exchanges(ctx, k)
		if err != nil {
			return err
		}
		c := n.Clone()
		c.ID = 0
		c.Code = uuid.NewString()
		if target != "" {
			c.Database = target
		}
		if err := p.SaveNode(ctx, c); err != nil {
			return err
		}
		for _, e := range edges {
			d := e.Clone()
			d.ID = 0
			d.Output = c.Key()
			if e.Input == k {
				d.Input = c.Key()
			}
			if err := p.SaveEdge(ctx, d); err != nil {
				return err
			}
		}
		last = c.Key()
	}
	if a.Env.Bus != nil {
		a.Env.Bus.App().OpenNode.Emit(last)
	}
	return nil
}
