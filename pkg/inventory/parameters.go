package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

var reParamName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const parameterColumns = `kind, scope, name, data`

func scanParameter(scan func(...any) error) (*model.Parameter, error) {
	var (
		kind, scope, name string
		data              []byte
	)
	if err := scan(&kind, &scope, &name, &data); err != nil {
		return nil, err
	}
	prm := &model.Parameter{}
	if err := json.Unmarshal(data, prm); err != nil {
		return nil, fmt.Errorf("decode parameter %s|%s: %w", scope, name, err)
	}
	prm.Kind, prm.Scope, prm.Name = model.ParamKind(kind), scope, name
	return prm, nil
}

func queryParameters(ctx context.Context, q querier, where string, args ...any) ([]*model.Parameter, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+parameterColumns+` FROM parameters `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query parameters: %w", err)
	}
	defer rows.Close()
	var out []*model.Parameter
	for rows.Next() {
		prm, err := scanParameter(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, prm)
	}
	return out, rows.Err()
}

func getParameter(ctx context.Context, q querier, key model.ParameterKey) (*model.Parameter, error) {
	prm, err := scanParameter(q.QueryRowContext(ctx,
		`SELECT `+parameterColumns+` FROM parameters WHERE scope = ? AND name = ?`, key.Scope, key.Name).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("parameter", key.String())
	}
	return prm, err
}

func upsertParameter(ctx context.Context, q querier, prm *model.Parameter) error {
	data, err := json.Marshal(prm)
	if err != nil {
		return fmt.Errorf("encode parameter %s: %w", prm.Key(), err)
	}
	var nodeDB, nodeCode sql.NullString
	if prm.Node != nil {
		nodeDB = sql.NullString{String: prm.Node.Database, Valid: true}
		nodeCode = sql.NullString{String: prm.Node.Code, Valid: true}
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO parameters (scope, name, kind, node_database, node_code, data) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (scope, name) DO UPDATE SET kind = excluded.kind, node_database = excluded.node_database,
		 node_code = excluded.node_code, data = excluded.data`,
		prm.Scope, prm.Name, string(prm.Kind), nodeDB, nodeCode, data)
	if err != nil {
		return fmt.Errorf("save parameter %s: %w", prm.Key(), err)
	}
	return nil
}

func dropEmptyGroups(ctx context.Context, q querier) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM groups WHERE name NOT IN (SELECT scope FROM parameters WHERE kind = 'activity')`)
	if err != nil {
		return fmt.Errorf("drop empty groups: %w", err)
	}
	return nil
}

func (p *Project) validateParameter(ctx context.Context, q querier, prm *model.Parameter) error {
	if !reParamName.MatchString(prm.Name) {
		return model.NewDomainError(model.KindInvalid, "parameter name %q is not a valid identifier", prm.Name)
	}
	switch prm.Kind {
	case model.ParamProject:
		prm.Scope = model.ProjectScope
		prm.Node = nil
	case model.ParamDatabase:
		if !p.Databases.Contains(prm.Scope) {
			return model.NotFound("database", prm.Scope)
		}
		if err := p.mgr.checkWritable(prm.Scope); err != nil {
			return err
		}
		prm.Node = nil
	case model.ParamActivity:
		if prm.Node == nil {
			return model.NewDomainError(model.KindInvalid, "activity parameter %q has no activity", prm.Name)
		}
		if prm.Scope == "" || prm.Scope == model.ProjectScope {
			return model.NewDomainError(model.KindInvalid, "activity parameter %q needs a group", prm.Name)
		}
		if p.Databases.Contains(prm.Scope) {
			return model.NewDomainError(model.KindInvalid, "group %q collides with a database name", prm.Scope)
		}
		ok, err := nodeExists(ctx, q, *prm.Node)
		if err != nil {
			return err
		}
		if !ok {
			return model.NotFound("node", prm.Node.String())
		}
		if err := p.mgr.checkWritable(prm.Node.Database); err != nil {
			return err
		}
	default:
		return model.NewDomainError(model.KindInvalid, "unknown parameter kind %q", prm.Kind)
	}
	if prm.Uncertainty != nil && prm.Uncertainty.Pedigree != nil {
		if err := prm.Uncertainty.Pedigree.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewParameter stores a parameter whose (scope, name) must be unused.
func (p *Project) NewParameter(ctx context.Context, prm *model.Parameter) error {
	if prm == nil {
		return model.NewDomainError(model.KindInvalid, "nil parameter")
	}
	if prm.Kind == model.ParamProject {
		prm.Scope = model.ProjectScope
	}
	q, err := p.q(ctx)
	if err != nil {
		return err
	}
	if _, err := getParameter(ctx, q, prm.Key()); err == nil {
		return model.NewDomainError(model.KindNameExists, "parameter %q already exists in %q", prm.Name, prm.Scope)
	} else if !errors.Is(err, model.ErrNotFound) {
		return err
	}
	return p.SaveParameter(ctx, prm)
}

// SaveParameter inserts or updates a parameter, creating its group when it is
// the first activity parameter of that group.
func (p *Project) SaveParameter(ctx context.Context, prm *model.Parameter) error {
	if prm == nil {
		return model.NewDomainError(model.KindInvalid, "nil parameter")
	}
	var old *model.Parameter
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		if err := p.validateParameter(ctx, tx, prm); err != nil {
			return err
		}
		var err error
		old, err = getParameter(ctx, tx, prm.Key())
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
		if old != nil && old.Kind != prm.Kind {
			return model.NewDomainError(model.KindNameExists, "%q is already a %s parameter", prm.Name, old.Kind)
		}
		if prm.Kind == model.ParamActivity {
			if err := ensureGroup(ctx, tx, prm.Scope); err != nil {
				return err
			}
		}
		return upsertParameter(ctx, tx, prm)
	})
	if err != nil {
		return err
	}
	var prev any
	if old != nil {
		prev = old
	}
	p.mgr.Hooks.DatasetSaved.fire(SaveEvent{Ctx: ctx, New: prm.Clone(), Old: prev})
	return nil
}

// Parameter loads one parameter.
func (p *Project) Parameter(ctx context.Context, key model.ParameterKey) (*model.Parameter, error) {
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	return getParameter(ctx, q, key)
}

// Parameters returns every parameter, project scope first.
func (p *Project) Parameters(ctx context.Context) ([]*model.Parameter, error) {
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	params, err := queryParameters(ctx, q, ``)
	if err != nil {
		return nil, err
	}
	rank := map[model.ParamKind]int{model.ParamProject: 0, model.ParamDatabase: 1, model.ParamActivity: 2}
	sort.Slice(params, func(i, j int) bool {
		a, b := params[i], params[j]
		if rank[a.Kind] != rank[b.Kind] {
			return rank[a.Kind] < rank[b.Kind]
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		return a.Name < b.Name
	})
	return params, nil
}

// DeleteParameter removes a parameter nothing else refers to. The group of
// an activity parameter goes with its last member.
func (p *Project) DeleteParameter(ctx context.Context, key model.ParameterKey) error {
	params, err := p.Parameters(ctx)
	if err != nil {
		return err
	}
	var target *model.Parameter
	for _, prm := range params {
		if prm.Key() == key {
			target = prm
		}
	}
	if target == nil {
		return model.NotFound("parameter", key.String())
	}
	groups, err := p.Groups(ctx)
	if err != nil {
		return err
	}
	scopes := newScopeResolver(params, groups)
	for _, other := range params {
		if other.Key() == key || other.Formula == "" {
			continue
		}
		names, err := formulaNames(other.Formula)
		if err != nil {
			continue
		}
		for _, n := range names {
			if dep, ok := scopes.resolve(other, n); ok && dep.Key() == key {
				return model.NewDomainError(model.KindInUse, "parameter %q is used by %q", key.Name, other.Name)
			}
		}
	}
	if target.Node != nil {
		if err := p.mgr.checkWritable(target.Node.Database); err != nil {
			return err
		}
	} else if target.Kind == model.ParamDatabase {
		if err := p.mgr.checkWritable(target.Scope); err != nil {
			return err
		}
	}

	err = p.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM parameters WHERE scope = ? AND name = ?`, key.Scope, key.Name); err != nil {
			return fmt.Errorf("delete parameter %s: %w", key, err)
		}
		return dropEmptyGroups(ctx, tx)
	})
	if err != nil {
		return err
	}
	p.mgr.Hooks.DatasetDeleted.fire(DeleteEvent{Ctx: ctx, Old: target})
	return nil
}

func ensureGroup(ctx context.Context, q querier, name string) error {
	data, err := json.Marshal(model.Group{Name: name, Order: []string{}, Fresh: true})
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO groups (name, data) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`, name, data); err != nil {
		return fmt.Errorf("create group %q: %w", name, err)
	}
	return nil
}

// Groups returns every activity parameter group, sorted by name.
func (p *Project) Groups(ctx context.Context) ([]model.Group, error) {
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT name, data FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()
	var out []model.Group
	for rows.Next() {
		var (
			name string
			data []byte
			g    model.Group
		)
		if err := rows.Scan(&name, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("decode group %q: %w", name, err)
		}
		g.Name = name
		out = append(out, g)
	}
	return out, rows.Err()
}

// SetGroupOrder sets the upstream groups whose names a group may use.
func (p *Project) SetGroupOrder(ctx context.Context, name string, order []string) error {
	q, err := p.q(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(model.Group{Name: name, Order: order, Fresh: false})
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE groups SET data = ? WHERE name = ?`, data, name)
	if err != nil {
		return fmt.Errorf("update group %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("group", name)
	}
	return nil
}
