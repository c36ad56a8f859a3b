package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

const edgeColumns = `id, input_database, input_code, output_database, output_code, data`

func scanEdge(scan func(...any) error) (*model.Edge, error) {
	var (
		e    model.Edge
		data []byte
		in   model.NodeKey
		out  model.NodeKey
		id   int64
	)
	if err := scan(&id, &in.Database, &in.Code, &out.Database, &out.Code, &data); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode edge %d: %w", id, err)
	}
	e.ID, e.Input, e.Output = id, in, out
	return &e, nil
}

func queryEdges(ctx context.Context, q querier, where string, args ...any) ([]*model.Edge, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+edgeColumns+` FROM exchangedataset `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()
	var out []*model.Edge
	for rows.Next() {
		e, err := scanEdge(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func getEdge(ctx context.Context, q querier, id int64) (*model.Edge, error) {
	e, err := scanEdge(q.QueryRowContext(ctx, `SELECT `+edgeColumns+` FROM exchangedataset WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("edge", fmt.Sprint(id))
	}
	return e, err
}

func insertEdge(ctx context.Context, q querier, e *model.Edge) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode edge: %w", err)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO exchangedataset (input_database, input_code, output_database, output_code, type, formula, data) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Input.Database, e.Input.Code, e.Output.Database, e.Output.Code, string(e.Type), nullString(e.Formula), data)
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func updateEdge(ctx context.Context, q querier, e *model.Edge) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode edge %d: %w", e.ID, err)
	}
	_, err = q.ExecContext(ctx,
		`UPDATE exchangedataset SET input_database = ?, input_code = ?, output_database = ?, output_code = ?, type = ?, formula = ?, data = ? WHERE id = ?`,
		e.Input.Database, e.Input.Code, e.Output.Database, e.Output.Code, string(e.Type), nullString(e.Formula), data, e.ID)
	if err != nil {
		return fmt.Errorf("update edge %d: %w", e.ID, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func relinkEdges(ctx context.Context, q querier, from, to model.NodeKey) error {
	edges, err := queryEdges(ctx, q,
		`WHERE (input_database = ? AND input_code = ?) OR (output_database = ? AND output_code = ?)`,
		from.Database, from.Code, from.Database, from.Code)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.Input == from {
			e.Input = to
		}
		if e.Output == from {
			e.Output = to
		}
		if err := updateEdge(ctx, q, e); err != nil {
			return err
		}
	}
	return nil
}

// Edge loads one edge.
func (p *Project) Edge(ctx context.Context, id int64) (*model.Edge, error) {
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	return getEdge(ctx, q, id)
}

// Exchanges returns the edges owned by a node (those whose output it is).
func (p *Project) Exchanges(ctx context.Context, key model.NodeKey) ([]*model.Edge, error) {
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	return queryEdges(ctx, q, `WHERE output_database = ? AND output_code = ? ORDER BY id`, key.Database, key.Code)
}

// Consumers returns the edges that take a node as input.
func (p *Project) Consumers(ctx context.Context, key model.NodeKey) ([]*model.Edge, error) {
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	return queryEdges(ctx, q, `WHERE input_database = ? AND input_code = ? ORDER BY id`, key.Database, key.Code)
}

// DatabaseEdges returns every edge owned by nodes of a database.
func (p *Project) DatabaseEdges(ctx context.Context, database string) ([]*model.Edge, error) {
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	return queryEdges(ctx, q, `WHERE output_database = ? ORDER BY id`, database)
}

// SaveEdge inserts or updates an edge. Both endpoints must exist.
func (p *Project) SaveEdge(ctx context.Context, e *model.Edge) error {
	if e == nil {
		return model.NewDomainError(model.KindInvalid, "nil edge")
	}
	if !e.Type.IsValid() {
		return model.NewDomainError(model.KindInvalid, "unknown edge type %q", e.Type)
	}
	if err := p.mgr.checkWritable(e.Output.Database); err != nil {
		return err
	}
	q, err := p.q(ctx)
	if err != nil {
		return err
	}
	for _, k := range []model.NodeKey{e.Input, e.Output} {
		ok, err := nodeExists(ctx, q, k)
		if err != nil {
			return err
		}
		if !ok {
			return model.NotFound("node", k.String())
		}
	}

	var old *model.Edge
	if e.ID != 0 {
		if old, err = getEdge(ctx, q, e.ID); err != nil {
			return err
		}
		err = updateEdge(ctx, q, e)
	} else {
		err = insertEdge(ctx, q, e)
	}
	if err != nil {
		return err
	}
	var prev any
	if old != nil {
		prev = old
	}
	p.mgr.Hooks.DatasetSaved.fire(SaveEvent{Ctx: ctx, New: e.Clone(), Old: prev})
	return nil
}

// DeleteEdge removes one edge.
func (p *Project) DeleteEdge(ctx context.Context, id int64) error {
	q, err := p.q(ctx)
	if err != nil {
		return err
	}
	e, err := getEdge(ctx, q, id)
	if err != nil {
		return err
	}
	if err := p.mgr.checkWritable(e.Output.Database); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM exchangedataset WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete edge %d: %w", id, err)
	}
	p.mgr.Hooks.DatasetDeleted.fire(DeleteEvent{Ctx: ctx, Old: e})
	return nil
}
