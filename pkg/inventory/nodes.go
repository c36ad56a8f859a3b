package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// NewNode returns an unsaved process in database with a fresh code.
func (p *Project) NewNode(database string) *model.Node {
	return &model.Node{
		Database: database,
		Code:     uuid.NewString(),
		Type:     model.TypeProcess,
	}
}

const nodeColumns = `id, database, code, data`

func scanNode(scan func(...any) error) (*model.Node, error) {
	var (
		id       int64
		db, code string
		data     []byte
	)
	if err := scan(&id, &db, &code, &data); err != nil {
		return nil, err
	}
	n := &model.Node{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("decode node %s|%s: %w", db, code, err)
	}
	n.ID, n.Database, n.Code = id, db, code
	return n, nil
}

func getNode(ctx context.Context, q querier, key model.NodeKey) (*model.Node, error) {
	row := q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM activitydataset WHERE database = ? AND code = ?`, key.Database, key.Code)
	n, err := scanNode(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("node", key.String())
	}
	return n, err
}

func nodeExists(ctx context.Context, q querier, key model.NodeKey) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM activitydataset WHERE database = ? AND code = ?`, key.Database, key.Code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func queryNodes(ctx context.Context, q querier, where string, args ...any) ([]*model.Node, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM activitydataset `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()
	var out []*model.Node
	for rows.Next() {
		n, err := scanNode(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Node loads one node.
func (p *Project) Node(ctx context.Context, key model.NodeKey) (*model.Node, error) {
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	return getNode(ctx, q, key)
}

// NodeExists reports whether key is stored.
func (p *Project) NodeExists(ctx context.Context, key model.NodeKey) (bool, error) {
	q, err := p.q(ctx)
	if err != nil {
		return false, err
	}
	return nodeExists(ctx, q, key)
}

// Nodes loads every node of a database, ordered by id.
func (p *Project) Nodes(ctx context.Context, database string) ([]*model.Node, error) {
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	return queryNodes(ctx, q, `WHERE database = ? ORDER BY id`, database)
}

func encodeNode(n *model.Node) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode node %s: %w", n.Key(), err)
	}
	return data, nil
}

func insertNode(ctx context.Context, q querier, n *model.Node) error {
	data, err := encodeNode(n)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO activitydataset (database, code, location, name, product, type, data) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.Database, n.Code, n.Location, n.Name, n.Product, n.Type, data)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", n.Key(), err)
	}
	n.ID, err = res.LastInsertId()
	return err
}

func updateNode(ctx context.Context, q querier, n *model.Node) error {
	data, err := encodeNode(n)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`UPDATE activitydataset SET database = ?, code = ?, location = ?, name = ?, product = ?, type = ?, data = ? WHERE id = ?`,
		n.Database, n.Code, n.Location, n.Name, n.Product, n.Type, data, n.ID)
	if err != nil {
		return fmt.Errorf("update node %s: %w", n.Key(), err)
	}
	return nil
}

// SaveNode inserts or updates n and fires DatasetSaved with the previous
// state.
func (p *Project) SaveNode(ctx context.Context, n *model.Node) error {
	if n == nil {
		return model.NewDomainError(model.KindInvalid, "nil node")
	}
	if err := p.mgr.checkWritable(n.Database); err != nil {
		return err
	}
	if !p.Databases.Contains(n.Database) {
		return model.NotFound("database", n.Database)
	}
	if n.Code == "" {
		n.Code = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = model.TypeProcess
	}

	q, err := p.q(ctx)
	if err != nil {
		return err
	}
	old, err := getNode(ctx, q, n.Key())
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	if old != nil {
		n.ID = old.ID
		err = updateNode(ctx, q, n)
	} else {
		err = insertNode(ctx, q, n)
	}
	if err != nil {
		return err
	}
	p.mgr.Hooks.DatasetSaved.fire(SaveEvent{Ctx: ctx, New: n.Clone(), Old: nilNode(old)})
	return nil
}

// nilNode keeps a nil *model.Node from turning into a non-nil interface.
func nilNode(n *model.Node) any {
	if n == nil {
		return nil
	}
	return n
}

// DeleteNode removes a node with every edge touching it and the activity
// parameters bound to it. DatasetDeleted fires for each edge and parameter,
// then for the node.
func (p *Project) DeleteNode(ctx context.Context, key model.NodeKey) error {
	if err := p.mgr.checkWritable(key.Database); err != nil {
		return err
	}
	var (
		node   *model.Node
		edges  []*model.Edge
		params []*model.Parameter
	)
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if node, err = getNode(ctx, tx, key); err != nil {
			return err
		}
		if edges, err = queryEdges(ctx, tx,
			`WHERE (input_database = ? AND input_code = ?) OR (output_database = ? AND output_code = ?) ORDER BY id`,
			key.Database, key.Code, key.Database, key.Code); err != nil {
			return err
		}
		if params, err = queryParameters(ctx, tx, `WHERE node_database = ? AND node_code = ?`, key.Database, key.Code); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM exchangedataset WHERE (input_database = ? AND input_code = ?) OR (output_database = ? AND output_code = ?)`,
			key.Database, key.Code, key.Database, key.Code); err != nil {
			return fmt.Errorf("delete edges of %s: %w", key, err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM parameters WHERE node_database = ? AND node_code = ?`, key.Database, key.Code); err != nil {
			return fmt.Errorf("delete parameters of %s: %w", key, err)
		}
		if err = dropEmptyGroups(ctx, tx); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM activitydataset WHERE id = ?`, node.ID); err != nil {
			return fmt.Errorf("delete node %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range edges {
		p.mgr.Hooks.DatasetDeleted.fire(DeleteEvent{Ctx: ctx, Old: e})
	}
	for _, prm := range params {
		p.mgr.Hooks.DatasetDeleted.fire(DeleteEvent{Ctx: ctx, Old: prm})
	}
	p.mgr.Hooks.DatasetDeleted.fire(DeleteEvent{Ctx: ctx, Old: node})
	return nil
}

// ChangeCode gives a node a new code, relinking its edges.
func (p *Project) ChangeCode(ctx context.Context, key model.NodeKey, code string) (*model.Node, error) {
	if code == "" {
		return nil, model.NewDomainError(model.KindInvalid, "empty code")
	}
	return p.move(ctx, key, model.NodeKey{Database: key.Database, Code: code}, &p.mgr.Hooks.CodeChanged)
}

// ChangeDatabase moves a node into another registered database.
func (p *Project) ChangeDatabase(ctx context.Context, key model.NodeKey, database string) (*model.Node, error) {
	if !p.Databases.Contains(database) {
		return nil, model.NotFound("database", database)
	}
	if err := p.mgr.checkWritable(database); err != nil {
		return nil, err
	}
	return p.move(ctx, key, model.NodeKey{Database: database, Code: key.Code}, &p.mgr.Hooks.DatabaseChanged)
}

func (p *Project) move(ctx context.Context, from, to model.NodeKey, hook *Hook[MoveEvent]) (*model.Node, error) {
	if err := p.mgr.checkWritable(from.Database); err != nil {
		return nil, err
	}
	var old, moved *model.Node
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if old, err = getNode(ctx, tx, from); err != nil {
			return err
		}
		exists, err := nodeExists(ctx, tx, to)
		if err != nil {
			return err
		}
		if exists {
			return model.NewDomainError(model.KindNameExists, "node %s already exists", to)
		}
		moved = old.Clone()
		moved.Database, moved.Code = to.Database, to.Code
		if err = updateNode(ctx, tx, moved); err != nil {
			return err
		}
		return relinkEdges(ctx, tx, from, to)
	})
	if err != nil {
		return nil, err
	}
	hook.fire(MoveEvent{Ctx: ctx, Old: old, New: moved.Clone()})
	return moved, nil
}
