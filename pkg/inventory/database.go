package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/progress"
)

// DatabaseNames returns the registered databases, sorted.
func (p *Project) DatabaseNames() []string { return p.Databases.Keys() }

// Database returns the metadata of a registered database.
func (p *Project) Database(name string) (model.DatabaseMeta, bool) {
	meta, ok := p.Databases.Get(name)
	if ok {
		meta.Name = name
	}
	return meta, ok
}

// RegisterDatabase adds an empty database and flushes the metadata.
func (p *Project) RegisterDatabase(ctx context.Context, name string, meta model.DatabaseMeta) error {
	if strings.TrimSpace(name) == "" {
		return model.NewDomainError(model.KindInvalid, "empty database name")
	}
	if p.Databases.Contains(name) {
		return model.NewDomainError(model.KindNameExists, "database %q already exists", name)
	}
	if meta.Backend == "" {
		meta.Backend = model.BackendSQLite
	}
	if meta.Depends == nil {
		meta.Depends = []string{}
	}
	meta.Name = ""
	meta.Modified = time.Now().UTC()
	p.Databases.Set(name, meta)
	return p.Databases.Flush(ctx)
}

// WriteDatabase replaces the content of a database in one transaction and
// fires DatabaseWritten. The database is registered if needed.
func (p *Project) WriteDatabase(ctx context.Context, name string, nodes []*model.Node, edges []*model.Edge) error {
	if err := p.mgr.checkWritable(name); err != nil {
		return err
	}
	if !p.Databases.Contains(name) {
		if err := p.RegisterDatabase(ctx, name, model.DatabaseMeta{}); err != nil {
			return err
		}
	}
	local := make(map[model.NodeKey]bool, len(nodes))
	for _, n := range nodes {
		if n.Database != name {
			return model.NewDomainError(model.KindInvalid, "node %s does not belong to %q", n.Key(), name)
		}
		if n.Code == "" {
			return model.NewDomainError(model.KindInvalid, "node %q has no code", n.Name)
		}
		local[n.Key()] = true
	}

	bar := progress.New(ctx, "Writing activities to SQLite3 database", len(nodes)+len(edges))
	depends := map[string]bool{}
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM exchangedataset WHERE output_database = ?`, name); err != nil {
			return fmt.Errorf("clear edges: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM activitydataset WHERE database = ?`, name); err != nil {
			return fmt.Errorf("clear nodes: %w", err)
		}
		for _, n := range nodes {
			if err := insertNode(ctx, tx, n); err != nil {
				return err
			}
			bar.Add(1)
		}
		for _, e := range edges {
			if e.Output.Database != name {
				return model.NewDomainError(model.KindInvalid, "edge output %s outside %q", e.Output, name)
			}
			if !local[e.Input] {
				ok, err := nodeExists(ctx, tx, e.Input)
				if err != nil {
					return err
				}
				if !ok {
					return model.NotFound("node", e.Input.String())
				}
			}
			if e.Input.Database != name {
				depends[e.Input.Database] = true
			}
			e.ID = 0
			if err := insertEdge(ctx, tx, e); err != nil {
				return err
			}
			bar.Add(1)
		}
		return nil
	})
	if err != nil {
		return err
	}

	meta, _ := p.Databases.Get(name)
	meta.Number = len(nodes)
	meta.Modified = time.Now().UTC()
	meta.Depends = sortedKeys(depends)
	p.Databases.Set(name, meta)
	if err := p.Databases.Flush(ctx); err != nil {
		return err
	}
	p.mgr.logger.Info("database written", "database", name, "nodes", len(nodes), "edges", len(edges))
	p.mgr.Hooks.DatabaseWritten.fire(DatabaseEvent{Ctx: ctx, Name: name})
	return nil
}

// DeleteDatabase removes a database with its nodes, every edge touching them,
// its database parameters and the activity parameters of its nodes.
func (p *Project) DeleteDatabase(ctx context.Context, name string) error {
	if !p.Databases.Contains(name) {
		return model.NotFound("database", name)
	}
	if err := p.mgr.checkWritable(name); err != nil {
		return err
	}
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM exchangedataset WHERE output_database = ?1 OR input_database = ?1`,
			`DELETE FROM activitydataset WHERE database = ?1`,
			`DELETE FROM parameters WHERE (kind = 'database' AND scope = ?1) OR node_database = ?1`,
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s, name); err != nil {
				return fmt.Errorf("delete database %q: %w", name, err)
			}
		}
		return dropEmptyGroups(ctx, tx)
	})
	if err != nil {
		return err
	}
	p.Databases.Delete(name)
	if err := p.Databases.Flush(ctx); err != nil {
		return err
	}
	p.mgr.logger.Info("database deleted", "database", name)
	p.mgr.Hooks.DatabaseDeleted.fire(DatabaseEvent{Ctx: ctx, Name: name})
	return nil
}

// ResetDatabase empties a database but keeps it registered.
func (p *Project) ResetDatabase(ctx context.Context, name string) error {
	if !p.Databases.Contains(name) {
		return model.NotFound("database", name)
	}
	if err := p.mgr.checkWritable(name); err != nil {
		return err
	}
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM exchangedataset WHERE output_database = ?`, name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM activitydataset WHERE database = ?`, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("reset database %q: %w", name, err)
	}
	meta, _ := p.Databases.Get(name)
	meta.Number = 0
	meta.Depends = []string{}
	meta.Modified = time.Now().UTC()
	p.Databases.Set(name, meta)
	if err := p.Databases.Flush(ctx); err != nil {
		return err
	}
	p.mgr.Hooks.DatabaseReset.fire(DatabaseEvent{Ctx: ctx, Name: name})
	return nil
}

// CopyDatabase duplicates src into a new database dst, relinking internal
// edges to the copy.
func (p *Project) CopyDatabase(ctx context.Context, src, dst string) error {
	meta, ok := p.Database(src)
	if !ok {
		return model.NotFound("database", src)
	}
	if p.Databases.Contains(dst) {
		return model.NewDomainError(model.KindNameExists, "database %q already exists", dst)
	}
	nodes, err := p.Nodes(ctx, src)
	if err != nil {
		return err
	}
	edges, err := p.DatabaseEdges(ctx, src)
	if err != nil {
		return err
	}
	bar := progress.New(ctx, "Copying activities", len(nodes))
	for _, n := range nodes {
		n.ID = 0
		n.Database = dst
		bar.Add(1)
	}
	for _, e := range edges {
		if e.Input.Database == src {
			e.Input.Database = dst
		}
		e.Output.Database = dst
	}
	copied := meta.Clone()
	copied.Name = ""
	if err := p.RegisterDatabase(ctx, dst, copied); err != nil {
		return err
	}
	return p.WriteDatabase(ctx, dst, nodes, edges)
}

// RecordCount returns the number of nodes stored for a database.
func (p *Project) RecordCount(ctx context.Context, name string) (int, error) {
	q, err := p.q(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM activitydataset WHERE database = ?`, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %q: %w", name, err)
	}
	return n, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
