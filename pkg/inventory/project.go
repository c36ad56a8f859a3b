package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// SQLiteFile is the inventory file inside a project directory.
const SQLiteFile = "lci/databases.db"

// Project is an open project: one sqlite file plus three metadata stores.
type Project struct {
	Name string
	Dir  string

	Databases *Metadata[model.DatabaseMeta]
	Methods   *Metadata[model.MethodMeta]
	Setups    *Metadata[model.CalculationSetup]

	mgr  *Manager
	db   *sql.DB
	path string
}

func openProject(m *Manager, name, dir string) (*Project, error) {
	path := filepath.Join(dir, SQLiteFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lci dir: %w", err)
	}
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	p := &Project{Name: name, Dir: dir, mgr: m, db: db, path: path}
	if p.Databases, err = openMetadata[model.DatabaseMeta]("databases", filepath.Join(dir, "databases.json"), m.Classes.Databases); err != nil {
		db.Close()
		return nil, err
	}
	if p.Methods, err = openMetadata[model.MethodMeta]("methods", filepath.Join(dir, "methods.json"), m.Classes.Methods); err != nil {
		db.Close()
		return nil, err
	}
	if p.Setups, err = openMetadata[model.CalculationSetup]("setups", filepath.Join(dir, "setups.json"), m.Classes.Setups); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// DSN returns the read-write data source name for an inventory file.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// ReadOnlyDSN returns a read-only data source name for an inventory file.
func ReadOnlyDSN(path string) string {
	return fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
}

// SQLitePath returns the inventory file path.
func (p *Project) SQLitePath() string { return p.path }

// Manager returns the owning manager.
func (p *Project) Manager() *Manager { return p.mgr }

// DB returns the shared connection pool.
func (p *Project) DB() *sql.DB { return p.db }

// Checkpoint folds the WAL back into the main file so the directory can be
// copied or archived.
func (p *Project) Checkpoint(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Reload rereads the metadata stores from disk. It reports whether any of
// them changed.
func (p *Project) Reload() (bool, error) {
	var changed bool
	for _, reload := range []func() (bool, error){p.Databases.Reload, p.Methods.Reload, p.Setups.Reload} {
		c, err := reload()
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

// Close closes the connection pool.
func (p *Project) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Project) String() string { return "Project " + p.Name }

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the connection a call with ctx must use: the worker's dedicated
// connection when ctx carries a ConnScope, the shared pool otherwise.
func (p *Project) q(ctx context.Context) (querier, error) {
	if scope := ScopeFrom(ctx); scope != nil {
		return scope.conn(ctx, p)
	}
	return p.db, nil
}

func (p *Project) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	var tx *sql.Tx
	if scope := ScopeFrom(ctx); scope != nil {
		conn, cerr := scope.conn(ctx, p)
		if cerr != nil {
			return cerr
		}
		tx, err = conn.BeginTx(ctx, nil)
	} else {
		tx, err = p.db.BeginTx(ctx, nil)
	}
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
