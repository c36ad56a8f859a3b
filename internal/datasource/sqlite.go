package datasource

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// SQLiteReader provides read-only access to a project's activity table.
type SQLiteReader struct {
	db   *sql.DB
	path string
}

// PrimaryRow is the projection of one activity onto its table columns.
type PrimaryRow struct {
	ID       int64
	Database string
	Code     string
	Location string
	Name     string
	Product  string
	Type     string
}

// Key returns the node key of the row.
func (r PrimaryRow) Key() model.NodeKey {
	return model.NodeKey{Database: r.Database, Code: r.Code}
}

// DataRow is one activity's opaque data blob.
type DataRow struct {
	Database string
	Code     string
	Data     []byte
}

// NewSQLiteReader opens the sqlite file at path read-only.
func NewSQLiteReader(path string) (*SQLiteReader, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set pragmas for read performance
	pragmas := []string{
		"PRAGMA cache_size = -64000",   // 64MB cache
		"PRAGMA mmap_size = 268435456", // 256MB mmap
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			// Non-fatal
			continue
		}
	}

	return &SQLiteReader{db: db, path: path}, nil
}

// Path returns the sqlite file the reader was opened on.
func (r *SQLiteReader) Path() string { return r.path }

// Close closes the database connection
func (r *SQLiteReader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadPrimary selects the primary columns of every activity, or of the
// given databases only.
func (r *SQLiteReader) LoadPrimary(ctx context.Context, databases ...string) ([]PrimaryRow, error) {
	query := `SELECT id, database, code, location, name, product, type FROM activitydataset`
	args := make([]any, 0, len(databases))
	if len(databases) > 0 {
		query += ` WHERE database IN (` + placeholders(len(databases)) + `)`
		for _, d := range databases {
			args = append(args, d)
		}
	}
	query += ` ORDER BY database, code`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("primary query failed: %w", err)
	}
	defer rows.Close()

	var out []PrimaryRow
	for rows.Next() {
		var row PrimaryRow
		var location, name, product, typ sql.NullString
		if err := rows.Scan(&row.ID, &row.Database, &row.Code, &location, &name, &product, &typ); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		row.Location = location.String
		row.Name = name.String
		row.Product = product.String
		row.Type = typ.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return out, nil
}

// LoadData returns the data blobs of one database.
func (r *SQLiteReader) LoadData(ctx context.Context, database string) ([]DataRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT database, code, data FROM activitydataset WHERE database = ? ORDER BY code`, database)
	if err != nil {
		return nil, fmt.Errorf("data query failed: %w", err)
	}
	defer rows.Close()

	var out []DataRow
	for rows.Next() {
		var row DataRow
		if err := rows.Scan(&row.Database, &row.Code, &row.Data); err != nil {
			return nil, fmt.Errorf("scan data: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data: %w", err)
	}
	return out, nil
}

// Databases returns the distinct database names present in the activity
// table.
func (r *SQLiteReader) Databases(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT database FROM activitydataset ORDER BY database`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountNodes returns the number of activities, optionally restricted to one
// database.
func (r *SQLiteReader) CountNodes(ctx context.Context, database string) (int, error) {
	var count int
	var err error
	if database == "" {
		err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activitydataset").Scan(&count)
	} else {
		err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activitydataset WHERE database = ?", database).Scan(&count)
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func placeholders(n int) string {
	b := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
