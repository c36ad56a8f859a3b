package datasource

import (
	"context"
)

// ReadPrimary opens path, loads the primary rows of the given databases (all
// databases if none) and closes the file.
func ReadPrimary(ctx context.Context, path string, databases ...string) ([]PrimaryRow, error) {
	r, err := NewSQLiteReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.LoadPrimary(ctx, databases...)
}

// ReadData opens path, loads the data blobs of one database and closes the
// file. It is the read step of the secondary load.
func ReadData(ctx context.Context, path, database string) ([]DataRow, error) {
	r, err := NewSQLiteReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.LoadData(ctx, database)
}
