// Package datasource reads a project's sqlite inventory directly, bypassing
// the inventory store. The metadata mirror uses it for bulk loads, both in
// process and in the mds-worker child.
package datasource

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Source describes a project sqlite file.
type Source struct {
	// Path is the absolute path to the sqlite file
	Path string `json:"path"`
	// ModTime is the last modification time of the file
	ModTime time.Time `json:"mod_time"`
	// Size is the file size in bytes
	Size int64 `json:"size"`
	// Valid indicates whether the source passed validation
	Valid bool `json:"valid"`
	// ValidationError describes why validation failed (if Valid is false)
	ValidationError string `json:"validation_error,omitempty"`
	// NodeCount is the number of activities (set during validation)
	NodeCount int `json:"node_count"`
}

// String returns a human-readable description of the source
func (s Source) String() string {
	status := "valid"
	if !s.Valid {
		status = fmt.Sprintf("invalid: %s", s.ValidationError)
	}
	return fmt.Sprintf("%s (mod=%s, nodes=%d, %s)",
		s.Path, s.ModTime.Format(time.RFC3339), s.NodeCount, status)
}

// Inspect stats path. The result is not validated.
func Inspect(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{Path: path}, err
	}
	return Source{Path: path, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// Validate opens the source read-only and checks that the activity table can
// be queried. It sets Valid, ValidationError and NodeCount.
func Validate(ctx context.Context, s *Source) error {
	r, err := NewSQLiteReader(s.Path)
	if err != nil {
		s.Valid, s.ValidationError = false, err.Error()
		return err
	}
	defer r.Close()
	n, err := r.CountNodes(ctx, "")
	if err != nil {
		s.Valid, s.ValidationError = false, err.Error()
		return fmt.Errorf("validate %s: %w", s.Path, err)
	}
	s.Valid, s.ValidationError, s.NodeCount = true, "", n
	return nil
}

// Changed reports whether the file at s.Path differs in size or
// modification time from s.
func (s Source) Changed() bool {
	cur, err := Inspect(s.Path)
	if err != nil {
		return true
	}
	return !cur.ModTime.Equal(s.ModTime) || cur.Size != s.Size
}
