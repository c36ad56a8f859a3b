package mds

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/internal/datasource"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// ChildCommand is the subcommand a ProcessRunner invokes.
const ChildCommand = "mds-worker"

// ChildEnv, when set to 1, makes a test binary behave as the mds-worker
// child; see ChildMain.
const ChildEnv = "ABCORE_MDS_CHILD"

// SecondaryRecord is one row of a secondary load.
type SecondaryRecord struct {
	Database string `json:"database"`
	Code     string `json:"code"`
	Secondary
}

// Key returns the node key of the record.
func (r SecondaryRecord) Key() model.NodeKey {
	return model.NodeKey{Database: r.Database, Code: r.Code}
}

// SecondaryRunner loads the secondary columns of one database.
type SecondaryRunner interface {
	Run(ctx context.Context, sqlitePath, database string) ([]SecondaryRecord, error)
}

// DecodeSecondary reads the data blobs of one database and projects each to
// the secondary columns. A blob that does not decode fails the whole
// database.
func DecodeSecondary(ctx context.Context, sqlitePath, database string) ([]SecondaryRecord, error) {
	rows, err := datasource.ReadData(ctx, sqlitePath, database)
	if err != nil {
		return nil, err
	}
	out := make([]SecondaryRecord, 0, len(rows))
	for _, row := range rows {
		var n model.Node
		if err := json.Unmarshal(row.Data, &n); err != nil {
			return nil, fmt.Errorf("decode %s|%s: %w", row.Database, row.Code, err)
		}
		out = append(out, SecondaryRecord{Database: row.Database, Code: row.Code, Secondary: SecondaryOf(&n)})
	}
	return out, nil
}

// InProcessRunner decodes on a goroutine of the current process.
type InProcessRunner struct{}

func (InProcessRunner) Run(ctx context.Context, sqlitePath, database string) ([]SecondaryRecord, error) {
	return DecodeSecondary(ctx, sqlitePath, database)
}

// WriteSecondary is the child side: decode one database and stream the
// records to w, one JSON object per line.
func WriteSecondary(ctx context.Context, w io.Writer, sqlitePath, database string) error {
	recs, err := DecodeSecondary(ctx, sqlitePath, database)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadSecondary decodes a stream written by WriteSecondary.
func ReadSecondary(r io.Reader) ([]SecondaryRecord, error) {
	dec := json.NewDecoder(r)
	var out []SecondaryRecord
	for {
		var rec SecondaryRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode secondary stream: %w", err)
		}
		out = append(out, rec)
	}
}

// ProcessRunner runs each database in a child process:
// <Executable> mds-worker --sqlite P --database D.
type ProcessRunner struct {
	// Executable defaults to the running binary.
	Executable string
	// Env is appended to the parent environment.
	Env []string
}

// ChildError reports a failed child.
type ChildError struct {
	Database string
	Err      error
	Stderr   string
}

func (e *ChildError) Error() string {
	msg := fmt.Sprintf("mds-worker %s", e.Database)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ChildError) Unwrap() error { return e.Err }

func (p ProcessRunner) Run(ctx context.Context, sqlitePath, database string) ([]SecondaryRecord, error) {
	exe := p.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
	}
	cmd := exec.CommandContext(ctx, exe, ChildCommand, "--sqlite", sqlitePath, "--database", database)
	cmd.Env = append(os.Environ(), p.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	errText := strings.TrimSpace(stderr.String())
	if err != nil || errText != "" {
		return nil, &ChildError{Database: database, Err: err, Stderr: errText}
	}
	return ReadSecondary(&stdout)
}

// ChildMain runs the mds-worker child and returns its exit code. args may
// start with the subcommand name.
func ChildMain(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == ChildCommand {
		args = args[1:]
	}
	fs := flag.NewFlagSet(ChildCommand, flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("sqlite", "", "project sqlite file")
	database := fs.String("database", "", "database to decode")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" || *database == "" {
		fmt.Fprintln(stderr, "mds-worker: --sqlite and --database are required")
		return 2
	}
	if err := WriteSecondary(context.Background(), stdout, *path, *database); err != nil {
		fmt.Fprintln(stderr, "mds-worker:", err)
		return 1
	}
	return 0
}
