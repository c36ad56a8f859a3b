// Package project moves whole projects in and out of the workbench as gzip
// tarballs. A tarball holds one top-level directory, named after the safe
// filename of the project, with a .project-name.json marker inside.
package project

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// MarkerFile names the project inside an exported tarball.
const MarkerFile = ".project-name.json"

// ErrUnsafePath is returned for tar entries that would land outside the
// project directory.
var ErrUnsafePath = errors.New("unsafe path in project archive")

type marker struct {
	Name string `json:"name"`
}

// Export writes project name as a gzip tarball to w. The current project is
// checkpointed first so the sqlite file is complete on disk.
func Export(ctx context.Context, m *inventory.Manager, name string, w io.Writer) error {
	if !m.Exists(name) {
		return model.NotFound("project", name)
	}
	if cur := m.Current(); cur != nil && cur.Name == name {
		if err := cur.Checkpoint(ctx); err != nil {
			return err
		}
	}
	src := m.Dir(name)
	top := model.SafeFilename(name)

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	mark, err := json.Marshal(marker{Name: name})
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: top + "/" + MarkerFile, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(mark))}); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if _, err := tw.Write(mark); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(src, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == MarkerFile || strings.HasSuffix(rel, "-wal") || strings.HasSuffix(rel, "-shm") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = top + "/" + rel
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("export project %q: %w", name, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("export project %q: %w", name, err)
	}
	return gz.Close()
}

// Import extracts a tarball written by Export into a new project called
// newName and registers it. It returns the name recorded in the archive.
func Import(ctx context.Context, m *inventory.Manager, r io.Reader, newName string) (string, error) {
	if strings.TrimSpace(newName) == "" {
		return "", model.NewDomainError(model.KindInvalid, "empty project name")
	}
	if m.Exists(newName) {
		return "", model.NewDomainError(model.KindNameExists, "project %q already exists", newName)
	}
	dst := filepath.Join(m.BaseDir(), model.SafeFilename(newName))
	if _, err := os.Stat(dst); err == nil {
		return "", model.NewDomainError(model.KindNameExists, "project directory %s already exists", filepath.Base(dst))
	}

	tmp, err := os.MkdirTemp(m.BaseDir(), ".import-")
	if err != nil {
		return "", fmt.Errorf("import project: %w", err)
	}
	defer os.RemoveAll(tmp)

	top, err := extract(ctx, r, tmp)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(tmp, top)
	var old marker
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		return "", fmt.Errorf("import project: archive has no %s", MarkerFile)
	}
	if err := json.Unmarshal(data, &old); err != nil {
		return "", fmt.Errorf("import project: bad marker: %w", err)
	}
	mark, err := json.Marshal(marker{Name: newName})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, MarkerFile), mark, 0o644); err != nil {
		return "", fmt.Errorf("import project: %w", err)
	}
	if err := os.Rename(dir, dst); err != nil {
		return "", fmt.Errorf("import project: %w", err)
	}
	if err := m.Register(ctx, newName); err != nil {
		return "", err
	}
	return old.Name, nil
}

// extract unpacks r below dir and returns the single top-level directory.
func extract(ctx context.Context, r io.Reader, dir string) (string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return "", fmt.Errorf("import project: %w", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)

	top := ""
	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("import project: %w", err)
		}
		name, err := cleanEntry(hdr.Name)
		if err != nil {
			return "", err
		}
		first, _, _ := strings.Cut(name, "/")
		if top == "" {
			top = first
		} else if first != top {
			return "", fmt.Errorf("import project: archive has more than one top-level directory (%q, %q)", top, first)
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return "", err
			}
			_, err = io.Copy(f, tr)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return "", fmt.Errorf("import project: %w", err)
			}
		default:
			return "", fmt.Errorf("%w: %s is not a file or directory", ErrUnsafePath, hdr.Name)
		}
	}
	if top == "" {
		return "", fmt.Errorf("import project: empty archive")
	}
	return top, nil
}

func cleanEntry(name string) (string, error) {
	if name == "" || path.IsAbs(name) || strings.Contains(name, `\`) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return clean, nil
}
