package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
)

// Metadata is a JSON-file backed map of records: databases.json,
// methods.json or setups.json. Changes are staged in memory until Flush.
type Metadata[T any] struct {
	name  string
	path  string
	class *patch.Class

	mu        sync.RWMutex
	data      map[string]T
	persisted map[string]T
}

func openMetadata[T any](name, path string, class *patch.Class) (*Metadata[T], error) {
	md := &Metadata[T]{
		name:      name,
		path:      path,
		class:     class,
		data:      make(map[string]T),
		persisted: make(map[string]T),
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return md, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &md.data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	md.persisted = md.snapshotLocked()
	return md, nil
}

// Name returns the store name.
func (m *Metadata[T]) Name() string { return m.name }

// Path returns the backing file.
func (m *Metadata[T]) Path() string { return m.path }

// Get returns the record for key.
func (m *Metadata[T]) Get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Contains reports whether key exists.
func (m *Metadata[T]) Contains(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stages a record.
func (m *Metadata[T]) Set(key string, v T) {
	m.mu.Lock()
	m.data[key] = v
	m.mu.Unlock()
}

// Delete stages a removal.
func (m *Metadata[T]) Delete(key string) {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
}

// Keys returns the staged keys, sorted.
func (m *Metadata[T]) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of staged records.
func (m *Metadata[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Snapshot returns a copy of the staged records.
func (m *Metadata[T]) Snapshot() map[string]T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Metadata[T]) snapshotLocked() map[string]T {
	out := make(map[string]T, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// Flush persists the staged records through the class's flush attribute.
func (m *Metadata[T]) Flush(ctx context.Context) error {
	m.mu.RLock()
	old := make(map[string]T, len(m.persisted))
	for k, v := range m.persisted {
		old[k] = v
	}
	m.mu.RUnlock()

	flush, ok := patch.Lookup[FlushFunc[T]](m.class, AttrFlush)
	if !ok {
		return writeMetadata(ctx, m, old)
	}
	return flush(ctx, m, old)
}

// writeMetadata is the unpatched flush: write the file atomically and remember
// what was written.
func writeMetadata[T any](_ context.Context, m *Metadata[T], _ map[string]T) error {
	snap := m.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.name, err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("create %s dir: %w", m.name, err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", m.name, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace %s: %w", m.name, err)
	}
	m.mu.Lock()
	m.persisted = snap
	m.mu.Unlock()
	return nil
}

// Reload rereads the backing file after another process rewrote it. It
// reports whether anything changed. Staged records that were not flushed
// yet are kept, and the file is ignored in that case.
func (m *Metadata[T]) Reload() (bool, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", m.name, err)
	}
	disk := make(map[string]T)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &disk); err != nil {
			return false, fmt.Errorf("decode %s: %w", m.name, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	clean, err := sameRecords(m.data, m.persisted)
	if err != nil || !clean {
		return false, err
	}
	same, err := sameRecords(disk, m.persisted)
	if err != nil || same {
		return false, err
	}
	m.data = disk
	m.persisted = m.snapshotLocked()
	return true, nil
}

func sameRecords[T any](a, b map[string]T) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return string(ja) == string(jb), nil
}
