package mds

import (
	"context"
	"log/slog"
	"runtime"
	"sort"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

// MutationKind is the change a mutation records.
type MutationKind int

const (
	MutationAdd MutationKind = iota
	MutationUpdate
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationAdd:
		return "add"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	}
	return "unknown"
}

// Mutation is one entry of the mutation log.
type Mutation struct {
	Key  model.NodeKey
	Kind MutationKind
}

// Status is the state of a load phase.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusDone:
		return "done"
	}
	return "unknown"
}

// Phase names a load phase.
type Phase string

const (
	PhasePrimary   Phase = "primary"
	PhaseSecondary Phase = "secondary"
)

// StatusChange is emitted on Store.StatusChanged.
type StatusChange struct {
	Phase  Phase
	Status Status
}

// Source is what the store mirrors: a project's sqlite file and the
// databases its metadata lists.
type Source interface {
	SQLitePath() string
	DatabaseNames() []string
}

// Store is the metadata mirror. It is owned by the loop goroutine; only the
// secondary workers run elsewhere and they hand results back through the
// loop.
type Store struct {
	loop    *eventloop.Loop
	logger  *slog.Logger
	runner  SecondaryRunner
	workers int

	src    Source
	path   string
	ctx    context.Context
	cancel context.CancelFunc

	frame      Frame
	known      map[string]bool
	categories map[string]*Category
	mutations  []Mutation

	syncScheduled bool

	primary          Status
	secondary        Status
	pendingSecondary int
	generation       int
	dispatchSeq      int
	touched          map[model.NodeKey]int

	// Synced delivers the mutations drained at each sync point.
	Synced *signals.Signal[[]Mutation]
	// StatusChanged reports primary and secondary load transitions.
	StatusChanged *signals.Signal[StatusChange]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRunner sets how secondary loads run. The default is InProcessRunner.
func WithRunner(r SecondaryRunner) Option {
	return func(s *Store) { s.runner = r }
}

// WithWorkers bounds the number of concurrent secondary loads.
func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewStore returns an empty store.
func NewStore(loop *eventloop.Loop, opts ...Option) *Store {
	s := &Store{
		loop:          loop,
		logger:        slog.Default(),
		runner:        InProcessRunner{},
		workers:       runtime.NumCPU(),
		Synced:        signals.New[[]Mutation]("mds.synced"),
		StatusChanged: signals.New[StatusChange]("mds.status_changed"),
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.clear()
	return s
}

func (s *Store) clear() {
	s.frame = NewFrame(nil)
	s.known = make(map[string]bool)
	s.categories = make(map[string]*Category, len(categoricalColumns))
	for _, c := range categoricalColumns {
		s.categories[c] = &Category{}
	}
	s.mutations = nil
	s.pendingSecondary = 0
	s.touched = make(map[model.NodeKey]int)
	s.generation++
}

// Attach resets the store and makes src the mirrored source. Loads still in
// flight for the previous source are cancelled.
func (s *Store) Attach(src Source) {
	s.src = src
	s.path = ""
	if src != nil {
		s.path = src.SQLitePath()
	}
	s.Reset()
}

// Reset empties the mirror including the category dictionaries. It runs on
// project change only.
func (s *Store) Reset() {
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.clear()
	s.setStatus(PhasePrimary, StatusIdle)
	s.setStatus(PhaseSecondary, StatusIdle)
}

// Close cancels in-flight loads.
func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// SQLitePath returns the path of the attached source.
func (s *Store) SQLitePath() string { return s.path }

// Frame returns the mirror. The result must not be modified.
func (s *Store) Frame() Frame { return s.frame }

// SetFrame replaces the mirror with f, canonicalised: the index is rebuilt,
// categories are extended and Synced fires on the next idle tick. No
// mutations are logged.
func (s *Store) SetFrame(f Frame) {
	rows := f.rows
	next := NewFrame(nil)
	for _, r := range rows {
		s.extendCategories(r)
		next.Set(r)
	}
	s.frame = next
	for _, d := range next.Databases() {
		s.known[d] = true
	}
	s.scheduleSync()
}

// Get returns the row at key.
func (s *Store) Get(key model.NodeKey) (Row, bool) { return s.frame.Get(key) }

// Len returns the number of rows.
func (s *Store) Len() int { return s.frame.Len() }

// Metadata returns one record per key present in the mirror, restricted to
// columns (all when none). Missing keys are skipped.
func (s *Store) Metadata(keys []model.NodeKey, columns ...string) []Record {
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		i, ok := s.frame.index[k]
		if !ok {
			continue
		}
		out = append(out, s.frame.rows[i].Record(columns...))
	}
	return out
}

// DatabaseMetadata returns the rows of one database. The frame is empty when
// the database is not mirrored.
func (s *Store) DatabaseMetadata(name string) Frame {
	return s.frame.Filter(func(r Row) bool { return r.Database == name })
}

// Databases returns the mirrored databases, including empty ones that have
// been loaded.
func (s *Store) Databases() []string {
	out := make([]string, 0, len(s.known))
	for d := range s.known {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Categories returns the dictionary of a categorical column.
func (s *Store) Categories(column string) []string {
	c, ok := s.categories[column]
	if !ok {
		return nil
	}
	return c.Values()
}

// RegisterMutation appends to the mutation log and schedules a sync.
func (s *Store) RegisterMutation(key model.NodeKey, kind MutationKind) {
	s.mutations = append(s.mutations, Mutation{Key: key, Kind: kind})
	s.scheduleSync()
}

// Mutations returns the log accumulated since the last sync point.
func (s *Store) Mutations() []Mutation {
	return append([]Mutation(nil), s.mutations...)
}

func (s *Store) scheduleSync() {
	if s.syncScheduled {
		return
	}
	s.syncScheduled = true
	s.loop.OnIdle(s.sync)
}

func (s *Store) sync() {
	s.syncScheduled = false
	batch := s.mutations
	s.mutations = nil
	s.Synced.Emit(batch)
}

// Upsert writes r into the mirror. It logs an add for a new key, an update
// for a changed row and nothing for an identical one.
func (s *Store) Upsert(r Row) (MutationKind, bool) {
	s.touch(r)
	return s.upsert(r)
}

// touch records that a row was edited while secondary loads may be in
// flight, so their older results do not overwrite it.
func (s *Store) touch(r Row) {
	key := r.Key
	if key.IsZero() {
		key = model.NodeKey{Database: r.Database, Code: r.Code}
	}
	if s.pendingSecondary > 0 {
		s.touched[key] = s.dispatchSeq
	}
}

func (s *Store) upsert(r Row) (MutationKind, bool) {
	if r.Key.IsZero() {
		r.Key = model.NodeKey{Database: r.Database, Code: r.Code}
	}
	r.Database, r.Code = r.Key.Database, r.Key.Code
	old, exists := s.frame.Get(r.Key)
	if exists && old.Equal(r) {
		return 0, false
	}
	s.extendCategories(r)
	s.frame.Set(r)
	s.known[r.Database] = true
	kind := MutationAdd
	if exists {
		kind = MutationUpdate
	}
	s.RegisterMutation(r.Key, kind)
	return kind, true
}

// Remove drops the row at key and logs a delete. An absent row is a no-op.
func (s *Store) Remove(key model.NodeKey) bool {
	s.touch(Row{Key: key})
	if !s.frame.Delete(key) {
		return false
	}
	s.RegisterMutation(key, MutationDelete)
	return true
}

// dropDatabase removes a database from the mirror and logs a delete per row.
func (s *Store) dropDatabase(name string) int {
	gone := s.frame.DeleteDatabase(name)
	delete(s.known, name)
	for _, k := range gone {
		s.mutations = append(s.mutations, Mutation{Key: k, Kind: MutationDelete})
	}
	s.scheduleSync()
	return len(gone)
}

func (s *Store) extendCategories(r Row) {
	for _, col := range categoricalColumns {
		s.categories[col].Extend(categoryValue(r, col))
	}
}

// SyncDatabases reconciles the mirror with the databases the source lists:
// rows of vanished databases are dropped and new databases are loaded. One
// Synced emission covers the whole pass.
func (s *Store) SyncDatabases(ctx context.Context) error {
	if s.src == nil {
		return nil
	}
	want := make(map[string]bool)
	for _, d := range s.src.DatabaseNames() {
		want[d] = true
	}
	for _, d := range s.Databases() {
		if !want[d] {
			n := s.dropDatabase(d)
			s.logger.Info("mds: database dropped", "database", d, "rows", n)
		}
	}
	var fresh []string
	for d := range want {
		if !s.known[d] {
			fresh = append(fresh, d)
		}
	}
	sort.Strings(fresh)
	s.scheduleSync()
	if len(fresh) == 0 {
		return nil
	}
	return s.Load(ctx, fresh...)
}

func (s *Store) setStatus(p Phase, st Status) {
	cur := &s.primary
	if p == PhaseSecondary {
		cur = &s.secondary
	}
	if *cur == st {
		return
	}
	*cur = st
	s.StatusChanged.Emit(StatusChange{Phase: p, Status: st})
}

// PrimaryStatus returns the state of the primary load.
func (s *Store) PrimaryStatus() Status { return s.primary }

// SecondaryStatus returns the state of the secondary load.
func (s *Store) SecondaryStatus() Status { return s.secondary }
