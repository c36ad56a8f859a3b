package mds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/internal/datasource"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// ErrNoSource is returned by loads on a store without a source.
var ErrNoSource = errors.New("mds: no source attached")

// LoadAll loads every database the source lists.
func (s *Store) LoadAll(ctx context.Context) error {
	if s.src == nil {
		return ErrNoSource
	}
	return s.Load(ctx, s.src.DatabaseNames()...)
}

// Load (re)loads the given databases. The primary columns are read on the
// calling goroutine, which must be the loop's: rows of those databases that
// are no longer in the file are removed, new rows log an add and changed rows
// an update. The secondary load is then dispatched to the runner and merged
// on the loop when all databases are done.
func (s *Store) Load(ctx context.Context, databases ...string) error {
	if s.src == nil {
		return ErrNoSource
	}
	s.setStatus(PhasePrimary, StatusLoading)
	if len(databases) == 0 {
		s.setStatus(PhasePrimary, StatusDone)
		return nil
	}

	stop := metrics.Timer(metrics.MDSPrimaryLoad)
	rows, err := datasource.ReadPrimary(ctx, s.path, databases...)
	stop()
	if err != nil {
		s.setStatus(PhasePrimary, StatusDone)
		return fmt.Errorf("mds: primary load: %w", err)
	}

	loaded := make(map[model.NodeKey]bool, len(rows))
	for _, pr := range rows {
		key := pr.Key()
		loaded[key] = true
		r, ok := s.frame.Get(key)
		if !ok {
			r = NewRow(key)
		}
		r.ID = pr.ID
		r.Location = pr.Location
		r.Name = pr.Name
		r.Product = pr.Product
		r.Type = pr.Type
		s.Upsert(r)
	}
	for _, db := range databases {
		for _, k := range s.DatabaseMetadata(db).Keys() {
			if !loaded[k] {
				s.Remove(k)
			}
		}
		s.known[db] = true
	}
	s.scheduleSync()
	s.logger.Debug("mds: primary loaded", "databases", databases, "rows", len(rows))
	s.setStatus(PhasePrimary, StatusDone)

	s.loadSecondary(databases)
	return nil
}

type secondaryResult struct {
	database string
	records  []SecondaryRecord
	err      error
}

func (s *Store) loadSecondary(databases []string) {
	s.dispatchSeq++
	path, ctx, gen, seq := s.path, s.ctx, s.generation, s.dispatchSeq
	runner, workers, logger := s.runner, s.workers, s.logger
	s.pendingSecondary++
	s.setStatus(PhaseSecondary, StatusLoading)

	go func() {
		start := time.Now()
		results := make([]secondaryResult, len(databases))
		var g errgroup.Group
		g.SetLimit(workers)
		for i, db := range databases {
			g.Go(func() error {
				recs, err := runner.Run(ctx, path, db)
				results[i] = secondaryResult{database: db, records: recs, err: err}
				// failures are isolated per database
				return nil
			})
		}
		_ = g.Wait()
		metrics.MDSSecondaryLoad.Record(time.Since(start))
		logger.Debug("mds: secondary workers finished", "databases", len(databases), "elapsed", time.Since(start))
		s.loop.Post(func() { s.mergeSecondary(gen, seq, path, results) })
	}()
}

func (s *Store) mergeSecondary(gen, seq int, path string, results []secondaryResult) {
	if gen != s.generation || path != s.path {
		s.logger.Info("mds: discarding stale secondary load", "path", path)
		return
	}
	defer metrics.Timer(metrics.MDSMerge)()

	for _, res := range results {
		if res.err != nil {
			s.logger.Error("mds: secondary load failed", "database", res.database, "err", res.err)
			continue
		}
		dropped := 0
		for _, rec := range res.records {
			r, ok := s.frame.Get(rec.Key())
			if !ok {
				dropped++
				continue
			}
			if t, edited := s.touched[r.Key]; edited && t >= seq {
				continue
			}
			r.SetSecondary(rec.Secondary)
			s.upsert(r)
		}
		if dropped > 0 {
			s.logger.Debug("mds: dropped rows missing from primary", "database", res.database, "rows", dropped)
		}
	}
	s.pendingSecondary--
	if s.pendingSecondary <= 0 {
		s.pendingSecondary = 0
		s.touched = make(map[model.NodeKey]int)
		s.setStatus(PhaseSecondary, StatusDone)
	}
	s.scheduleSync()
}
