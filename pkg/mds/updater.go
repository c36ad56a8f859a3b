package mds

import (
	"context"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/internal/datasource"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

// Updater translates bus events into mirror edits.
type Updater struct {
	store *Store
	conns []*signals.Connection
}

// NewUpdater returns an updater for store. Call Bind to start it.
func NewUpdater(store *Store) *Updater {
	return &Updater{store: store}
}

// Bind subscribes the updater to bus.
func (u *Updater) Bind(bus *signals.Bus) {
	u.Unbind()
	node, db, meta := bus.Node(), bus.Database(), bus.Meta()
	u.conns = append(u.conns,
		node.Changed.Connect(func(c signals.NodeChange) { u.NodeChanged(c.New) }),
		node.Deleted.Connect(func(n *model.Node) { u.NodeDeleted(n.Key()) }),
		node.CodeChange.Connect(u.nodeMoved),
		node.DatabaseChange.Connect(u.nodeMoved),
		db.Written.Connect(u.reload),
		db.Reset.Connect(u.reload),
		db.Deleted.Connect(func(string) { u.sync() }),
		meta.DatabasesChanged.Connect(func(signals.MetaChange[model.DatabaseMeta]) { u.sync() }),
	)
}

// Unbind disconnects the updater.
func (u *Updater) Unbind() {
	for _, c := range u.conns {
		c.Disconnect()
	}
	u.conns = nil
}

// NodeChanged mirrors the new state of a node: an add if the row is new, an
// update if it differs, nothing otherwise.
func (u *Updater) NodeChanged(n *model.Node) {
	if n == nil {
		return
	}
	defer metrics.Timer(metrics.MDSUpdate)()
	u.store.Upsert(RowFromNode(n))
}

// NodeDeleted drops a row. An absent row is a no-op.
func (u *Updater) NodeDeleted(key model.NodeKey) {
	defer metrics.Timer(metrics.MDSUpdate)()
	u.store.Remove(key)
}

func (u *Updater) nodeMoved(m signals.NodeMove) {
	if m.Old != nil {
		u.NodeDeleted(m.Old.Key())
	}
	u.NodeChanged(m.New)
}

func (u *Updater) reload(name string) {
	if err := u.store.Load(context.Background(), name); err != nil {
		u.store.logger.Error("mds: reload failed", "database", name, "err", err)
	}
}

func (u *Updater) sync() {
	if err := u.store.SyncDatabases(context.Background()); err != nil {
		u.store.logger.Error("mds: database sync failed", "err", err)
	}
}

// Verify compares the primary columns of the mirror with the sqlite file.
func (s *Store) Verify(ctx context.Context) (datasource.MirrorDiff, error) {
	if s.src == nil {
		return datasource.MirrorDiff{}, ErrNoSource
	}
	store, err := datasource.ReadPrimary(ctx, s.path)
	if err != nil {
		return datasource.MirrorDiff{}, err
	}
	mirror := make([]datasource.PrimaryRow, 0, s.frame.Len())
	for _, r := range s.frame.rows {
		mirror = append(mirror, datasource.PrimaryRow{
			ID: r.ID, Database: r.Database, Code: r.Code,
			Location: r.Location, Name: r.Name, Product: r.Product, Type: r.Type,
		})
	}
	return datasource.DiffPrimary(mirror, store, 0), nil
}
