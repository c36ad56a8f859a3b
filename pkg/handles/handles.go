// Package handles provides virtual handles: per-entity changed/deleted
// channels that exist only while someone listens to them.
//
// A handle is created by GetOrCreate. When its last subscriber disconnects
// it is removed from the registry at once and destroyed on the next idle
// tick; a handle nobody subscribes to is collected on the idle tick after
// its creation. All methods must be called from the loop goroutine.
package handles

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

// Handle carries the channels of one entity.
type Handle struct {
	id       model.Identity
	database string // set for node handles
	reg      *Registry

	Changed *signals.Signal[model.Entity]
	Deleted *signals.Signal[model.Entity]

	destroyed bool
}

// Identity returns the identity the handle is registered under.
func (h *Handle) Identity() model.Identity { return h.id }

// Subscribers returns the number of slots on both channels.
func (h *Handle) Subscribers() int {
	return h.Changed.Count() + h.Deleted.Count()
}

// Destroyed reports whether the handle has been torn down. A destroyed handle
// never fires again.
func (h *Handle) Destroyed() bool { return h.destroyed }

// OnChanged subscribes fn to the changed channel.
func (h *Handle) OnChanged(fn func(model.Entity)) *signals.Connection {
	return h.Changed.Connect(fn)
}

// OnDeleted subscribes fn to the deleted channel.
func (h *Handle) OnDeleted(fn func(model.Entity)) *signals.Connection {
	return h.Deleted.Connect(fn)
}

// Subscription groups the connections made by Registry.Connect.
type Subscription struct {
	Handle *Handle
	conns  []*signals.Connection
}

// Disconnect removes every slot of the subscription.
func (s *Subscription) Disconnect() {
	for _, c := range s.conns {
		c.Disconnect()
	}
}

type emitKey struct {
	sig *signals.Signal[model.Entity]
	id  model.Identity
}

type emission struct {
	key    emitKey
	entity model.Entity
}

// Registry maps identities to live handles.
type Registry struct {
	loop   *eventloop.Loop
	logger *slog.Logger

	mu      sync.Mutex
	handles map[model.Identity]*Handle

	pending   []*emission
	queued    map[emitKey]*emission
	scheduled bool

	conns []*signals.Connection
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns an empty registry whose idle work runs on loop.
func NewRegistry(loop *eventloop.Loop, opts ...Option) *Registry {
	r := &Registry{
		loop:    loop,
		logger:  slog.Default(),
		handles: make(map[model.Identity]*Handle),
		queued:  make(map[emitKey]*emission),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// GetOrCreate returns the live handle for e's identity, creating it if
// needed.
func (r *Registry) GetOrCreate(e model.Entity) *Handle {
	id := e.Identity()
	r.mu.Lock()
	if h, ok := r.handles[id]; ok {
		r.mu.Unlock()
		metrics.HandleRegistry.Hit()
		return h
	}
	h := &Handle{
		id:      id,
		reg:     r,
		Changed: signals.New[model.Entity]("handle.changed " + string(id)),
		Deleted: signals.New[model.Entity]("handle.deleted " + string(id)),
	}
	if n, ok := e.(*model.Node); ok {
		h.database = n.Database
	} else if db, ok := nodeDatabase(id); ok {
		h.database = db
	}
	r.handles[id] = h
	r.mu.Unlock()
	metrics.HandleRegistry.Miss()

	h.Changed.OnCount(func(int) { r.countChanged(h) })
	h.Deleted.OnCount(func(int) { r.countChanged(h) })
	r.loop.OnIdle(func() { r.collect(h) })
	return h
}

// Connect gets or creates the handle for e and subscribes the non-nil
// callbacks.
func (r *Registry) Connect(e model.Entity, changed, deleted func(model.Entity)) *Subscription {
	h := r.GetOrCreate(e)
	s := &Subscription{Handle: h}
	if changed != nil {
		s.conns = append(s.conns, h.OnChanged(changed))
	}
	if deleted != nil {
		s.conns = append(s.conns, h.OnDeleted(deleted))
	}
	return s
}

// Lookup returns the live handle for id without creating one.
func (r *Registry) Lookup(id model.Identity) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) countChanged(h *Handle) {
	if h.destroyed || h.Subscribers() > 0 {
		return
	}
	r.detach(h)
	r.loop.OnIdle(func() { r.destroy(h) })
}

// detach removes h from the map unless a newer handle took its place.
func (r *Registry) detach(h *Handle) {
	r.mu.Lock()
	if cur, ok := r.handles[h.id]; ok && cur == h {
		delete(r.handles, h.id)
	}
	r.mu.Unlock()
}

// collect destroys a handle that never got a subscriber.
func (r *Registry) collect(h *Handle) {
	if h.destroyed || h.Subscribers() > 0 {
		return
	}
	r.detach(h)
	r.destroy(h)
}

func (r *Registry) destroy(h *Handle) {
	if h.destroyed || h.Subscribers() > 0 {
		if !h.destroyed {
			// Resubscribed between detach and destroy: put it back unless
			// someone else already owns the identity.
			r.mu.Lock()
			if _, ok := r.handles[h.id]; !ok {
				r.handles[h.id] = h
			}
			r.mu.Unlock()
		}
		return
	}
	h.destroyed = true
	metrics.HandleRegistry.Evict(1)
}

// EmitLater queues e on sig for the next idle tick. Emissions with the same
// signal and identity coalesce into one, at the position of the first. A
// later payload replaces a bare model.Ref.
func (r *Registry) EmitLater(sig *signals.Signal[model.Entity], e model.Entity) {
	key := emitKey{sig: sig, id: e.Identity()}
	if q, ok := r.queued[key]; ok {
		if _, isRef := e.(model.Ref); !isRef {
			q.entity = e
		}
		return
	}
	em := &emission{key: key, entity: e}
	r.queued[key] = em
	r.pending = append(r.pending, em)
	if !r.scheduled {
		r.scheduled = true
		r.loop.OnIdle(r.flushPending)
	}
}

func (r *Registry) flushPending() {
	defer metrics.Timer(metrics.HandleFlush)()
	batch := r.pending
	r.pending = nil
	r.queued = make(map[emitKey]*emission)
	r.scheduled = false
	for _, em := range batch {
		em.key.sig.Emit(em.entity)
	}
}

// Pending returns the number of queued emissions.
func (r *Registry) Pending() int { return len(r.pending) }

// Flush destroys every handle and drops queued emissions. It runs on project
// change.
func (r *Registry) Flush() {
	r.mu.Lock()
	all := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		all = append(all, h)
	}
	r.handles = make(map[model.Identity]*Handle)
	r.mu.Unlock()

	r.pending = nil
	r.queued = make(map[emitKey]*emission)

	for _, h := range all {
		h.destroyed = true
		h.Changed.DisconnectAll()
		h.Deleted.DisconnectAll()
		metrics.HandleRegistry.Evict(1)
	}
	r.logger.Debug("handles: flushed", "count", len(all))
}

// nodeHandles returns the live node handles of a database.
func (r *Registry) nodeHandles(database string) []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Handle
	for _, h := range r.handles {
		if h.database == database {
			out = append(out, h)
		}
	}
	return out
}

var identityPrefixes = []string{"edge:", "method:", "param:", "db:", "cs:"}

func nodeDatabase(id model.Identity) (string, bool) {
	s := string(id)
	for _, p := range identityPrefixes {
		if strings.HasPrefix(s, p) {
			return "", false
		}
	}
	k, err := model.ParseNodeKey(s)
	if err != nil {
		return "", false
	}
	return k.Database, true
}
