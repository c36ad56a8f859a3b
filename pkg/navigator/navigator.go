// Package navigator serves supply chain graphs of a calculation setup. Each
// traversal is cached by its key, so moving back to a functional unit,
// method or cutoff that was shown before redraws without solving.
package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/lca"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/traversal"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/worker"
)

// Navigator is bound to one calculation setup.
type Navigator struct {
	src    lca.Source
	setup  model.CalculationSetup
	cache  *Cache
	loop   *eventloop.Loop
	logger *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	sessions map[model.NodeKey]*lca.LCA

	runs  atomic.Int64
	conns []*signals.Connection

	// Rendered receives the graph JSON of every update, on the loop.
	Rendered *signals.Signal[[]byte]
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithLoop sets the loop that asynchronous updates merge on.
func WithLoop(l *eventloop.Loop) Option {
	return func(n *Navigator) { n.loop = l }
}

// WithLogger sets the navigator logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// New returns a navigator over setup. cache may be shared between
// navigators of the same setup.
func New(src lca.Source, setup model.CalculationSetup, cache *Cache, opts ...Option) *Navigator {
	n := &Navigator{
		src:      src,
		setup:    setup.Clone(),
		cache:    cache,
		logger:   slog.Default(),
		sessions: make(map[model.NodeKey]*lca.LCA),
		Rendered: signals.New[[]byte]("navigator.rendered"),
	}
	n.setup.Name = setup.Name
	for _, o := range opts {
		o(n)
	}
	return n
}

// Setup returns the calculation setup of the navigator.
func (n *Navigator) Setup() model.CalculationSetup { return n.setup }

// Cache returns the traversal cache.
func (n *Navigator) Cache() *Cache { return n.cache }

// SolverRuns returns the number of traversals computed so far.
func (n *Navigator) SolverRuns() int { return int(n.runs.Load()) }

// Update returns the graph JSON for k, traversing only on a cache miss.
// It must run on the loop goroutine.
func (n *Navigator) Update(ctx context.Context, k Key) ([]byte, error) {
	defer metrics.Timer(metrics.NavigatorRender)()
	if e, ok := n.cache.Get(k); ok {
		return n.publish(e.Result)
	}
	e, err := n.compute(ctx, k)
	if err != nil {
		return nil, err
	}
	n.cache.Add(k, e)
	return n.publish(e.Result)
}

// UpdateAsync serves hits at once and computes misses in a worker. The
// result is inserted and rendered on the loop. It returns the worker, or
// nil on a hit.
func (n *Navigator) UpdateAsync(ctx context.Context, k Key) (*worker.Worker, error) {
	if e, ok := n.cache.Get(k); ok {
		_, err := n.publish(e.Result)
		return nil, err
	}
	if n.loop == nil {
		return nil, fmt.Errorf("navigator: asynchronous update without a loop")
	}
	w := worker.New("navigator", func(ctx context.Context, _ ...any) error {
		e, err := n.compute(ctx, k)
		if err != nil {
			return err
		}
		n.loop.Post(func() {
			n.cache.Add(k, e)
			if _, err := n.publish(e.Result); err != nil {
				n.logger.Error("navigator: render failed", "key", k.String(), "err", err)
			}
		})
		return nil
	}, worker.WithLoop(n.loop), worker.WithLogger(n.logger))
	if err := w.Start(ctx, k); err != nil {
		return nil, err
	}
	return w, nil
}

// compute runs one traversal. Concurrent misses on the same key share it.
func (n *Navigator) compute(ctx context.Context, k Key) (Entry, error) {
	v, err, _ := n.group.Do(k.String(), func() (any, error) {
		fu, method, err := n.resolve(k)
		if err != nil {
			return nil, err
		}
		l, err := n.session(ctx, fu.Node)
		if err != nil {
			return nil, err
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		if err := l.SwitchMethod(ctx, method); err != nil {
			return nil, err
		}
		res, err := traversal.Traverse(l, fu.Node, fu.Amount, k.Settings())
		if err != nil {
			return nil, err
		}
		n.runs.Add(1)
		return Entry{Result: res, Databases: l.Databases(), Method: method}, nil
	})
	if err != nil {
		return Entry{}, err
	}
	e, ok := v.(Entry)
	if !ok {
		return Entry{}, fmt.Errorf("navigator: unexpected result type %T", v)
	}
	return e, nil
}

func (n *Navigator) resolve(k Key) (model.FunctionalUnit, model.MethodID, error) {
	if k.Demand < 0 || k.Demand >= len(n.setup.Inv) {
		return model.FunctionalUnit{}, nil, model.NewDomainError(model.KindInvalid, "demand index %d out of range", k.Demand)
	}
	if k.Method < 0 || k.Method >= len(n.setup.IA) {
		return model.FunctionalUnit{}, nil, model.NewDomainError(model.KindInvalid, "method index %d out of range", k.Method)
	}
	if k.Scenario != 0 {
		return model.FunctionalUnit{}, nil, model.NewDomainError(model.KindInvalid, "unknown scenario %d", k.Scenario)
	}
	return n.setup.Inv[k.Demand], n.setup.IA[k.Method], nil
}

// session returns the factorised LCA of a demand, building it on first use.
func (n *Navigator) session(ctx context.Context, demand model.NodeKey) (*lca.LCA, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if l, ok := n.sessions[demand]; ok {
		return l, nil
	}
	l, err := lca.New(ctx, n.src, map[model.NodeKey]float64{demand: 1})
	if err != nil {
		return nil, err
	}
	if err := l.Factorize(); err != nil {
		return nil, err
	}
	n.sessions[demand] = l
	return l, nil
}

// Sessions returns the number of factorised LCAs held.
func (n *Navigator) Sessions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

func (n *Navigator) publish(res *traversal.Result) ([]byte, error) {
	data, err := Render(res)
	if err != nil {
		return nil, err
	}
	n.Rendered.Emit(data)
	return data, nil
}

// Bind invalidates the cache and the sessions on inventory changes.
func (n *Navigator) Bind(bus *signals.Bus) {
	n.Unbind()
	n.conns = append(n.conns,
		bus.Project().Changed.Connect(func(signals.ProjectChange) { n.Reset() }),
		bus.Database().Written.Connect(n.invalidateDatabase),
		bus.Database().Reset.Connect(n.invalidateDatabase),
		bus.Database().Deleted.Connect(n.invalidateDatabase),
		bus.Method().Changed.Connect(func(m *model.Method) { n.invalidateMethod(m.ID) }),
		bus.Method().Deleted.Connect(func(m *model.Method) { n.invalidateMethod(m.ID) }),
		bus.Node().Changed.Connect(func(c signals.NodeChange) { n.invalidateNodes(c.New, c.Old) }),
		bus.Node().Deleted.Connect(func(nd *model.Node) { n.invalidateNodes(nd) }),
		bus.Node().DatabaseChange.Connect(func(m signals.NodeMove) { n.invalidateNodes(m.New, m.Old) }),
		bus.Node().CodeChange.Connect(func(m signals.NodeMove) { n.invalidateNodes(m.New, m.Old) }),
		bus.Edge().Changed.Connect(func(c signals.EdgeChange) { n.invalidateEdges(c.New, c.Old) }),
		bus.Edge().Deleted.Connect(func(e *model.Edge) { n.invalidateEdges(e) }),
		// recalculated amounts may touch any database
		bus.Parameter().Recalculated.Connect(func(struct{}) { n.Reset() }),
	)
}

// Unbind disconnects from the bus.
func (n *Navigator) Unbind() {
	for _, c := range n.conns {
		c.Disconnect()
	}
	n.conns = nil
}

// Reset purges the cache and drops every session.
func (n *Navigator) Reset() {
	n.cache.Purge()
	n.mu.Lock()
	n.sessions = make(map[model.NodeKey]*lca.LCA)
	n.mu.Unlock()
}

// invalidateMethod drops the traversals of a method and the characterisation
// factors every session holds for it.
func (n *Navigator) invalidateMethod(id model.MethodID) {
	n.cache.InvalidateMethod(id)
	n.mu.Lock()
	for _, l := range n.sessions {
		l.ForgetMethod(id)
	}
	n.mu.Unlock()
}

func (n *Navigator) invalidateNodes(nodes ...*model.Node) {
	seen := map[string]bool{}
	for _, nd := range nodes {
		if nd == nil || seen[nd.Database] {
			continue
		}
		seen[nd.Database] = true
		n.invalidateDatabase(nd.Database)
	}
}

func (n *Navigator) invalidateEdges(edges ...*model.Edge) {
	seen := map[string]bool{}
	for _, e := range edges {
		if e == nil {
			continue
		}
		for _, db := range []string{e.Output.Database, e.Input.Database} {
			if !seen[db] {
				seen[db] = true
				n.invalidateDatabase(db)
			}
		}
	}
}

func (n *Navigator) invalidateDatabase(db string) {
	dropped := n.cache.InvalidateDatabase(db)
	n.mu.Lock()
	for k, l := range n.sessions {
		for _, d := range l.Databases() {
			if d == db {
				delete(n.sessions, k)
				break
			}
		}
	}
	n.mu.Unlock()
	if dropped > 0 {
		n.logger.Debug("navigator: invalidated traversals", "database", db, "entries", dropped)
	}
}
