package handles

import (
	"reflect"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

// Bind forwards bus events to the live handles they concern. Events for
// identities without a live handle are dropped. Project change flushes the
// registry.
func (r *Registry) Bind(bus *signals.Bus) {
	r.Unbind()
	node, edge, method, param := bus.Node(), bus.Edge(), bus.Method(), bus.Parameter()
	db, project, meta := bus.Database(), bus.Project(), bus.Meta()

	r.conns = append(r.conns,
		node.Changed.Connect(func(c signals.NodeChange) { r.changed(c.New) }),
		node.Deleted.Connect(func(n *model.Node) { r.deleted(n) }),
		node.CodeChange.Connect(r.moved),
		node.DatabaseChange.Connect(r.moved),

		edge.Changed.Connect(func(c signals.EdgeChange) {
			r.changed(c.New)
			r.endpointsChanged(c.New)
			if c.Old != nil && (c.Old.Input != c.New.Input || c.Old.Output != c.New.Output) {
				r.endpointsChanged(c.Old)
			}
		}),
		edge.Deleted.Connect(func(e *model.Edge) {
			r.deleted(e)
			r.endpointsChanged(e)
		}),

		method.Changed.Connect(func(m *model.Method) { r.changed(m) }),
		method.Deleted.Connect(func(m *model.Method) { r.deleted(m) }),
		param.Changed.Connect(func(c signals.ParameterChange) { r.changed(c.New) }),
		param.Deleted.Connect(func(p *model.Parameter) { r.deleted(p) }),

		db.Written.Connect(r.databaseChanged),
		db.Reset.Connect(r.databaseChanged),
		db.Deleted.Connect(r.databaseDeleted),

		meta.DatabasesChanged.Connect(func(c signals.MetaChange[model.DatabaseMeta]) {
			diffMeta(r, c, func(name string, _ model.DatabaseMeta) model.Entity { return model.Ref(model.DatabaseIdentity(name)) })
		}),
		meta.CalculationSetupsChanged.Connect(func(c signals.MetaChange[model.CalculationSetup]) {
			diffMeta(r, c, func(name string, cs model.CalculationSetup) model.Entity {
				cs.Name = name
				return &cs
			})
		}),

		project.Changed.Connect(func(signals.ProjectChange) { r.Flush() }),
	)
}

// Unbind disconnects the registry from the bus.
func (r *Registry) Unbind() {
	for _, c := range r.conns {
		c.Disconnect()
	}
	r.conns = nil
}

func (r *Registry) changed(e model.Entity) {
	if isNil(e) {
		return
	}
	if h, ok := r.Lookup(e.Identity()); ok {
		r.EmitLater(h.Changed, e)
	}
}

func (r *Registry) deleted(e model.Entity) {
	if isNil(e) {
		return
	}
	if h, ok := r.Lookup(e.Identity()); ok {
		r.EmitLater(h.Deleted, e)
	}
}

func (r *Registry) moved(m signals.NodeMove) {
	r.deleted(m.Old)
	r.changed(m.New)
}

func (r *Registry) endpointsChanged(e *model.Edge) {
	r.changed(model.Ref(model.NodeIdentity(e.Input)))
	if e.Output != e.Input {
		r.changed(model.Ref(model.NodeIdentity(e.Output)))
	}
}

func (r *Registry) databaseChanged(name string) {
	for _, h := range r.nodeHandles(name) {
		r.EmitLater(h.Changed, model.Ref(h.id))
	}
	r.changed(model.Ref(model.DatabaseIdentity(name)))
}

func (r *Registry) databaseDeleted(name string) {
	for _, h := range r.nodeHandles(name) {
		r.EmitLater(h.Changed, model.Ref(h.id))
		r.EmitLater(h.Deleted, model.Ref(h.id))
	}
	r.deleted(model.Ref(model.DatabaseIdentity(name)))
}

// diffMeta sends changed for every record that is new or differs, and
// deleted for every record that vanished.
func diffMeta[T any](r *Registry, c signals.MetaChange[T], entity func(string, T) model.Entity) {
	for name, v := range c.New {
		if old, ok := c.Old[name]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		r.changed(entity(name, v))
	}
	for name, v := range c.Old {
		if _, ok := c.New[name]; !ok {
			r.deleted(entity(name, v))
		}
	}
}

func isNil(e model.Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
