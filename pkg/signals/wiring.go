package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/debug"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
)

// Wire returns the installer that connects the bus to an inventory manager:
// it subscribes to the manager's primitive hooks and patches the operations
// that bypass them.
func Wire(m *inventory.Manager) Installer {
	return func(b *Bus) {
		b.subscribeHooks(m)
		b.patchInventory(m)
	}
}

// NewWiredBus is NewBus with Wire(m) installed.
func NewWiredBus(loop *eventloop.Loop, m *inventory.Manager, opts ...Option) *Bus {
	return NewBus(loop, append(opts, WithInstaller(Wire(m)))...)
}

// forward runs emit on the loop goroutine: directly when ctx belongs to it,
// queued when ctx belongs to a worker. It records the forwarding latency.
func (b *Bus) forward(ctx context.Context, name string, emit func()) {
	start := time.Now()
	if b.loop != nil {
		b.loop.Dispatch(ctx, emit)
	} else {
		emit()
	}
	d := time.Since(start)
	debug.LogTiming("signals: "+name, d)
	metrics.BusForward.Record(d)
}

func (b *Bus) subscribeHooks(m *inventory.Manager) {
	h := &m.Hooks
	h.DatasetSaved.Add(func(e inventory.SaveEvent) {
		switch n := e.New.(type) {
		case *model.Node:
			old, _ := e.Old.(*model.Node)
			b.forward(e.Ctx, "node.changed", func() { b.node.Changed.Emit(NodeChange{New: n, Old: old}) })
		case *model.Edge:
			old, _ := e.Old.(*model.Edge)
			b.forward(e.Ctx, "edge.changed", func() { b.edge.Changed.Emit(EdgeChange{New: n, Old: old}) })
		case *model.Parameter:
			old, _ := e.Old.(*model.Parameter)
			b.forward(e.Ctx, "parameter.changed", func() { b.parameter.Changed.Emit(ParameterChange{New: n, Old: old}) })
		default:
			b.logger.Warn("signals: unclassified dataset save", "type", typeName(e.New))
		}
	})
	h.DatasetDeleted.Add(func(e inventory.DeleteEvent) {
		switch o := e.Old.(type) {
		case *model.Node:
			b.forward(e.Ctx, "node.deleted", func() { b.node.Deleted.Emit(o) })
		case *model.Edge:
			b.forward(e.Ctx, "edge.deleted", func() { b.edge.Deleted.Emit(o) })
		case *model.Parameter:
			b.forward(e.Ctx, "parameter.deleted", func() { b.parameter.Deleted.Emit(o) })
		default:
			b.logger.Warn("signals: unclassified dataset delete", "type", typeName(e.Old))
		}
	})
	h.CodeChanged.Add(func(e inventory.MoveEvent) {
		b.forward(e.Ctx, "node.code_change", func() { b.node.CodeChange.Emit(NodeMove{Old: e.Old, New: e.New}) })
	})
	h.DatabaseChanged.Add(func(e inventory.MoveEvent) {
		b.forward(e.Ctx, "node.database_change", func() { b.node.DatabaseChange.Emit(NodeMove{Old: e.Old, New: e.New}) })
	})
	h.DatabaseWritten.Add(func(e inventory.DatabaseEvent) {
		b.forward(e.Ctx, "database.written", func() { b.database.Written.Emit(e.Name) })
	})
	h.DatabaseReset.Add(func(e inventory.DatabaseEvent) {
		b.forward(e.Ctx, "database.reset", func() { b.database.Reset.Emit(e.Name) })
	})
	h.DatabaseDeleted.Add(func(e inventory.DatabaseEvent) {
		b.forward(e.Ctx, "database.deleted", func() { b.database.Deleted.Emit(e.Name) })
	})
	h.ParametersRecalculated.Add(func(e inventory.RecalculateEvent) {
		b.forward(e.Ctx, "parameter.recalculated", func() {
			b.parameter.Recalculated.Emit(struct{}{})
			if e.EdgesChanged > 0 {
				b.edge.Recalculated.Emit(struct{}{})
			}
		})
	})
	h.ProjectChanged.Add(func(e inventory.ProjectEvent) {
		b.forward(e.Ctx, "project.changed", func() { b.project.Changed.Emit(ProjectChange{New: e.New, Old: e.Old}) })
	})
	h.ProjectCreated.Add(func(e inventory.CreatedEvent) {
		b.forward(e.Ctx, "project.created", func() { b.project.Created.Emit(e.Name) })
	})
}

func (b *Bus) patchInventory(m *inventory.Manager) {
	reg := b.registry
	cls := m.Classes

	reg.PatchAttribute(cls.Method, inventory.AttrWrite, inventory.MethodWriteFunc(
		func(ctx context.Context, p *inventory.Project, meth *model.Method) error {
			orig, ok := patch.OriginalOf[inventory.MethodWriteFunc](reg, cls.Method, inventory.AttrWrite)
			if !ok {
				return errNoOriginal(cls.Method, inventory.AttrWrite)
			}
			if err := orig(ctx, p, meth); err != nil {
				return err
			}
			b.forward(ctx, "method.changed", func() { b.method.Changed.Emit(meth) })
			return nil
		}))

	reg.PatchAttribute(cls.Method, inventory.AttrDeregister, inventory.MethodDeregisterFunc(
		func(ctx context.Context, p *inventory.Project, id model.MethodID) error {
			orig, ok := patch.OriginalOf[inventory.MethodDeregisterFunc](reg, cls.Method, inventory.AttrDeregister)
			if !ok {
				return errNoOriginal(cls.Method, inventory.AttrDeregister)
			}
			meta, _ := p.MethodMeta(id)
			if err := orig(ctx, p, id); err != nil {
				return err
			}
			gone := &model.Method{ID: id, Meta: meta}
			b.forward(ctx, "method.deleted", func() { b.method.Deleted.Emit(gone) })
			return nil
		}))

	patchFlush(b, cls.Databases, "meta.databases_changed", b.meta.DatabasesChanged)
	patchFlush(b, cls.Methods, "meta.methods_changed", b.meta.MethodsChanged)
	patchFlush(b, cls.Setups, "meta.calculation_setups_changed", b.meta.CalculationSetupsChanged)

	reg.PatchAttribute(cls.Manager, inventory.AttrDelete, inventory.ProjectDeleteFunc(
		func(ctx context.Context, mgr *inventory.Manager, name string) error {
			orig, ok := patch.OriginalOf[inventory.ProjectDeleteFunc](reg, cls.Manager, inventory.AttrDelete)
			if !ok {
				return errNoOriginal(cls.Manager, inventory.AttrDelete)
			}
			if err := orig(ctx, mgr, name); err != nil {
				return err
			}
			b.forward(ctx, "project.deleted", func() { b.project.Deleted.Emit(name) })
			return nil
		}))
}

func patchFlush[T any](b *Bus, class *patch.Class, name string, sig *Signal[MetaChange[T]]) {
	reg := b.registry
	reg.PatchAttribute(class, inventory.AttrFlush, inventory.FlushFunc[T](
		func(ctx context.Context, md *inventory.Metadata[T], old map[string]T) error {
			orig, ok := patch.OriginalOf[inventory.FlushFunc[T]](reg, class, inventory.AttrFlush)
			if !ok {
				return errNoOriginal(class, inventory.AttrFlush)
			}
			if err := orig(ctx, md, old); err != nil {
				return err
			}
			change := MetaChange[T]{Old: old, New: md.Snapshot()}
			b.forward(ctx, name, func() { sig.Emit(change) })
			return nil
		}))
}

func errNoOriginal(c *patch.Class, attr string) error {
	return fmt.Errorf("signals: no original for %s.%s", c, attr)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
