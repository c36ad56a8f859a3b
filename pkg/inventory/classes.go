package inventory

import (
	"context"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
)

// Attribute names of the patchable operations.
const (
	AttrWrite      = "write"
	AttrDeregister = "deregister"
	AttrFlush      = "flush"
	AttrDelete     = "delete"
)

// MethodWriteFunc persists a method and its characterisation factors.
type MethodWriteFunc func(ctx context.Context, p *Project, m *model.Method) error

// MethodDeregisterFunc removes a method from the project.
type MethodDeregisterFunc func(ctx context.Context, p *Project, id model.MethodID) error

// FlushFunc persists a metadata store. old is the state of the previous
// flush.
type FlushFunc[T any] func(ctx context.Context, md *Metadata[T], old map[string]T) error

// ProjectDeleteFunc removes a project and its directory.
type ProjectDeleteFunc func(ctx context.Context, m *Manager, name string) error

// Classes are the dispatch tables of one Manager. Every project opened by the
// manager calls through them, so a patch applies to all of them.
type Classes struct {
	Method    *patch.Class
	Databases *patch.Class
	Methods   *patch.Class
	Setups    *patch.Class
	Manager   *patch.Class
}

func newClasses() Classes {
	return Classes{
		Method: patch.NewClass("Method", nil).
			Define(AttrWrite, MethodWriteFunc(writeMethod)).
			Define(AttrDeregister, MethodDeregisterFunc(deregisterMethod)),
		Databases: patch.NewClass("Databases", nil).
			Define(AttrFlush, FlushFunc[model.DatabaseMeta](writeMetadata[model.DatabaseMeta])),
		Methods: patch.NewClass("Methods", nil).
			Define(AttrFlush, FlushFunc[model.MethodMeta](writeMetadata[model.MethodMeta])),
		Setups: patch.NewClass("CalculationSetups", nil).
			Define(AttrFlush, FlushFunc[model.CalculationSetup](writeMetadata[model.CalculationSetup])),
		Manager: patch.NewClass("ProjectManager", nil).
			Define(AttrDelete, ProjectDeleteFunc(deleteProject)),
	}
}
