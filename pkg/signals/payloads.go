package signals

import (
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// NodeChange carries the state after a write and the state captured before.
// Old is nil for a new node.
type NodeChange struct {
	New *model.Node
	Old *model.Node
}

// NodeMove describes a code or database change of one node.
type NodeMove struct {
	Old *model.Node
	New *model.Node
}

// EdgeChange is NodeChange for exchanges.
type EdgeChange struct {
	New *model.Edge
	Old *model.Edge
}

// ParameterChange is NodeChange for parameters.
type ParameterChange struct {
	New *model.Parameter
	Old *model.Parameter
}

// MetaChange carries the persisted state of a metadata store before and
// after a flush.
type MetaChange[T any] struct {
	Old map[string]T
	New map[string]T
}

// ProjectChange carries the new and previous current project. Old is nil on
// the first activation.
type ProjectChange struct {
	New *inventory.Project
	Old *inventory.Project
}

// ErrorDialog asks the presentation layer to show a message box.
type ErrorDialog struct {
	Title   string
	Message string
}
