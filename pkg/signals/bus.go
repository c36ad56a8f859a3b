// Package signals is the change-propagation bus. Library writes reach it
// through the inventory's primitive hooks and through patched attributes, and
// leave it as typed events on per-entity channel groups.
package signals

import (
	"log/slog"
	"sync"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
)

// NodeSignals are node.* channels.
type NodeSignals struct {
	Changed        *Signal[NodeChange]
	Deleted        *Signal[*model.Node]
	DatabaseChange *Signal[NodeMove]
	CodeChange     *Signal[NodeMove]
}

// EdgeSignals are edge.* channels.
type EdgeSignals struct {
	Changed      *Signal[EdgeChange]
	Deleted      *Signal[*model.Edge]
	Recalculated *Signal[struct{}]
}

// MethodSignals are method.* channels.
type MethodSignals struct {
	Changed *Signal[*model.Method]
	Deleted *Signal[*model.Method]
}

// ParameterSignals are parameter.* channels.
type ParameterSignals struct {
	Changed      *Signal[ParameterChange]
	Deleted      *Signal[*model.Parameter]
	Recalculated *Signal[struct{}]
}

// DatabaseSignals are database.* channels. Payloads are database names.
type DatabaseSignals struct {
	Written *Signal[string]
	Reset   *Signal[string]
	Deleted *Signal[string]
}

// ProjectSignals are project.* channels.
type ProjectSignals struct {
	Changed *Signal[ProjectChange]
	Created *Signal[string]
	Deleted *Signal[string]
}

// MetaSignals fire after a metadata store is flushed. Each store has its own
// typed channel.
type MetaSignals struct {
	DatabasesChanged         *Signal[MetaChange[model.DatabaseMeta]]
	MethodsChanged           *Signal[MetaChange[model.MethodMeta]]
	CalculationSetupsChanged *Signal[MetaChange[model.CalculationSetup]]
}

// AppSignals are presentation-level channels.
type AppSignals struct {
	StatusMessage        *Signal[string]
	StatusRight          *Signal[string]
	ShowError            *Signal[ErrorDialog]
	OpenNode             *Signal[model.NodeKey]
	UpdatesRequested     *Signal[struct{}]
	CalculationRequested *Signal[string]
}

// Installer wires the bus into a library. Installers run once, on the first
// access to any channel group.
type Installer func(b *Bus)

// Bus owns every channel group. Only the loop goroutine may emit, except
// through Dispatch.
type Bus struct {
	loop     *eventloop.Loop
	registry *patch.Registry
	logger   *slog.Logger

	once       sync.Once
	mu         sync.Mutex
	installers []Installer
	installed  bool

	node      NodeSignals
	edge      EdgeSignals
	method    MethodSignals
	parameter ParameterSignals
	database  DatabaseSignals
	project   ProjectSignals
	meta      MetaSignals
	app       AppSignals
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithRegistry shares a patch registry.
func WithRegistry(r *patch.Registry) Option {
	return func(b *Bus) { b.registry = r }
}

// WithInstaller adds an installer.
func WithInstaller(in Installer) Option {
	return func(b *Bus) { b.installers = append(b.installers, in) }
}

// NewBus returns a bus whose cross-goroutine emissions are queued on loop.
func NewBus(loop *eventloop.Loop, opts ...Option) *Bus {
	b := &Bus{
		loop:   loop,
		logger: slog.Default(),
		node: NodeSignals{
			Changed:        New[NodeChange]("node.changed"),
			Deleted:        New[*model.Node]("node.deleted"),
			DatabaseChange: New[NodeMove]("node.database_change"),
			CodeChange:     New[NodeMove]("node.code_change"),
		},
		edge: EdgeSignals{
			Changed:      New[EdgeChange]("edge.changed"),
			Deleted:      New[*model.Edge]("edge.deleted"),
			Recalculated: New[struct{}]("edge.recalculated"),
		},
		method: MethodSignals{
			Changed: New[*model.Method]("method.changed"),
			Deleted: New[*model.Method]("method.deleted"),
		},
		parameter: ParameterSignals{
			Changed:      New[ParameterChange]("parameter.changed"),
			Deleted:      New[*model.Parameter]("parameter.deleted"),
			Recalculated: New[struct{}]("parameter.recalculated"),
		},
		database: DatabaseSignals{
			Written: New[string]("database.written"),
			Reset:   New[string]("database.reset"),
			Deleted: New[string]("database.deleted"),
		},
		project: ProjectSignals{
			Changed: New[ProjectChange]("project.changed"),
			Created: New[string]("project.created"),
			Deleted: New[string]("project.deleted"),
		},
		meta: MetaSignals{
			DatabasesChanged:         New[MetaChange[model.DatabaseMeta]]("meta.databases_changed"),
			MethodsChanged:           New[MetaChange[model.MethodMeta]]("meta.methods_changed"),
			CalculationSetupsChanged: New[MetaChange[model.CalculationSetup]]("meta.calculation_setups_changed"),
		},
		app: AppSignals{
			StatusMessage:        New[string]("app.status_message"),
			StatusRight:          New[string]("app.status_right"),
			ShowError:            New[ErrorDialog]("app.show_error"),
			OpenNode:             New[model.NodeKey]("app.open_node"),
			UpdatesRequested:     New[struct{}]("app.updates_requested"),
			CalculationRequested: New[string]("app.calculation_requested"),
		},
	}
	for _, o := range opts {
		o(b)
	}
	if b.registry == nil {
		b.registry = patch.NewRegistry()
		b.registry.SetLogger(b.logger)
	}
	return b
}

// AddInstaller registers an installer. Installers added after the bus has
// been wired run immediately.
func (b *Bus) AddInstaller(in Installer) {
	b.mu.Lock()
	if !b.installed {
		b.installers = append(b.installers, in)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	in(b)
}

func (b *Bus) install() {
	b.once.Do(func() {
		b.mu.Lock()
		ins := b.installers
		b.installers = nil
		b.installed = true
		b.mu.Unlock()
		for _, in := range ins {
			in(b)
		}
		b.logger.Debug("signals: bus wired", "installers", len(ins))
	})
}

// Loop returns the loop that owns the bus.
func (b *Bus) Loop() *eventloop.Loop { return b.loop }

// Registry returns the patch registry used by the installers.
func (b *Bus) Registry() *patch.Registry { return b.registry }

// Logger returns the bus logger.
func (b *Bus) Logger() *slog.Logger { return b.logger }

func (b *Bus) Node() *NodeSignals           { b.install(); return &b.node }
func (b *Bus) Edge() *EdgeSignals           { b.install(); return &b.edge }
func (b *Bus) Method() *MethodSignals       { b.install(); return &b.method }
func (b *Bus) Parameter() *ParameterSignals { b.install(); return &b.parameter }
func (b *Bus) Database() *DatabaseSignals   { b.install(); return &b.database }
func (b *Bus) Project() *ProjectSignals     { b.install(); return &b.project }
func (b *Bus) Meta() *MetaSignals           { b.install(); return &b.meta }
func (b *Bus) App() *AppSignals             { b.install(); return &b.app }
