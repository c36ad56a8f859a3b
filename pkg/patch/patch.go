// Package patch keeps the dispatch tables that inventory types call through
// for the operations the signal bus instruments, and records the original
// value of every attribute that gets replaced.
//
// A Class is a named table of attributes (usually function values) with an
// optional parent. A Registry replaces attributes on a class while keeping the
// first value it saw, so replacements can delegate to the original behaviour.
package patch

import (
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// Class is a dispatch table of named attributes.
type Class struct {
	Name   string
	Parent *Class

	mu    sync.RWMutex
	attrs map[string]any
}

// NewClass returns an empty class.
func NewClass(name string, parent *Class) *Class {
	return &Class{Name: name, Parent: parent, attrs: make(map[string]any)}
}

// Define sets an attribute on c itself.
func (c *Class) Define(name string, value any) *Class {
	c.mu.Lock()
	if c.attrs == nil {
		c.attrs = make(map[string]any)
	}
	c.attrs[name] = value
	c.mu.Unlock()
	return c
}

// Own returns the attribute defined on c itself, ignoring parents.
func (c *Class) Own(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.attrs[name]
	return v, ok
}

// Get resolves name through the parent chain.
func (c *Class) Get(name string) (any, bool) {
	for k := c; k != nil; k = k.Parent {
		if v, ok := k.Own(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Names returns the attributes defined on c itself, sorted.
func (c *Class) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.attrs))
	for n := range c.attrs {
		names = append(names, n)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (c *Class) String() string {
	if c == nil {
		return "<nil class>"
	}
	return c.Name
}

// Lookup resolves name on c and asserts it to F.
func Lookup[F any](c *Class, name string) (F, bool) {
	var zero F
	if c == nil {
		return zero, false
	}
	v, ok := c.Get(name)
	if !ok {
		return zero, false
	}
	f, ok := v.(F)
	return f, ok
}

// Registry records the original value of every patched attribute.
type Registry struct {
	mu       sync.RWMutex
	original map[*Class]map[string]any
	logger   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{original: make(map[*Class]map[string]any), logger: slog.Default()}
}

// SetLogger replaces the logger used for patch failures.
func (r *Registry) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// PatchAttribute installs value as target.name. The value resolved before the
// first call is kept as the original; later calls only swap the replacement.
// Failures are logged, never returned.
func (r *Registry) PatchAttribute(target *Class, name string, value any) {
	if err := r.patch(target, name, value); err != nil {
		r.logger.Error("patch: attribute not patched", "class", target.String(), "attr", name, "err", err)
	}
}

func (r *Registry) patch(target *Class, name string, value any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	if target == nil {
		return fmt.Errorf("nil target")
	}
	if name == "" {
		return fmt.Errorf("empty attribute name")
	}

	r.mu.Lock()
	attrs, ok := r.original[target]
	if !ok {
		attrs = make(map[string]any)
		r.original[target] = attrs
	}
	if _, seen := attrs[name]; !seen {
		orig, _ := target.Get(name)
		attrs[name] = orig
	}
	r.mu.Unlock()

	target.Define(name, value)
	return nil
}

// PatchClass patches every attribute sub defines that differs from its
// parent's onto the parent. Plain functions differ when their code does;
// closures always count as different.
func (r *Registry) PatchClass(sub *Class) {
	if sub == nil || sub.Parent == nil {
		r.logger.Error("patch: class has no parent", "class", sub.String())
		return
	}
	for _, name := range sub.Names() {
		v, _ := sub.Own(name)
		pv, _ := sub.Parent.Get(name)
		if same(v, pv) {
			continue
		}
		r.PatchAttribute(sub.Parent, name, v)
	}
}

// Original returns the value target.name had before it was patched. If
// target itself was never patched for name, the nearest patched ancestor
// answers.
func (r *Registry) Original(target *Class, name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k := target; k != nil; k = k.Parent {
		if v, ok := r.original[k][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Patched returns a copy of the originals recorded for target.
func (r *Registry) Patched(target *Class) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.original[target]))
	for k, v := range r.original[target] {
		out[k] = v
	}
	return out
}

// IsPatched reports whether target.name has been replaced.
func (r *Registry) IsPatched(target *Class, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.original[target][name]
	return ok
}

// OriginalOf is Original asserted to F.
func OriginalOf[F any](r *Registry, target *Class, name string) (F, bool) {
	var zero F
	v, ok := r.Original(target, name)
	if !ok || v == nil {
		return zero, false
	}
	f, ok := v.(F)
	return f, ok
}

// same compares functions by code pointer and everything else by equality.
// Closures and method values never compare equal: two of them can share code
// and differ in what they capture.
func same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Func && vb.Kind() == reflect.Func {
		if va.IsNil() || vb.IsNil() {
			return va.IsNil() && vb.IsNil()
		}
		if captures(va) || captures(vb) {
			return false
		}
		return va.Pointer() == vb.Pointer()
	}
	if va.Type() != vb.Type() || !va.Type().Comparable() {
		return false
	}
	return a == b
}

// closureName matches the names the compiler gives function literals,
// e.g. pkg.Outer.func1 or pkg.Outer.func1.2.
var closureName = regexp.MustCompile(`\.func\d+(\.\d+)*$`)

// captures reports whether fn may carry state beyond its code: a function
// literal or a bound method value.
func captures(fn reflect.Value) bool {
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return true
	}
	name := f.Name()
	return strings.HasSuffix(name, "-fm") || closureName.MatchString(name)
}
