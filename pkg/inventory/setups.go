package inventory

import (
	"context"
	"strings"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// SetupNames returns the calculation setups, sorted.
func (p *Project) SetupNames() []string { return p.Setups.Keys() }

// Setup returns a copy of a calculation setup.
func (p *Project) Setup(name string) (model.CalculationSetup, bool) {
	cs, ok := p.Setups.Get(name)
	if !ok {
		return model.CalculationSetup{}, false
	}
	cs = cs.Clone()
	cs.Name = name
	return cs, true
}

// NewSetup registers an empty calculation setup.
func (p *Project) NewSetup(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return model.NewDomainError(model.KindInvalid, "empty calculation setup name")
	}
	if p.Setups.Contains(name) {
		return model.NewDomainError(model.KindNameExists, "calculation setup %q already exists", name)
	}
	p.Setups.Set(name, model.CalculationSetup{Inv: []model.FunctionalUnit{}, IA: []model.MethodID{}})
	return p.Setups.Flush(ctx)
}

// SaveSetup stores a calculation setup under cs.Name.
func (p *Project) SaveSetup(ctx context.Context, cs model.CalculationSetup) error {
	if strings.TrimSpace(cs.Name) == "" {
		return model.NewDomainError(model.KindInvalid, "empty calculation setup name")
	}
	name := cs.Name
	cs = cs.Clone()
	cs.Name = ""
	p.Setups.Set(name, cs)
	return p.Setups.Flush(ctx)
}

// DeleteSetup removes a calculation setup.
func (p *Project) DeleteSetup(ctx context.Context, name string) error {
	if !p.Setups.Contains(name) {
		return model.NotFound("calculation setup", name)
	}
	p.Setups.Delete(name)
	return p.Setups.Flush(ctx)
}

// RenameSetup moves a calculation setup to a new name.
func (p *Project) RenameSetup(ctx context.Context, from, to string) error {
	cs, ok := p.Setups.Get(from)
	if !ok {
		return model.NotFound("calculation setup", from)
	}
	if p.Setups.Contains(to) {
		return model.NewDomainError(model.KindNameExists, "calculation setup %q already exists", to)
	}
	p.Setups.Delete(from)
	p.Setups.Set(to, cs)
	return p.Setups.Flush(ctx)
}
