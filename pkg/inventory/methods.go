package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
)

// MethodIDs returns the registered methods ordered by key.
func (p *Project) MethodIDs() []model.MethodID {
	keys := p.Methods.Keys()
	out := make([]model.MethodID, 0, len(keys))
	for _, k := range keys {
		id, err := model.ParseMethodKey(k)
		if err != nil {
			p.mgr.logger.Warn("skipping malformed method key", "key", k, "err", err)
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// MethodMeta returns the metadata of a registered method.
func (p *Project) MethodMeta(id model.MethodID) (model.MethodMeta, bool) {
	meta, ok := p.Methods.Get(id.Key())
	if ok {
		meta.ID = id
	}
	return meta, ok
}

// RegisterMethod adds a method without factors.
func (p *Project) RegisterMethod(ctx context.Context, id model.MethodID, meta model.MethodMeta) error {
	if len(id) == 0 {
		return model.NewDomainError(model.KindInvalid, "empty method name")
	}
	if p.Methods.Contains(id.Key()) {
		return model.NewDomainError(model.KindNameExists, "method %s already exists", id)
	}
	meta.ID = nil
	p.Methods.Set(id.Key(), meta)
	return p.Methods.Flush(ctx)
}

// WriteMethod stores a method's factors. It dispatches through
// Classes.Method.
func (p *Project) WriteMethod(ctx context.Context, m *model.Method) error {
	write, ok := patch.Lookup[MethodWriteFunc](p.mgr.Classes.Method, AttrWrite)
	if !ok {
		return writeMethod(ctx, p, m)
	}
	return write(ctx, p, m)
}

// DeregisterMethod removes a method. It dispatches through Classes.Method.
func (p *Project) DeregisterMethod(ctx context.Context, id model.MethodID) error {
	dereg, ok := patch.Lookup[MethodDeregisterFunc](p.mgr.Classes.Method, AttrDeregister)
	if !ok {
		return deregisterMethod(ctx, p, id)
	}
	return dereg(ctx, p, id)
}

func writeMethod(ctx context.Context, p *Project, m *model.Method) error {
	if m == nil || len(m.ID) == 0 {
		return model.NewDomainError(model.KindInvalid, "method without name")
	}
	q, err := p.q(ctx)
	if err != nil {
		return err
	}
	var unlinked []string
	for _, cf := range m.CFs {
		ok, err := nodeExists(ctx, q, cf.Flow)
		if err != nil {
			return err
		}
		if !ok {
			unlinked = append(unlinked, cf.Flow.String())
		}
	}
	if len(unlinked) > 0 {
		return model.NewDomainError(model.KindUnlinkedFlows, "%d characterisation factors of %s reference missing flows: %v", len(unlinked), m.ID, unlinked)
	}
	data, err := json.Marshal(m.CFs)
	if err != nil {
		return fmt.Errorf("encode method %s: %w", m.ID, err)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO methoddataset (key, data) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET data = excluded.data`,
		m.ID.Key(), data); err != nil {
		return fmt.Errorf("write method %s: %w", m.ID, err)
	}
	meta, _ := p.Methods.Get(m.ID.Key())
	if m.Meta.Unit != "" {
		meta.Unit = m.Meta.Unit
	}
	if m.Meta.Description != "" {
		meta.Description = m.Meta.Description
	}
	meta.ID = nil
	meta.NumCFs = len(m.CFs)
	p.Methods.Set(m.ID.Key(), meta)
	return p.Methods.Flush(ctx)
}

func deregisterMethod(ctx context.Context, p *Project, id model.MethodID) error {
	if !p.Methods.Contains(id.Key()) {
		return model.NotFound("method", id.String())
	}
	q, err := p.q(ctx)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM methoddataset WHERE key = ?`, id.Key()); err != nil {
		return fmt.Errorf("deregister method %s: %w", id, err)
	}
	p.Methods.Delete(id.Key())
	return p.Methods.Flush(ctx)
}

// LoadMethod returns a method with its factors.
func (p *Project) LoadMethod(ctx context.Context, id model.MethodID) (*model.Method, error) {
	meta, ok := p.MethodMeta(id)
	if !ok {
		return nil, model.NotFound("method", id.String())
	}
	q, err := p.q(ctx)
	if err != nil {
		return nil, err
	}
	m := &model.Method{ID: id, Meta: meta}
	var data []byte
	err = q.QueryRowContext(ctx, `SELECT data FROM methoddataset WHERE key = ?`, id.Key()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load method %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &m.CFs); err != nil {
		return nil, fmt.Errorf("decode method %s: %w", id, err)
	}
	return m, nil
}
