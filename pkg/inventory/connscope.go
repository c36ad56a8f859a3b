package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ConnScope gives one background worker its own connections. Each project
// the worker touches gets one *sql.Conn, opened on first use and released by
// Close, so a finished worker never leaves a lock on the inventory file.
type ConnScope struct {
	mu     sync.Mutex
	conns  map[*Project]*sql.Conn
	opened int
	closed bool
}

type scopeKey struct{}

// WithConnScope returns a context carrying a fresh scope.
func WithConnScope(ctx context.Context) (context.Context, *ConnScope) {
	s := &ConnScope{conns: make(map[*Project]*sql.Conn)}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// ScopeFrom returns the scope carried by ctx, or nil.
func ScopeFrom(ctx context.Context) *ConnScope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*ConnScope)
	return s
}

func (s *ConnScope) conn(ctx context.Context, p *Project) (*sql.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("connection scope closed")
	}
	if c, ok := s.conns[p]; ok {
		return c, nil
	}
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open worker connection: %w", err)
	}
	s.conns[p] = c
	s.opened++
	return c, nil
}

// Open returns the number of connections currently held.
func (s *ConnScope) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Opened returns the number of connections opened over the scope's life.
func (s *ConnScope) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Close releases every connection. Further use of the scope fails.
func (s *ConnScope) Close() error {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[*Project]*sql.Conn)
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for p, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection for %s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}
