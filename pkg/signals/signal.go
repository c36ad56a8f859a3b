package signals

import (
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
)

// Signal is a typed event channel. Slots run synchronously on the emitting
// goroutine in the order they were connected.
//
// The zero value is ready to use.
type Signal[T any] struct {
	name string

	mu      sync.Mutex
	slots   []*slot[T]
	nextID  uint64
	onCount []func(int)
}

type slot[T any] struct {
	id uint64
	fn func(T)
}

// New returns a named signal; the name shows up in logs.
func New[T any](name string) *Signal[T] {
	return &Signal[T]{name: name}
}

// Name returns the signal name.
func (s *Signal[T]) Name() string { return s.name }

// Connection is returned by Connect. Disconnect is idempotent.
type Connection struct {
	once       sync.Once
	disconnect func()
}

// Disconnect removes the slot.
func (c *Connection) Disconnect() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		if c.disconnect != nil {
			c.disconnect()
		}
	})
}

// Connect adds fn as a slot.
func (s *Signal[T]) Connect(fn func(T)) *Connection {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.slots = append(s.slots, &slot[T]{id: id, fn: fn})
	n := len(s.slots)
	watchers := slices.Clone(s.onCount)
	s.mu.Unlock()

	for _, w := range watchers {
		w(n)
	}
	return &Connection{disconnect: func() { s.remove(id) }}
}

func (s *Signal[T]) remove(id uint64) {
	s.mu.Lock()
	found := false
	for i, sl := range s.slots {
		if sl.id == id {
			s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
			found = true
			break
		}
	}
	n := len(s.slots)
	watchers := slices.Clone(s.onCount)
	s.mu.Unlock()

	if !found {
		return
	}
	for _, w := range watchers {
		w(n)
	}
}

// Count returns the number of connected slots.
func (s *Signal[T]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// OnCount registers fn to be told the slot count after every connect or
// disconnect.
func (s *Signal[T]) OnCount(fn func(int)) {
	s.mu.Lock()
	s.onCount = append(s.onCount, fn)
	s.mu.Unlock()
}

// DisconnectAll removes every slot.
func (s *Signal[T]) DisconnectAll() {
	s.mu.Lock()
	had := len(s.slots) > 0
	s.slots = nil
	watchers := slices.Clone(s.onCount)
	s.mu.Unlock()
	if !had {
		return
	}
	for _, w := range watchers {
		w(0)
	}
}

// Emit delivers v to every slot. A panicking slot is logged and skipped.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	slots := append([]*slot[T](nil), s.slots...)
	s.mu.Unlock()

	for _, sl := range slots {
		s.call(sl, v)
	}
}

func (s *Signal[T]) call(sl *slot[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("signal: slot panicked", "signal", s.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	sl.fn(v)
}
