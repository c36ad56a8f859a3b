package navigator

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/traversal"
)

// DefaultCacheSize is the number of traversals kept per cache.
const DefaultCacheSize = 128

// Key identifies one traversal of a calculation setup. Demand, Method and
// Scenario are indices into the setup.
type Key struct {
	Demand   int
	Method   int
	Scenario int
	Cutoff   float64
	MaxCalc  int
	Tags     string
}

// NewKey builds a key from setup indices and traversal settings.
func NewKey(demand, method, scenario int, s traversal.Settings) Key {
	return Key{
		Demand:   demand,
		Method:   method,
		Scenario: scenario,
		Cutoff:   s.Cutoff,
		MaxCalc:  s.MaxCalc,
		Tags:     strings.Join(s.Tags, "\x1f"),
	}
}

// Settings returns the traversal settings encoded in k.
func (k Key) Settings() traversal.Settings {
	s := traversal.Settings{Cutoff: k.Cutoff, MaxCalc: k.MaxCalc}
	if k.Tags != "" {
		s.Tags = strings.Split(k.Tags, "\x1f")
	}
	return s
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d/%g/%d/%s", k.Demand, k.Method, k.Scenario, k.Cutoff, k.MaxCalc, k.Tags)
}

// Entry is a cached traversal with the inputs it was computed from.
type Entry struct {
	Result    *traversal.Result
	Databases []string
	Method    model.MethodID
}

func (e Entry) uses(db string) bool {
	for _, d := range e.Databases {
		if d == db {
			return true
		}
	}
	return false
}

// Cache is an LRU of traversals. Entries are immutable once added.
type Cache struct {
	lru *lru.Cache[Key, Entry]
}

// NewCache returns a cache holding up to size traversals.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.NewWithEvict[Key, Entry](size, func(Key, Entry) {
		metrics.TraversalCache.Evict(1)
	})
	if err != nil {
		return nil, fmt.Errorf("navigator: cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get returns the entry for k and records a hit or miss.
func (c *Cache) Get(k Key) (Entry, bool) {
	e, ok := c.lru.Get(k)
	if ok {
		metrics.TraversalCache.Hit()
	} else {
		metrics.TraversalCache.Miss()
	}
	return e, ok
}

// Add stores e under k.
func (c *Cache) Add(k Key, e Entry) { c.lru.Add(k, e) }

// Len returns the number of entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Purge() }

// InvalidateDatabase drops the entries computed from db and returns how
// many there were.
func (c *Cache) InvalidateDatabase(db string) int {
	return c.removeIf(func(e Entry) bool { return e.uses(db) })
}

// InvalidateMethod drops the entries scored with id.
func (c *Cache) InvalidateMethod(id model.MethodID) int {
	return c.removeIf(func(e Entry) bool { return e.Method.Equal(id) })
}

func (c *Cache) removeIf(match func(Entry) bool) int {
	n := 0
	for _, k := range c.lru.Keys() {
		if e, ok := c.lru.Peek(k); ok && match(e) {
			c.lru.Remove(k)
			n++
		}
	}
	return n
}
