package ruleset

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader loads a ruleset by id.
type Loader interface {
	Load(id string) (*Descriptor, error)
}

// Cache is a get-or-load cache of rulesets. Entries are never replaced once
// loaded, so every caller observes the same *Descriptor for an id. Failed
// loads are not cached.
type Cache struct {
	loader Loader
	logger *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*Descriptor
}

// NewCache wraps a loader. A nil logger uses slog.Default.
func NewCache(loader Loader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		loader:  loader,
		logger:  logger.With("component", "ruleset_cache"),
		entries: make(map[string]*Descriptor),
	}
}

// Get returns the ruleset for id, loading it at most once across concurrent
// callers.
func (c *Cache) Get(id string) (*Descriptor, error) {
	if d, ok := c.lookup(id); ok {
		return d, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		// A call that lost the race to a finished load lands here.
		if d, ok := c.lookup(id); ok {
			return d, nil
		}
		d, err := c.loader.Load(id)
		if err != nil {
			c.logger.Warn("ruleset load failed", "ruleset_id", id, "error", err)
			return nil, err
		}
		c.mu.Lock()
		c.entries[id] = d
		c.mu.Unlock()
		c.logger.Info("ruleset loaded", "ruleset_id", id, "version", d.Version())
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Descriptor), nil
}

func (c *Cache) lookup(id string) (*Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[id]
	return d, ok
}

// Len returns the number of loaded rulesets.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
