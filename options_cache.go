package hotconfig

import "sync"

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MemoryProgramCache is an unbounded, concurrency-safe ProgramCache. Rule
// sets are small and fixed per schema so no eviction is needed.
type MemoryProgramCache struct {
	entries sync.Map
}

// NewProgramCache returns an empty in-memory cache.
func NewProgramCache() *MemoryProgramCache {
	return &MemoryProgramCache{}
}

// Get implements ProgramCache.
func (c *MemoryProgramCache) Get(key string) (any, bool) {
	return c.entries.Load(key)
}

// Set implements ProgramCache.
func (c *MemoryProgramCache) Set(key string, value any) {
	c.entries.Store(key, value)
}

// WithProgramCache shares compiled rule programs across stores. Each engine
// namespaces its keys, so one cache can back all of them. Compiled programs
// hold on to the functions they were built with, so stores sharing a cache
// should register the same functions.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *storeConfig) {
		cfg.programCache = cache
	}
}

type prefixedCache struct {
	prefix string
	inner  ProgramCache
}

func namespaced(prefix string, cache ProgramCache) ProgramCache {
	if cache == nil {
		return nil
	}
	return prefixedCache{prefix: prefix + ":", inner: cache}
}

func (c prefixedCache) Get(key string) (any, bool) { return c.inner.Get(c.prefix + key) }

func (c prefixedCache) Set(key string, value any) { c.inner.Set(c.prefix+key, value) }
