package cache

import (
	"context"
	"slices"
	"sync"

	cachekey "github.com/always-cache/spa-shell/pkg/cache-key"
)

const memoryLayer = "memory"

// MemStorage keeps all generations in process memory.
type MemStorage struct {
	mutex *sync.RWMutex
	order []string
	db    map[string]*MemCache
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		mutex: &sync.RWMutex{},
		db:    make(map[string]*MemCache),
	}
}

func (m *MemStorage) Open(_ context.Context, name string) (Cache, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if c, ok := m.db[name]; ok {
		return c, nil
	}
	c := &MemCache{
		name:    name,
		mutex:   &sync.RWMutex{},
		entries: make(map[cachekey.Key]Entry),
	}
	m.db[name] = c
	m.order = append(m.order, name)
	return c, nil
}

func (m *MemStorage) Lookup(_ context.Context, name string) (Cache, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	c, ok := m.db[name]
	if !ok {
		return nil, false, nil
	}
	return c, true, nil
}

func (m *MemStorage) Has(_ context.Context, name string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.db[name]
	return ok, nil
}

func (m *MemStorage) Delete(_ context.Context, name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	c, ok := m.db[name]
	if !ok {
		return false, nil
	}
	c.detach()
	delete(m.db, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	return true, nil
}

func (m *MemStorage) Names(_ context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return slices.Clone(m.order), nil
}

func (m *MemStorage) Match(ctx context.Context, key cachekey.Key) (Entry, bool, error) {
	return matchInOrder(ctx, m, key)
}

func (m *MemStorage) Close() error {
	return nil
}

// MemCache is a single in-memory generation.
type MemCache struct {
	name     string
	mutex    *sync.RWMutex
	entries  map[cachekey.Key]Entry
	detached bool
}

func (c *MemCache) Name() string {
	return c.name
}

func (c *MemCache) Match(_ context.Context, key cachekey.Key) (Entry, bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	e, ok := c.entries[key]
	observeMatch(memoryLayer, ok, nil)
	return e, ok, nil
}

func (c *MemCache) Put(ctx context.Context, entry Entry) error {
	return c.PutAll(ctx, []Entry{entry})
}

func (c *MemCache) PutAll(_ context.Context, entries []Entry) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.detached {
		return nil
	}
	for _, e := range entries {
		e.Response = slices.Clone(e.Response)
		c.entries[e.Key] = e
	}
	observeWrite(memoryLayer, len(entries), nil)
	return nil
}

func (c *MemCache) Delete(_ context.Context, key cachekey.Key) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok, nil
}

func (c *MemCache) Keys(_ context.Context) ([]cachekey.Key, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	keys := make([]cachekey.Key, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

func (c *MemCache) detach() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.detached = true
	c.entries = make(map[cachekey.Key]Entry)
}
