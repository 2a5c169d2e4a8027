// Package mem implements an in-memory digest cache.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/cache"
)

var _ cache.Lister = &Cache{}

// Cache is a memory-based digest cache.
type Cache struct {
	mu sync.Mutex
	m  map[key]string
}

// Time values are not comparable with ==, so keys use UnixNano.
type key struct {
	ns   string
	name string
	size int64
	nano int64
}

func toKey(k cache.Key) key {
	return key{ns: k.Namespace, name: k.Name, size: k.Size, nano: k.ModTime.UnixNano()}
}

// New produces a new Cache.
func New() *Cache {
	return &Cache{m: make(map[key]string)}
}

// Get implements cache.Cache.
func (c *Cache) Get(_ context.Context, k cache.Key) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.m[toKey(k)]; ok {
		return d, nil
	}
	return "", pullsync.ErrNotFound
}

// Put implements cache.Cache.
func (c *Cache) Put(_ context.Context, k cache.Key, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m[toKey(k)] = digest
	return nil
}

// Len tells how many entries are in the cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Each implements cache.Lister.
func (c *Cache) Each(ctx context.Context, f func(cache.Key, string) error) error {
	c.mu.Lock()
	type entry struct {
		k      key
		digest string
	}
	entries := make([]entry, 0, len(c.m))
	for k, d := range c.m {
		entries = append(entries, entry{k: k, digest: d})
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].k, entries[j].k
		if a.ns != b.ns {
			return a.ns < b.ns
		}
		if a.name != b.name {
			return a.name < b.name
		}
		return a.nano < b.nano
	})
	for _, e := range entries {
		k := cache.Key{Namespace: e.k.ns, Name: e.k.name, Size: e.k.size, ModTime: time.Unix(0, e.k.nano)}
		if err := f(k, e.digest); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	cache.Register("mem", func(context.Context, map[string]interface{}) (cache.Cache, error) {
		return New(), nil
	})
}
