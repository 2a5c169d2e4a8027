// Package lru implements a digest cache that keeps the most recently used entries of a nested cache in memory.
package lru

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/pullsync/cache"
)

var _ cache.Layer = &Cache{}

// Cache is a memory-based least-recently-used layer over another cache.
// Writes pass through to the nested cache.
type Cache struct {
	c *lru.Cache // string(Key)->digest
	n cache.Cache
}

// New produces a new Cache backed by n and holding up to size entries in memory.
func New(n cache.Cache, size int) (*Cache, error) {
	c, err := lru.New(size)
	return &Cache{c: c, n: n}, err
}

// Get implements cache.Cache.
func (c *Cache) Get(ctx context.Context, k cache.Key) (string, error) {
	mk := memKey(k)
	if d, ok := c.c.Get(mk); ok {
		return d.(string), nil
	}
	d, err := c.n.Get(ctx, k)
	if err != nil {
		return "", err
	}
	c.c.Add(mk, d)
	return d, nil
}

// Put implements cache.Cache.
func (c *Cache) Put(ctx context.Context, k cache.Key, digest string) error {
	if err := c.n.Put(ctx, k, digest); err != nil {
		return err
	}
	c.c.Add(memKey(k), digest)
	return nil
}

// Nested implements cache.Layer.
func (c *Cache) Nested() cache.Cache {
	return c.n
}

func memKey(k cache.Key) string {
	return fmt.Sprintf("%d:%d:%q:%s", k.Size, k.ModTime.UnixNano(), k.Namespace, k.Name)
}

func init() {
	cache.Register("lru", func(ctx context.Context, conf map[string]interface{}) (cache.Cache, error) {
		size, err := intParam(conf, "size")
		if err != nil {
			return nil, err
		}
		nested, err := cache.Nested(ctx, conf, "nested")
		if err != nil {
			return nil, errors.Wrap(err, "creating nested cache")
		}
		return New(nested, size)
	})
}

// Config maps decoded with UseNumber hold json.Number;
// TOML config maps hold int64.
func intParam(conf map[string]interface{}, param string) (int, error) {
	switch v := conf[param].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		return int(n), errors.Wrapf(err, "parsing %q parameter", param)
	}
	return 0, fmt.Errorf(`missing %q parameter`, param)
}
