// Package logging implements a digest cache that delegates everything to a nested cache,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/cache"
)

var _ cache.Layer = &Cache{}

// Cache is a cache.Cache that logs each Get and Put
// of the cache nested inside it.
type Cache struct {
	c cache.Cache
}

// New produces a new Cache wrapping c.
func New(c cache.Cache) *Cache {
	return &Cache{c: c}
}

// Get implements cache.Cache.
// It logs hits, misses, and errors.
func (c *Cache) Get(ctx context.Context, k cache.Key) (string, error) {
	d, err := c.c.Get(ctx, k)
	switch {
	case errors.Is(err, pullsync.ErrNotFound):
		log.Printf("Get %s: miss", k)
	case err != nil:
		log.Printf("ERROR Get %s: %s", k, err)
	default:
		log.Printf("Get %s: %s", k, d)
	}
	return d, err
}

// Put implements cache.Cache.
func (c *Cache) Put(ctx context.Context, k cache.Key, digest string) error {
	err := c.c.Put(ctx, k, digest)
	if err != nil {
		log.Printf("ERROR in Put %s: %s", k, err)
	} else {
		log.Printf("Put %s: %s", k, digest)
	}
	return err
}

// Nested implements cache.Layer.
func (c *Cache) Nested() cache.Cache {
	return c.c
}

func init() {
	cache.Register("logging", func(ctx context.Context, conf map[string]interface{}) (cache.Cache, error) {
		nested, err := cache.Nested(ctx, conf, "nested")
		if err != nil {
			return nil, errors.Wrap(err, "creating nested cache")
		}
		return New(nested), nil
	})
}
