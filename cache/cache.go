// Package cache describes a cache of file digests.
//
// Hashing every file on every LIST and DIFF is the dominant cost of building an inventory.
// A Cache remembers the digest computed for a file,
// keyed by the collection it belongs to and its name, size, and modification time,
// so that unchanged files need not be reread.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Key identifies one version of a file.
type Key struct {
	// Namespace distinguishes files with the same Name in different collections
	// sharing one Cache,
	// such as two directory roots.
	Namespace string

	Name    string
	Size    int64
	ModTime time.Time
}

func (k Key) String() string {
	name := k.Name
	if k.Namespace != "" {
		name = k.Namespace + ":" + name
	}
	return fmt.Sprintf("%s [%d bytes, %s]", name, k.Size, k.ModTime.UTC().Format(time.RFC3339Nano))
}

// Cache is a digest cache.
type Cache interface {
	// Get returns the digest recorded for k,
	// or pullsync.ErrNotFound.
	Get(context.Context, Key) (string, error)

	// Put records the digest for k.
	Put(ctx context.Context, k Key, digest string) error
}

// Factory creates a Cache from a config map.
type Factory func(context.Context, map[string]interface{}) (Cache, error)

var registry = make(map[string]Factory)

// Register makes a Cache type available to Create under the given key.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a Cache of the type registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (Cache, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// Nested creates the Cache described by conf[param],
// which must itself be a config map with a "type" entry.
// It is for caches that wrap other caches.
func Nested(ctx context.Context, conf map[string]interface{}, param string) (Cache, error) {
	nested, ok := conf[param].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf(`missing %q parameter`, param)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, fmt.Errorf(`%q parameter missing "type"`, param)
	}
	return Create(ctx, nestedType, nested)
}

// Lister is a Cache that can enumerate its entries.
type Lister interface {
	Cache

	// Each calls f for every entry in the cache, in order by namespace and name.
	// If f returns an error,
	// Each exits with that error.
	Each(ctx context.Context, f func(Key, string) error) error
}

// Layer is a Cache that adds behavior to another Cache.
type Layer interface {
	Cache

	// Nested returns the Cache beneath this one.
	Nested() Cache
}

// FindLister returns the first Lister found by descending from c through Layers.
func FindLister(c Cache) (Lister, bool) {
	for c != nil {
		if l, ok := c.(Lister); ok {
			return l, true
		}
		layer, ok := c.(Layer)
		if !ok {
			break
		}
		c = layer.Nested()
	}
	return nil, false
}
