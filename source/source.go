// Package source describes an inventory provider:
// a collection of files that can be enumerated with their digests and read back by name.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/bobg/pullsync"
)

// Source is an inventory provider.
type Source interface {
	// Enumerate lists the files in the source,
	// ordered by name,
	// with the digest of each one's contents.
	// It fails if any file cannot be read.
	Enumerate(context.Context) (pullsync.Inventory, error)

	// Open opens the named file for reading and reports its size.
	// Names that escape the source are refused with an error wrapping pullsync.ErrUnsafePath.
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
}

// Factory creates a Source from a config map.
type Factory func(context.Context, map[string]interface{}) (Source, error)

var registry = make(map[string]Factory)

// Register makes a Source type available to Create under the given key.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a Source of the type registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (Source, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}
