// Package testutil holds helpers shared by pullsync's tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/cache"
)

// CacheReadWrite permits testing a Cache implementation
// by storing some digests in it,
// then reading them back out to make sure they're the same.
func CacheReadWrite(ctx context.Context, t *testing.T, c cache.Cache) {
	var (
		now = time.Unix(1700000000, 123456789)
		k1  = cache.Key{Namespace: "/srv/one", Name: "a.txt", Size: 3, ModTime: now}
		k2  = cache.Key{Namespace: "/srv/one", Name: "sub/b.txt", Size: 0, ModTime: now}
		d1  = pullsync.DigestBytes([]byte("abc"))
		d2  = pullsync.DigestBytes(nil)
	)

	if _, err := c.Get(ctx, k1); !errors.Is(err, pullsync.ErrNotFound) {
		t.Fatalf("got error %v for missing key, want ErrNotFound", err)
	}

	if err := c.Put(ctx, k1, d1); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, k2, d2); err != nil {
		t.Fatal(err)
	}

	for k, want := range map[cache.Key]string{k1: d1, k2: d2} {
		got, err := c.Get(ctx, k)
		if err != nil {
			t.Fatalf("getting %s: %s", k, err)
		}
		if got != want {
			t.Errorf("got %s for %s, want %s", got, k, want)
		}
	}

	// A file that has changed is a miss.
	changed := k1
	changed.ModTime = now.Add(time.Nanosecond)
	if _, err := c.Get(ctx, changed); !errors.Is(err, pullsync.ErrNotFound) {
		t.Errorf("got error %v for changed mtime, want ErrNotFound", err)
	}
	changed = k1
	changed.Size++
	if _, err := c.Get(ctx, changed); !errors.Is(err, pullsync.ErrNotFound) {
		t.Errorf("got error %v for changed size, want ErrNotFound", err)
	}

	// Storing a new version replaces the old digest.
	k1b := cache.Key{Namespace: k1.Namespace, Name: k1.Name, Size: 4, ModTime: now.Add(time.Second)}
	d1b := pullsync.DigestBytes([]byte("abcd"))
	if err := c.Put(ctx, k1b, d1b); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, k1b)
	if err != nil {
		t.Fatal(err)
	}
	if got != d1b {
		t.Errorf("got %s for %s, want %s", got, k1b, d1b)
	}

	if l, ok := c.(cache.Lister); ok {
		var names []string
		err := l.Each(ctx, func(k cache.Key, digest string) error {
			if !pullsync.ValidDigest(digest) {
				return errors.Errorf("invalid digest %q for %s", digest, k)
			}
			names = append(names, k.Name)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(names) < 2 || names[len(names)-1] != k2.Name {
			t.Errorf("got names %v from Each, want sorted names ending in %s", names, k2.Name)
		}
	}

	// The same file version in another namespace is a different entry,
	// and storing it leaves the first namespace alone.
	other := k1b
	other.Namespace = "/srv/two"
	if _, err := c.Get(ctx, other); !errors.Is(err, pullsync.ErrNotFound) {
		t.Errorf("got error %v for other namespace, want ErrNotFound", err)
	}
	dOther := pullsync.DigestBytes([]byte("wxyz"))
	if err := c.Put(ctx, other, dOther); err != nil {
		t.Fatal(err)
	}
	for k, want := range map[cache.Key]string{k1b: d1b, other: dOther} {
		got, err := c.Get(ctx, k)
		if err != nil {
			t.Fatalf("getting %s: %s", k, err)
		}
		if got != want {
			t.Errorf("got %s for %s, want %s", got, k, want)
		}
	}
}
