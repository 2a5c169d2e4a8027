// Package dir implements an inventory provider over a directory in the local filesystem.
package dir

import (
	"context"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/cache"
	"github.com/bobg/pullsync/source"
)

var _ source.Source = &Source{}

// Source is a directory-based inventory provider.
type Source struct {
	root        string
	cache       cache.Cache
	recursive   bool
	concurrency int
}

// Option is the type of an option passed to New.
type Option func(*Source)

// WithCache tells the Source to look up and record digests in c.
func WithCache(c cache.Cache) Option {
	return func(s *Source) {
		s.cache = c
	}
}

// Recursive tells the Source to include files in subdirectories of the root,
// named with slash-separated relative paths.
// By default only the root's own files are included.
func Recursive(recursive bool) Option {
	return func(s *Source) {
		s.recursive = recursive
	}
}

// Concurrency sets the number of files hashed at once.
// The default is GOMAXPROCS.
func Concurrency(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New produces a new Source for the files beneath root.
func New(root string, opts ...Option) *Source {
	s := &Source{
		root:        root,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root is the directory the Source reads.
func (s *Source) Root() string {
	return s.root
}

type entry struct {
	name string // slash-separated, relative to root
	path string
	info fs.FileInfo
}

// Enumerate implements source.Source.
// Non-regular files,
// files whose names begin with pullsync.ReservedPrefix,
// and files whose names cannot be sent on the wire
// are skipped.
func (s *Source) Enumerate(ctx context.Context) (pullsync.Inventory, error) {
	ns, entries, err := s.scan()
	if err != nil {
		return nil, err
	}

	inv := make(pullsync.Inventory, len(entries))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for i, e := range entries {
		i, e := i, e
		eg.Go(func() error {
			digest, err := s.digest(ctx, ns, e)
			if err != nil {
				return err
			}
			inv[i] = pullsync.FileRecord{Name: e.name, Digest: digest}
			return nil
		})
	}
	if err = eg.Wait(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Namespace is the cache.Key namespace for the Source's files:
// the absolute path of the root with symbolic links resolved.
func (s *Source) Namespace() (string, error) {
	real, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return "", pullsync.Filesystem(errors.Wrapf(err, "resolving %s", s.root))
	}
	abs, err := filepath.Abs(real)
	return abs, pullsync.Filesystem(errors.Wrapf(err, "resolving %s", real))
}

// scan returns the resolved root and the files to include, ordered by name.
func (s *Source) scan() (string, []entry, error) {
	// WalkDir does not follow a root that is itself a symlink.
	walkRoot, err := s.Namespace()
	if err != nil {
		return "", nil, err
	}

	var entries []entry

	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == walkRoot {
			return nil
		}
		if strings.HasPrefix(d.Name(), pullsync.ReservedPrefix) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if s.recursive {
				return nil
			}
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(walkRoot, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !pullsync.ValidName(name) {
			log.Printf("skipping %s: name cannot be sent (at most %d bytes, no backslashes)", path, pullsync.MaxFieldLen)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, entry{name: name, path: path, info: info})
		return nil
	})
	return walkRoot, entries, pullsync.Filesystem(errors.Wrapf(err, "scanning %s", s.root))
}

func (s *Source) digest(ctx context.Context, ns string, e entry) (string, error) {
	key := cache.Key{Namespace: ns, Name: e.name, Size: e.info.Size(), ModTime: e.info.ModTime()}

	if s.cache != nil {
		digest, err := s.cache.Get(ctx, key)
		if err == nil {
			return digest, nil
		}
		if !errors.Is(err, pullsync.ErrNotFound) {
			log.Printf("ERROR reading digest cache for %s: %s", e.name, err)
		}
	}

	f, err := os.Open(e.path)
	if err != nil {
		return "", pullsync.Filesystem(errors.Wrapf(err, "opening %s", e.path))
	}
	defer f.Close()

	digest, err := pullsync.DigestReader(f)
	if err != nil {
		return "", pullsync.Filesystem(errors.Wrapf(err, "reading %s", e.path))
	}

	if s.cache != nil {
		if err = s.cache.Put(ctx, key, digest); err != nil {
			log.Printf("ERROR writing digest cache for %s: %s", e.name, err)
		}
	}

	return digest, nil
}

// Open implements source.Source.
// Besides refusing names that escape the root lexically,
// it refuses names that resolve outside the root through symbolic links.
func (s *Source) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	path, err := pullsync.SafeJoin(s.root, name)
	if err != nil {
		return nil, 0, err
	}
	if err = s.checkResolved(path); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, pullsync.Filesystem(errors.Wrapf(err, "opening %s", path))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, pullsync.Filesystem(errors.Wrapf(err, "statting %s", path))
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, pullsync.Filesystem(errors.Errorf("%s is not a regular file", path))
	}
	return f, info.Size(), nil
}

func (s *Source) checkResolved(path string) error {
	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return pullsync.Filesystem(errors.Wrapf(err, "resolving %s", s.root))
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return pullsync.Filesystem(errors.Wrapf(err, "resolving %s", path))
	}
	rel, err := filepath.Rel(realRoot, real)
	if err != nil || !filepath.IsLocal(rel) {
		return pullsync.Protocol(errors.Wrapf(pullsync.ErrUnsafePath, "%s resolves to %s", path, real))
	}
	return nil
}

func init() {
	source.Register("dir", func(ctx context.Context, conf map[string]interface{}) (source.Source, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		var opts []Option
		if recursive, ok := conf["recursive"].(bool); ok {
			opts = append(opts, Recursive(recursive))
		}
		if _, ok := conf["cache"]; ok {
			c, err := cache.Nested(ctx, conf, "cache")
			if err != nil {
				return nil, errors.Wrap(err, "creating digest cache")
			}
			opts = append(opts, WithCache(c))
		}
		return New(root, opts...), nil
	})
}
