// Package gcs implements an inventory provider over the objects in a Google Cloud Storage bucket.
//
// Objects beneath a prefix play the role of files beneath a root directory:
// an object named PREFIX/sub/a.txt appears in the inventory as sub/a.txt.
// It is meant for the serving side only;
// clients pull into local directories.
package gcs

import (
	"context"
	stderrs "errors"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/cache"
	"github.com/bobg/pullsync/source"
)

var _ source.Source = &Source{}

// Source is a Google Cloud Storage-based inventory provider.
type Source struct {
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
	cache      cache.Cache

	mu   sync.Mutex
	gens map[string]int64 // object generations seen by the latest Enumerate
}

// New produces a new Source for the objects in the named bucket whose names begin with prefix.
// A non-empty prefix should end in "/".
// If c is not nil,
// digests are looked up and recorded there,
// keyed by bucket and prefix (see Namespace), object name, size, and update time.
func New(client *storage.Client, bucket, prefix string, c cache.Cache) *Source {
	return &Source{
		bucket:     client.Bucket(bucket),
		bucketName: bucket,
		prefix:     prefix,
		cache:      c,
	}
}

// Namespace is the cache.Key namespace for the Source's objects.
func (s *Source) Namespace() string {
	return "gs://" + s.bucketName + "/" + s.prefix
}

// Enumerate implements source.Source.
// Objects whose names end in "/" (directory placeholders)
// or cannot be sent on the wire are skipped.
func (s *Source) Enumerate(ctx context.Context) (pullsync.Inventory, error) {
	var (
		inv  pullsync.Inventory
		gens = make(map[string]int64)
	)

	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pullsync.Filesystem(errors.Wrapf(err, "listing objects with prefix %s", s.prefix))
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		name := strings.TrimPrefix(attrs.Name, s.prefix)
		if !pullsync.ValidName(name) {
			log.Printf("skipping object %s: name cannot be sent", attrs.Name)
			continue
		}
		digest, err := s.digest(ctx, name, attrs)
		if err != nil {
			return nil, err
		}
		inv = append(inv, pullsync.FileRecord{Name: name, Digest: digest})
		gens[name] = attrs.Generation
	}

	s.mu.Lock()
	s.gens = gens
	s.mu.Unlock()

	// Object listings are ordered by full name, which is also name order after stripping a common prefix,
	// but don't rely on it.
	sort.SliceStable(inv, func(i, j int) bool { return inv[i].Name < inv[j].Name })

	return inv, nil
}

func (s *Source) digest(ctx context.Context, name string, attrs *storage.ObjectAttrs) (string, error) {
	key := cache.Key{Namespace: s.Namespace(), Name: name, Size: attrs.Size, ModTime: attrs.Updated}

	if s.cache != nil {
		digest, err := s.cache.Get(ctx, key)
		if err == nil {
			return digest, nil
		}
		if !errors.Is(err, pullsync.ErrNotFound) {
			log.Printf("ERROR reading digest cache for %s: %s", name, err)
		}
	}

	r, err := s.bucket.Object(attrs.Name).Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		return "", pullsync.Filesystem(errors.Wrapf(err, "opening object %s", attrs.Name))
	}
	defer r.Close()

	digest, err := pullsync.DigestReader(r)
	if err != nil {
		return "", pullsync.Filesystem(errors.Wrapf(err, "reading object %s", attrs.Name))
	}

	if s.cache != nil {
		if err = s.cache.Put(ctx, key, digest); err != nil {
			log.Printf("ERROR writing digest cache for %s: %s", name, err)
		}
	}

	return digest, nil
}

// Open implements source.Source.
// If the latest Enumerate saw the object,
// Open reads the generation it saw,
// so the content matches the digest it reported.
func (s *Source) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if !pullsync.ValidName(name) {
		return nil, 0, pullsync.Protocol(errors.Wrapf(pullsync.ErrUnsafePath, "%q", name))
	}
	objName := s.prefix + name
	obj := s.bucket.Object(objName)
	if gen, ok := s.generation(name); ok {
		obj = obj.Generation(gen)
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, 0, pullsync.Filesystem(errors.Wrapf(err, "opening object %s", objName))
	}
	return r, r.Attrs.Size, nil
}

func (s *Source) generation(name string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.gens[name]
	return gen, ok
}

func init() {
	source.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (source.Source, error) {
		var options []option.ClientOption
		creds, ok := conf["creds"].(string)
		if ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		prefix, _ := conf["prefix"].(string)
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}

		var c cache.Cache
		if _, ok := conf["cache"]; ok {
			var err error
			c, err = cache.Nested(ctx, conf, "cache")
			if err != nil {
				return nil, errors.Wrap(err, "creating digest cache")
			}
		}

		client, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(client, bucketName, prefix, c), nil
	})
}
