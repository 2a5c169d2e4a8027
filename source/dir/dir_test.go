package dir

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/cache"
	"github.com/bobg/pullsync/cache/mem"
	"github.com/bobg/pullsync/source"
	"github.com/bobg/pullsync/testutil"
)

var files = map[string]string{
	"b.txt":            "bee",
	"a.txt":            "ay",
	"sub/c.txt":        "sea",
	"sub/deeper/d.txt": "dee",
	".pullsync.lock":   "",
	".pullsync-tmp-1":  "partial",
	".pullsync/e.txt":  "hidden",
}

func rec(name, content string) pullsync.FileRecord {
	return pullsync.FileRecord{Name: name, Digest: pullsync.DigestBytes([]byte(content))}
}

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, files)

	ctx := context.Background()

	got, err := New(root).Enumerate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := pullsync.Inventory{rec("a.txt", "ay"), rec("b.txt", "bee")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("flat mismatch (-want +got):\n%s", diff)
	}

	got, err = New(root, Recursive(true), Concurrency(1)).Enumerate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want = pullsync.Inventory{
		rec("a.txt", "ay"),
		rec("b.txt", "bee"),
		rec("sub/c.txt", "sea"),
		rec("sub/deeper/d.txt", "dee"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("recursive mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateEmptyAndMissing(t *testing.T) {
	ctx := context.Background()

	got, err := New(t.TempDir()).Enumerate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records in empty dir", len(got))
	}

	_, err = New(filepath.Join(t.TempDir(), "nonexistent")).Enumerate(ctx)
	if !pullsync.IsKind(err, pullsync.KindFilesystem) {
		t.Errorf("got error %v for missing root, want filesystem error", err)
	}
}

func TestEnumerateSymlinkedRoot(t *testing.T) {
	var (
		real = t.TempDir()
		link = filepath.Join(t.TempDir(), "link")
	)
	testutil.WriteTree(t, real, map[string]string{"a.txt": "ay"})
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("cannot create symlink: %s", err)
	}

	got, err := New(link).Enumerate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(pullsync.Inventory{rec("a.txt", "ay")}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCache(t *testing.T) {
	var (
		ctx  = context.Background()
		root = t.TempDir()
		c    = mem.New()
		s    = New(root, WithCache(c))
	)
	testutil.WriteTree(t, root, map[string]string{"a.txt": "ay", "b.txt": "bee"})

	if _, err := s.Enumerate(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("cache has %d entries after first enumeration, want 2", c.Len())
	}

	// Prove the cache is consulted by planting a wrong digest for an unchanged file.
	info, err := os.Stat(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	ns, err := s.Namespace()
	if err != nil {
		t.Fatal(err)
	}
	planted := pullsync.DigestBytes([]byte("planted"))
	if err = c.Put(ctx, cache.Key{Namespace: ns, Name: "a.txt", Size: info.Size(), ModTime: info.ModTime()}, planted); err != nil {
		t.Fatal(err)
	}
	got, err := s.Enumerate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Digest != planted {
		t.Errorf("got digest %s for a.txt, want planted %s", got[0].Digest, planted)
	}

	// A changed file is rehashed.
	path := filepath.Join(root, "a.txt")
	if err = os.WriteFile(path, []byte("changed"), 0644); err != nil {
		t.Fatal(err)
	}
	later := info.ModTime().Add(time.Minute)
	if err = os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	got, err = s.Enumerate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := pullsync.DigestBytes([]byte("changed")); got[0].Digest != want {
		t.Errorf("got digest %s for changed a.txt, want %s", got[0].Digest, want)
	}
}

func TestSharedCache(t *testing.T) {
	var (
		ctx   = context.Background()
		c     = mem.New()
		root1 = t.TempDir()
		root2 = t.TempDir()
		mtime = time.Unix(1700000000, 0)
	)

	// Same name, size, and mtime; different content.
	testutil.WriteTree(t, root1, map[string]string{"a.txt": "one"})
	testutil.WriteTree(t, root2, map[string]string{"a.txt": "two"})
	for _, root := range []string{root1, root2} {
		if err := os.Chtimes(filepath.Join(root, "a.txt"), mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 2; i++ {
		for root, content := range map[string]string{root1: "one", root2: "two"} {
			got, err := New(root, WithCache(c)).Enumerate(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(pullsync.Inventory{rec("a.txt", content)}, got); diff != "" {
				t.Errorf("pass %d, %s: mismatch (-want +got):\n%s", i, root, diff)
			}
		}
	}
	if c.Len() != 2 {
		t.Errorf("cache has %d entries, want 2", c.Len())
	}
}

func TestOpen(t *testing.T) {
	var (
		ctx  = context.Background()
		root = t.TempDir()
		s    = New(root)
	)
	testutil.WriteTree(t, root, map[string]string{"a.txt": "ay", "sub/c.txt": "sea"})

	for name, want := range map[string]string{"a.txt": "ay", "sub/c.txt": "sea"} {
		rc, size, err := s.Open(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != want || size != int64(len(want)) {
			t.Errorf("got %q (size %d) for %s, want %q", b, size, name, want)
		}
	}

	for _, name := range []string{"../a.txt", "/etc/passwd", "sub/../../x"} {
		_, _, err := s.Open(ctx, name)
		if !errors.Is(err, pullsync.ErrUnsafePath) || !pullsync.IsKind(err, pullsync.KindProtocol) {
			t.Errorf("got error %v for %q, want protocol ErrUnsafePath", err, name)
		}
	}

	_, _, err := s.Open(ctx, "missing.txt")
	if !pullsync.IsKind(err, pullsync.KindFilesystem) {
		t.Errorf("got error %v for missing file, want filesystem error", err)
	}

	_, _, err = s.Open(ctx, "sub")
	if !pullsync.IsKind(err, pullsync.KindFilesystem) {
		t.Errorf("got error %v for directory, want filesystem error", err)
	}
}

func TestOpenSymlinkEscape(t *testing.T) {
	var (
		root    = t.TempDir()
		outside = t.TempDir()
	)
	testutil.WriteTree(t, outside, map[string]string{"secret": "shh"})
	if err := os.Symlink(filepath.Join(outside, "secret"), filepath.Join(root, "innocent")); err != nil {
		t.Skipf("cannot create symlink: %s", err)
	}

	_, _, err := New(root).Open(context.Background(), "innocent")
	if !errors.Is(err, pullsync.ErrUnsafePath) {
		t.Errorf("got error %v, want ErrUnsafePath", err)
	}
}

func TestRegistry(t *testing.T) {
	var (
		ctx  = context.Background()
		root = t.TempDir()
	)
	testutil.WriteTree(t, root, map[string]string{"a.txt": "ay", "sub/c.txt": "sea"})

	s, err := source.Create(ctx, "dir", map[string]interface{}{
		"root":      root,
		"recursive": true,
		"cache":     map[string]interface{}{"type": "mem"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Enumerate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d records, want 2", len(got))
	}

	if _, err = source.Create(ctx, "dir", map[string]interface{}{}); err == nil {
		t.Error("got no error for missing root")
	}
}
