package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobg/subcmd"
	"github.com/google/go-cmp/cmp"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/cache"
	"github.com/bobg/pullsync/client"
	"github.com/bobg/pullsync/server"
	"github.com/bobg/pullsync/source/dir"
	"github.com/bobg/pullsync/testutil"
)

func session(t *testing.T, serverFiles map[string]string) (*client.Session, string) {
	t.Helper()

	serverRoot := t.TempDir()
	testutil.WriteTree(t, serverRoot, serverFiles)
	clientRoot := t.TempDir()

	c1, c2 := net.Pipe()
	go server.ServeConn(context.Background(), c2, dir.New(serverRoot))

	s := client.New(c1, clientRoot)
	t.Cleanup(func() { s.Leave() })
	return s, clientRoot
}

func TestInteract(t *testing.T) {
	files := map[string]string{"a.txt": "alpha", "b.txt": "bravo"}
	sess, clientRoot := session(t, files)

	in := strings.NewReader("2\n3\nLIST\nbogus\n2\n2\npull\n4\n")
	out := new(bytes.Buffer)

	if err := interact(context.Background(), sess, in, out); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"You must LIST files before performing DIFF.",
		"You must DIFF files before performing PULL.",
		"Received LIST response with 2 files.",
		"Invalid option. Please try again.",
		"DIFF completed. Found 2 files missing on the client.",
		"Received and wrote file: a.txt",
		"PULL completed. Received 2 files.",
		"Client connection closed.",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q", want)
		}
	}
	if n := strings.Count(out.String(), "You must LIST files before performing DIFF."); n != 2 {
		t.Errorf("got %d LIST reminders, want 2", n)
	}

	if diff := cmp.Diff(files, testutil.ReadTree(t, clientRoot)); diff != "" {
		t.Errorf("client tree mismatch (-want +got):\n%s", diff)
	}
	if sess.State() != client.Left {
		t.Errorf("got state %s, want left", sess.State())
	}
}

func TestInteractEOF(t *testing.T) {
	sess, _ := session(t, nil)

	if err := interact(context.Background(), sess, strings.NewReader("1\n"), new(bytes.Buffer)); err != nil {
		t.Fatal(err)
	}
	if sess.State() != client.Left {
		t.Errorf("got state %s at end of input, want left", sess.State())
	}
}

func TestSyncOnce(t *testing.T) {
	files := map[string]string{"a.txt": "alpha"}
	sess, clientRoot := session(t, files)

	if err := syncOnce(context.Background(), sess, new(bytes.Buffer)); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(files, testutil.ReadTree(t, clientRoot)); diff != "" {
		t.Errorf("client tree mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig(t *testing.T) {
	tmpdir := t.TempDir()

	jsonFile := filepath.Join(tmpdir, "conf.json")
	err := os.WriteFile(jsonFile, []byte(`{"cache": {"type": "lru", "size": 16, "nested": {"type": "mem"}}}`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	tomlFile := filepath.Join(tmpdir, "conf.toml")
	err = os.WriteFile(tomlFile, []byte("[cache]\ntype = \"lru\"\nsize = 16\n\n[cache.nested]\ntype = \"mem\"\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	for _, filename := range []string{jsonFile, tomlFile} {
		t.Run(filepath.Ext(filename), func(t *testing.T) {
			conf, err := loadConfig(filename)
			if err != nil {
				t.Fatal(err)
			}
			c := maincmd{conf: conf}
			ch, err := c.newCache(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := cache.FindLister(ch); !ok {
				t.Errorf("%T has no Lister beneath it", ch)
			}
			testutil.CacheReadWrite(ctx, t, ch)
		})
	}
}

func TestNewSource(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"a.txt": "alpha", "sub/b.txt": "bravo"})

	// No config: a flat directory source.
	src, err := maincmd{}.newSource(ctx, root, false)
	if err != nil {
		t.Fatal(err)
	}
	inv, err := src.Enumerate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv) != 1 {
		t.Errorf("got %d records, want 1", len(inv))
	}

	// A dir source section, taking its root from the flag.
	c := maincmd{conf: map[string]interface{}{
		"source": map[string]interface{}{"type": "dir", "recursive": true},
	}}
	src, err = c.newSource(ctx, root, false)
	if err != nil {
		t.Fatal(err)
	}
	if inv, err = src.Enumerate(ctx); err != nil {
		t.Fatal(err)
	}
	if len(inv) != 2 {
		t.Errorf("got %d records, want 2", len(inv))
	}

	c = maincmd{conf: map[string]interface{}{"source": "nope"}}
	if _, err = c.newSource(ctx, root, false); err == nil {
		t.Error("got no error for malformed source section")
	}
}

func TestNewDirCache(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"a.txt": "alpha"})

	c := maincmd{conf: map[string]interface{}{
		"cache": map[string]interface{}{"type": "mem"},
	}}
	d, err := c.newDir(ctx, root, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = d.Enumerate(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestRunLs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"a.txt": "alpha", "sub/b.txt": "bravo"})

	out := new(bytes.Buffer)
	c := maincmd{stdout: out}
	if err := subcmd.Run(ctx, c, []string{"ls", "-root", root, "-recursive"}); err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("%s a.txt\n%s sub/b.txt\n", pullsync.DigestBytes([]byte("alpha")), pullsync.DigestBytes([]byte("bravo")))
	if got := out.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunCacheLs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"a.txt": "alpha"})

	out := new(bytes.Buffer)
	c := maincmd{
		conf: map[string]interface{}{
			"cache": map[string]interface{}{"type": "sqlite3", "conn": filepath.Join(t.TempDir(), "digests.db")},
		},
		stdout: out,
	}
	if err := subcmd.Run(ctx, c, []string{"ls", "-root", root}); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := subcmd.Run(ctx, c, []string{"cache-ls"}); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.HasPrefix(got, pullsync.DigestBytes([]byte("alpha"))+" ") || !strings.Contains(got, "a.txt") {
		t.Errorf("got %q, want an entry for a.txt", got)
	}

	if err := subcmd.Run(ctx, maincmd{stdout: out}, []string{"cache-ls"}); err == nil {
		t.Error("got no error from cache-ls without a cache")
	}
}

func TestRunSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	files := map[string]string{"a.txt": "alpha", "b.txt": "bravo"}
	serverRoot := t.TempDir()
	testutil.WriteTree(t, serverRoot, files)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &server.Server{Source: dir.New(serverRoot)}
	go srv.Serve(ctx, ln)

	clientRoot := filepath.Join(t.TempDir(), "files")
	out := new(bytes.Buffer)
	c := maincmd{stdout: out}
	err = subcmd.Run(ctx, c, []string{"sync", "-addr", ln.Addr().String(), "-root", clientRoot, "-verify"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(files, testutil.ReadTree(t, clientRoot)); diff != "" {
		t.Errorf("client tree mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.String(), "PULL completed. Received 2 files.") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := maincmd{stdout: new(bytes.Buffer)}
	for _, name := range []string{"client", "sync"} {
		err = subcmd.Run(context.Background(), c, []string{name, "-addr", addr, "-root", t.TempDir()})
		if !pullsync.IsKind(err, pullsync.KindTransport) {
			t.Errorf("%s: got error %v, want a transport error", name, err)
		}
	}
}

func TestRunServeBadAddr(t *testing.T) {
	c := maincmd{stdout: new(bytes.Buffer)}
	err := subcmd.Run(context.Background(), c, []string{"serve", "-addr", "no-such-host.invalid:bogus", "-root", t.TempDir(), "-concurrent", "-max-conns", "2"})
	if err == nil || !strings.Contains(err.Error(), "listening on") {
		t.Errorf("got error %v, want a listen failure", err)
	}
}
