package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteTree creates the files in the map (name -> content) beneath root.
// Names use slash separators.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// ReadTree returns the regular files beneath root (name -> content).
// Names use slash separators.
func ReadTree(t *testing.T, root string) map[string]string {
	t.Helper()

	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

// Leftovers returns the names beneath root that begin with prefix,
// such as abandoned temporary files.
func Leftovers(t *testing.T, root, prefix string) []string {
	t.Helper()

	var out []string
	for name := range ReadTree(t, root) {
		if strings.HasPrefix(filepath.Base(name), prefix) {
			out = append(out, name)
		}
	}
	return out
}
