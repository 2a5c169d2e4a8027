package pullsync

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ValidName tells whether name may appear in a FileRecord:
// a non-empty, slash-separated relative path
// that stays beneath its root
// and has no segment beginning with ReservedPrefix.
func ValidName(name string) bool {
	if name == "" || len(name) > MaxFieldLen {
		return false
	}
	if strings.ContainsAny(name, "\x00\\") {
		return false
	}
	if path.IsAbs(name) || path.Clean(name) != name {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." || seg == "." {
			return false
		}
		if strings.HasPrefix(seg, ReservedPrefix) {
			return false
		}
	}
	return filepath.IsLocal(filepath.FromSlash(name))
}

// SafeJoin joins root and name,
// refusing (with a Protocol error wrapping ErrUnsafePath)
// any name for which ValidName is false.
func SafeJoin(root, name string) (string, error) {
	if !ValidName(name) {
		return "", Protocol(errors.Wrapf(ErrUnsafePath, "%q", name))
	}
	return filepath.Join(root, filepath.FromSlash(name)), nil
}
