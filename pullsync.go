package pullsync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Command is the first byte of every message header.
type Command uint8

// Command codes.
const (
	CmdList  Command = 1
	CmdDiff  Command = 2 // reserved; DIFF is computed on the client and never sent
	CmdPull  Command = 3
	CmdLeave Command = 4
)

func (c Command) String() string {
	switch c {
	case CmdList:
		return "LIST"
	case CmdDiff:
		return "DIFF"
	case CmdPull:
		return "PULL"
	case CmdLeave:
		return "LEAVE"
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

const (
	// DigestLen is the length of a hex-encoded digest.
	DigestLen = 2 * sha256.Size

	// MaxRecords is the largest number of records an Inventory can carry on the wire.
	MaxRecords = 255

	// MaxFieldLen is the longest name or digest a record can carry on the wire.
	MaxFieldLen = 255

	// ReservedPrefix begins the names of files that pullsync itself creates in a root
	// (lock files, in-progress downloads).
	// Inventory providers skip them.
	ReservedPrefix = ".pullsync"
)

// FileRecord describes one file:
// its name relative to a root,
// and the digest of its contents.
type FileRecord struct {
	Name   string
	Digest string
}

func (r FileRecord) String() string {
	return fmt.Sprintf("%s (%s)", r.Name, r.Digest)
}

// Inventory is an ordered list of FileRecords.
type Inventory []FileRecord

// Clone returns a copy of inv that shares no storage with it.
func (inv Inventory) Clone() Inventory {
	if inv == nil {
		return nil
	}
	out := make(Inventory, len(inv))
	copy(out, inv)
	return out
}

// Digests returns the set of digests in inv.
func (inv Inventory) Digests() map[string]struct{} {
	out := make(map[string]struct{}, len(inv))
	for _, rec := range inv {
		out[rec.Digest] = struct{}{}
	}
	return out
}

// NewHash returns a hash.Hash for computing digests incrementally.
// See HashDigest.
func NewHash() hash.Hash {
	return sha256.New()
}

// HashDigest formats the current sum of h,
// which must come from NewHash,
// as a digest.
func HashDigest(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// DigestBytes computes the digest of b.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DigestReader computes the digest of everything readable from r.
func DigestReader(r io.Reader) (string, error) {
	h := NewHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.Wrap(err, "hashing")
	}
	return HashDigest(h), nil
}

// ValidDigest tells whether s looks like a digest:
// DigestLen lowercase hex characters.
func ValidDigest(s string) bool {
	if len(s) != DigestLen {
		return false
	}
	return strings.IndexFunc(s, func(c rune) bool {
		return !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f')
	}) < 0
}
