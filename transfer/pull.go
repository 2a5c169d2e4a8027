package transfer

import (
	"context"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/wire"
)

// TempPrefix begins the names of files being received.
const TempPrefix = pullsync.ReservedPrefix + "-tmp-"

// Option is the type of an option passed to Pull.
type Option func(*options)

type options struct {
	verify bool
	onFile func(pullsync.FileRecord, uint64)
}

// Verify tells Pull to hash each file as it arrives
// and to fail with pullsync.ErrDigestMismatch if it does not match the record's digest.
// A file that fails verification is not left in place.
func Verify(verify bool) Option {
	return func(o *options) {
		o.verify = verify
	}
}

// OnFile tells Pull to call f with each file's record and size once it is in place.
func OnFile(f func(pullsync.FileRecord, uint64)) Option {
	return func(o *options) {
		o.onFile = f
	}
}

// Pull requests files over rw and writes each one beneath root,
// creating directories as needed.
// It returns the number of files written.
//
// If files is empty,
// Pull does nothing and returns zero.
//
// A file is written to a temporary name and renamed into place only when all its bytes have arrived,
// so a failure mid-transfer never leaves a truncated file under a real name.
// Files that arrived before the failure stay in place.
func Pull(ctx context.Context, rw io.ReadWriter, root string, files pullsync.Inventory, opts ...Option) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	payload, err := wire.EncodeInventory(files)
	if err != nil {
		return 0, errors.Wrap(err, "encoding PULL request")
	}
	if err = wire.WriteFrame(rw, pullsync.CmdPull, payload); err != nil {
		return 0, err
	}

	for i, want := range files {
		if err = ctx.Err(); err != nil {
			return i, err
		}
		rec, size, err := Receive(rw, root, o.verify)
		if err != nil {
			return i, errors.Wrapf(err, "receiving file %d of %d (%s)", i+1, len(files), want.Name)
		}
		if o.onFile != nil {
			o.onFile(rec, size)
		}
	}
	return len(files), nil
}

// Receive reads one PULL response frame from r
// and writes the file it carries beneath root.
// It returns the record from the frame and the file's size.
func Receive(r io.Reader, root string, verify bool) (pullsync.FileRecord, uint64, error) {
	h, err := wire.ReadHeader(r)
	if err != nil {
		return pullsync.FileRecord{}, 0, err
	}
	if h.Command != pullsync.CmdPull {
		return pullsync.FileRecord{}, 0, pullsync.Protocol(errors.Wrapf(pullsync.ErrUnexpectedCommand, "got %s, want PULL", h.Command))
	}

	fh, err := wire.ReadFileTransferHeader(r, h.Length)
	if err != nil {
		return pullsync.FileRecord{}, 0, err
	}
	dest, err := pullsync.SafeJoin(root, fh.Record.Name)
	if err != nil {
		return pullsync.FileRecord{}, 0, err
	}

	var want string
	if verify {
		want = fh.Record.Digest
	}
	if err = writeAtomic(dest, r, fh.Size, want); err != nil {
		return pullsync.FileRecord{}, 0, err
	}
	return fh.Record, fh.Size, nil
}

// writeAtomic copies size bytes from r to a temporary file next to dest,
// then renames it to dest.
// If wantDigest is not empty,
// the content must have that digest.
func writeAtomic(dest string, r io.Reader, size uint64, wantDigest string) (err error) {
	dir := filepath.Dir(dest)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return pullsync.Filesystem(errors.Wrapf(err, "making dir %s", dir))
	}

	f, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return pullsync.Filesystem(errors.Wrapf(err, "creating temp file in %s", dir))
	}
	tmpname := f.Name()

	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpname)
		}
	}()

	var (
		w io.Writer = f
		h hash.Hash
	)
	if wantDigest != "" {
		h = pullsync.NewHash()
		w = io.MultiWriter(f, h)
	}

	if err = wire.CopyFileBody(w, r, size); err != nil {
		return errors.Wrapf(err, "receiving %s", dest)
	}
	if h != nil {
		if got := pullsync.HashDigest(h); got != wantDigest {
			return pullsync.Protocol(errors.Wrapf(pullsync.ErrDigestMismatch, "%s: got %s, want %s", dest, got, wantDigest))
		}
	}

	if err = f.Chmod(0644); err != nil {
		return pullsync.Filesystem(errors.Wrapf(err, "setting mode of %s", tmpname))
	}
	if err = f.Sync(); err != nil {
		return pullsync.Filesystem(errors.Wrapf(err, "syncing %s", tmpname))
	}
	if err = f.Close(); err != nil {
		return pullsync.Filesystem(errors.Wrapf(err, "closing %s", tmpname))
	}
	if err = os.Rename(tmpname, dest); err != nil {
		return pullsync.Filesystem(errors.Wrapf(err, "renaming %s to %s", tmpname, dest))
	}
	return nil
}
