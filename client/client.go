// Package client implements the client side of a pullsync connection.
//
// A Session walks through LIST, DIFF, and PULL in order:
// LIST fetches the server's inventory,
// DIFF compares it with the local root,
// and PULL fetches the files the local root lacks.
// LIST may be repeated at any time and starts the sequence over.
package client

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/source"
	"github.com/bobg/pullsync/source/dir"
	"github.com/bobg/pullsync/transfer"
	"github.com/bobg/pullsync/wire"
)

// State is the position of a Session in the LIST, DIFF, PULL sequence.
type State int

// Session states.
const (
	Fresh State = iota
	Listed
	Diffed
	Pulled
	Left
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Listed:
		return "listed"
	case Diffed:
		return "diffed"
	case Pulled:
		return "pulled"
	case Left:
		return "left"
	}
	return "unknown"
}

// LockName is the name of the lock file a Session holds in its root during PULL.
// It is removed when PULL finishes.
const LockName = pullsync.ReservedPrefix + ".lock"

func lockfile(root string) string {
	return filepath.Join(root, LockName)
}

// Session is one client connection to a server.
// It is not safe for concurrent use.
type Session struct {
	conn  io.ReadWriteCloser
	root  string
	local source.Source

	verify bool

	state                State
	server, client, diff pullsync.Inventory

	// Once the connection is in an unknown state
	// (after a transport or protocol failure, or a failed transfer)
	// every operation reports this.
	err error

	locker flock.Locker
}

// Option is the type of an option passed to New.
type Option func(*Session)

// Verify tells the Session to check the digest of each file it pulls.
func Verify(verify bool) Option {
	return func(s *Session) {
		s.verify = verify
	}
}

// WithLocal sets the source of the local inventory computed by DIFF.
// The default is a non-recursive dir.Source over the root.
func WithLocal(src source.Source) Option {
	return func(s *Session) {
		s.local = src
	}
}

// New produces a Session speaking to a server over conn
// and writing pulled files beneath root.
// The Session owns conn and closes it on Leave.
func New(conn io.ReadWriteCloser, root string, opts ...Option) *Session {
	s := &Session{
		conn:   conn,
		root:   root,
		locker: flock.Locker{Lockfile: lockfile},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.local == nil {
		s.local = dir.New(root)
	}
	return s
}

// State tells where s is in the LIST, DIFF, PULL sequence.
func (s *Session) State() State { return s.state }

// Root is the directory where pulled files are written.
func (s *Session) Root() string { return s.root }

// ServerInventory returns the inventory from the latest LIST.
func (s *Session) ServerInventory() pullsync.Inventory { return s.server.Clone() }

// ClientInventory returns the local inventory from the latest DIFF.
func (s *Session) ClientInventory() pullsync.Inventory { return s.client.Clone() }

// DiffResult returns the files the latest DIFF found missing locally.
func (s *Session) DiffResult() pullsync.Inventory { return s.diff.Clone() }

func (s *Session) check() error {
	if s.state == Left {
		return pullsync.State(pullsync.ErrSessionClosed)
	}
	return s.err
}

// fail records err as the Session's permanent error
// if it leaves the connection in an unknown state.
func (s *Session) fail(err error) error {
	switch pullsync.KindOf(err) {
	case pullsync.KindTransport, pullsync.KindProtocol:
		s.err = err
	}
	return err
}

// List fetches the server's inventory.
// It is permitted in any state
// and discards the results of any earlier DIFF or PULL.
func (s *Session) List(ctx context.Context) (pullsync.Inventory, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := wire.WriteFrame(s.conn, pullsync.CmdList, nil); err != nil {
		return nil, s.fail(errors.Wrap(err, "sending LIST"))
	}
	h, payload, err := wire.ReadFrame(s.conn, wire.MaxInventoryPayload)
	if err != nil {
		return nil, s.fail(errors.Wrap(err, "reading LIST response"))
	}
	if h.Command != pullsync.CmdList {
		return nil, s.fail(pullsync.Protocol(errors.Wrapf(pullsync.ErrUnexpectedCommand, "got %s in response to LIST", h.Command)))
	}
	inv, err := wire.DecodeInventory(payload)
	if err != nil {
		return nil, s.fail(errors.Wrap(err, "decoding LIST response"))
	}

	s.server = inv
	s.client = nil
	s.diff = nil
	s.state = Listed

	return inv.Clone(), nil
}

// Diff computes the local inventory
// and returns the server files whose contents it lacks.
// It is permitted only directly after List;
// otherwise it fails with pullsync.ErrListRequired
// and the Session is unchanged.
//
// Diff does not use the connection.
func (s *Session) Diff(ctx context.Context) (pullsync.Inventory, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.state != Listed {
		return nil, pullsync.State(pullsync.ErrListRequired)
	}

	local, err := s.local.Enumerate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "computing local inventory")
	}

	s.client = local
	s.diff = pullsync.Diff(s.server, local)
	s.state = Diffed

	return s.diff.Clone(), nil
}

// Pull fetches the files found by the latest Diff
// and returns how many were written.
// It is permitted only directly after Diff;
// otherwise it fails with pullsync.ErrDiffRequired
// and the Session is unchanged.
//
// If Diff found nothing,
// Pull returns zero without using the connection.
//
// A failure after the request is sent leaves the connection unusable.
// Files written before the failure stay in place.
func (s *Session) Pull(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if s.state != Diffed {
		return 0, pullsync.State(pullsync.ErrDiffRequired)
	}

	if len(s.diff) == 0 {
		s.state = Pulled
		return 0, nil
	}

	unlock, err := s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	n, err := transfer.Pull(ctx, s.conn, s.root, s.diff, transfer.Verify(s.verify), transfer.OnFile(s.refresh))
	if err != nil {
		s.err = err
		return n, err
	}
	s.state = Pulled
	return n, nil
}

// lock creates the root's lock file,
// failing with flock.ErrLocked if another PULL holds a live one.
// The returned func removes it.
func (s *Session) lock() (func(), error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, pullsync.Filesystem(errors.Wrapf(err, "making root %s", s.root))
	}
	if err := s.locker.Lock(s.root); err != nil {
		return nil, pullsync.Filesystem(errors.Wrapf(err, "locking %s", s.root))
	}
	return func() {
		if err := s.locker.Unlock(s.root); err != nil {
			log.Printf("ERROR unlocking %s: %s", s.root, err)
		}
	}, nil
}

// refresh keeps the lock alive through a long PULL.
func (s *Session) refresh(pullsync.FileRecord, uint64) {
	if err := s.locker.Refresh(s.root); err != nil {
		log.Printf("ERROR refreshing lock on %s: %s", s.root, err)
	}
}

// Leave tells the server the session is over and closes the connection.
// Every later operation fails with pullsync.ErrSessionClosed.
// Leave is permitted in any state.
func (s *Session) Leave() error {
	if s.state == Left {
		return nil
	}
	s.state = Left

	var err error
	if s.err == nil {
		err = wire.WriteFrame(s.conn, pullsync.CmdLeave, nil)
	}
	if cerr := s.conn.Close(); err == nil && cerr != nil {
		err = pullsync.Transport(errors.Wrap(cerr, "closing connection"))
	}
	return errors.Wrap(err, "leaving")
}
