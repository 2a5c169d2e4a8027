package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/client"
)

const menu = "\nSelect an option:\n1. LIST\n2. DIFF\n3. PULL\n4. LEAVE\n"

func (c maincmd) dial(ctx context.Context, addr, root string, recursive, verify bool) (*client.Session, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, pullsync.Filesystem(errors.Wrapf(err, "making root %s", root))
	}
	local, err := c.newDir(ctx, root, recursive)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, pullsync.Transport(errors.Wrapf(err, "connecting to %s", addr))
	}
	return client.New(conn, root, client.WithLocal(local), client.Verify(verify)), nil
}

func (c maincmd) client(ctx context.Context, addr, root string, recursive, verify bool, _ []string) error {
	sess, err := c.dial(ctx, addr, root, recursive, verify)
	if err != nil {
		return err
	}
	defer sess.Leave()

	fmt.Fprintln(c.stdout, "Connected to", addr)
	return interact(ctx, sess, os.Stdin, c.stdout)
}

// interact runs the menu until the user chooses LEAVE or input ends.
// State errors are reported and the menu continues;
// any other error ends the session.
func interact(ctx context.Context, sess *client.Session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, menu)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return errors.Wrap(err, "reading input")
			}
			return sess.Leave()
		}

		var err error
		switch strings.ToUpper(strings.TrimSpace(sc.Text())) {
		case "1", "LIST":
			err = doList(ctx, sess, out)
		case "2", "DIFF":
			err = doDiff(ctx, sess, out)
		case "3", "PULL":
			err = doPull(ctx, sess, out)
		case "4", "LEAVE":
			if err = sess.Leave(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Client connection closed.")
			return nil
		case "":
		default:
			fmt.Fprintln(out, "Invalid option. Please try again.")
		}

		if pullsync.IsKind(err, pullsync.KindState) {
			fmt.Fprintln(out, guidance(err))
			continue
		}
		if err != nil {
			return err
		}
	}
}

func guidance(err error) string {
	switch {
	case errors.Is(err, pullsync.ErrListRequired):
		return "You must LIST files before performing DIFF."
	case errors.Is(err, pullsync.ErrDiffRequired):
		return "You must DIFF files before performing PULL."
	}
	return err.Error()
}

func doList(ctx context.Context, sess *client.Session, out io.Writer) error {
	inv, err := sess.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Received LIST response with %d files.\n", len(inv))
	for _, rec := range inv {
		fmt.Fprintf(out, "File: %s\nHash: %s\n", rec.Name, rec.Digest)
	}
	fmt.Fprintln(out, "LIST completed.")
	return nil
}

func doDiff(ctx context.Context, sess *client.Session, out io.Writer) error {
	diffs, err := sess.Diff(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "DIFF completed. Found %d files missing on the client.\n", len(diffs))
	for _, rec := range diffs {
		fmt.Fprintf(out, "Missing File: %s\nHash: %s\n", rec.Name, rec.Digest)
	}
	return nil
}

func doPull(ctx context.Context, sess *client.Session, out io.Writer) error {
	want := sess.DiffResult()
	n, err := sess.Pull(ctx)
	if pullsync.IsKind(err, pullsync.KindState) {
		return err
	}
	for _, rec := range want[:n] {
		fmt.Fprintf(out, "Received and wrote file: %s\n", rec.Name)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "PULL completed. Received %d files.\n", n)
	return nil
}

func (c maincmd) sync(ctx context.Context, addr, root string, recursive, verify bool, _ []string) error {
	sess, err := c.dial(ctx, addr, root, recursive, verify)
	if err != nil {
		return err
	}
	defer sess.Leave()

	return syncOnce(ctx, sess, c.stdout)
}

func syncOnce(ctx context.Context, sess *client.Session, out io.Writer) error {
	if err := doList(ctx, sess, out); err != nil {
		return err
	}
	if err := doDiff(ctx, sess, out); err != nil {
		return err
	}
	if err := doPull(ctx, sess, out); err != nil {
		return err
	}
	return sess.Leave()
}
