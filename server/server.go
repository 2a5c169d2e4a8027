// Package server answers pullsync requests from a source.Source.
package server

import (
	"context"
	"io"
	"log"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/source"
	"github.com/bobg/pullsync/transfer"
	"github.com/bobg/pullsync/wire"
)

// Server serves the files in a Source to any number of clients.
type Server struct {
	Source source.Source

	// Concurrent, if true, serves connections in parallel.
	// Otherwise one connection is served to completion before the next is accepted.
	Concurrent bool

	// MaxConns limits the number of connections served at once when Concurrent is true.
	// Zero means no limit.
	MaxConns int
}

// Serve accepts connections from ln and serves each one with ServeConn
// until ctx is canceled
// (in which case it closes ln and returns nil)
// or ln fails.
//
// An error serving one connection is logged
// and does not stop the server.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var g errgroup.Group
	if s.MaxConns > 0 {
		g.SetLimit(s.MaxConns)
	}

	log.Printf("listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				g.Wait()
				return nil
			}
			g.Wait()
			return errors.Wrap(err, "accepting connection")
		}

		if !s.Concurrent {
			s.handle(ctx, conn)
			continue
		}
		g.Go(func() error {
			s.handle(ctx, conn)
			return nil
		})
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr()
	log.Printf("connection from %s", addr)
	if err := ServeConn(ctx, conn, s.Source); err != nil {
		log.Printf("ERROR serving %s: %s", addr, err)
		return
	}
	log.Printf("%s disconnected", addr)
}

// ServeConn answers requests on conn until the client sends LEAVE,
// closes the connection,
// or a connection-fatal error occurs.
// It closes conn before returning.
//
// A client that disconnects between requests is not an error.
func ServeConn(ctx context.Context, conn io.ReadWriteCloser, src source.Source) error {
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock reads when the context is canceled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		h, err := wire.ReadHeader(conn)
		if wire.ClosedBetweenFrames(err) {
			return nil
		}
		if err != nil {
			return err
		}

		switch h.Command {
		case pullsync.CmdList:
			err = handleList(ctx, conn, src, h)

		case pullsync.CmdPull:
			err = handlePull(ctx, conn, src, h)

		case pullsync.CmdLeave:
			if err = wire.Discard(conn, h); err != nil {
				return err
			}
			return nil

		default:
			log.Printf("Unknown command %s", h.Command)
			err = wire.Discard(conn, h)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(err, "handling %s", h.Command)
		}
	}
}

func handleList(ctx context.Context, conn io.ReadWriter, src source.Source, h wire.Header) error {
	if err := wire.Discard(conn, h); err != nil {
		return err
	}
	inv, err := src.Enumerate(ctx)
	if err != nil {
		return errors.Wrap(err, "enumerating files")
	}
	if len(inv) > pullsync.MaxRecords {
		log.Printf("ERROR %d files exceed the limit of %d per inventory, sending the first %d", len(inv), pullsync.MaxRecords, pullsync.MaxRecords)
		inv = inv[:pullsync.MaxRecords]
	}
	payload, err := wire.EncodeInventory(inv)
	if err != nil {
		return err
	}
	return wire.WriteFrame(conn, pullsync.CmdList, payload)
}

func handlePull(ctx context.Context, conn io.ReadWriter, src source.Source, h wire.Header) error {
	payload, err := wire.ReadPayload(conn, h, wire.MaxInventoryPayload)
	if err != nil {
		return err
	}
	req, err := wire.DecodeInventory(payload)
	if err != nil {
		return errors.Wrap(err, "decoding PULL request")
	}
	log.Printf("PULL of %d file(s)", len(req))
	return transfer.Send(ctx, conn, src, req)
}
