package main

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync/server"
)

func (c maincmd) serve(ctx context.Context, addr, root string, recursive, concurrent bool, maxConns int, _ []string) error {
	src, err := c.newSource(ctx, root, recursive)
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	defer lis.Close()

	s := &server.Server{
		Source:     src,
		Concurrent: concurrent,
		MaxConns:   maxConns,
	}
	return s.Serve(ctx, lis)
}
