package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/cache"
)

func (c maincmd) ls(ctx context.Context, root string, recursive bool, _ []string) error {
	src, err := c.newSource(ctx, root, recursive)
	if err != nil {
		return err
	}
	inv, err := src.Enumerate(ctx)
	if err != nil {
		return err
	}
	printInventory(c.stdout, inv)
	return nil
}

func printInventory(w io.Writer, inv pullsync.Inventory) {
	for _, rec := range inv {
		fmt.Fprintf(w, "%s %s\n", rec.Digest, rec.Name)
	}
}

func (c maincmd) cacheLs(ctx context.Context, _ []string) error {
	ch, err := c.newCache(ctx)
	if err != nil {
		return err
	}
	if ch == nil {
		return errors.New("no cache configured")
	}
	l, ok := cache.FindLister(ch)
	if !ok {
		return fmt.Errorf("%T cannot list its entries", ch)
	}
	return l.Each(ctx, func(k cache.Key, digest string) error {
		_, err := fmt.Fprintf(c.stdout, "%s %s\n", digest, k)
		return err
	})
}
