// Package transfer moves file contents for the PULL command.
//
// The client sends one PULL request naming the files it wants
// (see Pull).
// The server answers with one independent frame per file,
// in request order
// (see Send).
// Responses are matched to requests by position.
package transfer

import (
	"context"
	"io"
	"log"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/source"
	"github.com/bobg/pullsync/wire"
)

// Send answers a PULL request.
// For each record in req,
// in order,
// it opens the named file in src and writes it to w as one frame.
//
// The response frame carries the requested record,
// with the size of the file as it is now.
// A name that escapes src fails the whole request.
func Send(ctx context.Context, w io.Writer, src source.Source, req pullsync.Inventory) error {
	for i, rec := range req {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sendFile(ctx, w, src, rec); err != nil {
			return errors.Wrapf(err, "sending file %d of %d", i+1, len(req))
		}
	}
	return nil
}

func sendFile(ctx context.Context, w io.Writer, src source.Source, rec pullsync.FileRecord) error {
	rc, size, err := src.Open(ctx, rec.Name)
	if err != nil {
		return errors.Wrapf(err, "opening %s", rec.Name)
	}
	defer rc.Close()

	if err = wire.WriteFileFrame(w, rec, size, rc); err != nil {
		return err
	}
	log.Printf("sent %s (%d bytes)", rec.Name, size)
	return nil
}
