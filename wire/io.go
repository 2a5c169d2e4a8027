package wire

import (
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
)

// MaxInventoryPayload is the largest possible encoded inventory.
const MaxInventoryPayload = 1 + pullsync.MaxRecords*(2+2*pullsync.MaxFieldLen)

// ReadHeader reads exactly HeaderSize bytes from r and decodes them.
// If r is at EOF before the first byte,
// the error wraps pullsync.ErrPeerClosed.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if err := readFull(r, buf[:]); err != nil {
		return Header{}, errors.Wrap(err, "reading header")
	}
	return DecodeHeader(buf[:])
}

// ReadPayload reads the h.Length payload bytes following h.
// Payloads longer than max are refused before anything is read.
func ReadPayload(r io.Reader, h Header, max uint32) ([]byte, error) {
	if h.Length > max {
		return nil, pullsync.Protocol(errors.Wrapf(pullsync.ErrPayloadTooLarge, "%s payload of %d bytes (max %d)", h.Command, h.Length, max))
	}
	buf := make([]byte, h.Length)
	if err := readFull(r, buf); err != nil {
		return nil, errors.Wrapf(err, "reading %d-byte %s payload", h.Length, h.Command)
	}
	return buf, nil
}

// ReadFrame reads one header and its payload.
func ReadFrame(r io.Reader, max uint32) (Header, []byte, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	payload, err := ReadPayload(r, h, max)
	return h, payload, err
}

// Discard reads and throws away the payload following h.
func Discard(r io.Reader, h Header) error {
	n, err := io.CopyN(io.Discard, r, int64(h.Length))
	if err == io.EOF {
		return pullsync.Transport(errors.Wrapf(pullsync.ErrPeerClosed, "after %d of %d payload bytes", n, h.Length))
	}
	return pullsync.Transport(err)
}

// ClosedBetweenFrames tells whether err,
// from ReadHeader,
// means the peer closed the connection before sending any part of a new frame.
// A peer that closes partway through a header is not between frames.
func ClosedBetweenFrames(err error) bool {
	var e *pullsync.Error
	return errors.As(err, &e) && e.Err == pullsync.ErrPeerClosed
}

// WriteFrame writes a header and payload to w.
func WriteFrame(w io.Writer, cmd pullsync.Command, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return pullsync.Protocol(errors.Wrapf(pullsync.ErrPayloadTooLarge, "%s payload of %d bytes", cmd, len(payload)))
	}
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = appendHeader(buf, cmd, uint32(len(payload)))
	buf = append(buf, payload...)
	return errors.Wrapf(writeFull(w, buf), "writing %s frame", cmd)
}

// readFull fills buf from r.
// Any failure is a transport error;
// running out of input is reported as pullsync.ErrPeerClosed.
func readFull(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	switch err {
	case nil:
		return nil
	case io.EOF, io.ErrUnexpectedEOF:
		if n == 0 {
			return pullsync.Transport(pullsync.ErrPeerClosed)
		}
		return pullsync.Transport(errors.Wrapf(pullsync.ErrPeerClosed, "after %d of %d bytes", n, len(buf)))
	}
	return pullsync.Transport(err)
}

// writeFull writes all of buf to w.
// A write that makes no progress is a transport error.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return pullsync.Transport(err)
		}
		if n == 0 {
			return pullsync.Transport(io.ErrShortWrite)
		}
		buf = buf[n:]
	}
	return nil
}
