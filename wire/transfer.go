package wire

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
)

// FileTransferUnit is one file's content in flight during a PULL response.
type FileTransferUnit struct {
	Record pullsync.FileRecord
	Data   []byte
}

// FileTransferHeader is the part of a PULL response payload that precedes the file's bytes.
type FileTransferHeader struct {
	Record pullsync.FileRecord
	Size   uint64
}

// FilePayloadLen is the payload length of a PULL response frame
// carrying size bytes of content for rec.
// It fails with pullsync.ErrPayloadTooLarge if the frame cannot be described by a uint32 length.
func FilePayloadLen(rec pullsync.FileRecord, size int64) (uint32, error) {
	if size < 0 {
		return 0, errors.Errorf("negative size %d for %s", size, rec.Name)
	}
	n := uint64(2+len(rec.Name)+len(rec.Digest)+8) + uint64(size)
	if n > math.MaxUint32 {
		return 0, pullsync.Protocol(errors.Wrapf(pullsync.ErrPayloadTooLarge, "%s is %d bytes", rec.Name, size))
	}
	return uint32(n), nil
}

// EncodeFileTransferUnit produces the payload of a PULL response frame.
func EncodeFileTransferUnit(u FileTransferUnit) ([]byte, error) {
	n, err := FilePayloadLen(u.Record, int64(len(u.Data)))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, n)
	buf, err = appendFileTransferHeader(buf, u.Record, uint64(len(u.Data)))
	if err != nil {
		return nil, err
	}
	return append(buf, u.Data...), nil
}

// DecodeFileTransferUnit parses the payload of a PULL response frame.
// The declared size must match the number of content bytes exactly;
// otherwise the error wraps pullsync.ErrSizeMismatch.
func DecodeFileTransferUnit(b []byte) (FileTransferUnit, error) {
	rec, pos, err := decodeRecord(b)
	if err != nil {
		return FileTransferUnit{}, errors.Wrap(err, "decoding file header")
	}
	if pos+8 > len(b) {
		return FileTransferUnit{}, pullsync.Protocol(errors.Wrapf(pullsync.ErrTruncatedPayload, "missing size for %s", rec.Name))
	}
	size := binary.BigEndian.Uint64(b[pos : pos+8])
	pos += 8
	if remaining := uint64(len(b) - pos); remaining != size {
		return FileTransferUnit{}, pullsync.Protocol(errors.Wrapf(pullsync.ErrSizeMismatch, "%s declares %d bytes, frame holds %d", rec.Name, size, remaining))
	}
	data := make([]byte, size)
	copy(data, b[pos:])
	return FileTransferUnit{Record: rec, Data: data}, nil
}

func appendFileTransferHeader(buf []byte, rec pullsync.FileRecord, size uint64) ([]byte, error) {
	buf, err := appendRecord(buf, rec)
	if err != nil {
		return nil, err
	}
	return binary.BigEndian.AppendUint64(buf, size), nil
}

// WriteFileFrame writes a complete PULL response frame for rec to w,
// streaming exactly size bytes of content from r.
// Failure to write to w is a transport error;
// r running dry or failing is a filesystem error.
func WriteFileFrame(w io.Writer, rec pullsync.FileRecord, size int64, r io.Reader) error {
	n, err := FilePayloadLen(rec, size)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, HeaderSize+int(n)-int(size))
	buf = appendHeader(buf, pullsync.CmdPull, n)
	buf, err = appendFileTransferHeader(buf, rec, uint64(size))
	if err != nil {
		return err
	}
	if err = writeFull(w, buf); err != nil {
		return errors.Wrapf(err, "writing frame header for %s", rec.Name)
	}

	tw := &transportWriter{w: w}
	copied, err := io.CopyN(tw, r, size)
	if tw.err != nil {
		return errors.Wrapf(tw.err, "sending %s after %d of %d bytes", rec.Name, copied, size)
	}
	if err == io.EOF {
		return pullsync.Filesystem(errors.Wrapf(pullsync.ErrSizeMismatch, "%s ended after %d of %d bytes", rec.Name, copied, size))
	}
	return pullsync.Filesystem(errors.Wrapf(err, "reading %s", rec.Name))
}

// ReadFileTransferHeader reads the fields of a PULL response payload that precede the file content.
// PayloadLen is the length from the frame header.
// On success exactly Size bytes of content remain to be read from r
// (see CopyFileBody).
func ReadFileTransferHeader(r io.Reader, payloadLen uint32) (FileTransferHeader, error) {
	lr := &io.LimitedReader{R: r, N: int64(payloadLen)}

	read := func(buf []byte, what string) error {
		err := readFull(lr, buf)
		if err != nil && lr.N == 0 {
			return pullsync.Protocol(errors.Wrapf(pullsync.ErrTruncatedPayload, "%d-byte payload ends inside %s", payloadLen, what))
		}
		return errors.Wrapf(err, "reading %s", what)
	}

	var (
		lenbuf [1]byte
		fields [2]string
	)
	for i, what := range []string{"name", "digest"} {
		if err := read(lenbuf[:], what+" length"); err != nil {
			return FileTransferHeader{}, err
		}
		field := make([]byte, lenbuf[0])
		if err := read(field, what); err != nil {
			return FileTransferHeader{}, err
		}
		fields[i] = string(field)
	}
	rec := pullsync.FileRecord{Name: fields[0], Digest: fields[1]}

	var sizebuf [8]byte
	if err := read(sizebuf[:], "size of "+rec.Name); err != nil {
		return FileTransferHeader{}, err
	}
	size := binary.BigEndian.Uint64(sizebuf[:])
	if uint64(lr.N) != size {
		return FileTransferHeader{}, pullsync.Protocol(errors.Wrapf(pullsync.ErrSizeMismatch, "%s declares %d bytes, frame holds %d", rec.Name, size, lr.N))
	}
	return FileTransferHeader{Record: rec, Size: size}, nil
}

// CopyFileBody copies exactly size content bytes from r to dst.
// Running out of input is a transport error wrapping pullsync.ErrPeerClosed;
// failure to write dst is a filesystem error.
func CopyFileBody(dst io.Writer, r io.Reader, size uint64) error {
	fw := &filesystemWriter{w: dst}
	n, err := io.CopyN(fw, r, int64(size))
	if fw.err != nil {
		return errors.Wrapf(fw.err, "after %d of %d bytes", n, size)
	}
	if err == io.EOF {
		return pullsync.Transport(errors.Wrapf(pullsync.ErrPeerClosed, "after %d of %d content bytes", n, size))
	}
	return pullsync.Transport(err)
}

type transportWriter struct {
	w   io.Writer
	err error
}

func (tw *transportWriter) Write(buf []byte) (int, error) {
	if err := writeFull(tw.w, buf); err != nil {
		tw.err = err
		return 0, err
	}
	return len(buf), nil
}

type filesystemWriter struct {
	w   io.Writer
	err error
}

func (fw *filesystemWriter) Write(buf []byte) (int, error) {
	n, err := fw.w.Write(buf)
	if err != nil {
		fw.err = pullsync.Filesystem(err)
		return n, fw.err
	}
	return n, nil
}
