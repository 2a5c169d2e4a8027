package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
)

// HeaderSize is the size of every message header.
const HeaderSize = 5

// Header is a decoded message header.
type Header struct {
	Command pullsync.Command
	Length  uint32
}

// EncodeHeader produces the HeaderSize-byte encoding of a message header.
func EncodeHeader(cmd pullsync.Command, payloadLen uint32) []byte {
	return appendHeader(make([]byte, 0, HeaderSize), cmd, payloadLen)
}

func appendHeader(buf []byte, cmd pullsync.Command, payloadLen uint32) []byte {
	buf = append(buf, byte(cmd))
	return binary.BigEndian.AppendUint32(buf, payloadLen)
}

// DecodeHeader decodes the first HeaderSize bytes of b.
// It does not check that the command is one it knows;
// that is up to the caller.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, pullsync.Protocol(errors.Wrapf(pullsync.ErrMalformedHeader, "got %d bytes, want %d", len(b), HeaderSize))
	}
	return Header{
		Command: pullsync.Command(b[0]),
		Length:  binary.BigEndian.Uint32(b[1:HeaderSize]),
	}, nil
}
