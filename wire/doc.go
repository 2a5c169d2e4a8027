// Package wire encodes and decodes pullsync messages.
//
// Every message is a 5-byte header followed by a payload.
// Header byte 0 is the command code;
// bytes 1-4 are the payload length as a big-endian uint32.
//
// A LIST response payload,
// and a PULL request payload,
// is an inventory:
// a one-byte record count followed by that many records,
// each laid out as
//
//   nameLen:uint8 name digestLen:uint8 digest
//
// A PULL response is one message per requested file,
// in request order,
// each payload laid out as
//
//   nameLen:uint8 name digestLen:uint8 digest size:uint64 <size bytes of content>
//
// All multi-byte integers are big-endian.
package wire
