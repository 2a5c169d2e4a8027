package wire

import (
	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
)

// EncodeInventory produces the wire form of inv,
// used both for LIST responses and for PULL requests.
func EncodeInventory(inv pullsync.Inventory) ([]byte, error) {
	if len(inv) > pullsync.MaxRecords {
		return nil, pullsync.Protocol(errors.Wrapf(pullsync.ErrTooManyRecords, "%d records (max %d)", len(inv), pullsync.MaxRecords))
	}
	size := 1
	for _, rec := range inv {
		size += 2 + len(rec.Name) + len(rec.Digest)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, uint8(len(inv)))
	for _, rec := range inv {
		var err error
		buf, err = appendRecord(buf, rec)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeInventory parses the wire form of an inventory.
// It fails with pullsync.ErrTruncatedPayload if a length prefix points past the end of b,
// and with pullsync.ErrCountMismatch if the number of records in b differs from the declared count.
func DecodeInventory(b []byte) (pullsync.Inventory, error) {
	if len(b) == 0 {
		return nil, pullsync.Protocol(errors.Wrap(pullsync.ErrTruncatedPayload, "missing record count"))
	}

	var (
		count = int(b[0])
		out   = make(pullsync.Inventory, 0, count)
		pos   = 1
	)
	for pos < len(b) {
		rec, n, err := decodeRecord(b[pos:])
		if err != nil {
			return nil, errors.Wrapf(err, "decoding record %d at offset %d", len(out), pos)
		}
		out = append(out, rec)
		pos += n
	}
	if len(out) != count {
		return nil, pullsync.Protocol(errors.Wrapf(pullsync.ErrCountMismatch, "declared %d records, found %d", count, len(out)))
	}
	return out, nil
}

func appendRecord(buf []byte, rec pullsync.FileRecord) ([]byte, error) {
	if len(rec.Name) > pullsync.MaxFieldLen {
		return nil, pullsync.Protocol(errors.Wrapf(pullsync.ErrFieldTooLong, "name of %d bytes", len(rec.Name)))
	}
	if len(rec.Digest) > pullsync.MaxFieldLen {
		return nil, pullsync.Protocol(errors.Wrapf(pullsync.ErrFieldTooLong, "digest of %d bytes for %s", len(rec.Digest), rec.Name))
	}
	buf = append(buf, uint8(len(rec.Name)))
	buf = append(buf, rec.Name...)
	buf = append(buf, uint8(len(rec.Digest)))
	buf = append(buf, rec.Digest...)
	return buf, nil
}

// decodeRecord parses one record from the front of b,
// returning it and the number of bytes it occupied.
func decodeRecord(b []byte) (pullsync.FileRecord, int, error) {
	name, pos, err := decodeField(b, 0, "name")
	if err != nil {
		return pullsync.FileRecord{}, 0, err
	}
	digest, pos, err := decodeField(b, pos, "digest")
	if err != nil {
		return pullsync.FileRecord{}, 0, err
	}
	return pullsync.FileRecord{Name: name, Digest: digest}, pos, nil
}

func decodeField(b []byte, pos int, what string) (string, int, error) {
	if pos >= len(b) {
		return "", 0, pullsync.Protocol(errors.Wrapf(pullsync.ErrTruncatedPayload, "missing %s length", what))
	}
	n := int(b[pos])
	pos++
	if pos+n > len(b) {
		return "", 0, pullsync.Protocol(errors.Wrapf(pullsync.ErrTruncatedPayload, "%s length %d exceeds remaining %d bytes", what, n, len(b)-pos))
	}
	return string(b[pos : pos+n]), pos + n, nil
}
