package pullsync

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error by what it means for the connection it happened on.
type Kind int

const (
	// KindTransport errors come from the socket:
	// connect, accept, send and receive failures,
	// and a peer disconnecting mid-message.
	// They are fatal to the connection.
	KindTransport Kind = iota + 1

	// KindProtocol errors mean the peer sent something malformed.
	// They are fatal to the connection,
	// except that the server tolerates unknown commands.
	KindProtocol

	// KindState errors mean a client command was issued out of order.
	// They are reported to the user and do not affect the connection.
	KindState

	// KindFilesystem errors come from reading or writing local files.
	// They are fatal to the transfer in progress.
	KindFilesystem
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindState:
		return "state"
	case KindFilesystem:
		return "filesystem"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	ErrMalformedHeader   = errors.New("malformed header")
	ErrTruncatedPayload  = errors.New("truncated payload")
	ErrCountMismatch     = errors.New("record count mismatch")
	ErrSizeMismatch      = errors.New("file size mismatch")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrUnexpectedCommand = errors.New("unexpected command")
	ErrUnsafePath        = errors.New("name escapes root")
	ErrTooManyRecords    = errors.New("too many records")
	ErrFieldTooLong      = errors.New("field too long")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrPeerClosed        = errors.New("peer closed connection")
	ErrDigestMismatch    = errors.New("digest mismatch")

	ErrListRequired  = errors.New("you must LIST files before performing DIFF")
	ErrDiffRequired  = errors.New("you must DIFF files before performing PULL")
	ErrSessionClosed = errors.New("session closed")

	// ErrNotFound is returned by digest caches on a miss.
	ErrNotFound = errors.New("not found")
)

// Error is an error with a Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + " error: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func withKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != 0 {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// Transport marks err as a transport error.
// It returns nil if err is nil,
// and err unchanged if it already has a Kind.
func Transport(err error) error { return withKind(KindTransport, err) }

// Protocol marks err as a protocol error.
// It returns nil if err is nil,
// and err unchanged if it already has a Kind.
func Protocol(err error) error { return withKind(KindProtocol, err) }

// State marks err as a state error.
// It returns nil if err is nil,
// and err unchanged if it already has a Kind.
func State(err error) error { return withKind(KindState, err) }

// Filesystem marks err as a filesystem error.
// It returns nil if err is nil,
// and err unchanged if it already has a Kind.
func Filesystem(err error) error { return withKind(KindFilesystem, err) }

// KindOf returns the Kind of the outermost *Error in err's chain,
// or zero if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind tells whether err has the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
