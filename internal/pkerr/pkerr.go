// Package pkerr is the closed error-code enumeration for the pK: a
// comparable, switchable sum type shared by both sides of the wire.
package pkerr

import "fmt"

// Code is a closed taxonomy of pK-level failures.
type Code uint8

const (
	// DuplicatePort: a port number was requested that is already owned.
	DuplicatePort Code = iota + 1
	// NonExistentPort: an operation referenced a port that does not exist
	// locally or in the registry.
	NonExistentPort
	// PortNumberOutOfRange: a requested port value is outside the u64
	// domain or the permitted range.
	PortNumberOutOfRange
	// CannotAllocatePort: ephemeral allocation exhausted.
	CannotAllocatePort
	// BadDestination: send/deliver referenced an unknown destination port.
	BadDestination
	// NotOwner: a close was attempted on a port not owned by the
	// requesting session.
	NotOwner
	// MalformedFrame: wire bytes could not be decoded as a valid frame.
	MalformedFrame
	// ConnectionLost: the stream to (or from) the peer was reset or
	// closed unexpectedly.
	ConnectionLost
)

func (c Code) String() string {
	switch c {
	case DuplicatePort:
		return "DuplicatePort"
	case NonExistentPort:
		return "NonExistentPort"
	case PortNumberOutOfRange:
		return "PortNumberOutOfRange"
	case CannotAllocatePort:
		return "CannotAllocatePort"
	case BadDestination:
		return "BadDestination"
	case NotOwner:
		return "NotOwner"
	case MalformedFrame:
		return "MalformedFrame"
	case ConnectionLost:
		return "ConnectionLost"
	default:
		return "Unknown"
	}
}

// Error wraps a Code with the context in which it occurred. It implements
// error and supports errors.Is against its Code via Unwrap-free comparison
// (compare with errors.As and inspect Code, or use Is).
type Error struct {
	Code Code
	Op   string // operation that failed, e.g. "open_port", "dispatch"
	Err  error  // optional underlying cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pk: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("pk: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Code, so callers can
// write errors.Is(err, pkerr.New("", pkerr.NonExistentPort, nil)) or more
// idiomatically compare codes directly via errors.As.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New constructs an *Error for code encountered during op, optionally
// wrapping cause.
func New(op string, code Code, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}
