package news

import (
	"errors"
	"fmt"
)

// Kind classifies why a content request failed.
type Kind int

const (
	// KindTransport means the request never completed.
	KindTransport Kind = iota + 1
	// KindStatus means the API answered with a non-2xx status.
	KindStatus
	// KindMalformed means the body did not match any accepted envelope.
	KindMalformed
	// KindPrecondition means the request was rejected before any I/O.
	KindPrecondition
	// KindNotFound means a lookup produced nothing usable.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	case KindPrecondition:
		return "precondition"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// MsgInvalidFormat is the message carried by every KindMalformed error.
const MsgInvalidFormat = "Invalid API response format"

// Error is returned by every Source operation.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, when one was received
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Precondition reports a request rejected before any I/O.
func Precondition(msg string) *Error {
	return &Error{Kind: KindPrecondition, Message: msg}
}

// NotFound reports a lookup that produced nothing.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Malformed reports a body that matched no accepted envelope.
func Malformed(err error) *Error {
	return &Error{Kind: KindMalformed, Message: MsgInvalidFormat, Err: err}
}

// KindOf extracts the Kind from an error chain. Errors that are not *Error
// are treated as transport failures.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
