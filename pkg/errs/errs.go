// Package errs classifies failures of wizard actions so handlers can report
// them without inspecting messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a user-correctable input problem. No network call was made.
	KindValidation
	// KindTransport covers network failures, non-2xx statuses and unreadable bodies.
	KindTransport
	// KindSchema is a response that parsed but lacks the expected fields.
	KindSchema
	// KindBusy means another request already holds the controller's slot.
	KindBusy
	// KindNotFound is an unknown session, record or message id.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindSchema:
		return "schema"
	case KindBusy:
		return "busy"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified failure of the operation Op.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the human-readable part without the operation prefix.
func (e *Error) Message() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Transport(op, msg string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Msg: msg, Err: err}
}

func Schema(op, format string, args ...any) *Error {
	return &Error{Kind: KindSchema, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Busy(op string) *Error {
	return &Error{Kind: KindBusy, Op: op, Msg: "a request is already in progress"}
}

func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}
