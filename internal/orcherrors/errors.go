// Package orcherrors defines the error kinds shared across the
// orchestrator's packages, classified so callers can branch on errors.Is
// rather than parsing messages.
package orcherrors

import (
	"errors"
	"fmt"
)

// Kind classifies an orchestrator error.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindProtocol          Kind = "protocol"
	KindTransport         Kind = "transport"
	KindTimeout           Kind = "timeout"
	KindRoutingNoSuitable Kind = "routing_no_suitable"
	KindNotFound          Kind = "not_found"
	KindParserEmpty       Kind = "parser_empty"
	KindMaxIterations     Kind = "max_iterations_reached"
)

// Error is a typed orchestrator error carrying a Kind and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Op, prefix)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, orcherrors.New(KindNotFound, "", "")) style checks work.
// Targets of any other type never match; to compare against a bare Kind,
// use the package-level Is(err, k).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an Error of the given kind, wrapping cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// NotFound builds a KindNotFound error for a named resource.
func NotFound(op, resource string) *Error {
	return New(KindNotFound, op, fmt.Sprintf("%s not found", resource))
}

// Is reports whether err is (or wraps) an Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsTimeout reports whether err is a KindTimeout error.
func IsTimeout(err error) bool { return Is(err, KindTimeout) }
