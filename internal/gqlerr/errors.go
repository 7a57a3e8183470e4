// Package gqlerr defines the stable error taxonomy exposed across the
// coordinator boundary.
package gqlerr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable error codes from the error taxonomy.
type Kind string

const (
	SyntaxError        Kind = "SyntaxError"
	SemanticError       Kind = "SemanticError"
	TypeError           Kind = "TypeError"
	NotFound            Kind = "NotFound"
	AlreadyExists       Kind = "AlreadyExists"
	PermissionDenied    Kind = "PermissionDenied"
	Conflict            Kind = "Conflict"
	Timeout             Kind = "Timeout"
	Corruption          Kind = "Corruption"
	StorageUnavailable  Kind = "StorageUnavailable"
	Internal            Kind = "Internal"
	UnknownProcedure    Kind = "UnknownProcedure"
)

// Location pins an error to a place in the source or execution plan.
type Location struct {
	Line   int    // 1-based source line, for parse/semantic errors
	Column int    // 1-based source column
	Token  string // offending token text, for parse errors
	Op     string // operator name, for execution errors
	Entity string // entity id, for storage errors
}

func (l Location) String() string {
	if l.Line > 0 {
		if l.Token != "" {
			return fmt.Sprintf("line %d, column %d, near %q", l.Line, l.Column, l.Token)
		}
		return fmt.Sprintf("line %d, column %d", l.Line, l.Column)
	}
	if l.Op != "" {
		return fmt.Sprintf("operator %s", l.Op)
	}
	if l.Entity != "" {
		return fmt.Sprintf("entity %s", l.Entity)
	}
	return ""
}

// Error is the concrete error type carried across the coordinator
// boundary. It always has a Kind and a human message; Location and the
// wrapped cause are optional.
type Error struct {
	Kind     Kind
	Message  string
	Location Location
	Cause    error
}

func (e *Error) Error() string {
	loc := e.Location.String()
	switch {
	case loc != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Message, loc, e.Cause)
	case loc != "":
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, loc)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, gqlerr.NotFound) style checks against a bare
// Kind sentinel constructed via New.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs a bare Error of the given kind, useful as an
// errors.Is target: gqlerr.New(gqlerr.NotFound, "").
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind and message context to an existing error, keeping
// it reachable via errors.Unwrap / errors.As.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithLocation returns a copy of e with loc attached.
func (e *Error) WithLocation(loc Location) *Error {
	cp := *e
	cp.Location = loc
	return &cp
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, else
// Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Syntaxf(loc Location, format string, args ...any) *Error {
	return &Error{Kind: SyntaxError, Message: fmt.Sprintf(format, args...), Location: loc}
}

func Semanticf(loc Location, format string, args ...any) *Error {
	return &Error{Kind: SemanticError, Message: fmt.Sprintf(format, args...), Location: loc}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}

func AlreadyExistsf(format string, args ...any) *Error {
	return &Error{Kind: AlreadyExists, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: Conflict, Message: fmt.Sprintf(format, args...)}
}

func PermissionDeniedf(format string, args ...any) *Error {
	return &Error{Kind: PermissionDenied, Message: fmt.Sprintf(format, args...)}
}

func Internalf(format string, args ...any) *Error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...)}
}
