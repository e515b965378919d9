package kglti

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Kind classifies every failure surfaced by the projection and mutation operations.
type Kind int

const (
	// KindInternal is any unexpected store or serialization failure.
	KindInternal Kind = iota
	// KindBadRequest means caller input was missing or invalid. It is always
	// detected before the store is touched.
	KindBadRequest
	// KindNotFound means a referenced element id did not resolve.
	KindNotFound
	// KindConnectionUnavailable means the store could not be reached. Clients may retry.
	KindConnectionUnavailable
	// KindIntegrity means the store returned a structurally invalid relationship.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConnectionUnavailable:
		return "CONNECTION_UNAVAILABLE"
	case KindIntegrity:
		return "INTEGRITY_ERROR"
	default:
		return "INTERNAL_PROJECTION_ERROR"
	}
}

// HTTPStatus maps the kind onto the status code returned by the HTTP API.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConnectionUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error returned by every exported operation.
// It supports error wrapping, and errors.Is matches any *Error of the same Kind,
// so callers can test against the sentinels below.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Sentinels for errors.Is.
var (
	ErrBadRequest            = &Error{Kind: KindBadRequest, Message: "bad request"}
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "record not found"}
	ErrConnectionUnavailable = &Error{Kind: KindConnectionUnavailable, Message: "database connection unavailable"}
	ErrIntegrity             = &Error{Kind: KindIntegrity, Message: "data integrity error"}
	ErrInternal              = &Error{Kind: KindInternal, Message: "internal projection error"}
)

// Error formats as "op: message: cause", omitting empty parts.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the caller may retry the same request unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindConnectionUnavailable
}

// KindOf extracts the Kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func badRequest(op, format string, args ...any) *Error {
	return newError(KindBadRequest, op, format, args...)
}

func notFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, format, args...)
}

func integrityError(op, format string, args ...any) *Error {
	return newError(KindIntegrity, op, format, args...)
}

// classifyStoreError maps a raw driver or context error onto the taxonomy.
// Errors that are already classified keep their kind and gain op if missing.
func classifyStoreError(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			cp := *e
			cp.Op = op
			return &cp
		}
		return e
	}
	switch {
	case isConnectivityError(err):
		return &Error{Kind: KindConnectionUnavailable, Op: op, Message: "database connection error", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindInternal, Op: op, Message: "query timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindInternal, Op: op, Message: "request cancelled", Err: err}
	default:
		return &Error{Kind: KindInternal, Op: op, Message: "unexpected error", Err: err}
	}
}

// isConnectivityError walks the wrap chain looking for a driver connectivity failure.
func isConnectivityError(err error) bool {
	for err != nil {
		if neo4j.IsConnectivityError(err) {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
