package access

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies access errors. The values double as the "error" field of
// HTTP error responses.
type Kind string

const (
	KindNotFound        Kind = "NotFound"
	KindAlreadyGranted  Kind = "AlreadyGranted"
	KindAlreadyMember   Kind = "AlreadyMember"
	KindDuplicateGroup  Kind = "DuplicateGroup"
	KindNotGranted      Kind = "NotGranted"
	KindNotMember       Kind = "NotMember"
	KindAlreadyExists   Kind = "AlreadyExists"
	KindInvalidArgument Kind = "InvalidArgument"
	KindStorageFailure  Kind = "StorageFailure"
)

// HTTPStatus maps the kind onto the status code used by the HTTP API.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindStorageFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Error is the error type returned by every access operation.
type Error struct {
	Kind    Kind
	Op      string // operation name, e.g. "grant_individual_access"
	Message string // human-readable description
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind, so errors.Is(err, ErrNotFound) holds
// for any NotFound error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons. Storage backends wrap ErrNotFound and
// ErrAlreadyExists to report missing or duplicate owners.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrAlreadyGranted  = &Error{Kind: KindAlreadyGranted}
	ErrAlreadyMember   = &Error{Kind: KindAlreadyMember}
	ErrDuplicateGroup  = &Error{Kind: KindDuplicateGroup}
	ErrNotGranted      = &Error{Kind: KindNotGranted}
	ErrNotMember       = &Error{Kind: KindNotMember}
	ErrAlreadyExists   = &Error{Kind: KindAlreadyExists}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrStorageFailure  = &Error{Kind: KindStorageFailure}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err. Errors that are not *Error are reported as
// StorageFailure; nil returns the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageFailure
}

// MessageOf returns the human-readable message of err without the operation
// prefix or wrapped cause.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
