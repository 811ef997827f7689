package feed

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies fetch errors.
type ErrorKind int

const (
	// InvalidRequest means the request could not be constructed. Retrying will not help.
	InvalidRequest ErrorKind = iota + 1
	// TransportFailure means the network call failed or returned an unexpected status.
	TransportFailure
	// MalformedResponse means the response did not have the expected structure.
	MalformedResponse
	// DecodeFailure is a per-record error. It never fails the whole batch.
	DecodeFailure
)

var errorKinds = map[ErrorKind]struct {
	name string
	code int
}{
	InvalidRequest:    {"invalid request", 450},
	TransportFailure:  {"transport failure", 451},
	DecodeFailure:     {"decode failure", 452},
	MalformedResponse: {"malformed response", 453},
}

func (k ErrorKind) String() string {
	if kind, ok := errorKinds[k]; ok {
		return kind.name
	}

	return fmt.Sprintf("error kind %d", int(k))
}

// Code returns a numeric error code for this kind.
func (k ErrorKind) Code() int {
	return errorKinds[k].code
}

func (k ErrorKind) Retryable() bool {
	return k == TransportFailure || k == MalformedResponse
}

// Error is a classified fetch error.
type Error struct {
	Kind ErrorKind
	// Message is a human-readable description which may be shown to the user.
	Message string
	Cause   error
}

// NewError creates a classified error.
// If message is empty, DefaultMessage is used.
func NewError(kind ErrorKind, message string, cause error) *Error {
	if message == "" {
		message = DefaultMessage
	}

	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

func (e *Error) Code() int {
	return e.Kind.Code()
}

func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Code(), e.Message)
	}

	return fmt.Sprintf("%s (%d): %s: %v", e.Kind, e.Code(), e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the ErrorKind of err, or zero if err is not classified.
func KindOf(err error) ErrorKind {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Kind
	}

	return 0
}

// MessageOf returns a human-readable message for err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}

	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Message
	}

	return err.Error()
}
