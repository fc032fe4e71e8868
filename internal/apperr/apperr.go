// Package apperr classifies failures of user-initiated operations into what the user is told.
package apperr

import (
	"errors"
	"fmt"

	"crypto-invest-platform-go/internal/backend"
)

type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejected:
		return "rejected"
	}
	return "unexpected"
}

const (
	GenericRejected   = "The operation could not be completed. Please try again."
	GenericUnexpected = "An unexpected error occurred. Please try again later."
)

// Error is a classified failure. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation is a rejection raised locally before any network call.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Rejected is a business rejection reported by the server. An empty message falls back to a generic one.
func Rejected(message string) error {
	if message == "" {
		message = GenericRejected
	}
	return &Error{Kind: KindRejected, Message: message}
}

// Unexpected wraps any other failure.
func Unexpected(err error) error {
	return &Error{Kind: KindUnexpected, Message: GenericUnexpected, Err: err}
}

// FromBackend classifies an error returned by a backend call. Business rejections keep
// the server's message; everything else is unexpected.
func FromBackend(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *backend.RPCError
	if errors.As(err, &rpcErr) {
		return Rejected(rpcErr.Message)
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return Unexpected(err)
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return GenericUnexpected
}

// IsKind reports whether err is classified as kind. Unclassified errors count as unexpected.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return kind == KindUnexpected
}
