// Package status defines the structured errors returned by the marketplace.
package status

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Error is a domain error with a kind, the entity it is about and a message
// that is safe to show to the caller.
type Error struct {
	Kind    Kind
	Subject string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Subject, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Subject, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels so callers can use errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	}
	return false
}

func NotFound(subject, message string) *Error {
	return &Error{Kind: KindNotFound, Subject: subject, Message: message}
}

func Conflict(subject, message string) *Error {
	return &Error{Kind: KindConflict, Subject: subject, Message: message}
}

func InvalidInput(subject, message string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Subject: subject, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, KindInternal
// for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Subjects.
const (
	SubjectListing     = "Listing"
	SubjectTransaction = "Transaction"
	SubjectTicket      = "Ticket"
	SubjectQuery       = "Query"
)
