package billing

import (
	"errors"
	"fmt"
)

// Kind classifies a billing error for transport mapping and retry policy.
type Kind int

const (
	// KindValidation marks input shape or domain violations. No side effects.
	KindValidation Kind = iota + 1
	// KindNotFound marks references to entities that do not exist.
	KindNotFound
	// KindConflict marks uniqueness or state-machine violations.
	KindConflict
	// KindOverpayment marks payments beyond the invoice balance. It is a
	// specialisation of KindConflict.
	KindOverpayment
	// KindCollaborator marks downstream collaborator failures.
	KindCollaborator
)

// Error is the billing engine's error value. Overpayment errors also match
// KindConflict via IsKind.
type Error struct {
	Kind      Kind
	Message   string
	Retriable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a KindValidation error.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a KindConflict error.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Overpaymentf builds a KindOverpayment error.
func Overpaymentf(format string, args ...any) error {
	return &Error{Kind: KindOverpayment, Message: fmt.Sprintf(format, args...)}
}

// Collaborator wraps a downstream failure. Retriable failures carry a retry
// hint to the caller; terminal ones are logged and surfaced as-is.
func Collaborator(err error, retriable bool, format string, args ...any) error {
	return &Error{Kind: KindCollaborator, Message: fmt.Sprintf(format, args...), Retriable: retriable, Err: err}
}

// IsKind reports whether err carries the given kind. Overpayment errors
// match both KindOverpayment and KindConflict.
func IsKind(err error, kind Kind) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	if be.Kind == kind {
		return true
	}
	return kind == KindConflict && be.Kind == KindOverpayment
}

// IsRetriable reports whether err is a retriable collaborator failure.
func IsRetriable(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Retriable
}

// AlreadyExists signals that an idempotent create hit an existing record.
// It carries the invoice number of the prior invoice so callers can return
// it instead of creating a duplicate.
type AlreadyExists struct {
	InvoiceNumber string
}

func (e *AlreadyExists) Error() string {
	return fmt.Sprintf("invoice already exists: %s", e.InvoiceNumber)
}

// AsAlreadyExists unwraps err as an AlreadyExists, if it is one.
func AsAlreadyExists(err error) (*AlreadyExists, bool) {
	var ae *AlreadyExists
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
