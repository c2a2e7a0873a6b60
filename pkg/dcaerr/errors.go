// Package dcaerr defines the engine's closed set of error kinds. Every
// component that can fail in a way a caller needs to branch on returns (or
// wraps) an *Error carrying one of these kinds, instead of leaking
// transport- or driver-specific error types upstream.
package dcaerr

import (
	"errors"
	"fmt"
)

// Kind is a closed enum of the engine's error categories.
type Kind string

const (
	InvalidArgument       Kind = "invalid_argument"
	PairUnsupported       Kind = "pair_unsupported"
	InsufficientBalance   Kind = "insufficient_balance"
	InsufficientAllowance Kind = "insufficient_allowance"
	SlippageExceeded      Kind = "slippage_exceeded"
	DeadlineExpired       Kind = "deadline_expired"
	WrapFailed            Kind = "wrap_failed"
	UnwrapFailed          Kind = "unwrap_failed"
	TransactionFailed     Kind = "transaction_failed"
	UpstreamError         Kind = "upstream_error"
	NotFound              Kind = "not_found"
	TerminalState         Kind = "terminal_state"
	QuotaExceeded         Kind = "quota_exceeded"
)

// Error is the engine's single error type: a closed Kind plus a message and
// an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that carries cause, preserving it for errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports equality by Kind, so errors.Is(err, dcaerr.New(SlippageExceeded, ""))
// matches any slippage_exceeded error regardless of message.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Of builds a sentinel used only to match a Kind via errors.Is.
func Of(kind Kind) *Error {
	return &Error{Kind: kind}
}
