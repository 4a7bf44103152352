// Package domainerrors carries coded errors across service boundaries.
//
// Services return *Error values so transports can map them to a response
// without string matching. Infrastructure failures are wrapped with Wrap so
// errors.Is still reaches the underlying sentinel.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error category. Codes are stable strings and are safe to
// expose to API clients.
type Code string

const (
	// Taxonomy of the agreement core.
	CodeValidation         Code = "validation_error"
	CodeInsufficientFunds  Code = "insufficient_funds"
	CodeUnsupportedMode    Code = "unsupported_mode"
	CodeArithmeticOverflow Code = "arithmetic_overflow"

	// Ambient codes used by transports and adapters.
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to err. A nil err yields a plain coded error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost code in err's chain, or CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}
