// Package apperrors is the error taxonomy shared by the stores, the dispatch
// runner and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeConfiguration Code = "CONFIGURATION"
	CodeValidation    Code = "VALIDATION"
	CodeTransport     Code = "TRANSPORT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeInternal      Code = "INTERNAL"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Configuration: missing or unusable tenant credentials.
func Configuration(msg string) error { return New(CodeConfiguration, msg) }

// Validation: the request/item itself is malformed; retrying will not help.
func Validation(msg string) error { return New(CodeValidation, msg) }

// Transport: the delivery provider call failed.
func Transport(cause error) error { return Wrap(CodeTransport, "transport", cause) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func Conflict(msg string) error { return New(CodeConflict, msg) }

// CodeOf returns the code of the first AppError in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
