package report

import (
	"errors"
	"fmt"
)

// ActionError is returned when a view refuses an action or its arguments.
//
// Errors from the executor are never wrapped in an ActionError; they reach
// the caller unchanged.
type ActionError struct {
	// Code identifies the error category.
	Code ErrorCode

	// View names the view kind ("group" or "union").
	View string

	// Mode is the requested action, when there is one.
	Mode string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes action errors.
type ErrorCode string

const (
	// ErrCodeUnsupportedAction indicates insert/update/delete or an unknown mode.
	ErrCodeUnsupportedAction ErrorCode = "UNSUPPORTED_ACTION"

	// ErrCodeInvalidArgument indicates a missing or mistyped action argument.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeUnknownField indicates a field the view cannot resolve.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"
)

// Error implements the error interface.
func (e *ActionError) Error() string {
	if e.Mode != "" {
		return fmt.Sprintf("%s: %s (view=%s, mode=%s)", e.Code, e.Message, e.View, e.Mode)
	}
	return fmt.Sprintf("%s: %s (view=%s)", e.Code, e.Message, e.View)
}

// IsUnsupportedAction returns true if the error is an unsupported action error.
// Uses errors.As to handle wrapped errors.
func IsUnsupportedAction(err error) bool {
	return hasCode(err, ErrCodeUnsupportedAction)
}

// IsInvalidArgument returns true if the error is an invalid argument error.
func IsInvalidArgument(err error) bool {
	return hasCode(err, ErrCodeInvalidArgument)
}

// IsUnknownField returns true if the error reports an unresolvable field.
func IsUnknownField(err error) bool {
	return hasCode(err, ErrCodeUnknownField)
}

func hasCode(err error, code ErrorCode) bool {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func unsupported(view, mode string) error {
	return &ActionError{
		Code:    ErrCodeUnsupportedAction,
		View:    view,
		Mode:    mode,
		Message: fmt.Sprintf("%s is not supported by a read-only view", mode),
	}
}

func invalidArgument(view, mode, format string, args ...any) error {
	return &ActionError{
		Code:    ErrCodeInvalidArgument,
		View:    view,
		Mode:    mode,
		Message: fmt.Sprintf(format, args...),
	}
}

func unknownField(view, name string) error {
	return &ActionError{
		Code:    ErrCodeUnknownField,
		View:    view,
		Message: fmt.Sprintf("field %q is not defined", name),
	}
}
