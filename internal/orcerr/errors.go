// Package orcerr defines the error taxonomy shared by all orchestrd services.
//
// Every error carries a stable machine-readable code, a human-readable
// message, and optional structured details for programmatic handling.
package orcerr

import (
	"errors"
	"fmt"
)

// Code is a stable error code for programmatic handling.
type Code string

const (
	// CodeInvalidInput indicates a malformed field or argument.
	CodeInvalidInput Code = "invalid_input"

	// CodeTaskNotFound indicates an unknown task identifier.
	CodeTaskNotFound Code = "task_not_found"

	// CodeWorkflowNotFound indicates an unknown workflow identifier.
	CodeWorkflowNotFound Code = "workflow_not_found"

	// CodeSessionNotFound indicates an unknown session identifier.
	CodeSessionNotFound Code = "session_not_found"

	// CodeInvalidStatusTransition indicates a status change outside the
	// legal transition table.
	CodeInvalidStatusTransition Code = "invalid_status_transition"

	// CodeOperationFailed is a generic wrapped failure.
	CodeOperationFailed Code = "operation_failed"

	// CodeAnalysisUnavailable indicates the classifier or task generator
	// collaborator is absent or erroring.
	CodeAnalysisUnavailable Code = "analysis_unavailable"
)

// Error is a structured orchestration error.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to traverse wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// With attaches a structured detail and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from an error chain.
// Returns CodeOperationFailed for non-taxonomy errors and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code
	}
	return CodeOperationFailed
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code Code) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Code == code
}
