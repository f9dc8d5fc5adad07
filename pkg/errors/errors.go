// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Telos.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Telos errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource, model type or service was not
	// registered or not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeUnauthorized indicates a capability check rejected the caller.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodePluginError indicates a plugin failed during init or handling.
	CodePluginError ErrorCode = "PLUGIN_ERROR"

	// CodeStoreError indicates a storage collaborator error.
	CodeStoreError ErrorCode = "STORE_ERROR"

	// CodeModelError indicates a model backend error.
	CodeModelError ErrorCode = "MODEL_ERROR"

	// CodeTaskError indicates a task scheduler or worker error.
	CodeTaskError ErrorCode = "TASK_ERROR"
)

// Error is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// Newf creates a new Error with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *Error) WithAttribute(key, value string) *Error {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// AsError attempts to convert an error to a typed Error.
// Returns the error as *Error if it is one, or wraps it otherwise.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if te, ok := err.(*Error); ok {
		return te
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(*Error); ok {
		return te.Code == code
	}
	return false
}

// codeToStatusCode maps error codes to gRPC/HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeUnauthorized:
		return 401
	case CodeInvalidInput:
		return 400
	case CodeTimeout:
		return 408
	default:
		return 500
	}
}
