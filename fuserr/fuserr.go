// Package fuserr provides structured error types for the fusion core.
//
// It defines standard error codes and a structured Error type that includes
// the originating data source, the operation that failed, and a cause chain.
// It integrates with Go's standard errors package for wrapping and unwrapping.
package fuserr

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes used across the fusion core for consistent reporting.
const (
	// CodeDuplicateSource indicates a source id is already registered.
	CodeDuplicateSource = "DUPLICATE_SOURCE"

	// CodeInvalidConfig indicates a source configuration failed validation.
	CodeInvalidConfig = "INVALID_CONFIG"

	// CodeSourceNotFound indicates the requested data source does not exist.
	CodeSourceNotFound = "SOURCE_NOT_FOUND"

	// CodeGraphNotFound indicates the requested knowledge graph does not exist.
	CodeGraphNotFound = "GRAPH_NOT_FOUND"

	// CodeUpstreamUnavailable indicates an API source could not be reached
	// or returned a non-2xx response.
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"

	// CodeValidationFailed indicates records failed schema validation.
	CodeValidationFailed = "VALIDATION_FAILED"

	// CodeUnsupportedFormat indicates an unknown parse or export format.
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"

	// CodeAgentFailed indicates an extraction agent returned an error.
	CodeAgentFailed = "AGENT_FAILED"

	// CodePersistenceFailed indicates a snapshot read or write failed.
	CodePersistenceFailed = "PERSISTENCE_FAILED"

	// CodeExportFailed indicates a graph export could not be produced.
	CodeExportFailed = "EXPORT_FAILED"
)

// Error is a structured error for fusion operations. It records which data
// source (or graph) and operation failed, carries a standard code, and can
// wrap an underlying cause.
type Error struct {
	// Source is the data source or graph id the error relates to. May be empty
	// for errors that are not tied to a particular source.
	Source string

	// Op is the operation that failed (e.g., "registry.Register", "scheduler.refresh").
	Op string

	// Code is one of the Code* constants.
	Code string

	// Message is a human-readable description.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a new structured fusion error.
//
// Example:
//
//	err := fuserr.New("ct1", "registry.Register", fuserr.CodeDuplicateSource, "source id already registered")
func New(source, op, code, message string) *Error {
	return &Error{
		Source:  source,
		Op:      op,
		Code:    code,
		Message: message,
	}
}

// WithCause attaches an underlying error and returns the same instance for chaining.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches additional context and returns the same instance for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Error implements the error interface.
// Format: "source [op/code]: message: cause", with empty parts omitted.
func (e *Error) Error() string {
	var parts []string

	head := fmt.Sprintf("[%s/%s]", e.Op, e.Code)
	if e.Source != "" {
		head = e.Source + " " + head
	}
	parts = append(parts, head)

	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause so errors.Is and errors.As see through it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports error equality for errors.Is. Two Errors match when their Code
// matches and, if the target sets them, Source and Op match as well. This lets
// callers test against a bare code:
//
//	if errors.Is(err, &fuserr.Error{Code: fuserr.CodeSourceNotFound}) { ... }
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && e.Code != t.Code {
		return false
	}
	if t.Source != "" && e.Source != t.Source {
		return false
	}
	if t.Op != "" && e.Op != t.Op {
		return false
	}
	return t.Code != "" || t.Source != "" || t.Op != ""
}

// As implements error type assertion for errors.As.
func (e *Error) As(target any) bool {
	t, ok := target.(**Error)
	if !ok {
		return false
	}
	*t = e
	return true
}

// IsCode reports whether err is (or wraps) a fusion Error with the given code.
func IsCode(err error, code string) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Code == code
}
