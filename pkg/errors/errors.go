// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Railguard.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Railguard errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeConfig indicates a guardrail or pipeline configuration error.
	// Configuration errors are fatal at setup time; a misconfigured
	// pipeline must never run partially.
	CodeConfig ErrorCode = "CONFIG_ERROR"

	// CodeTripwire indicates a guardrail flagged a policy violation.
	CodeTripwire ErrorCode = "TRIPWIRE_TRIGGERED"

	// CodeExecution indicates a check implementation failed at runtime.
	CodeExecution ErrorCode = "EXECUTION_FAILED"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeStorage indicates an audit storage error.
	CodeStorage ErrorCode = "STORAGE_ERROR"
)

// RailguardError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type RailguardError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *RailguardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *RailguardError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *RailguardError) MarshalJSON() ([]byte, error) {
	type Alias RailguardError
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

// New creates a new RailguardError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *RailguardError {
	return &RailguardError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *RailguardError) WithContext(key string, value interface{}) *RailguardError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *RailguardError) WithAttribute(key, value string) *RailguardError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *RailguardError) WithRecoverable(recoverable bool) *RailguardError {
	e.Recoverable = recoverable
	return e
}

// AsRailguardError attempts to convert an error to a RailguardError.
// Returns the error as RailguardError if it is one, or wraps it otherwise.
func AsRailguardError(err error) *RailguardError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RailguardError); ok {
		return re
	}
	// Wrap unknown error as internal
	return New(CodeInternal, "wrapped error", err)
}
