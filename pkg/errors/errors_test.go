// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := New(CodeLLMError, "model call failed", cause)

	msg := err.Error()
	if !strings.Contains(msg, "[LLM_ERROR]") {
		t.Errorf("expected code in message, got %q", msg)
	}
	if !strings.Contains(msg, "model call failed") || !strings.Contains(msg, "connection refused") {
		t.Errorf("expected message and cause, got %q", msg)
	}

	noCause := New(CodeConfig, "bad pipeline", nil)
	if strings.Contains(noCause.Error(), "<nil>") {
		t.Errorf("nil cause must not leak into message: %q", noCause.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := New(CodeStorage, "write failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	var typed *RailguardError
	if !stderrors.As(error(err), &typed) {
		t.Error("expected errors.As to match RailguardError")
	}
	if typed.Code != CodeStorage {
		t.Errorf("unexpected code: %q", typed.Code)
	}
}

func TestChaining(t *testing.T) {
	err := New(CodeTripwire, "guardrail tripped", nil).
		WithContext("stage", "input").
		WithAttribute("check", "keywords").
		WithRecoverable(false)

	if err.Context["stage"] != "input" {
		t.Errorf("unexpected context: %v", err.Context)
	}
	if err.Attributes["check"] != "keywords" {
		t.Errorf("unexpected attributes: %v", err.Attributes)
	}
	if err.Recoverable {
		t.Error("expected non-recoverable")
	}
}

func TestChainingOnZeroValue(t *testing.T) {
	err := (&RailguardError{Code: CodeInternal, Message: "x"}).
		WithContext("k", 1).
		WithAttribute("a", "b")
	if err.Context["k"] != 1 || err.Attributes["a"] != "b" {
		t.Error("chaining must initialize nil maps")
	}
}

func TestAsRailguardError(t *testing.T) {
	if AsRailguardError(nil) != nil {
		t.Error("nil must pass through")
	}

	orig := New(CodeTimeout, "deadline exceeded", nil)
	if got := AsRailguardError(orig); got != orig {
		t.Error("existing RailguardError must be returned as is")
	}

	plain := stderrors.New("plain")
	wrapped := AsRailguardError(plain)
	if wrapped.Code != CodeInternal {
		t.Errorf("expected internal code for unknown error, got %q", wrapped.Code)
	}
	if !stderrors.Is(wrapped, plain) {
		t.Error("expected the original error preserved as cause")
	}
}
