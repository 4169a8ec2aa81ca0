// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

// Package checks provides the built-in guardrail checks: PII entity
// detection, banned keywords, secret-key heuristics, prompt-injection
// patterns, and an LLM-backed moderation classifier.
//
// Checks are plain functions bound to typed configurations; they are
// registered against a guardrails.Registry and referenced by name from
// pipeline configuration.
package checks

import (
	"github.com/railguard-ai/railguard/pkg/guardrails"
)

// Check names as referenced from pipeline configuration.
const (
	NamePII             = "pii"
	NameKeywords        = "keywords"
	NameSecretKeys      = "secret_keys"
	NamePromptInjection = "prompt_injection"
	NameModeration      = "moderation"
)

// RegisterAll registers every built-in check in the given registry.
func RegisterAll(r *guardrails.Registry) {
	registerPII(r)
	registerKeywords(r)
	registerSecretKeys(r)
	registerPromptInjection(r)
	registerModeration(r)
}
