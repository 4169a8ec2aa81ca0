// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"fmt"

	"github.com/railguard-ai/railguard/pkg/llm"
)

// CheckData is the read-only input handed to one check invocation. It is
// freshly constructed per invocation and must not be mutated by checks.
type CheckData struct {
	// Text is the payload under inspection.
	Text string

	// ContentType is the detected content type of the payload.
	ContentType string

	// Provider is the shared backing client for model-backed checks.
	// It is safe for concurrent use and must be treated as read-only.
	Provider llm.Provider

	// History returns the conversation so far. It is non-nil only for
	// checks whose specification declares UsesConversationHistory.
	History func() []llm.Message
}

// ConfiguredCheck binds a specification to validated configuration.
// It is stateless between invocations and safe for concurrent use.
type ConfiguredCheck struct {
	spec   *Specification
	config any
}

// Spec returns the bound specification.
func (c *ConfiguredCheck) Spec() *Specification { return c.spec }

// Config returns the validated configuration value.
func (c *ConfiguredCheck) Config() any { return c.config }

// Run invokes the bound check function. A panic inside the check is
// recovered and reported as an error so a misbehaving check can never
// take down its siblings.
func (c *ConfiguredCheck) Run(ctx context.Context, data CheckData) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = Result{}
			err = fmt.Errorf("guardrail %q panicked: %v", c.spec.Name, rec)
		}
	}()
	return c.spec.check(ctx, data, c.config)
}
