// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Railguard telemetry. LLM attributes follow the
// standard gen_ai conventions where applicable.
const (
	// Stage attributes
	AttrStage         = "railguard.stage"
	AttrStageChecks   = "railguard.stage.checks"
	AttrStageSkipped  = "railguard.stage.skipped"
	AttrStageDuration = "railguard.stage.duration_ms"

	// Check attributes
	AttrCheckName       = "railguard.check.name"
	AttrCheckTripwire   = "railguard.check.tripwire"
	AttrCheckConfidence = "railguard.check.confidence"
	AttrCheckFailed     = "railguard.check.execution_failed"
	AttrCheckReason     = "railguard.check.reason"

	// Run attributes
	AttrRunID       = "railguard.run.id"
	AttrContentType = "railguard.content_type"

	// Streaming attributes
	AttrStreamChunks   = "railguard.stream.chunks"
	AttrStreamInterval = "railguard.stream.check_interval"

	// LLM attributes
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
)

// StageAttributes returns attributes for a stage execution span.
func StageAttributes(stage string, checks, skipped int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrStage, stage),
		attribute.Int(AttrStageChecks, checks),
	}
	if skipped > 0 {
		attrs = append(attrs, attribute.Int(AttrStageSkipped, skipped))
	}
	return attrs
}

// CheckAttributes returns attributes for a single check outcome.
func CheckAttributes(name string, tripped bool, confidence float64, failed bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrCheckName, name),
		attribute.Bool(AttrCheckTripwire, tripped),
	}
	if confidence > 0 {
		attrs = append(attrs, attribute.Float64(AttrCheckConfidence, confidence))
	}
	if failed {
		attrs = append(attrs, attribute.Bool(AttrCheckFailed, failed))
	}
	return attrs
}

// TripwireAttributes returns attributes describing a raised tripwire.
func TripwireAttributes(stage, check, reason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrStage, stage),
		attribute.String(AttrCheckName, check),
		attribute.Bool(AttrCheckTripwire, true),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String(AttrCheckReason, reason))
	}
	return attrs
}

// LLMAttributes returns attributes for a model call span.
func LLMAttributes(model, provider string, msgCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	return attrs
}

// StreamAttributes returns attributes for a guarded stream span.
func StreamAttributes(chunks, interval int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrStreamChunks, chunks),
		attribute.Int(AttrStreamInterval, interval),
	}
}
