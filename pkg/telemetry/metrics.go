// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics tracks check executions, tripwires, and stage latency.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	// checkCounter tracks check executions by stage, check, and outcome
	checkCounter metric.Int64Counter

	// tripwireCounter tracks raised tripwires by stage and check
	tripwireCounter metric.Int64Counter

	// stageDuration tracks wall time per stage execution
	stageDuration metric.Float64Histogram
}

// NewPipelineMetrics creates a pipeline metrics tracker with OTEL meters.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("railguard/guardrails")

	checkCounter, err := meter.Int64Counter(
		"railguard.checks.total",
		metric.WithDescription("Check executions by stage, check, and outcome"),
	)
	if err != nil {
		return nil, err
	}

	tripwireCounter, err := meter.Int64Counter(
		"railguard.tripwires.total",
		metric.WithDescription("Raised tripwires by stage and check"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"railguard.stage.duration_ms",
		metric.WithDescription("Stage execution wall time in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		checkCounter:    checkCounter,
		tripwireCounter: tripwireCounter,
		stageDuration:   stageDuration,
	}, nil
}

// RecordCheck records one check execution outcome.
func (m *PipelineMetrics) RecordCheck(ctx context.Context, stage, check string, tripped, failed bool) {
	if m == nil {
		return
	}
	outcome := "pass"
	switch {
	case failed:
		outcome = "execution_failed"
	case tripped:
		outcome = "tripped"
	}
	m.checkCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStage, stage),
		attribute.String(AttrCheckName, check),
		attribute.String("railguard.check.outcome", outcome),
	))
}

// RecordTripwire records one raised tripwire.
func (m *PipelineMetrics) RecordTripwire(ctx context.Context, stage, check string) {
	if m == nil {
		return
	}
	m.tripwireCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStage, stage),
		attribute.String(AttrCheckName, check),
	))
}

// RecordStage records the wall time of one stage execution.
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, durationMs float64) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String(AttrStage, stage),
	))
}
