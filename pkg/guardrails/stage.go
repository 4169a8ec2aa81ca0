// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/railguard-ai/railguard/pkg/llm"
	"github.com/railguard-ai/railguard/pkg/telemetry"
)

// Stage identifies one pipeline phase relative to the model call.
type Stage string

const (
	StagePreFlight Stage = "pre_flight"
	StageInput     Stage = "input"
	StageOutput    Stage = "output"
)

// Stages lists the pipeline phases in execution order.
var Stages = []Stage{StagePreFlight, StageInput, StageOutput}

// Valid reports whether s is a recognized stage name.
func (s Stage) Valid() bool {
	return s == StagePreFlight || s == StageInput || s == StageOutput
}

// GuardrailConfig is one {name, config} entry in a stage bundle.
type GuardrailConfig struct {
	Name   string         `koanf:"name" json:"name" yaml:"name"`
	Config map[string]any `koanf:"config" json:"config" yaml:"config"`
}

// Bundle is the ordered list of guardrails configured for one stage.
type Bundle struct {
	Guardrails []GuardrailConfig `koanf:"guardrails" json:"guardrails" yaml:"guardrails"`
}

// PipelineConfig holds the optional stage bundles. Stage names are exactly
// pre_flight, input, and output; no others are recognized.
type PipelineConfig struct {
	Version   int    `koanf:"version" json:"version,omitempty" yaml:"version,omitempty"`
	PreFlight Bundle `koanf:"pre_flight" json:"pre_flight,omitempty" yaml:"pre_flight"`
	Input     Bundle `koanf:"input" json:"input,omitempty" yaml:"input"`
	Output    Bundle `koanf:"output" json:"output,omitempty" yaml:"output"`
}

func (pc PipelineConfig) bundle(stage Stage) Bundle {
	switch stage {
	case StagePreFlight:
		return pc.PreFlight
	case StageInput:
		return pc.Input
	case StageOutput:
		return pc.Output
	default:
		return Bundle{}
	}
}

// TripwireError is the distinguished error raised when a check flags a
// policy violation. It carries exactly one result: the first tripped check
// by declared order.
type TripwireError struct {
	Result Result
}

func (e *TripwireError) Error() string {
	return fmt.Sprintf("guardrail tripwire triggered: stage=%s check=%s reason=%s",
		e.Result.Info.Stage, e.Result.Info.CheckName, e.Result.Info.Reason)
}

// Pipeline executes configured checks stage by stage. Stage check lists are
// built once at construction and retained for the pipeline's lifetime.
type Pipeline struct {
	stages   map[Stage][]*ConfiguredCheck
	provider llm.Provider
	logger   *slog.Logger
	metrics  *telemetry.PipelineMetrics
	tracer   trace.Tracer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithProvider sets the shared backing client exposed to model-backed checks.
func WithProvider(p llm.Provider) PipelineOption {
	return func(pl *Pipeline) { pl.provider = p }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(pl *Pipeline) {
		if l != nil {
			pl.logger = l
		}
	}
}

// WithPipelineMetrics sets the OTEL metrics recorder.
func WithPipelineMetrics(m *telemetry.PipelineMetrics) PipelineOption {
	return func(pl *Pipeline) { pl.metrics = m }
}

// NewPipeline instantiates every configured check up front. Any unknown
// name or invalid configuration fails the whole build; pipelines never run
// partially configured.
func NewPipeline(reg *Registry, cfg PipelineConfig, opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{
		stages: make(map[Stage][]*ConfiguredCheck, len(Stages)),
		logger: slog.Default(),
		tracer: otel.Tracer("railguard/guardrails"),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, stage := range Stages {
		bundle := cfg.bundle(stage)
		checks := make([]*ConfiguredCheck, 0, len(bundle.Guardrails))
		for _, gc := range bundle.Guardrails {
			check, err := reg.Instantiate(gc.Name, gc.Config)
			if err != nil {
				return nil, err
			}
			checks = append(checks, check)
		}
		p.stages[stage] = checks
	}
	return p, nil
}

// StageChecks returns the configured checks for a stage, in declared order.
func (p *Pipeline) StageChecks(stage Stage) []*ConfiguredCheck {
	return p.stages[stage]
}

// RunOptions control a single stage invocation.
type RunOptions struct {
	// ContentType is the detected content type of the payload.
	// Defaults to text/plain.
	ContentType string

	// History is the conversation exposed to checks that declare
	// UsesConversationHistory.
	History []llm.Message

	// SuppressTripwire reports tripped checks in the result slice instead
	// of raising a TripwireError (inspection-only use).
	SuppressTripwire bool

	// RaiseOnExecutionError upgrades check execution failures from
	// fail-open results to a returned error (fail-closed deployments).
	RaiseOnExecutionError bool
}

// RunStage executes every compatible check configured for the stage against
// text, concurrently, and returns their results in declared order.
//
// The stage always runs to completion: a trip or failure in one check never
// short-circuits its siblings, so every configured check's verdict is
// computed for auditability. Only after the full fan-in does the
// orchestrator decide between returning results, raising the first
// execution error, or raising the first tripped check by declared order.
func (p *Pipeline) RunStage(ctx context.Context, stage Stage, text string, opts RunOptions) ([]Result, error) {
	checks := p.stages[stage]
	if len(checks) == 0 {
		return []Result{}, nil
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = MediaTypeText
	}

	// Partition by media-type compatibility. Exact match only.
	compatible := make([]*ConfiguredCheck, 0, len(checks))
	for _, check := range checks {
		if check.Spec().MediaType != contentType {
			p.logger.DebugContext(ctx, "guardrails.check_skipped",
				slog.String("stage", string(stage)),
				slog.String("check", check.Spec().Name),
				slog.String("media_type", check.Spec().MediaType),
				slog.String("content_type", contentType),
			)
			continue
		}
		compatible = append(compatible, check)
	}
	if len(compatible) == 0 {
		return []Result{}, nil
	}

	ctx, span := p.tracer.Start(ctx, "guardrails.stage."+string(stage))
	defer span.End()
	span.SetAttributes(telemetry.StageAttributes(string(stage), len(compatible), len(checks)-len(compatible))...)

	start := time.Now()

	// Fan out. Each result is slotted by declared index so the returned
	// order never depends on completion order.
	slots := make([]Result, len(compatible))
	var g errgroup.Group
	for i, check := range compatible {
		data := CheckData{
			Text:        text,
			ContentType: contentType,
			Provider:    p.provider,
		}
		if check.Spec().Metadata.UsesConversationHistory {
			history := opts.History
			data.History = func() []llm.Message { return history }
		}
		g.Go(func() error {
			res, err := check.Run(ctx, data)
			if err != nil {
				res = Result{
					ExecutionFailed: true,
					OriginalError:   err,
					Info:            Info{Error: err.Error()},
				}
				p.logger.WarnContext(ctx, "guardrails.check_failed",
					slog.String("stage", string(stage)),
					slog.String("check", check.Spec().Name),
					slog.String("error", err.Error()),
				)
			}
			res.stamp(stage, check.Spec().Name, check.Spec().MediaType, contentType)
			slots[i] = res
			return nil
		})
	}
	// Fan in: wait for every outcome before any decision.
	_ = g.Wait()

	p.metrics.RecordStage(ctx, string(stage), float64(time.Since(start).Milliseconds()))
	for _, res := range slots {
		p.metrics.RecordCheck(ctx, string(stage), res.Info.CheckName, res.TripwireTriggered, res.ExecutionFailed)
	}

	if opts.RaiseOnExecutionError {
		for _, res := range slots {
			if res.ExecutionFailed {
				span.SetAttributes(telemetry.CheckAttributes(res.Info.CheckName, false, 0, true)...)
				return nil, res.OriginalError
			}
		}
	}

	if !opts.SuppressTripwire {
		for _, res := range slots {
			if res.TripwireTriggered {
				p.metrics.RecordTripwire(ctx, string(stage), res.Info.CheckName)
				span.SetAttributes(telemetry.TripwireAttributes(string(stage), res.Info.CheckName, res.Info.Reason)...)
				p.logger.WarnContext(ctx, "guardrails.tripwire",
					slog.String("stage", string(stage)),
					slog.String("check", res.Info.CheckName),
					slog.String("reason", res.Info.Reason),
				)
				return nil, &TripwireError{Result: res}
			}
		}
	}

	return slots, nil
}
