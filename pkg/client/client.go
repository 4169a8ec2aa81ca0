// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

// Package client provides a drop-in guarded wrapper around an LLM provider.
//
// A guarded turn runs pre_flight on the latest user message, masks detected
// entities, issues the model call concurrently with the input stage, and
// validates the response in the output stage before returning it.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/railguard-ai/railguard/pkg/audit"
	rgerrors "github.com/railguard-ai/railguard/pkg/errors"
	"github.com/railguard-ai/railguard/pkg/guardrails"
	"github.com/railguard-ai/railguard/pkg/llm"
	"github.com/railguard-ai/railguard/pkg/telemetry"
)

// Response is a chat response annotated with the guardrail results of every
// stage that ran.
type Response struct {
	llm.ChatResponse

	// GuardrailResults holds per-stage check outcomes in declared order.
	GuardrailResults guardrails.ResultSet

	// RunID identifies this guarded turn in audit records.
	RunID string
}

// GuardedClient wraps a provider with a guardrail pipeline.
type GuardedClient struct {
	provider llm.Provider
	pipeline *guardrails.Pipeline
	logger   *slog.Logger
	store    *audit.Store
	tracer   trace.Tracer

	suppressTripwires     bool
	raiseOnExecutionError bool
	streamCheckInterval   int
}

// Option configures a GuardedClient.
type Option func(*GuardedClient)

// WithClientLogger sets the client logger.
func WithClientLogger(l *slog.Logger) Option {
	return func(c *GuardedClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAuditStore enables persistence of run outcomes.
func WithAuditStore(s *audit.Store) Option {
	return func(c *GuardedClient) { c.store = s }
}

// WithSuppressTripwires reports violations in results instead of raising.
func WithSuppressTripwires(v bool) Option {
	return func(c *GuardedClient) { c.suppressTripwires = v }
}

// WithRaiseOnExecutionError fails closed on check infrastructure faults.
func WithRaiseOnExecutionError(v bool) Option {
	return func(c *GuardedClient) { c.raiseOnExecutionError = v }
}

// WithStreamCheckInterval sets the chunk interval between periodic output
// checks on streamed responses.
func WithStreamCheckInterval(n int) Option {
	return func(c *GuardedClient) {
		if n > 0 {
			c.streamCheckInterval = n
		}
	}
}

// New creates a guarded client around provider and pipeline.
func New(provider llm.Provider, pipeline *guardrails.Pipeline, opts ...Option) (*GuardedClient, error) {
	if provider == nil {
		return nil, errors.New("client: provider is required")
	}
	if pipeline == nil {
		return nil, errors.New("client: pipeline is required")
	}
	c := &GuardedClient{
		provider: provider,
		pipeline: pipeline,
		logger:   slog.Default(),
		tracer:   otel.Tracer("railguard/client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *GuardedClient) runOpts(history []llm.Message) guardrails.RunOptions {
	return guardrails.RunOptions{
		History:               history,
		SuppressTripwire:      c.suppressTripwires,
		RaiseOnExecutionError: c.raiseOnExecutionError,
	}
}

// Chat runs the full guarded turn: pre_flight, entity masking, input stage
// concurrent with the model call, and the output stage over the response.
//
// The model call is issued alongside the input checks rather than after
// them; if input subsequently trips, the already-obtained response is
// discarded and never reaches output checks. On a tripwire the returned
// error unwraps to *guardrails.TripwireError.
func (c *GuardedClient) Chat(ctx context.Context, req llm.ChatRequest) (*Response, error) {
	runID := uuid.NewString()
	var results guardrails.ResultSet

	ctx = telemetry.ContextWithRunID(ctx, runID)
	ctx, span := c.tracer.Start(ctx, "railguard.chat")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrRunID, runID))
	span.SetAttributes(telemetry.LLMAttributes(req.Model, providerName(c.provider), len(req.Messages))...)

	latest := llm.LatestUserMessage(req.Messages)

	preflight, err := c.pipeline.RunStage(ctx, guardrails.StagePreFlight, latest, c.runOpts(req.Messages))
	if err != nil {
		return nil, c.finishTripped(ctx, runID, results, err)
	}
	results.Preflight = preflight

	masked := req
	masked.Messages = guardrails.MaskMessages(req.Messages, guardrails.EntityMap(preflight))
	maskedText := llm.LatestUserMessage(masked.Messages)

	// Input checks and the model call run concurrently; the response is
	// only used once input has passed.
	var (
		inputResults []guardrails.Result
		inputErr     error
		resp         *llm.ChatResponse
		chatErr      error
		done         = make(chan struct{})
	)
	go func() {
		defer close(done)
		resp, chatErr = c.provider.Chat(ctx, masked)
	}()
	inputResults, inputErr = c.pipeline.RunStage(ctx, guardrails.StageInput, maskedText, c.runOpts(masked.Messages))
	<-done

	if inputErr != nil {
		return nil, c.finishTripped(ctx, runID, results, inputErr)
	}
	results.Input = inputResults
	if chatErr != nil {
		return nil, rgerrors.New(rgerrors.CodeLLMError, "model call failed", chatErr).
			WithAttribute("run_id", runID)
	}

	outputHistory := append(append([]llm.Message{}, masked.Messages...),
		llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	output, err := c.pipeline.RunStage(ctx, guardrails.StageOutput, resp.Content, c.runOpts(outputHistory))
	if err != nil {
		return nil, c.finishTripped(ctx, runID, results, err)
	}
	results.Output = output

	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	c.record(ctx, runID, results)
	return &Response{
		ChatResponse:     *resp,
		GuardrailResults: results,
		RunID:            runID,
	}, nil
}

// ChatStream runs pre_flight and input over the request while the provider
// stream is already being established, then returns the guarded stream with
// periodic and final output checks applied.
func (c *GuardedClient) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan guardrails.GuardedChunk, error) {
	streamer, ok := c.provider.(llm.StreamingProvider)
	if !ok {
		return nil, fmt.Errorf("provider %T does not support streaming", c.provider)
	}

	runID := uuid.NewString()
	var results guardrails.ResultSet

	ctx = telemetry.ContextWithRunID(ctx, runID)
	latest := llm.LatestUserMessage(req.Messages)
	preflight, err := c.pipeline.RunStage(ctx, guardrails.StagePreFlight, latest, c.runOpts(req.Messages))
	if err != nil {
		return nil, c.finishTripped(ctx, runID, results, err)
	}
	results.Preflight = preflight

	masked := req
	masked.Messages = guardrails.MaskMessages(req.Messages, guardrails.EntityMap(preflight))
	maskedText := llm.LatestUserMessage(masked.Messages)

	upstream, err := streamer.ChatStream(ctx, masked)
	if err != nil {
		return nil, rgerrors.New(rgerrors.CodeLLMError, "model call failed", err).
			WithAttribute("run_id", runID)
	}

	input, err := c.pipeline.RunStage(ctx, guardrails.StageInput, maskedText, c.runOpts(masked.Messages))
	if err != nil {
		// The stream is already live; discard it without forwarding.
		go func() {
			for range upstream {
			}
		}()
		return nil, c.finishTripped(ctx, runID, results, err)
	}
	results.Input = input

	guarded := c.pipeline.GuardStream(ctx, upstream, guardrails.StreamOptions{
		CheckInterval:         c.streamCheckInterval,
		History:               masked.Messages,
		Preflight:             preflight,
		Input:                 input,
		SuppressTripwire:      c.suppressTripwires,
		RaiseOnExecutionError: c.raiseOnExecutionError,
	})
	if c.store == nil {
		return guarded, nil
	}

	// Tap the guarded stream so the final result set reaches the audit
	// store once the turn completes. The forward yields to cancellation
	// so an abandoned consumer never strands this goroutine.
	out := make(chan guardrails.GuardedChunk)
	go func() {
		defer close(out)
		for item := range guarded {
			if item.Final {
				c.record(ctx, runID, item.Results)
			}
			select {
			case out <- item:
			case <-ctx.Done():
				go func() {
					for range guarded {
					}
				}()
				return
			}
		}
	}()
	return out, nil
}

// finishTripped records a tripped run and passes the error through. The
// tripped result is attached to the set so audits capture which check fired.
func (c *GuardedClient) finishTripped(ctx context.Context, runID string, results guardrails.ResultSet, err error) error {
	var tripwire *guardrails.TripwireError
	if errors.As(err, &tripwire) {
		switch tripwire.Result.Info.Stage {
		case guardrails.StagePreFlight:
			results.Preflight = append(results.Preflight, tripwire.Result)
		case guardrails.StageInput:
			results.Input = append(results.Input, tripwire.Result)
		case guardrails.StageOutput:
			results.Output = append(results.Output, tripwire.Result)
		}
		c.record(ctx, runID, results)
	}
	return err
}

func providerName(p llm.Provider) string {
	switch p.(type) {
	case *llm.OllamaProvider:
		return "ollama"
	default:
		return fmt.Sprintf("%T", p)
	}
}

func (c *GuardedClient) record(ctx context.Context, runID string, results guardrails.ResultSet) {
	if c.store == nil {
		return
	}
	if err := c.store.RecordRun(ctx, runID, results); err != nil {
		c.logger.ErrorContext(ctx, "failed to record audit run",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}
