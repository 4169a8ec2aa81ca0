// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"errors"
	"strings"

	rgerrors "github.com/railguard-ai/railguard/pkg/errors"
	"github.com/railguard-ai/railguard/pkg/llm"
	"github.com/railguard-ai/railguard/pkg/telemetry"
)

// DefaultCheckInterval is the number of textual chunks between periodic
// output checks on a stream.
const DefaultCheckInterval = 100

// GuardedChunk is one item of a guarded stream. Forwarded chunks carry the
// precomputed pre-flight and input results with empty output results; the
// single synthetic final item carries the output results or, exactly once,
// the tripwire error.
type GuardedChunk struct {
	Chunk   llm.StreamChunk
	Results ResultSet

	// Final marks the synthetic item appended after the last forwarded
	// chunk (or in place of remaining chunks after a trip).
	Final bool

	// Err is the tripwire, execution, or provider error terminating the
	// stream.
	Err error
}

// StreamOptions configure GuardStream.
type StreamOptions struct {
	// CheckInterval is the number of textual chunks between periodic
	// output checks. Defaults to DefaultCheckInterval.
	CheckInterval int

	// History is the base conversation; the partial assistant output is
	// appended to it for each periodic check.
	History []llm.Message

	// Preflight and Input are the already-computed earlier stage results
	// attached to every forwarded chunk.
	Preflight []Result
	Input     []Result

	SuppressTripwire      bool
	RaiseOnExecutionError bool
}

// GuardStream wraps a live output-token stream with incremental output
// checks plus one mandatory final check, so no token sequence can evade
// validation by the stream ending between checkpoints.
//
// A periodic trip is the only point at which a guardrail interrupts an
// in-flight stream: one synthetic item carrying only the tripped result is
// emitted, the tripwire error propagates on that item, and no further
// chunks are forwarded.
func (p *Pipeline) GuardStream(ctx context.Context, upstream <-chan llm.StreamChunk, opts StreamOptions) <-chan GuardedChunk {
	interval := opts.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	base := ResultSet{Preflight: opts.Preflight, Input: opts.Input}

	out := make(chan GuardedChunk)
	go func() {
		defer close(out)

		ctx, span := p.tracer.Start(ctx, "guardrails.stream")
		defer span.End()

		var buf strings.Builder
		chunkCount := 0

		runOutput := func() ([]Result, error) {
			history := make([]llm.Message, 0, len(opts.History)+1)
			history = append(history, opts.History...)
			history = append(history, llm.Message{Role: llm.RoleAssistant, Content: buf.String()})
			return p.RunStage(ctx, StageOutput, buf.String(), RunOptions{
				History:               history,
				SuppressTripwire:      opts.SuppressTripwire,
				RaiseOnExecutionError: opts.RaiseOnExecutionError,
			})
		}

		// drain keeps the producer unblocked once forwarding stops.
		drain := func() {
			go func() {
				for range upstream {
				}
			}()
		}

		// Every send yields to cancellation, so an abandoned consumer
		// never strands this goroutine or the producer behind it.
		send := func(item GuardedChunk) bool {
			select {
			case out <- item:
				return true
			case <-ctx.Done():
				return false
			}
		}

		emitFinal := func(results []Result, err error) {
			span.SetAttributes(telemetry.StreamAttributes(chunkCount, interval)...)
			rs := base
			var tripwire *TripwireError
			if errors.As(err, &tripwire) {
				rs.Output = []Result{tripwire.Result}
			} else {
				rs.Output = results
			}
			send(GuardedChunk{Final: true, Results: rs, Err: err})
		}

		for chunk := range upstream {
			if chunk.Error != nil {
				// The provider failed mid-stream. Surface the failure
				// instead of validating a truncated buffer as if the
				// response were complete.
				emitFinal(nil, rgerrors.New(rgerrors.CodeLLMError, "provider stream failed", chunk.Error))
				drain()
				return
			}

			if chunk.Content != "" {
				buf.WriteString(chunk.Content)
				chunkCount++
			}

			if !send(GuardedChunk{Chunk: chunk, Results: base}) {
				drain()
				return
			}

			if chunk.Content == "" || chunkCount%interval != 0 {
				continue
			}
			if _, err := runOutput(); err != nil {
				emitFinal(nil, err)
				drain()
				return
			}
		}

		// Mandatory final check over the complete buffer.
		emitFinal(runOutput())
	}()
	return out
}
