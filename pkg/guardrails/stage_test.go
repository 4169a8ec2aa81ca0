// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/railguard-ai/railguard/pkg/llm"
)

func trippingCheck(reason string) CheckFunc {
	return func(ctx context.Context, data CheckData, config any) (Result, error) {
		return Result{
			TripwireTriggered: true,
			Info:              Info{Reason: reason},
		}, nil
	}
}

func stageConfig(stage Stage, names ...string) PipelineConfig {
	bundle := Bundle{}
	for _, name := range names {
		bundle.Guardrails = append(bundle.Guardrails, GuardrailConfig{Name: name})
	}
	cfg := PipelineConfig{}
	switch stage {
	case StagePreFlight:
		cfg.PreFlight = bundle
	case StageInput:
		cfg.Input = bundle
	case StageOutput:
		cfg.Output = bundle
	}
	return cfg
}

func TestNewPipelineUnknownCheckFails(t *testing.T) {
	reg := NewRegistry()
	_, err := NewPipeline(reg, stageConfig(StageInput, "missing"))
	if err == nil {
		t.Fatal("expected pipeline build to fail for unknown check")
	}
	if !strings.Contains(err.Error(), `"missing" not found`) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewPipelineInvalidConfigFails(t *testing.T) {
	reg := NewRegistry()
	reg.Register("strict", "", passCheck,
		WithConfigValidator(ValidatorFunc(func(raw any) (any, error) {
			return nil, errors.New("invalid")
		})),
	)

	cfg := PipelineConfig{Input: Bundle{Guardrails: []GuardrailConfig{
		{Name: "strict", Config: map[string]any{"x": 1}},
	}}}
	if _, err := NewPipeline(reg, cfg); err == nil {
		t.Fatal("expected pipeline build to fail for invalid config")
	}
}

func TestRunStageEmpty(t *testing.T) {
	reg := NewRegistry()
	pipe, err := NewPipeline(reg, PipelineConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pipe.RunStage(context.Background(), StageInput, "anything", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil result slice, got %v", results)
	}
}

func TestRunStageDeclaredOrder(t *testing.T) {
	reg := NewRegistry()
	// The first declared check finishes last; the returned order must still
	// follow declaration, not completion.
	reg.Register("slow", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		time.Sleep(30 * time.Millisecond)
		return Result{Info: Info{Reason: "slow"}}, nil
	})
	reg.Register("fast", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		return Result{Info: Info{Reason: "fast"}}, nil
	})

	pipe, err := NewPipeline(reg, stageConfig(StageInput, "slow", "fast"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pipe.RunStage(context.Background(), StageInput, "hello", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Info.CheckName != "slow" || results[1].Info.CheckName != "fast" {
		t.Errorf("results out of declared order: %q, %q",
			results[0].Info.CheckName, results[1].Info.CheckName)
	}
}

func TestRunStageFirstDeclaredTripWins(t *testing.T) {
	reg := NewRegistry()
	var secondRan atomic.Bool
	// Both trip; the second finishes first but the first declared must be
	// the one surfaced, and the second must still have executed.
	reg.Register("first", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		time.Sleep(20 * time.Millisecond)
		return Result{TripwireTriggered: true, Info: Info{Reason: "first tripped"}}, nil
	})
	reg.Register("second", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		secondRan.Store(true)
		return Result{TripwireTriggered: true, Info: Info{Reason: "second tripped"}}, nil
	})

	pipe, err := NewPipeline(reg, stageConfig(StageInput, "first", "second"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = pipe.RunStage(context.Background(), StageInput, "hello", RunOptions{})
	var tripwire *TripwireError
	if !errors.As(err, &tripwire) {
		t.Fatalf("expected TripwireError, got %v", err)
	}
	if tripwire.Result.Info.CheckName != "first" {
		t.Errorf("expected first declared trip surfaced, got %q", tripwire.Result.Info.CheckName)
	}
	if !secondRan.Load() {
		t.Error("expected sibling check to run to completion despite the trip")
	}
}

func TestRunStageSuppressTripwire(t *testing.T) {
	reg := NewRegistry()
	reg.Register("tripper", "", trippingCheck("blocked"))

	pipe, err := NewPipeline(reg, stageConfig(StageOutput, "tripper"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pipe.RunStage(context.Background(), StageOutput, "hello", RunOptions{
		SuppressTripwire: true,
	})
	if err != nil {
		t.Fatalf("expected suppressed tripwire, got %v", err)
	}
	if len(results) != 1 || !results[0].TripwireTriggered {
		t.Errorf("expected tripped result in slice, got %v", results)
	}
}

func TestRunStageFailOpenByDefault(t *testing.T) {
	reg := NewRegistry()
	checkErr := errors.New("backend unavailable")
	reg.Register("broken", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		return Result{}, checkErr
	})
	reg.Register("healthy", "", passCheck)

	pipe, err := NewPipeline(reg, stageConfig(StageInput, "broken", "healthy"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pipe.RunStage(context.Background(), StageInput, "hello", RunOptions{})
	if err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].ExecutionFailed {
		t.Error("expected first result marked as execution failure")
	}
	if results[0].TripwireTriggered {
		t.Error("an execution failure must never trip")
	}
	if !errors.Is(results[0].OriginalError, checkErr) {
		t.Errorf("expected original error preserved, got %v", results[0].OriginalError)
	}
	if results[1].ExecutionFailed {
		t.Error("healthy check should not be marked failed")
	}
}

func TestRunStageRaiseOnExecutionError(t *testing.T) {
	reg := NewRegistry()
	checkErr := errors.New("backend unavailable")
	reg.Register("broken", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		return Result{}, checkErr
	})

	pipe, err := NewPipeline(reg, stageConfig(StageInput, "broken"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = pipe.RunStage(context.Background(), StageInput, "hello", RunOptions{
		RaiseOnExecutionError: true,
	})
	if !errors.Is(err, checkErr) {
		t.Fatalf("expected the original check error, got %v", err)
	}
	var tripwire *TripwireError
	if errors.As(err, &tripwire) {
		t.Error("execution failure must not surface as a tripwire")
	}
}

func TestRunStageMediaTypeSkip(t *testing.T) {
	reg := NewRegistry()
	var jsonRan, textRan atomic.Bool
	reg.Register("json_only", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		jsonRan.Store(true)
		return Result{}, nil
	}, WithMediaType("application/json"))
	reg.Register("text_only", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		textRan.Store(true)
		return Result{}, nil
	})

	pipe, err := NewPipeline(reg, stageConfig(StageInput, "json_only", "text_only"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pipe.RunStage(context.Background(), StageInput, "hello", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result from the compatible check, got %d", len(results))
	}
	if results[0].Info.CheckName != "text_only" {
		t.Errorf("unexpected result: %+v", results[0].Info)
	}
	if jsonRan.Load() {
		t.Error("incompatible check must not run")
	}
	if !textRan.Load() {
		t.Error("compatible check must run")
	}
}

func TestRunStageAllSkippedIsEmpty(t *testing.T) {
	reg := NewRegistry()
	reg.Register("json_only", "", passCheck, WithMediaType("application/json"))

	pipe, err := NewPipeline(reg, stageConfig(StageInput, "json_only"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pipe.RunStage(context.Background(), StageInput, "hello", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results when every check is skipped, got %v", results)
	}
}

func TestRunStageHistoryOnlyWhenDeclared(t *testing.T) {
	reg := NewRegistry()
	var withHistory, withoutHistory atomic.Bool
	reg.Register("wants_history", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		withHistory.Store(data.History != nil)
		return Result{}, nil
	}, WithCheckMetadata(Metadata{UsesConversationHistory: true}))
	reg.Register("plain", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		withoutHistory.Store(data.History != nil)
		return Result{}, nil
	})

	pipe, err := NewPipeline(reg, stageConfig(StageInput, "wants_history", "plain"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := []llm.Message{{Role: llm.RoleUser, Content: "hi"}}
	if _, err := pipe.RunStage(context.Background(), StageInput, "hi", RunOptions{History: history}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !withHistory.Load() {
		t.Error("declaring check should receive a history accessor")
	}
	if withoutHistory.Load() {
		t.Error("non-declaring check should not receive a history accessor")
	}
}

func TestRunStageStampsWithoutOverwriting(t *testing.T) {
	reg := NewRegistry()
	reg.Register("prefilled", "", func(ctx context.Context, data CheckData, config any) (Result, error) {
		return Result{Info: Info{Reason: "custom", Confidence: 0.4}}, nil
	})

	pipe, err := NewPipeline(reg, stageConfig(StagePreFlight, "prefilled"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := pipe.RunStage(context.Background(), StagePreFlight, "hello", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := results[0]
	if res.Info.Stage != StagePreFlight {
		t.Errorf("expected stage stamped, got %q", res.Info.Stage)
	}
	if res.Info.CheckName != "prefilled" {
		t.Errorf("expected check name stamped, got %q", res.Info.CheckName)
	}
	if res.Info.DetectedContentType != MediaTypeText {
		t.Errorf("expected content type stamped, got %q", res.Info.DetectedContentType)
	}
	if res.Info.Reason != "custom" || res.Info.Confidence != 0.4 {
		t.Errorf("stamping must not overwrite check output: %+v", res.Info)
	}
}

func TestTripwireErrorMessage(t *testing.T) {
	err := &TripwireError{Result: Result{
		TripwireTriggered: true,
		Info:              Info{Stage: StageInput, CheckName: "keywords", Reason: "banned keyword: x"},
	}}
	want := "guardrail tripwire triggered: stage=input check=keywords reason=banned keyword: x"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestStageValid(t *testing.T) {
	for _, stage := range Stages {
		if !stage.Valid() {
			t.Errorf("expected %q to be valid", stage)
		}
	}
	if Stage("post_flight").Valid() {
		t.Error("expected unknown stage to be invalid")
	}
}
