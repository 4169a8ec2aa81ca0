// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package checks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/railguard-ai/railguard/pkg/guardrails"
)

// InjectionConfig configures the prompt-injection detector.
type InjectionConfig struct {
	// Threshold is the confidence below which matches are not blocked.
	Threshold float64 `koanf:"threshold"`

	// Strict blocks on any single pattern match with full confidence.
	Strict bool `koanf:"strict"`

	// Patterns are additional regular expressions to detect.
	Patterns []string `koanf:"patterns"`
}

// Common prompt injection techniques.
var defaultInjectionPatterns = []*regexp.Regexp{
	// Direct instruction override attempts
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),

	// Role/persona manipulation
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)pretend\s+(you\s+are|to\s+be)\s+`),
	regexp.MustCompile(`(?i)switch\s+to\s+.*\s+mode`),

	// System prompt extraction
	regexp.MustCompile(`(?i)(what\s+(is|are)|show\s+me|reveal|print)\s+your\s+(system\s+)?(prompt|instructions?)`),

	// Jailbreak attempts
	regexp.MustCompile(`(?i)do\s+anything\s+now`),
	regexp.MustCompile(`(?i)DAN\s+mode`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)bypass\s+(safety|content|filter)`),

	// Developer/debug mode attempts
	regexp.MustCompile(`(?i)(developer|debug|sudo|admin|maintenance)\s+mode`),

	// Delimiter manipulation
	regexp.MustCompile(`(?i)\]\]\s*system\s*:`),
	regexp.MustCompile(`(?i)<\|.*\|>`),
	regexp.MustCompile(`(?i)\[\/?INST\]`),
	regexp.MustCompile(`(?i)<<\/?SYS>>`),
}

// injectionRuntime is the validated configuration: decoded fields plus the
// compiled custom patterns.
type injectionRuntime struct {
	threshold float64
	strict    bool
	patterns  []*regexp.Regexp
}

// injectionValidator decodes and compiles the configuration up front so a
// bad pattern fails pipeline setup instead of every invocation.
var injectionValidator = guardrails.ValidatorFunc(func(raw any) (any, error) {
	var cfg InjectionConfig
	if raw != nil {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			ErrorUnused:      true,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, err
		}
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be within [0, 1], got %v", cfg.Threshold)
	}

	rt := &injectionRuntime{
		threshold: cfg.Threshold,
		strict:    cfg.Strict,
		patterns:  defaultInjectionPatterns,
	}
	if len(cfg.Patterns) > 0 {
		rt.patterns = make([]*regexp.Regexp, 0, len(defaultInjectionPatterns)+len(cfg.Patterns))
		rt.patterns = append(rt.patterns, defaultInjectionPatterns...)
		for _, p := range cfg.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("invalid injection pattern %q: %w", p, err)
			}
			rt.patterns = append(rt.patterns, re)
		}
	}
	return rt, nil
})

func registerPromptInjection(r *guardrails.Registry) {
	r.Register(NamePromptInjection,
		"Pattern detector for prompt injection and jailbreak attempts",
		checkPromptInjection,
		guardrails.WithConfigValidator(injectionValidator),
		guardrails.WithCheckMetadata(guardrails.Metadata{Engine: "regex"}),
	)
}

func checkPromptInjection(ctx context.Context, data guardrails.CheckData, config any) (guardrails.Result, error) {
	rt, ok := config.(*injectionRuntime)
	if !ok {
		return guardrails.Result{}, fmt.Errorf("prompt_injection: unexpected config type %T", config)
	}
	if data.Text == "" {
		return guardrails.Result{}, nil
	}

	normalized := strings.ToLower(data.Text)
	matchCount := 0
	var matchedPatterns []string

	for _, pattern := range rt.patterns {
		if !pattern.MatchString(normalized) {
			continue
		}
		matchCount++
		matchedPatterns = append(matchedPatterns, pattern.String())

		if rt.strict {
			return guardrails.Result{
				TripwireTriggered: true,
				Info: guardrails.Info{
					Confidence: 1.0,
					Reason:     "potential prompt injection detected",
					Extra:      map[string]any{"matched_patterns": matchedPatterns},
				},
			}, nil
		}
	}

	if matchCount == 0 {
		return guardrails.Result{}, nil
	}

	// Base confidence starts at 0.7 for a single match.
	confidence := 0.7 + float64(matchCount-1)*0.1
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < rt.threshold {
		return guardrails.Result{Info: guardrails.Info{Confidence: confidence}}, nil
	}

	return guardrails.Result{
		TripwireTriggered: true,
		Info: guardrails.Info{
			Confidence: confidence,
			Reason:     "potential prompt injection detected",
			Extra: map[string]any{
				"matched_patterns": matchedPatterns,
				"match_count":      matchCount,
			},
		},
	}, nil
}
