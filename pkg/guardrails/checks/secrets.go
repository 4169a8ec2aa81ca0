// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package checks

import (
	"context"
	"regexp"

	"github.com/railguard-ai/railguard/pkg/guardrails"
)

// SecretKeysConfig configures the secret-key heuristic.
type SecretKeysConfig struct {
	// ReportOnly disables the tripwire; detections are still reported
	// as entities so pre-flight masking can scrub them.
	ReportOnly bool `koanf:"report_only"`

	// MinLength is the minimum token length for the generic
	// high-entropy credential heuristic. Default 32.
	MinLength int `koanf:"min_length"`
}

// Known credential shapes checked before the generic heuristic.
var secretPatterns = []struct {
	entity  string
	pattern *regexp.Regexp
}{
	{"openai_key", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`)},
	{"aws_access_key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"github_token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"slack_token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
	{"private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
}

// genericCredential matches long mixed-alphabet tokens assigned to
// key-looking identifiers, e.g. `api_key=9f8a...`.
var genericCredential = regexp.MustCompile(`(?i)(?:api[_-]?key|secret|token|password)["'\s:=]+["']?([A-Za-z0-9+/_-]{16,})`)

func registerSecretKeys(r *guardrails.Registry) {
	guardrails.RegisterCheck(r, NameSecretKeys,
		"Heuristic detector for API keys and other credentials",
		checkSecretKeys,
		guardrails.WithCheckMetadata(guardrails.Metadata{Engine: "regex"}),
	)
}

func checkSecretKeys(ctx context.Context, data guardrails.CheckData, cfg SecretKeysConfig) (guardrails.Result, error) {
	if data.Text == "" {
		return guardrails.Result{}, nil
	}

	minLen := cfg.MinLength
	if minLen <= 0 {
		minLen = 32
	}

	detected := make(map[string][]string)
	for _, p := range secretPatterns {
		for _, match := range p.pattern.FindAllString(data.Text, -1) {
			detected[p.entity] = append(detected[p.entity], match)
		}
	}
	for _, groups := range genericCredential.FindAllStringSubmatch(data.Text, -1) {
		if len(groups[1]) >= minLen {
			detected["credential"] = append(detected["credential"], groups[1])
		}
	}

	if len(detected) == 0 {
		return guardrails.Result{}, nil
	}

	return guardrails.Result{
		TripwireTriggered: !cfg.ReportOnly,
		Info: guardrails.Info{
			Confidence:       0.9,
			Reason:           "possible credential material detected",
			DetectedEntities: detected,
		},
	}, nil
}
