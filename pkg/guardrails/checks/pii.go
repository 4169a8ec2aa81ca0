// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package checks

import (
	"context"
	"regexp"

	"github.com/railguard-ai/railguard/pkg/guardrails"
)

// PIIConfig configures the PII entity detector.
type PIIConfig struct {
	// Entities restricts detection to the listed entity types.
	// Empty means all known types.
	Entities []string `koanf:"entities"`

	// Block raises a tripwire when entities are found. The default
	// (false) only reports detections, which lets the pre-flight stage
	// mask them instead of aborting the turn.
	Block bool `koanf:"block"`
}

// Conservative, high-precision patterns. More specific patterns come first
// so a credit card is never reported as a phone number.
var piiPatterns = []struct {
	entity  string
	pattern *regexp.Regexp
}{
	{"credit_card", regexp.MustCompile(`\b[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}[-\s]?[0-9]{4}\b`)},
	{"ssn", regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)},
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{"phone", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`)},
	{"ip_address", regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)},
}

func registerPII(r *guardrails.Registry) {
	guardrails.RegisterCheck(r, NamePII,
		"Detects personally identifiable information and reports entities for masking",
		checkPII,
		guardrails.WithCheckMetadata(guardrails.Metadata{Engine: "regex"}),
	)
}

func checkPII(ctx context.Context, data guardrails.CheckData, cfg PIIConfig) (guardrails.Result, error) {
	if data.Text == "" {
		return guardrails.Result{}, nil
	}

	enabled := make(map[string]bool, len(cfg.Entities))
	for _, e := range cfg.Entities {
		enabled[e] = true
	}

	claimed := make(map[string]bool)
	detected := make(map[string][]string)
	for _, p := range piiPatterns {
		if len(enabled) > 0 && !enabled[p.entity] {
			continue
		}
		for _, match := range p.pattern.FindAllString(data.Text, -1) {
			// A span already claimed by a more specific entity type
			// is not reported again.
			if claimed[match] {
				continue
			}
			claimed[match] = true
			detected[p.entity] = append(detected[p.entity], match)
		}
	}

	if len(detected) == 0 {
		return guardrails.Result{}, nil
	}

	return guardrails.Result{
		TripwireTriggered: cfg.Block,
		Info: guardrails.Info{
			Confidence:       1.0,
			Reason:           "pii detected",
			DetectedEntities: detected,
		},
	}, nil
}
