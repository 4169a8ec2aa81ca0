// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package checks

import (
	"context"
	"strings"

	"github.com/railguard-ai/railguard/pkg/guardrails"
)

// KeywordsConfig configures the banned-keywords check.
type KeywordsConfig struct {
	// Keywords are matched as case-insensitive substrings.
	Keywords []string `koanf:"keywords"`
}

func registerKeywords(r *guardrails.Registry) {
	guardrails.RegisterCheck(r, NameKeywords,
		"Trips when the payload contains any configured banned keyword",
		checkKeywords,
		guardrails.WithCheckMetadata(guardrails.Metadata{Engine: "keyword"}),
	)
}

func checkKeywords(ctx context.Context, data guardrails.CheckData, cfg KeywordsConfig) (guardrails.Result, error) {
	if data.Text == "" || len(cfg.Keywords) == 0 {
		return guardrails.Result{}, nil
	}

	normalized := strings.ToLower(data.Text)
	var matched []string
	for _, keyword := range cfg.Keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(keyword)) {
			matched = append(matched, keyword)
		}
	}

	if len(matched) == 0 {
		return guardrails.Result{}, nil
	}

	return guardrails.Result{
		TripwireTriggered: true,
		Info: guardrails.Info{
			Confidence: 1.0,
			Reason:     "banned keyword: " + matched[0],
			Extra: map[string]any{
				"matched_keywords": matched,
			},
		},
	}, nil
}
