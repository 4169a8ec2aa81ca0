// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/railguard-ai/railguard/pkg/guardrails"
	"github.com/railguard-ai/railguard/pkg/llm"
)

// ModerationConfig configures the LLM-backed moderation classifier.
type ModerationConfig struct {
	// Model used for classification. Empty uses the provider default.
	Model string `koanf:"model"`

	// Categories to flag. Empty means the classifier's defaults.
	Categories []string `koanf:"categories"`

	// Threshold is the minimum confidence to trip. Default 0.7.
	Threshold float64 `koanf:"threshold"`
}

// moderationVerdict is the JSON shape the classifier model is asked for.
type moderationVerdict struct {
	Flagged    bool    `json:"flagged"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const moderationSystemPrompt = `You are a content moderation classifier.
Classify the final user-visible text for policy violations%s.
Respond with only a JSON object: {"flagged": bool, "category": string, "confidence": number, "reason": string}.`

func registerModeration(r *guardrails.Registry) {
	guardrails.RegisterCheck(r, NameModeration,
		"LLM-backed moderation classifier using the shared backing provider",
		checkModeration,
		guardrails.WithCheckMetadata(guardrails.Metadata{
			Engine:                  "llm",
			UsesConversationHistory: true,
		}),
	)
}

func checkModeration(ctx context.Context, data guardrails.CheckData, cfg ModerationConfig) (guardrails.Result, error) {
	if data.Text == "" {
		return guardrails.Result{}, nil
	}
	if data.Provider == nil {
		return guardrails.Result{}, fmt.Errorf("moderation: no backing provider configured")
	}

	categories := ""
	if len(cfg.Categories) > 0 {
		categories = " in categories: " + strings.Join(cfg.Categories, ", ")
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(moderationSystemPrompt, categories)},
	}
	if data.History != nil {
		if history := data.History(); len(history) > 0 {
			messages = append(messages, llm.Message{
				Role:    llm.RoleSystem,
				Content: "Conversation context:\n" + renderHistory(history),
			})
		}
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: data.Text})

	resp, err := data.Provider.Chat(ctx, llm.ChatRequest{Model: cfg.Model, Messages: messages})
	if err != nil {
		return guardrails.Result{}, fmt.Errorf("moderation: classifier call failed: %w", err)
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		return guardrails.Result{}, fmt.Errorf("moderation: %w", err)
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}

	tripped := verdict.Flagged && verdict.Confidence >= threshold
	return guardrails.Result{
		TripwireTriggered: tripped,
		Info: guardrails.Info{
			Confidence: verdict.Confidence,
			Reason:     verdict.Reason,
			Extra: map[string]any{
				"category": verdict.Category,
				"flagged":  verdict.Flagged,
			},
		},
	}, nil
}

func parseVerdict(content string) (moderationVerdict, error) {
	// Models occasionally wrap the object in prose or fences; take the
	// outermost braces.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return moderationVerdict{}, fmt.Errorf("classifier returned no JSON object: %q", content)
	}
	var verdict moderationVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return moderationVerdict{}, fmt.Errorf("failed to decode classifier verdict: %w", err)
	}
	return verdict, nil
}

func renderHistory(history []llm.Message) string {
	var b strings.Builder
	for _, msg := range history {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
