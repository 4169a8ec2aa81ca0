// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"testing"

	"github.com/railguard-ai/railguard/pkg/llm"
)

func TestEntityMap(t *testing.T) {
	results := []Result{
		{Info: Info{DetectedEntities: map[string][]string{
			"email": {"alice@example.com"},
			"phone": {"555-1234"},
		}}},
		{Info: Info{DetectedEntities: map[string][]string{
			"email": {"bob@example.com"},
		}}},
		{Info: Info{}}, // no detections contribute nothing
	}

	entities := EntityMap(results)
	want := map[string]string{
		"alice@example.com": "<EMAIL>",
		"bob@example.com":   "<EMAIL>",
		"555-1234":          "<PHONE>",
	}
	if len(entities) != len(want) {
		t.Fatalf("expected %d entities, got %d: %v", len(want), len(entities), entities)
	}
	for value, token := range want {
		if entities[value] != token {
			t.Errorf("entity %q: expected token %q, got %q", value, token, entities[value])
		}
	}
}

func TestEntityMapStableTokenForSharedValue(t *testing.T) {
	// The same value detected under several entity types must always get
	// the same token: first result wins, and within one result the
	// lexicographically first entity type.
	results := []Result{
		{Info: Info{DetectedEntities: map[string][]string{
			"username": {"alice@example.com"},
			"email":    {"alice@example.com"},
		}}},
		{Info: Info{DetectedEntities: map[string][]string{
			"account": {"alice@example.com"},
		}}},
	}

	for i := 0; i < 50; i++ {
		entities := EntityMap(results)
		if got := entities["alice@example.com"]; got != "<EMAIL>" {
			t.Fatalf("iteration %d: expected <EMAIL>, got %q", i, got)
		}
	}
}

func TestEntityMapIgnoresEmptyValues(t *testing.T) {
	entities := EntityMap([]Result{
		{Info: Info{DetectedEntities: map[string][]string{"email": {""}}}},
	})
	if len(entities) != 0 {
		t.Errorf("expected empty values dropped, got %v", entities)
	}
}

func TestMaskText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		entities map[string]string
		want     string
	}{
		{
			name:     "single email",
			text:     "Email me at alice@example.com please",
			entities: map[string]string{"alice@example.com": "<EMAIL>"},
			want:     "Email me at <EMAIL> please",
		},
		{
			name: "longest value replaced first",
			text: "call 555-1234 or extension 1234",
			entities: map[string]string{
				"555-1234": "<PHONE>",
				"1234":     "<EXTENSION>",
			},
			want: "call <PHONE> or extension <EXTENSION>",
		},
		{
			name:     "every occurrence replaced",
			text:     "alice@example.com wrote to alice@example.com",
			entities: map[string]string{"alice@example.com": "<EMAIL>"},
			want:     "<EMAIL> wrote to <EMAIL>",
		},
		{
			name:     "no entities",
			text:     "nothing to hide",
			entities: nil,
			want:     "nothing to hide",
		},
		{
			name:     "value absent from text",
			text:     "nothing to hide",
			entities: map[string]string{"secret": "<CREDENTIAL>"},
			want:     "nothing to hide",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskText(tt.text, tt.entities); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMaskTextIdempotent(t *testing.T) {
	entities := map[string]string{"alice@example.com": "<EMAIL>"}
	once := MaskText("reach alice@example.com", entities)
	twice := MaskText(once, entities)
	if once != twice {
		t.Errorf("masking must be idempotent: %q vs %q", once, twice)
	}
}

func TestMaskMessagesLatestUserOnly(t *testing.T) {
	entities := map[string]string{"alice@example.com": "<EMAIL>"}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "policy mentions alice@example.com"},
		{Role: llm.RoleUser, Content: "earlier turn with alice@example.com"},
		{Role: llm.RoleAssistant, Content: "echo alice@example.com"},
		{Role: llm.RoleUser, Content: "mask alice@example.com here"},
	}

	masked := MaskMessages(msgs, entities)
	if masked[3].Content != "mask <EMAIL> here" {
		t.Errorf("latest user message not masked: %q", masked[3].Content)
	}
	for i := 0; i < 3; i++ {
		if masked[i].Content != msgs[i].Content {
			t.Errorf("message %d should pass through unchanged: %q", i, masked[i].Content)
		}
	}
	if msgs[3].Content != "mask alice@example.com here" {
		t.Error("input slice must not be mutated")
	}
}

func TestMaskMessagesCopyOnWrite(t *testing.T) {
	msgs := []llm.Message{{Role: llm.RoleUser, Content: "hello"}}

	// No entities: identical slice back.
	if got := MaskMessages(msgs, nil); &got[0] != &msgs[0] {
		t.Error("expected the input slice back when there is nothing to mask")
	}

	// Entities that do not occur: identical slice back.
	got := MaskMessages(msgs, map[string]string{"absent": "<X>"})
	if &got[0] != &msgs[0] {
		t.Error("expected the input slice back when masking changes nothing")
	}
}

func TestMaskMessagesNoUserMessage(t *testing.T) {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: "alice@example.com"}}
	got := MaskMessages(msgs, map[string]string{"alice@example.com": "<EMAIL>"})
	if got[0].Content != "alice@example.com" {
		t.Error("non-user messages must never be masked")
	}
}
