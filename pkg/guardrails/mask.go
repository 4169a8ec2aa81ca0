// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"sort"
	"strings"

	"github.com/railguard-ai/railguard/pkg/llm"
)

// EntityMap collects every original value detected across pre-flight
// results, mapped to its masking token "<ENTITY_TYPE>".
//
// A value detected under more than one entity type keeps the token it was
// assigned first: results are visited in declared order and entity types
// within a result in sorted order, so the winner never depends on map
// iteration.
func EntityMap(results []Result) map[string]string {
	entities := make(map[string]string)
	for _, res := range results {
		types := make([]string, 0, len(res.Info.DetectedEntities))
		for entityType := range res.Info.DetectedEntities {
			types = append(types, entityType)
		}
		sort.Strings(types)
		for _, entityType := range types {
			token := "<" + strings.ToUpper(entityType) + ">"
			for _, value := range res.Info.DetectedEntities[entityType] {
				if value == "" {
					continue
				}
				if _, seen := entities[value]; !seen {
					entities[value] = token
				}
			}
		}
	}
	return entities
}

// MaskText replaces every detected entity in text with its token. Values
// are treated as literal substrings, never patterns, and replaced in
// descending length order so a longer match is never corrupted by a
// shorter one replacing part of it first.
//
// With no entities the input string is returned unchanged, so callers can
// cheaply detect that no masking occurred.
func MaskText(text string, entities map[string]string) string {
	if len(entities) == 0 {
		return text
	}
	values := make([]string, 0, len(entities))
	for value := range entities {
		values = append(values, value)
	}
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})
	for _, value := range values {
		text = strings.ReplaceAll(text, value, entities[value])
	}
	return text
}

// MaskMessages rewrites only the most recently authored user message;
// every other message passes through unchanged. When nothing needs
// masking the input slice is returned as is (copy-on-write).
func MaskMessages(msgs []llm.Message, entities map[string]string) []llm.Message {
	if len(entities) == 0 || len(msgs) == 0 {
		return msgs
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != llm.RoleUser {
			continue
		}
		masked := MaskText(msgs[i].Content, entities)
		if masked == msgs[i].Content {
			return msgs
		}
		out := make([]llm.Message, len(msgs))
		copy(out, msgs)
		out[i].Content = masked
		return out
	}
	return msgs
}
