// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
)

// MockProvider is a testing implementation of Provider and StreamingProvider.
type MockProvider struct {
	Response string
	Chunks   []string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// ChatStream replays Chunks (or Response as a single chunk) followed by a
// Done chunk, mirroring provider stream shape.
func (m *MockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	chunks := make(chan StreamChunk, len(m.Chunks)+2)
	go func() {
		defer close(chunks)
		parts := m.Chunks
		if len(parts) == 0 && m.Response != "" {
			parts = []string{m.Response}
		}
		for _, part := range parts {
			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Error: ctx.Err()}
				return
			case chunks <- StreamChunk{Content: part}:
			}
		}
		chunks <- StreamChunk{Done: true, Usage: &Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}}
	}()
	return chunks, nil
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

var (
	_ StreamingProvider = (*MockProvider)(nil)
	_ Provider          = (*FailingMockProvider)(nil)
)
