// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the provider abstraction the guardrail pipeline wraps.
//
// Conversation entries are the closed {Role, Content} variant; they are
// normalized once at the system boundary and never re-detected downstream.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single unit of conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the input for the LLM.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse encapsulates the output from the LLM.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with LLM backends.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// StreamChunk is one incremental piece of a streaming response.
// Done marks the final chunk of the stream.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
	Done    bool   `json:"done"`
	Error   error  `json:"-"`
}

// StreamingProvider is implemented by backends that can stream responses
// token by token.
type StreamingProvider interface {
	Provider

	// ChatStream starts a streaming chat request. The returned channel is
	// closed by the provider after the final chunk or an error chunk.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

// LatestUserMessage returns the content of the most recently authored user
// message, or "" if none exists.
func LatestUserMessage(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
