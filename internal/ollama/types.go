// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

// Package ollama provides the HTTP client for the local Ollama API.
package ollama

import (
	"fmt"
	"time"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the conversation transcript.
type Message struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // The message content
}

// ChatRequest is the request body for the /api/chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`             // Model name (e.g., "gemma3:270m")
	Messages []Message `json:"messages"`          // Conversation history, oldest first
	Stream   bool      `json:"stream"`            // Enable streaming
	Options  *Options  `json:"options,omitempty"` // Sampling parameters
}

// Options contains sampling parameters for inference.
// Only fields the application actually sets are modeled; Ollama fills
// in its own defaults for anything omitted.
type Options struct {
	Temperature float64 `json:"temperature"` // 0.0-1.0 for this application
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens to generate
	Seed        int     `json:"seed,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is a single NDJSON line from the /api/chat endpoint.
type ChatResponse struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Message         Message   `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	TotalDuration   int64     `json:"total_duration,omitempty"` // nanoseconds
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
	EvalDuration    int64     `json:"eval_duration,omitempty"` // nanoseconds
}

// ModelInfo describes an installed model as reported by /api/tags.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string `json:"format"`
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

// ListModelsResponse is the response from the /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// apiError is the error payload Ollama returns on non-200 responses.
type apiError struct {
	Error string `json:"error"`
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is a single fragment of a streaming response.
type StreamChunk struct {
	// Content carries the text fragment for this chunk.
	Content string

	// Done is true on the final chunk of a stream.
	Done       bool
	DoneReason string

	// Generation statistics, populated on the final chunk only.
	TotalDuration    time.Duration
	EvalDuration     time.Duration
	PromptTokens     int
	CompletionTokens int

	// Model that produced the chunk.
	Model string

	// Error, if one occurred during streaming. Delivered as the final
	// chunk by ChatStreamChan.
	Error error
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// TokensPerSecond calculates the generation speed of a completed stream.
func (c *StreamChunk) TokensPerSecond() float64 {
	if c.EvalDuration == 0 {
		return 0
	}
	return float64(c.CompletionTokens) / c.EvalDuration.Seconds()
}

// FormatSize formats the model size in human-readable form.
func (m *ModelInfo) FormatSize() string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case m.Size >= gb:
		return fmt.Sprintf("%.1f GB", float64(m.Size)/gb)
	case m.Size >= mb:
		return fmt.Sprintf("%.1f MB", float64(m.Size)/mb)
	case m.Size >= kb:
		return fmt.Sprintf("%.1f KB", float64(m.Size)/kb)
	default:
		return fmt.Sprintf("%d B", m.Size)
	}
}
