// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClientWithConfig(&ClientConfig{
		BaseURL:      baseURL,
		DefaultModel: "gemma3:270m",
	})
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

func TestCheckRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Ollama is running")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.CheckRunning(context.Background())
	assert.NoError(t, err)
}

func TestCheckRunningUnreachable(t *testing.T) {
	// A closed server guarantees connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(srv.URL)
	err := client.CheckRunning(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotRunning(err))
}

// =============================================================================
// MODEL LISTING
// =============================================================================

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(ListModelsResponse{
			Models: []ModelInfo{
				{Name: "gemma3:270m", Size: 291 * 1024 * 1024},
				{Name: "llama3.2:1b", Size: 1340 * 1024 * 1024},
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gemma3:270m", models[0].Name)
}

func TestModelExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ListModelsResponse{
			Models: []ModelInfo{{Name: "gemma3:270m"}},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	exists, err := client.ModelExists(context.Background(), "gemma3:270m")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.ModelExists(context.Background(), "nonexistent:latest")
	require.NoError(t, err)
	assert.False(t, exists)
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

func streamHandler(t *testing.T, fragments []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, frag := range fragments {
			enc.Encode(ChatResponse{
				Model:   "gemma3:270m",
				Message: Message{Role: "assistant", Content: frag},
			})
		}
		enc.Encode(ChatResponse{
			Model:           "gemma3:270m",
			Done:            true,
			DoneReason:      "stop",
			EvalCount:       len(fragments),
			PromptEvalCount: 5,
		})
	}
}

func TestChatStreamAccumulates(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, []string{"Hi", " there", "!"}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	acc := NewStreamAccumulator()

	var order []string
	err := client.ChatStream(context.Background(), "gemma3:270m",
		[]Message{NewUserMessage("hello")}, nil,
		func(chunk StreamChunk) {
			if chunk.Content != "" {
				order = append(order, chunk.Content)
			}
			acc.Add(chunk)
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there", "!"}, order)
	assert.True(t, acc.Done())
	assert.Equal(t, "Hi there!", acc.Content())
	assert.Equal(t, "stop", acc.DoneReason())
	assert.Equal(t, 3, acc.FinalChunk().CompletionTokens)
}

func TestChatStreamSendsTemperature(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ChatResponse{Done: true, DoneReason: "stop"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "gemma3:270m",
		[]Message{NewUserMessage("hello")},
		&Options{Temperature: 0.3},
		func(StreamChunk) {})

	require.NoError(t, err)
	assert.True(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.InDelta(t, 0.3, got.Options.Temperature, 1e-9)
}

func TestChatStreamModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(apiError{Error: "model 'missing:latest' not found"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "missing:latest",
		[]Message{NewUserMessage("hello")}, nil,
		func(StreamChunk) {})

	require.Error(t, err)
	assert.True(t, IsModelNotFound(err))
}

func TestChatStreamNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "gemma3:270m",
		[]Message{NewUserMessage("hello")}, nil,
		func(StreamChunk) {})

	require.Error(t, err)
	assert.True(t, IsNotRunning(err))
}

func TestChatStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fragment without a terminating done chunk.
		json.NewEncoder(w).Encode(ChatResponse{
			Message: Message{Role: "assistant", Content: "partial"},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "gemma3:270m",
		[]Message{NewUserMessage("hello")}, nil,
		func(StreamChunk) {})

	require.Error(t, err)
}

func TestChatStreamMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"runner exited unexpectedly"}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "gemma3:270m",
		[]Message{NewUserMessage("hello")}, nil,
		func(StreamChunk) {})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner exited unexpectedly")
}

func TestChatStreamChan(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t, []string{"a", "b"}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	ch := client.ChatStreamChan(context.Background(), "gemma3:270m",
		[]Message{NewUserMessage("hello")}, nil)

	acc := NewStreamAccumulator()
	for chunk := range ch {
		require.NoError(t, chunk.Error)
		acc.Add(chunk)
	}
	assert.Equal(t, "ab", acc.Content())
	assert.True(t, acc.Done())
}

func TestChatStreamChanDeliversError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(srv.URL)
	ch := client.ChatStreamChan(context.Background(), "gemma3:270m",
		[]Message{NewUserMessage("hello")}, nil)

	var streamErr error
	for chunk := range ch {
		if chunk.Error != nil {
			streamErr = chunk.Error
		}
	}
	require.Error(t, streamErr)
	assert.True(t, IsNotRunning(streamErr))
}

// =============================================================================
// TYPES
// =============================================================================

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want string
	}{
		{"bytes", 512, "512 B"},
		{"kilobytes", 2048, "2.0 KB"},
		{"megabytes", 291 * 1024 * 1024, "291.0 MB"},
		{"gigabytes", 3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ModelInfo{Size: tt.size}
			assert.Equal(t, tt.want, m.FormatSize())
		})
	}
}

func TestTokensPerSecond(t *testing.T) {
	chunk := StreamChunk{
		CompletionTokens: 100,
		EvalDuration:     2_000_000_000, // 2s in nanoseconds
	}
	assert.InDelta(t, 50.0, chunk.TokensPerSecond(), 0.01)

	zero := StreamChunk{CompletionTokens: 100}
	assert.Zero(t, zero.TokensPerSecond())
}
