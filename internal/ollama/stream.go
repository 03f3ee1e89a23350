// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader processes newline-delimited JSON responses from Ollama.
type StreamReader struct {
	scanner *bufio.Scanner
}

// NewStreamReader creates a reader for an NDJSON response body.
func NewStreamReader(r io.Reader) *StreamReader {
	scanner := bufio.NewScanner(r)
	// Model output lines can exceed the default 64KB scanner buffer.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &StreamReader{scanner: scanner}
}

// Process reads the stream line by line and invokes callback per chunk.
// Returns nil after the final (done) chunk, or an error if the stream
// terminates early, carries an API error, or ctx is cancelled.
func (r *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for r.scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		var resp ChatResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "malformed stream line", Cause: err}
		}

		// Ollama reports mid-stream failures as an error field on the line.
		var apiErr apiError
		if err := json.Unmarshal([]byte(line), &apiErr); err == nil && apiErr.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: apiErr.Error}
		}

		chunk := StreamChunk{
			Content:    resp.Message.Content,
			Done:       resp.Done,
			DoneReason: resp.DoneReason,
			Model:      resp.Model,
		}

		if resp.Done {
			chunk.TotalDuration = time.Duration(resp.TotalDuration)
			chunk.EvalDuration = time.Duration(resp.EvalDuration)
			chunk.PromptTokens = resp.PromptEvalCount
			chunk.CompletionTokens = resp.EvalCount
		}

		callback(chunk)

		if resp.Done {
			return nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
	}

	// EOF before a done chunk means the server dropped the connection.
	return &ClientError{Type: ErrTypeConnection, Message: "stream ended before completion"}
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// StreamAccumulator collects fragments into the complete assistant reply.
// The transcript only ever receives the accumulated result, never a
// partial message.
type StreamAccumulator struct {
	builder    strings.Builder
	done       bool
	doneReason string
	final      StreamChunk
}

// NewStreamAccumulator creates an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{}
}

// Add appends a chunk's content and records completion metadata.
func (a *StreamAccumulator) Add(chunk StreamChunk) {
	a.builder.WriteString(chunk.Content)
	if chunk.Done {
		a.done = true
		a.doneReason = chunk.DoneReason
		a.final = chunk
	}
}

// Content returns the accumulated text so far.
func (a *StreamAccumulator) Content() string {
	return a.builder.String()
}

// Done reports whether the final chunk has arrived.
func (a *StreamAccumulator) Done() bool {
	return a.done
}

// DoneReason returns the completion reason from the final chunk.
func (a *StreamAccumulator) DoneReason() string {
	return a.doneReason
}

// FinalChunk returns the final chunk, valid once Done reports true.
func (a *StreamAccumulator) FinalChunk() StreamChunk {
	return a.final
}

// Message returns the accumulated reply as an assistant message.
func (a *StreamAccumulator) Message() Message {
	return NewAssistantMessage(a.builder.String())
}
