// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package chat

import (
	"context"

	"github.com/arlostone/parley/internal/ollama"
)

// =============================================================================
// TURN RUNNER
// =============================================================================

// Completer streams a chat completion for a transcript. *ollama.Client
// satisfies this; tests substitute fakes.
type Completer interface {
	ChatStream(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options, callback ollama.StreamCallback) error
}

// TurnResult summarizes a completed turn.
type TurnResult struct {
	Reply ollama.Message
	Stats ollama.StreamChunk // final chunk with generation statistics
}

// RunTurn sends the user's input plus the prior transcript to the backend
// and streams the reply. Each fragment is passed to onFragment as it
// arrives. The user message and the complete reply are appended to the
// session only after the stream finishes cleanly; if the turn fails or is
// cancelled, the transcript is left exactly as it was.
func RunTurn(ctx context.Context, session *Session, backend Completer, input string, onFragment func(string)) (*TurnResult, error) {
	userMsg := ollama.NewUserMessage(input)

	// Send the pending user message with the history, but do not commit
	// it until the reply lands.
	outgoing := append(session.Messages(), userMsg)

	opts := &ollama.Options{Temperature: session.Temperature()}
	acc := ollama.NewStreamAccumulator()

	err := backend.ChatStream(ctx, session.Model(), outgoing, opts, func(chunk ollama.StreamChunk) {
		acc.Add(chunk)
		if chunk.Content != "" && onFragment != nil {
			onFragment(chunk.Content)
		}
	})
	if err != nil {
		return nil, err
	}

	reply := acc.Message()
	session.Append(userMsg)
	session.Append(reply)

	return &TurnResult{
		Reply: reply,
		Stats: acc.FinalChunk(),
	}, nil
}
