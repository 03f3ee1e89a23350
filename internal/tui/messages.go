// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/arlostone/parley/internal/commands"
	"github.com/arlostone/parley/internal/ollama"
)

// =============================================================================
// TEA MESSAGES
// =============================================================================

// streamChunkMsg delivers one chunk from the active stream.
type streamChunkMsg struct {
	chunk ollama.StreamChunk
}

// streamClosedMsg signals the stream channel closed without a done chunk.
type streamClosedMsg struct{}

// ollamaStatusMsg reports the startup reachability probe.
type ollamaStatusMsg struct {
	running bool
	err     error
}

// commandResultMsg delivers the outcome of a slash command. Commands run
// in a tea.Cmd because some of them talk to Ollama.
type commandResultMsg struct {
	result  commands.Result
	handled bool
	err     error
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForChunk reads the next chunk off the stream channel. Each received
// chunk re-issues this command until the channel closes.
func waitForChunk(ch <-chan ollama.StreamChunk) tea.Cmd {
	return func() tea.Msg {
		chunk, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return streamChunkMsg{chunk: chunk}
	}
}

// checkOllamaCmd probes the Ollama server at startup.
func checkOllamaCmd(client *ollama.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := client.CheckRunning(ctx)
		return ollamaStatusMsg{running: err == nil, err: err}
	}
}

// dispatchCmd runs a slash command off the update loop.
func dispatchCmd(registry *commands.Registry, env *commands.Context, input string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, handled, err := registry.Dispatch(ctx, env, input)
		return commandResultMsg{result: result, handled: handled, err: err}
	}
}
