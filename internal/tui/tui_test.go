// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlostone/parley/internal/chat"
	"github.com/arlostone/parley/internal/commands"
	"github.com/arlostone/parley/internal/config"
	"github.com/arlostone/parley/internal/ollama"
)

func newTestModel(t *testing.T) Model {
	t.Helper()

	session, err := chat.NewSession("gemma3:270m", 0.7)
	require.NoError(t, err)

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: "http://127.0.0.1:1"})
	m := New(config.Default(), session, client)
	m.width = 80
	m.height = 24
	m.resize()
	m.ready = true
	return m
}

// primeStream puts the model into the state startTurn leaves it in,
// without opening a network connection.
func primeStream(m *Model, input string) {
	m.state = stateStreaming
	m.streamID = "stream-1"
	m.pendingUser = ollama.NewUserMessage(input)
	m.reply = ""
	m.appendEntry(entryUser, input)
	m.entries = append(m.entries, displayEntry{id: m.streamID, kind: entryAssistant})
}

func TestChunksAccumulateAndCommitOnDone(t *testing.T) {
	m := newTestModel(t)
	primeStream(&m, "hello")

	for _, content := range []string{"Hi", " there", "!"} {
		next, _ := m.handleChunk(ollama.StreamChunk{Content: content})
		m = next.(Model)
		// Fragments stay in the view only until the stream finishes.
		assert.Equal(t, 0, m.session.Len())
	}

	next, _ := m.handleChunk(ollama.StreamChunk{
		Done:             true,
		DoneReason:       "stop",
		CompletionTokens: 3,
		TotalDuration:    2 * time.Second,
		EvalDuration:     time.Second,
	})
	m = next.(Model)

	require.Equal(t, 2, m.session.Len())
	msgs := m.session.Messages()
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "Hi there!", msgs[1].Content)
	assert.Equal(t, stateReady, m.state)
	assert.Contains(t, m.statusMsg, "3 tokens")
}

func TestStreamingSurvivesModelCopies(t *testing.T) {
	m := newTestModel(t)
	primeStream(&m, "hello")

	// Deliver chunks through the tea.Model interface so the model value
	// is copied on every update, exactly as the Bubble Tea runtime does.
	var tm tea.Model = m
	for _, content := range []string{"Hi", " there", "!"} {
		tm, _ = tm.Update(streamChunkMsg{chunk: ollama.StreamChunk{Content: content}})
	}
	tm, _ = tm.Update(streamChunkMsg{chunk: ollama.StreamChunk{Done: true, DoneReason: "stop"}})

	final := tm.(Model)
	require.Equal(t, 2, final.session.Len())
	assert.Equal(t, "Hi there!", final.session.Messages()[1].Content)
	assert.Equal(t, stateReady, final.state)
}

func TestChunkErrorLeavesTranscriptUnchanged(t *testing.T) {
	m := newTestModel(t)
	primeStream(&m, "hello")

	next, _ := m.handleChunk(ollama.StreamChunk{Content: "partial"})
	m = next.(Model)

	next, _ = m.handleChunk(ollama.StreamChunk{Error: ollama.ErrNotRunning, Done: true})
	m = next.(Model)

	assert.Equal(t, 0, m.session.Len())
	assert.Equal(t, stateReady, m.state)

	// The optimistic user row and the partial reply are both gone.
	for _, e := range m.entries {
		assert.NotEqual(t, entryUser, e.kind)
		assert.NotEqual(t, entryAssistant, e.kind)
	}
	require.NotEmpty(t, m.entries)
	assert.Equal(t, entryError, m.entries[len(m.entries)-1].kind)
}

func TestCancelDiscardsPendingTurn(t *testing.T) {
	m := newTestModel(t)
	primeStream(&m, "hello")

	m.cancelStream()

	assert.Equal(t, 0, m.session.Len())
	assert.Equal(t, stateReady, m.state)
	require.NotEmpty(t, m.entries)
	last := m.entries[len(m.entries)-1]
	assert.Equal(t, entryNotice, last.kind)
	assert.Equal(t, "[Cancelled]", last.text)
}

func TestCommandResultQuit(t *testing.T) {
	m := newTestModel(t)

	_, cmd := m.handleCommandResult(commandResultMsg{
		result:  commands.Result{Quit: true},
		handled: true,
	})
	require.NotNil(t, cmd)
}

func TestCommandResultClear(t *testing.T) {
	m := newTestModel(t)
	m.appendEntry(entryUser, "hello")
	m.appendEntry(entryAssistant, "hi")
	m.statusMsg = "3 tokens"

	next, _ := m.handleCommandResult(commandResultMsg{
		result:  commands.Result{Output: "Conversation history cleared.", Cleared: true},
		handled: true,
	})
	m = next.(Model)

	require.Len(t, m.entries, 1)
	assert.Equal(t, entryNotice, m.entries[0].kind)
	assert.Empty(t, m.statusMsg)
}

func TestTurnErrorMessage(t *testing.T) {
	assert.Equal(t, "lost connection to Ollama. Is it still running?",
		turnErrorMessage(ollama.ErrNotRunning))
	assert.Equal(t, "[Cancelled]", turnErrorMessage(context.Canceled))
}
