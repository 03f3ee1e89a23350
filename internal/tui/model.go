// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

// Package tui implements the full-screen terminal front end on Bubble Tea.
// It shares the session, command registry, and Ollama client with the
// line-oriented CLI; only the presentation differs.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/arlostone/parley/internal/chat"
	"github.com/arlostone/parley/internal/commands"
	"github.com/arlostone/parley/internal/config"
	"github.com/arlostone/parley/internal/ollama"
)

// =============================================================================
// STATE
// =============================================================================

type state int

const (
	stateReady state = iota
	stateStreaming
)

// entryKind distinguishes transcript rows from local notices.
type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryNotice
	entryError
)

// displayEntry is one rendered row of the conversation view. Notices and
// errors are display-only and never enter the session transcript.
type displayEntry struct {
	id   string
	kind entryKind
	text string
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	session  *chat.Session
	client   *ollama.Client
	registry *commands.Registry
	env      *commands.Context
	cfg      *config.Config

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	state  state
	width  int
	height int
	ready  bool

	entries []displayEntry

	// Active stream. pendingUser is committed to the session together
	// with the finished reply, so a failed turn leaves it untouched.
	streamCh    <-chan ollama.StreamChunk
	cancel      context.CancelFunc
	pendingUser ollama.Message
	streamID    string
	reply       string

	statusMsg  string
	ollamaDown bool
}

// New creates the chat screen model.
func New(cfg *config.Config, session *chat.Session, client *ollama.Client) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Send a message, or /help"
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	registry := commands.NewRegistry()

	return Model{
		session:  session,
		client:   client,
		registry: registry,
		env:      commands.NewContext(session, client),
		cfg:      cfg,
		viewport: vp,
		input:    ti,
		spinner:  sp,
		state:    stateReady,
	}
}

// Init probes Ollama and starts the input cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, checkOllamaCmd(m.client))
}

// =============================================================================
// UPDATE
// =============================================================================

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ollamaStatusMsg:
		m.ollamaDown = !msg.running
		if m.ollamaDown {
			m.appendEntry(entryError, fmt.Sprintf("Ollama is not running at %s. Start it with: ollama serve", m.client.BaseURL()))
		}
		return m, nil

	case commandResultMsg:
		return m.handleCommandResult(msg)

	case streamChunkMsg:
		return m.handleChunk(msg.chunk)

	case streamClosedMsg:
		if m.state == stateStreaming {
			m.abortStream("response ended unexpectedly")
		}
		return m, nil

	case spinner.TickMsg:
		if m.state != stateStreaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.state == stateStreaming {
			m.cancelStream()
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEsc:
		if m.state == stateStreaming {
			m.cancelStream()
		}
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		return m.handleSubmit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	if m.state == stateStreaming {
		return m, nil
	}

	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.SetValue("")
	m.statusMsg = ""

	if commands.IsCommand(text) {
		return m, dispatchCmd(m.registry, m.env, text)
	}
	return m.startTurn(text)
}

// startTurn opens a stream for the given user input. The user message is
// shown immediately but only committed when the reply completes.
func (m Model) startTurn(text string) (tea.Model, tea.Cmd) {
	userMsg := ollama.NewUserMessage(text)
	outgoing := append(m.session.Messages(), userMsg)

	ctx, cancel := context.WithCancel(context.Background())
	opts := &ollama.Options{Temperature: m.session.Temperature()}
	ch := m.client.ChatStreamChan(ctx, m.session.Model(), outgoing, opts)

	m.state = stateStreaming
	m.streamCh = ch
	m.cancel = cancel
	m.pendingUser = userMsg
	m.streamID = uuid.NewString()
	m.reply = ""

	m.appendEntry(entryUser, text)
	m.entries = append(m.entries, displayEntry{id: m.streamID, kind: entryAssistant})
	m.refreshViewport()

	return m, tea.Batch(waitForChunk(ch), m.spinner.Tick)
}

func (m Model) handleChunk(chunk ollama.StreamChunk) (tea.Model, tea.Cmd) {
	if m.state != stateStreaming {
		return m, nil
	}

	if chunk.Error != nil {
		m.abortStream(turnErrorMessage(chunk.Error))
		return m, nil
	}

	if chunk.Content != "" {
		m.reply += chunk.Content
		m.setEntryText(m.streamID, m.reply)
		m.refreshViewport()
	}

	if chunk.Done {
		m.finishStream(chunk)
		return m, nil
	}
	return m, waitForChunk(m.streamCh)
}

// finishStream commits the completed turn to the session transcript.
func (m *Model) finishStream(final ollama.StreamChunk) {
	m.session.Append(m.pendingUser)
	m.session.Append(ollama.NewAssistantMessage(m.reply))

	m.statusMsg = fmt.Sprintf("%d tokens | %s | %.1f tok/s",
		final.CompletionTokens,
		final.TotalDuration.Round(time.Millisecond),
		final.TokensPerSecond(),
	)
	m.resetStream()
}

// abortStream discards the in-flight turn. The session transcript is
// unchanged and the partial reply is removed from the view.
func (m *Model) abortStream(reason string) {
	m.removeEntry(m.streamID)
	m.removeLastEntryOfKind(entryUser)
	m.appendEntry(entryError, reason)
	m.resetStream()
}

func (m *Model) cancelStream() {
	if m.cancel != nil {
		m.cancel()
	}
	m.removeEntry(m.streamID)
	m.removeLastEntryOfKind(entryUser)
	m.appendEntry(entryNotice, "[Cancelled]")
	m.resetStream()
}

func (m *Model) resetStream() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state = stateReady
	m.streamCh = nil
	m.streamID = ""
	m.pendingUser = ollama.Message{}
	m.refreshViewport()
}

func (m Model) handleCommandResult(msg commandResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.appendEntry(entryError, msg.err.Error())
		m.refreshViewport()
		return m, nil
	}
	if msg.result.Quit {
		return m, tea.Quit
	}
	if msg.result.Cleared {
		m.entries = nil
		m.statusMsg = ""
	}
	if msg.result.Output != "" {
		m.appendEntry(entryNotice, msg.result.Output)
	}
	m.refreshViewport()
	return m, nil
}

// =============================================================================
// ENTRY HELPERS
// =============================================================================

func (m *Model) appendEntry(kind entryKind, text string) {
	m.entries = append(m.entries, displayEntry{id: uuid.NewString(), kind: kind, text: text})
	m.refreshViewport()
}

func (m *Model) setEntryText(id, text string) {
	for i := range m.entries {
		if m.entries[i].id == id {
			m.entries[i].text = text
			return
		}
	}
}

func (m *Model) removeEntry(id string) {
	for i := range m.entries {
		if m.entries[i].id == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// removeLastEntryOfKind drops the most recent entry of the given kind.
// Used to back out the optimistic user row on a failed turn.
func (m *Model) removeLastEntryOfKind(kind entryKind) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].kind == kind {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// turnErrorMessage renders a stream failure for the transcript view.
func turnErrorMessage(err error) string {
	switch {
	case ollama.IsNotRunning(err):
		return "lost connection to Ollama. Is it still running?"
	case errors.Is(err, context.Canceled):
		return "[Cancelled]"
	default:
		return err.Error()
	}
}
