// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlostone/parley/internal/chat"
	"github.com/arlostone/parley/internal/ollama"
)

// fakeModelClient serves a fixed model list.
type fakeModelClient struct {
	models []ollama.ModelInfo
	err    error
}

func (f *fakeModelClient) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return f.models, f.err
}

func (f *fakeModelClient) ModelExists(ctx context.Context, name string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, m := range f.models {
		if m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func newTestEnv(t *testing.T) *Context {
	t.Helper()
	session, err := chat.NewSession("gemma3:270m", 0.7)
	require.NoError(t, err)
	return NewContext(session, &fakeModelClient{
		models: []ollama.ModelInfo{
			{Name: "gemma3:270m", Size: 291 * 1024 * 1024},
			{Name: "llama3.2:1b", Size: 1340 * 1024 * 1024},
		},
	})
}

// =============================================================================
// PARSER
// =============================================================================

func TestParse(t *testing.T) {
	parser := NewParser(NewRegistry())

	tests := []struct {
		name      string
		input     string
		isCommand bool
		cmdName   string
		args      []string
	}{
		{"plain text", "hello there", false, "", nil},
		{"simple command", "/help", true, "/help", nil},
		{"command with arg", "/switch llama3.2:1b", true, "/switch", []string{"llama3.2:1b"}},
		{"leading whitespace", "  /quit  ", true, "/quit", nil},
		{"unknown command", "/frobnicate", true, "/frobnicate", nil},
		{"slash mid-sentence is chat", "what does / mean", false, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parser.Parse(tt.input)
			assert.Equal(t, tt.isCommand, result.IsCommand)
			assert.Equal(t, tt.cmdName, result.CommandName)
			if tt.args != nil {
				assert.Equal(t, tt.args, result.Args)
			}
		})
	}
}

func TestAliasesResolve(t *testing.T) {
	r := NewRegistry()
	for alias, want := range map[string]string{
		"/h":    "/help",
		"/?":    "/help",
		"/c":    "/clear",
		"/q":    "/quit",
		"/exit": "/quit",
	} {
		cmd := r.Get(alias)
		require.NotNil(t, cmd, "alias %s", alias)
		assert.Equal(t, want, cmd.Name)
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

func TestDispatchPlainTextNotHandled(t *testing.T) {
	r := NewRegistry()
	_, handled, err := r.Dispatch(context.Background(), newTestEnv(t), "tell me a joke")
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestDispatchUnknownCommand(t *testing.T) {
	r := NewRegistry()
	env := newTestEnv(t)
	env.Session.Append(ollama.NewUserMessage("prior"))

	_, handled, err := r.Dispatch(context.Background(), env, "/bogus")
	assert.True(t, handled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/bogus")
	// Never forwarded to the model; transcript untouched.
	assert.Equal(t, 1, env.Session.Len())
}

func TestDispatchHelp(t *testing.T) {
	r := NewRegistry()
	result, handled, err := r.Dispatch(context.Background(), newTestEnv(t), "/help")
	require.NoError(t, err)
	assert.True(t, handled)
	for _, name := range []string{"/help", "/clear", "/models", "/switch", "/temp", "/quit"} {
		assert.Contains(t, result.Output, name)
	}
}

func TestDispatchClear(t *testing.T) {
	r := NewRegistry()
	env := newTestEnv(t)
	env.Session.Append(ollama.NewUserMessage("hello"))
	env.Session.Append(ollama.NewAssistantMessage("hi"))

	result, handled, err := r.Dispatch(context.Background(), env, "/clear")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, result.Cleared)
	assert.Equal(t, 0, env.Session.Len())
	assert.Equal(t, "gemma3:270m", env.Session.Model())
}

func TestDispatchModels(t *testing.T) {
	r := NewRegistry()
	result, _, err := r.Dispatch(context.Background(), newTestEnv(t), "/models")
	require.NoError(t, err)
	assert.Contains(t, result.Output, "gemma3:270m")
	assert.Contains(t, result.Output, "llama3.2:1b")
	// Active model is marked and entries are numbered for /switch.
	assert.Contains(t, result.Output, "*  1. gemma3:270m")
}

func TestDispatchSwitch(t *testing.T) {
	r := NewRegistry()
	env := newTestEnv(t)
	env.Session.Append(ollama.NewUserMessage("keep me"))

	_, _, err := r.Dispatch(context.Background(), env, "/switch llama3.2:1b")
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:1b", env.Session.Model())
	assert.Equal(t, 1, env.Session.Len())
}

func TestDispatchSwitchByNumber(t *testing.T) {
	r := NewRegistry()
	env := newTestEnv(t)

	// Numbers follow the sorted /models listing.
	_, _, err := r.Dispatch(context.Background(), env, "/switch 2")
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:1b", env.Session.Model())

	_, _, err = r.Dispatch(context.Background(), env, "/switch 9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model number 9")
	assert.Equal(t, "llama3.2:1b", env.Session.Model())
}

// fakePrompter answers every prompt with a canned line.
type fakePrompter struct {
	reply string
}

func (f *fakePrompter) ReadInput(prompt string) (string, error) {
	return f.reply, nil
}

func TestDispatchSwitchPromptsWhenSupported(t *testing.T) {
	r := NewRegistry()
	env := newTestEnv(t)
	env.Prompter = &fakePrompter{reply: "llama3.2:1b"}

	_, _, err := r.Dispatch(context.Background(), env, "/switch")
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:1b", env.Session.Model())
}

func TestDispatchTempPromptsWhenSupported(t *testing.T) {
	r := NewRegistry()
	env := newTestEnv(t)
	env.Prompter = &fakePrompter{reply: "0.4"}

	_, _, err := r.Dispatch(context.Background(), env, "/temp")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, env.Session.Temperature(), 1e-9)

	// An empty answer keeps the current value.
	env.Prompter = &fakePrompter{reply: ""}
	result, _, err := r.Dispatch(context.Background(), env, "/temp")
	require.NoError(t, err)
	assert.Contains(t, result.Output, "0.40")
	assert.InDelta(t, 0.4, env.Session.Temperature(), 1e-9)
}

func TestDispatchSwitchUnknownModel(t *testing.T) {
	r := NewRegistry()
	env := newTestEnv(t)

	_, _, err := r.Dispatch(context.Background(), env, "/switch missing:latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not installed")
	// The rejection carries the client error taxonomy.
	assert.True(t, ollama.IsModelNotFound(err))
	assert.Equal(t, "gemma3:270m", env.Session.Model())
}

func TestDispatchSwitchMissingArg(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Dispatch(context.Background(), newTestEnv(t), "/switch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage")
}

func TestDispatchTemp(t *testing.T) {
	r := NewRegistry()
	env := newTestEnv(t)

	result, _, err := r.Dispatch(context.Background(), env, "/temp")
	require.NoError(t, err)
	assert.Contains(t, result.Output, "0.70")

	_, _, err = r.Dispatch(context.Background(), env, "/temp 0.2")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, env.Session.Temperature(), 1e-9)
}

func TestDispatchTempRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	env := newTestEnv(t)

	tests := []struct {
		name  string
		input string
	}{
		{"out of range", "/temp 1.5"},
		{"negative", "/temp -0.3"},
		{"not a number", "/temp hot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Dispatch(context.Background(), env, tt.input)
			require.Error(t, err)
			assert.InDelta(t, 0.7, env.Session.Temperature(), 1e-9)
		})
	}
}

func TestDispatchQuit(t *testing.T) {
	r := NewRegistry()
	for _, input := range []string{"/quit", "/q", "/exit"} {
		result, handled, err := r.Dispatch(context.Background(), newTestEnv(t), input)
		require.NoError(t, err)
		assert.True(t, handled)
		assert.True(t, result.Quit, "input %s", input)
	}
}
