// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

// Package commands provides the slash directive system shared by the
// terminal front ends. Directives adjust session state or report status;
// they are never forwarded to the model.
package commands

import (
	"context"

	"github.com/arlostone/parley/internal/chat"
	"github.com/arlostone/parley/internal/ollama"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash directive that can be executed.
type Command struct {
	// Name is the primary directive name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help output
	Description string

	// Usage shows argument syntax (e.g., "/switch <model>")
	Usage string

	// Handler executes the directive
	Handler func(ctx context.Context, env *Context, args []string) (Result, error)
}

// Result is what a directive hands back to the front end.
type Result struct {
	// Output is text for the front end to display.
	Output string

	// Quit tells the front end to exit cleanly.
	Quit bool

	// Cleared indicates the transcript was reset.
	Cleared bool
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered directives.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
	order    []string
}

// NewRegistry creates a registry with all built-in directives.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a directive to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	r.order = append(r.order, cmd.Name)
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a directive by name or alias. Returns nil if unknown.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered directives in registration order.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.order))
	for _, name := range r.order {
		cmds = append(cmds, r.commands[name])
	}
	return cmds
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Handler: func(ctx context.Context, env *Context, args []string) (Result, error) {
			return Result{Output: r.HelpText()}, nil
		},
	})

	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/c"},
		Description: "Clear the conversation history",
		Handler:     handleClear,
	})

	r.Register(&Command{
		Name:        "/models",
		Description: "List installed models",
		Handler:     handleModels,
	})

	r.Register(&Command{
		Name:        "/switch",
		Description: "Switch to a different model",
		Usage:       "/switch <model|number>",
		Handler:     handleSwitch,
	})

	r.Register(&Command{
		Name:        "/temp",
		Description: "Show or set the sampling temperature (0.0-1.0)",
		Usage:       "/temp [value]",
		Handler:     handleTemp,
	})

	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit the chat",
		Handler:     handleQuit,
	})
}

// =============================================================================
// CONTEXT TYPE
// =============================================================================

// ModelClient is the slice of the Ollama client directives need.
type ModelClient interface {
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)
	ModelExists(ctx context.Context, name string) (bool, error)
}

// Prompter requests a line of input mid-directive. *cli.LineEditor
// satisfies this; front ends that cannot prompt leave it nil and
// directives fall back to requiring inline arguments.
type Prompter interface {
	ReadInput(prompt string) (string, error)
}

// Context provides access to application state for directive handlers.
// Handlers check fields for nil before use.
type Context struct {
	// Session holds the conversation and active settings.
	Session *chat.Session

	// Client talks to the Ollama server.
	Client ModelClient

	// Prompter asks for missing directive arguments, when available.
	Prompter Prompter
}

// NewContext creates a directive context with the given dependencies.
func NewContext(session *chat.Session, client ModelClient) *Context {
	return &Context{Session: session, Client: client}
}
