// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/arlostone/parley/internal/ollama"
)

// =============================================================================
// DISPATCH
// =============================================================================

// Dispatch parses input and runs the matching directive. The handled flag
// is false for plain chat text, which the caller forwards to the model.
// Unknown directives are handled (never forwarded) and return an error.
func (r *Registry) Dispatch(ctx context.Context, env *Context, input string) (Result, bool, error) {
	parsed := NewParser(r).Parse(input)
	if !parsed.IsCommand {
		return Result{}, false, nil
	}

	if parsed.Command == nil {
		return Result{}, true, fmt.Errorf("unknown command %s, type /help for a list", parsed.CommandName)
	}

	result, err := parsed.Command.Handler(ctx, env, parsed.Args)
	return result, true, err
}

// =============================================================================
// HANDLERS
// =============================================================================

// HelpText renders the directive listing.
func (r *Registry) HelpText() string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, cmd := range r.All() {
		name := cmd.Name
		if cmd.Usage != "" {
			name = cmd.Usage
		}
		fmt.Fprintf(&b, "  %-18s %s\n", name, cmd.Description)
		if len(cmd.Aliases) > 0 {
			fmt.Fprintf(&b, "  %-18s (aliases: %s)\n", "", strings.Join(cmd.Aliases, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func handleClear(ctx context.Context, env *Context, args []string) (Result, error) {
	env.Session.Clear()
	return Result{Output: "Conversation history cleared.", Cleared: true}, nil
}

func handleModels(ctx context.Context, env *Context, args []string) (Result, error) {
	models, err := env.Client.ListModels(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(models) == 0 {
		return Result{Output: "No models installed. Pull one with: ollama pull gemma3:270m"}, nil
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	active := env.Session.Model()
	var b strings.Builder
	b.WriteString("Installed models:\n")
	for i, m := range models {
		marker := " "
		if m.Name == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "  %s %2d. %-30s %s\n", marker, i+1, m.Name, m.FormatSize())
	}
	b.WriteString("Switch with /switch <name> or /switch <number>.")
	return Result{Output: b.String()}, nil
}

func handleSwitch(ctx context.Context, env *Context, args []string) (Result, error) {
	if len(args) == 0 {
		if env.Prompter == nil {
			return Result{}, fmt.Errorf("usage: /switch <model or number>")
		}
		raw, err := env.Prompter.ReadInput("New model (name or number): ")
		if err != nil {
			return Result{}, err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return Result{Output: "Model unchanged."}, nil
		}
		args = []string{raw}
	}
	name := args[0]

	// A bare number selects from the /models listing.
	if n, err := strconv.Atoi(name); err == nil {
		models, err := env.Client.ListModels(ctx)
		if err != nil {
			return Result{}, err
		}
		if n < 1 || n > len(models) {
			return Result{}, fmt.Errorf("no model number %d, see /models", n)
		}
		sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
		name = models[n-1].Name
	}

	exists, err := env.Client.ModelExists(ctx, name)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, &ollama.ClientError{
			Type:    ollama.ErrTypeModelNotFound,
			Message: fmt.Sprintf("model %q is not installed, see /models", name),
		}
	}

	env.Session.SetModel(name)
	return Result{Output: fmt.Sprintf("Switched to model %s. History preserved.", name)}, nil
}

func handleTemp(ctx context.Context, env *Context, args []string) (Result, error) {
	if len(args) == 0 {
		current := env.Session.Temperature()
		if env.Prompter == nil {
			return Result{Output: fmt.Sprintf("Temperature: %.2f", current)}, nil
		}
		raw, err := env.Prompter.ReadInput(fmt.Sprintf("New temperature [%.2f]: ", current))
		if err != nil {
			return Result{}, err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return Result{Output: fmt.Sprintf("Temperature: %.2f", current)}, nil
		}
		args = []string{raw}
	}

	temp, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return Result{}, fmt.Errorf("invalid temperature %q, must be a number between 0.0 and 1.0", args[0])
	}
	if err := env.Session.SetTemperature(temp); err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("Temperature set to %.2f", temp)}, nil
}

func handleQuit(ctx context.Context, env *Context, args []string) (Result, error) {
	return Result{Output: "Goodbye!", Quit: true}, nil
}
