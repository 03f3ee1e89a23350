// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/arlostone/parley/internal/chat"
	"github.com/arlostone/parley/internal/commands"
	"github.com/arlostone/parley/internal/config"
	"github.com/arlostone/parley/internal/ollama"
)

// =============================================================================
// SESSION SETUP
// =============================================================================

// ChatSession holds everything the REPL needs for one run.
type ChatSession struct {
	Session  *chat.Session
	Client   *ollama.Client
	Config   *config.Config
	Registry *commands.Registry
	Editor   *LineEditor

	StartTime   time.Time
	TotalTokens int

	// Cancel function for the in-flight stream, nil when idle. Guarded by
	// cancelMu: the signal goroutine races with processTurn otherwise.
	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
}

// setCancel records the cancel function for the in-flight stream.
func (cs *ChatSession) setCancel(cancel context.CancelFunc) {
	cs.cancelMu.Lock()
	cs.cancelFunc = cancel
	cs.cancelMu.Unlock()
}

// cancelTurn cancels the in-flight stream, if any, and reports whether
// one was running.
func (cs *ChatSession) cancelTurn() bool {
	cs.cancelMu.Lock()
	defer cs.cancelMu.Unlock()
	if cs.cancelFunc == nil {
		return false
	}
	cs.cancelFunc()
	cs.cancelFunc = nil
	return true
}

// NewChatSession builds a chat session from config and flags. Flag values
// take precedence over config for model and temperature.
func NewChatSession(cfg *config.Config, args Args) (*ChatSession, error) {
	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Ollama.URL,
		Timeout:      time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
		DefaultModel: cfg.Ollama.Model,
	})

	model := cfg.Ollama.Model
	if args.Model != "" {
		model = args.Model
	}

	temperature := cfg.Chat.Temperature
	if args.TempSet {
		temperature = args.Temperature
	}

	session, err := chat.NewSession(model, temperature)
	if err != nil {
		return nil, err
	}

	historyFile, err := cfg.HistoryFilePath()
	if err != nil {
		historyFile = ""
	}

	return &ChatSession{
		Session:   session,
		Client:    client,
		Config:    cfg,
		Registry:  commands.NewRegistry(),
		Editor:    NewLineEditor(historyFile),
		StartTime: time.Now(),
	}, nil
}

// =============================================================================
// REPL
// =============================================================================

// RunChat runs the interactive chat loop until the user quits.
func RunChat(cfg *config.Config, args Args) error {
	// Downgrade styling when the terminal cannot render it (or NO_COLOR asks
	// us not to) so every lipgloss style in the REPL honors the detected
	// profile.
	lipgloss.SetColorProfile(GetColorProfile())

	cs, err := NewChatSession(cfg, args)
	if err != nil {
		return err
	}
	defer cs.Editor.Close()

	ctx := context.Background()
	if err := cs.Client.CheckRunning(ctx); err != nil {
		return fmt.Errorf("Ollama is not running at %s. Start it with: ollama serve", cfg.Ollama.URL)
	}

	// Skip the banner when input is piped in, so scripted runs stay clean.
	if IsTTY() {
		printWelcome(cs)
	}

	// Ctrl+C during a stream cancels the turn, not the program.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			if cs.cancelTurn() {
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
			}
		}
	}()

	env := commands.NewContext(cs.Session, cs.Client)
	env.Prompter = cs.Editor

	for {
		input, err := cs.Editor.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C at the prompt or Ctrl+D both exit cleanly.
			if err == liner.ErrPromptAborted {
				fmt.Println()
				printGoodbye(cs)
				return nil
			}
			fmt.Println()
			printGoodbye(cs)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		result, handled, err := cs.Registry.Dispatch(ctx, env, input)
		if handled {
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
				continue
			}
			if result.Output != "" {
				fmt.Println(commandStyle.Render(result.Output))
			}
			if result.Quit {
				printGoodbye(cs)
				return nil
			}
			continue
		}

		if err := cs.processTurn(input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), formatTurnError(err))
		}
	}
}

// =============================================================================
// TURN PROCESSING
// =============================================================================

// processTurn streams one model reply to the terminal.
func (cs *ChatSession) processTurn(input string) error {
	ctx, cancel := context.WithCancel(context.Background())
	cs.setCancel(cancel)
	defer func() {
		cs.setCancel(nil)
		cancel()
	}()

	useMarkdown := cs.Config.CLI.Markdown && IsStdoutTTY()

	fmt.Println()

	start := time.Now()
	result, err := chat.RunTurn(ctx, cs.Session, cs.Client, input, func(fragment string) {
		// Markdown output is rendered whole once the stream finishes;
		// raw mode prints fragments as they arrive.
		if !useMarkdown {
			fmt.Print(fragment)
		}
	})
	if err != nil {
		fmt.Println()
		return err
	}

	if useMarkdown {
		displayResponse(result.Reply.Content)
	}
	fmt.Println()

	tokens := result.Stats.PromptTokens + result.Stats.CompletionTokens
	cs.TotalTokens += tokens
	fmt.Fprintf(os.Stderr, "%s %d tokens | %s | %.1f tok/s\n\n",
		infoStyle.Render("[Stats]"),
		tokens,
		time.Since(start).Round(time.Millisecond),
		result.Stats.TokensPerSecond())

	return nil
}

// formatTurnError maps client errors to actionable messages.
func formatTurnError(err error) string {
	switch {
	case ollama.IsNotRunning(err):
		return "lost connection to Ollama. Is it still running?"
	case ollama.IsModelNotFound(err):
		return fmt.Sprintf("%v. Pull it with: ollama pull <model>", err)
	default:
		return err.Error()
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

func printWelcome(cs *ChatSession) {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("parley"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(cs.Session.Model()))
	fmt.Printf("%s %.2f\n",
		infoStyle.Render("Temperature:"),
		cs.Session.Temperature())
	fmt.Printf("%s %s\n",
		infoStyle.Render("Server:"),
		cs.Config.Ollama.URL)
	fmt.Println()
	fmt.Println(infoStyle.Render("Type a message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func printGoodbye(cs *ChatSession) {
	if cs.TotalTokens > 0 {
		fmt.Printf("%s %d tokens in %s\n",
			infoStyle.Render("[Session]"),
			cs.TotalTokens,
			time.Since(cs.StartTime).Round(time.Second))
	}
	fmt.Println(infoStyle.Render("Goodbye!"))
}
