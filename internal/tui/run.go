// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/arlostone/parley/internal/chat"
	"github.com/arlostone/parley/internal/config"
	"github.com/arlostone/parley/internal/ollama"
)

// Run starts the full-screen chat interface with the given defaults and
// blocks until the user quits.
func Run(cfg *config.Config, model string, temperature float64) error {
	session, err := chat.NewSession(model, temperature)
	if err != nil {
		return err
	}

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Ollama.URL,
		Timeout:      time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
		DefaultModel: model,
	})

	program := tea.NewProgram(New(cfg, session, client), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
