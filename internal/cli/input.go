// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// LineEditor wraps liner with persistent input history. Only typed lines
// are stored; the conversation transcript itself never touches disk.
type LineEditor struct {
	line        *liner.State
	historyFile string
}

// NewLineEditor creates a line editor and loads prior input history.
func NewLineEditor(historyFile string) *LineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	ed := &LineEditor{
		line:        line,
		historyFile: historyFile,
	}
	ed.loadHistory()
	return ed
}

func (e *LineEditor) loadHistory() {
	if e.historyFile == "" {
		return
	}
	if f, err := os.Open(e.historyFile); err == nil {
		e.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt. Arrow keys
// navigate history.
func (e *LineEditor) ReadInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists input history with owner-only permissions.
func (e *LineEditor) saveHistory() {
	if e.historyFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(e.historyFile), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	e.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (e *LineEditor) Close() {
	e.saveHistory()
	e.line.Close()
}
