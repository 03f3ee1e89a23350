// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/arlostone/parley/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().Foreground(styles.Purple).Bold(true)

	userLabelStyle      = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	assistantLabelStyle = lipgloss.NewStyle().Foreground(styles.Purple).Bold(true)
	noticeStyle         = lipgloss.NewStyle().Foreground(styles.TextSecondary)

	bodyStyle = lipgloss.NewStyle().Foreground(styles.TextPrimary)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Background(styles.Overlay)

	hintStyle = lipgloss.NewStyle().Foreground(styles.TextMuted)
)

// =============================================================================
// LAYOUT
// =============================================================================

// chrome rows around the viewport: header, input, status bar.
const chromeHeight = 3

func (m *Model) resize() {
	w := m.width
	if w < 20 {
		w = 20
	}
	h := m.height - chromeHeight
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - len(m.input.Prompt) - 1
}

// refreshViewport re-renders the transcript and pins the view to the
// bottom so streaming output stays visible.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}

// =============================================================================
// VIEW
// =============================================================================

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderHeader() string {
	left := titleStyle.Render("parley")
	right := noticeStyle.Render(fmt.Sprintf("%s | temp %.2f", m.session.Model(), m.session.Temperature()))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderInput() string {
	if m.state == stateStreaming {
		return m.spinner.View() + " " + hintStyle.Render("generating... (esc to cancel)")
	}
	return m.input.View()
}

func (m Model) renderEntries() string {
	if len(m.entries) == 0 {
		return hintStyle.Render("Type a message to start, or /help for commands.")
	}

	wrap := bodyStyle.Width(m.viewport.Width)

	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.kind {
		case entryUser:
			b.WriteString(userLabelStyle.Render("you"))
			b.WriteString("\n")
			b.WriteString(wrap.Render(e.text))
		case entryAssistant:
			b.WriteString(assistantLabelStyle.Render(m.session.Model()))
			b.WriteString("\n")
			b.WriteString(wrap.Render(e.text))
		case entryNotice:
			b.WriteString(noticeStyle.Render(e.text))
		case entryError:
			b.WriteString(styles.RenderError(e.text))
		}
	}
	return b.String()
}

// renderStatusBar lays out state, turn stats, and the key hint in one
// line, truncated to the terminal width.
func (m Model) renderStatusBar() string {
	state := "ready"
	if m.state == stateStreaming {
		state = "streaming"
	}
	if m.ollamaDown {
		state = "offline"
	}

	parts := []string{state, fmt.Sprintf("%d messages", m.session.Len())}
	if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	}
	parts = append(parts, "ctrl+c quit")

	line := " " + strings.Join(parts, "  |  ")
	line = runewidth.Truncate(line, m.width, "...")
	if pad := m.width - runewidth.StringWidth(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	return statusBarStyle.Render(line)
}
