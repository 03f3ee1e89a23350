// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package cli

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	markdownRenderer *glamour.TermRenderer
	markdownOnce     sync.Once
)

// getMarkdownRenderer lazily builds the glamour renderer, wrapping at the
// detected terminal width. Returns nil if initialization fails, in which
// case callers fall back to plain text.
func getMarkdownRenderer() *glamour.TermRenderer {
	markdownOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(GetTerminalWidth()),
		)
		if err != nil {
			return
		}
		markdownRenderer = r
	})
	return markdownRenderer
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails.
func renderMarkdown(content string) string {
	renderer := getMarkdownRenderer()
	if renderer == nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayResponse prints a complete reply, rendered as markdown on a TTY
// and verbatim otherwise so piped output is not corrupted.
func displayResponse(response string) {
	if IsStdoutTTY() {
		fmt.Print(renderMarkdown(response))
	} else {
		fmt.Print(response)
	}
}
