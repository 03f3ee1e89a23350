// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

package commands

import (
	"strings"
)

// =============================================================================
// PARSE RESULT
// =============================================================================

// ParseResult contains the result of parsing user input.
type ParseResult struct {
	// IsCommand is true if the input starts with /
	IsCommand bool

	// Command is the matched directive (nil if unknown)
	Command *Command

	// CommandName is the raw directive name (e.g., "/help")
	CommandName string

	// Args are the whitespace-separated arguments
	Args []string
}

// =============================================================================
// PARSER
// =============================================================================

// Parser recognizes slash directives in user input.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser backed by the given registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse inspects user input. IsCommand is false for plain chat text;
// a leading / always marks directive intent, so unknown names come back
// with IsCommand true and Command nil rather than being treated as chat.
func (p *Parser) Parse(input string) ParseResult {
	input = strings.TrimSpace(input)

	if !strings.HasPrefix(input, "/") {
		return ParseResult{}
	}

	result := ParseResult{IsCommand: true}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return result
	}

	result.CommandName = parts[0]
	result.Args = parts[1:]
	result.Command = p.registry.Get(result.CommandName)

	return result
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// IsCommand returns true if the input looks like a directive.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}
