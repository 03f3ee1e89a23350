// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

// Package cli provides the line-oriented terminal front end and the
// command-line argument handling shared by all front ends.
package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARGUMENTS
// =============================================================================

// Valid front-end modes.
const (
	ModeCLI = "cli"
	ModeTUI = "tui"
	ModeWeb = "web"
)

// Args holds the parsed command-line arguments.
type Args struct {
	// Mode selects the front end: cli (default), tui, or web.
	Mode string

	// Model overrides the configured default model.
	Model string

	// Temperature overrides the configured default temperature.
	// TempSet distinguishes an explicit 0.0 from no flag.
	Temperature float64
	TempSet     bool

	// ShowHelp prints usage and exits.
	ShowHelp bool

	// ShowVersion prints the version and exits.
	ShowVersion bool
}

// ParseArgs parses command-line arguments. Both "--flag value" and
// "--flag=value" forms are accepted.
func ParseArgs(raw []string) (Args, error) {
	args := Args{Mode: ModeCLI}

	i := 0
	for i < len(raw) {
		arg := raw[i]

		name := arg
		value := ""
		hasValue := false
		if strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			name, value = parts[0], parts[1]
			hasValue = true
		}

		next := func(flag string) (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(raw) {
				return "", fmt.Errorf("flag %s requires a value", flag)
			}
			i++
			return raw[i], nil
		}

		switch name {
		case "--mode":
			v, err := next(name)
			if err != nil {
				return args, err
			}
			args.Mode = strings.ToLower(v)

		case "--model", "-m":
			v, err := next(name)
			if err != nil {
				return args, err
			}
			args.Model = v

		case "--temperature", "-t":
			v, err := next(name)
			if err != nil {
				return args, err
			}
			temp, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return args, fmt.Errorf("invalid temperature %q, must be a number between 0.0 and 1.0", v)
			}
			args.Temperature = temp
			args.TempSet = true

		case "--help", "-h":
			args.ShowHelp = true

		case "--version", "-v":
			args.ShowVersion = true

		default:
			return args, fmt.Errorf("unknown flag %s", arg)
		}
		i++
	}

	switch args.Mode {
	case ModeCLI, ModeTUI, ModeWeb:
	default:
		return args, fmt.Errorf("invalid mode %q, must be cli, tui, or web", args.Mode)
	}

	if args.TempSet {
		if args.Temperature < 0.0 || args.Temperature > 1.0 {
			return args, fmt.Errorf("temperature %.2f out of range, must be between 0.0 and 1.0", args.Temperature)
		}
	}

	return args, nil
}

// Usage returns the command-line usage text.
func Usage() string {
	return `parley - chat with a local Ollama model

Usage:
  parley [flags]

Flags:
  --mode <cli|tui|web>   Front end to run (default: cli)
  -m, --model <name>     Model to use (overrides config)
  -t, --temperature <n>  Sampling temperature 0.0-1.0 (overrides config)
  -h, --help             Show this help
  -v, --version          Show version

Configuration is read from ~/.parley/config.toml. The Ollama server
address is config-only (ollama.url); there is no flag for it.`
}
