// parley - chat with a local Ollama model from the terminal or browser.
//
// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/arlostone/parley/internal/chat"
	"github.com/arlostone/parley/internal/cli"
	"github.com/arlostone/parley/internal/config"
	"github.com/arlostone/parley/internal/server"
	"github.com/arlostone/parley/internal/tui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s\n", err, cli.Usage())
		os.Exit(1)
	}

	if args.ShowHelp {
		fmt.Println(cli.Usage())
		return
	}
	if args.ShowVersion {
		fmt.Printf("parley %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags override config.
	model := cfg.Ollama.Model
	if args.Model != "" {
		model = args.Model
	}
	temperature := cfg.Chat.Temperature
	if args.TempSet {
		temperature = args.Temperature
	}
	if err := chat.ValidateTemperature(temperature); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch args.Mode {
	case cli.ModeCLI:
		if err := cli.RunChat(cfg, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case cli.ModeTUI:
		if err := tui.Run(cfg, model, temperature); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case cli.ModeWeb:
		runWeb(cfg, args)
	}
}

// runWeb starts the browser front end and blocks until interrupted.
func runWeb(cfg *config.Config, args cli.Args) {
	if args.Model != "" || args.TempSet {
		fmt.Fprintln(os.Stderr, "Note: --model and --temperature are chosen in the browser; flags are ignored in web mode.")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("parley web interface at http://%s (ctrl+c to stop)\n", cfg.Web.ListenAddr)
	if err := server.New(cfg, logger).Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
