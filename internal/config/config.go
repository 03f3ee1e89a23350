// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

// Package config provides configuration loading and management for parley.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. File location: ~/.parley/config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete parley configuration.
type Config struct {
	// Ollama server settings
	Ollama OllamaConfig `toml:"ollama"`

	// Chat defaults
	Chat ChatConfig `toml:"chat"`

	// Terminal front-end settings
	CLI CLIConfig `toml:"cli"`

	// Browser front-end settings
	Web WebConfig `toml:"web"`
}

// OllamaConfig contains Ollama server settings. The server address is
// configured here only; there is no command-line flag for it.
type OllamaConfig struct {
	// URL of the Ollama server
	URL string `toml:"url"`
	// Model is the default model
	Model string `toml:"model"`
	// TimeoutSecs is the timeout for non-streaming requests
	TimeoutSecs int `toml:"timeout_secs"`
}

// ChatConfig contains conversation defaults.
type ChatConfig struct {
	// Temperature is the default sampling temperature (0.0-1.0)
	Temperature float64 `toml:"temperature"`
}

// CLIConfig contains terminal front-end settings.
type CLIConfig struct {
	// HistoryFile stores input line history across runs (not the
	// transcript, which is never persisted)
	HistoryFile string `toml:"history_file"`
	// Markdown enables rendered model output on TTYs
	Markdown bool `toml:"markdown"`
}

// WebConfig contains browser front-end settings.
type WebConfig struct {
	// ListenAddr is the bind address for the web server
	ListenAddr string `toml:"listen_addr"`
	// RatePerSecond limits chat requests per client
	RatePerSecond float64 `toml:"rate_per_second"`
	// RateBurst is the rate limiter burst size
	RateBurst int `toml:"rate_burst"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:         "http://127.0.0.1:11434",
			Model:       "gemma3:270m",
			TimeoutSecs: 30,
		},
		Chat: ChatConfig{
			Temperature: 0.7,
		},
		CLI: CLIConfig{
			HistoryFile: "", // resolved to ~/.parley/chat_history at load
			Markdown:    true,
		},
		Web: WebConfig{
			ListenAddr:    "127.0.0.1:8711",
			RatePerSecond: 5,
			RateBurst:     10,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the parley configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.parley/config.toml. On first run the
// file does not exist yet, so a starter config with the defaults is
// written for the user to edit. Environment overrides are applied last,
// then the result is validated.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Best effort; a read-only home directory still gets defaults.
		_ = Save(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path. A missing
// file is not an error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		fillDefaults(cfg)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any values the file left empty.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = defaults.Ollama.URL
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = defaults.Ollama.Model
	}
	if cfg.Ollama.TimeoutSecs == 0 {
		cfg.Ollama.TimeoutSecs = defaults.Ollama.TimeoutSecs
	}
	if cfg.Web.ListenAddr == "" {
		cfg.Web.ListenAddr = defaults.Web.ListenAddr
	}
	if cfg.Web.RatePerSecond == 0 {
		cfg.Web.RatePerSecond = defaults.Web.RatePerSecond
	}
	if cfg.Web.RateBurst == 0 {
		cfg.Web.RateBurst = defaults.Web.RateBurst
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies PARLEY_* environment variables over the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PARLEY_OLLAMA_URL"); v != "" {
		c.Ollama.URL = v
	}
	if v := os.Getenv("PARLEY_MODEL"); v != "" {
		c.Ollama.Model = v
	}
	if v := os.Getenv("PARLEY_TEMPERATURE"); v != "" {
		if temp, err := strconv.ParseFloat(v, 64); err == nil {
			c.Chat.Temperature = temp
		}
	}
	if v := os.Getenv("PARLEY_LISTEN_ADDR"); v != "" {
		c.Web.ListenAddr = v
	}
	if v := os.Getenv("PARLEY_HISTORY_FILE"); v != "" {
		c.CLI.HistoryFile = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Chat.Temperature < 0.0 || c.Chat.Temperature > 1.0 {
		return fmt.Errorf("temperature %.2f out of range, must be between 0.0 and 1.0", c.Chat.Temperature)
	}
	if c.Ollama.URL == "" {
		return fmt.Errorf("ollama.url must not be empty")
	}
	if c.Ollama.Model == "" {
		return fmt.Errorf("ollama.model must not be empty")
	}
	return nil
}

// HistoryFilePath resolves the line-history file, defaulting to
// ~/.parley/chat_history.
func (c *Config) HistoryFilePath() (string, error) {
	if c.CLI.HistoryFile != "" {
		return c.CLI.HistoryFile, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chat_history"), nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return err
	}
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to a specific file path.
func SaveToPath(cfg *Config, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
