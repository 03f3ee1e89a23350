// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

// Package chat holds the conversation state and runs chat turns against
// an inference backend. A session lives only in memory and is discarded
// when the process exits.
package chat

import (
	"fmt"
	"sync"

	"github.com/arlostone/parley/internal/ollama"
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings are the per-session inference parameters.
type Settings struct {
	Model       string
	Temperature float64
}

// ValidateTemperature checks a temperature value against the allowed range.
func ValidateTemperature(temp float64) error {
	if temp < 0.0 || temp > 1.0 {
		return fmt.Errorf("temperature %.2f out of range, must be between 0.0 and 1.0", temp)
	}
	return nil
}

// =============================================================================
// SESSION
// =============================================================================

// Session is an in-memory conversation: an ordered transcript plus the
// active model and temperature. All methods are safe for concurrent use;
// the transcript only ever contains complete messages.
type Session struct {
	mu       sync.RWMutex
	messages []ollama.Message
	settings Settings
}

// NewSession creates an empty session with the given settings.
func NewSession(model string, temperature float64) (*Session, error) {
	if err := ValidateTemperature(temperature); err != nil {
		return nil, err
	}
	return &Session{
		settings: Settings{Model: model, Temperature: temperature},
	}, nil
}

// Append adds a complete message to the end of the transcript.
func (s *Session) Append(msg ollama.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Messages returns a copy of the transcript, oldest first.
func (s *Session) Messages() []ollama.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ollama.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Clear removes all messages. Model and temperature are unaffected.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Model returns the active model name.
func (s *Session) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Model
}

// SetModel switches the active model. The transcript is preserved.
func (s *Session) SetModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Model = name
}

// Temperature returns the active sampling temperature.
func (s *Session) Temperature() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Temperature
}

// SetTemperature updates the sampling temperature. Out-of-range values
// are rejected and the current value is kept.
func (s *Session) SetTemperature(temp float64) error {
	if err := ValidateTemperature(temp); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Temperature = temp
	return nil
}

// Settings returns a snapshot of the current settings.
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}
