// Package config provides 12-factor host configuration for the exam shell.
//
// Configuration is loaded from environment variables with sensible defaults.
// It covers only host concerns (logging, diagnostics server, script sandbox,
// bridge flood control). Exam settings are not read here: they arrive as an
// already-parsed settings object and are passed to the session explicitly.
//
// Environment Variables:
//   - EXAMSHELL_LOG_LEVEL, EXAMSHELL_LOG_DEV
//   - EXAMSHELL_DIAG_ENABLED, EXAMSHELL_DIAG_ADDR
//   - EXAMSHELL_SCRIPT_TIMEOUT, EXAMSHELL_FETCH_TIMEOUT, EXAMSHELL_OFFLINE
//   - EXAMSHELL_BRIDGE_RPS, EXAMSHELL_BRIDGE_BURST
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all host configuration.
type Config struct {
	Logging     LogConfig
	Diagnostics DiagnosticsConfig
	Sandbox     SandboxConfig
	Bridge      BridgeConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"EXAMSHELL_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"EXAMSHELL_LOG_DEV" default:"false"`
}

// DiagnosticsConfig holds the loopback diagnostics server configuration.
type DiagnosticsConfig struct {
	Enabled bool   `envconfig:"EXAMSHELL_DIAG_ENABLED" default:"true"`
	Address string `envconfig:"EXAMSHELL_DIAG_ADDR" default:"127.0.0.1:9470"`
}

// SandboxConfig holds the sandbox engine configuration.
type SandboxConfig struct {
	ScriptTimeout time.Duration `envconfig:"EXAMSHELL_SCRIPT_TIMEOUT" default:"5s"`
	FetchTimeout  time.Duration `envconfig:"EXAMSHELL_FETCH_TIMEOUT" default:"30s"`
	// Offline serves blank documents instead of fetching pages
	Offline bool `envconfig:"EXAMSHELL_OFFLINE" default:"false"`
}

// BridgeConfig limits inbound page messages per window.
type BridgeConfig struct {
	MessagesPerSecond float64 `envconfig:"EXAMSHELL_BRIDGE_RPS" default:"20"`
	Burst             int     `envconfig:"EXAMSHELL_BRIDGE_BURST" default:"40"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
			Address: "127.0.0.1:9470",
		},
		Sandbox: SandboxConfig{
			ScriptTimeout: 5 * time.Second,
			FetchTimeout:  30 * time.Second,
		},
		Bridge: BridgeConfig{
			MessagesPerSecond: 20,
			Burst:             40,
		},
	}
}
