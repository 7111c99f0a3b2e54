package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main wabridge configuration
type Config struct {
	// HTTP API server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Session lifecycle
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Protocol sidecar transport
	Transport TransportConfig `json:"transport" mapstructure:"transport"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP API server configuration
type ServerConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// SessionsConfig holds session lifecycle configuration
type SessionsConfig struct {
	// Dir is the on-disk session root. Defaults to <data_dir>/sessions.
	Dir string `json:"dir" mapstructure:"dir"`

	// ReservedID is the session id that can never be deleted.
	ReservedID string `json:"reserved_id" mapstructure:"reserved_id"`

	// IdleTimeoutMinutes is the quiet period before an idle session's
	// connection is torn down. Zero disables idle eviction.
	IdleTimeoutMinutes int `json:"idle_timeout_minutes" mapstructure:"idle_timeout_minutes"`

	// PairingWaitSeconds bounds how long a connect call waits for a
	// pairing code.
	PairingWaitSeconds int `json:"pairing_wait_seconds" mapstructure:"pairing_wait_seconds"`

	// RestoreStaggerSeconds is the pause between session starts during
	// startup restoration.
	RestoreStaggerSeconds int `json:"restore_stagger_seconds" mapstructure:"restore_stagger_seconds"`
}

// TransportConfig holds protocol sidecar configuration
type TransportConfig struct {
	// URL is the sidecar WebSocket endpoint, e.g. ws://127.0.0.1:8546/session.
	URL string `json:"url" mapstructure:"url"`

	// HandshakeTimeoutSeconds bounds the WebSocket handshake.
	HandshakeTimeoutSeconds int `json:"handshake_timeout_seconds" mapstructure:"handshake_timeout_seconds"`

	// RequestTimeoutSeconds bounds lookup/send round trips.
	RequestTimeoutSeconds int `json:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               3006,
			RateLimitPerMinute: 120,
		},
		Sessions: SessionsConfig{
			ReservedID:            "default",
			IdleTimeoutMinutes:    10,
			PairingWaitSeconds:    30,
			RestoreStaggerSeconds: 2,
		},
		Transport: TransportConfig{
			URL:                     "ws://127.0.0.1:8546/session",
			HandshakeTimeoutSeconds: 15,
			RequestTimeoutSeconds:   30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	if c.Transport.URL == "" {
		return fmt.Errorf("transport url is required")
	}

	if c.Sessions.ReservedID == "" {
		return fmt.Errorf("reserved session id is required")
	}
	if c.Sessions.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("idle timeout cannot be negative")
	}
	if c.Sessions.PairingWaitSeconds <= 0 {
		return fmt.Errorf("pairing wait must be positive, got %d", c.Sessions.PairingWaitSeconds)
	}
	if c.Sessions.RestoreStaggerSeconds < 0 {
		return fmt.Errorf("restore stagger cannot be negative")
	}

	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}
