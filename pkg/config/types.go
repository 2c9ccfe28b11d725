// Package config provides configuration management for evoclient.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Backend: %s\n", cfg.Server.URL)
package config

import (
	"time"
)

// Config represents the complete client configuration.
//
// Invariants:
// - Server.URL must be non-empty
// - Server.ReconnectDelay must be > 0
// - Server.ReconnectJitter must be in [0, 1]
// - Session.AutoSaveInterval must be > 0
// - Session.MaxSimulations must be > 0
// - Session.MaxStorageBytes must be > 0
// - Session.MaxSessionAge must be > 0
// - Session.MinIntegrity must be in [0, 1].
type Config struct {
	// Server contains the compute-backend connection settings.
	Server ServerConfig `yaml:"server"`

	// Session contains session lifecycle and capacity settings.
	Session SessionConfig `yaml:"session"`

	// Storage contains persistence settings.
	Storage StorageConfig `yaml:"storage"`

	// Import contains the auto-import drop directory settings.
	Import ImportConfig `yaml:"import"`

	// Display contains CLI output settings.
	Display DisplayConfig `yaml:"display"`

	// Logging contains logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains streaming-backend settings.
type ServerConfig struct {
	// WebSocket endpoint of the simulation backend
	URL string `yaml:"url"`

	// Delay before a reconnection attempt after an unexpected close
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// Maximum reconnection attempts; 0 means unbounded while a run is active
	ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`

	// Fractional jitter applied to the reconnect delay (0 disables)
	ReconnectJitter float64 `yaml:"reconnect_jitter"`

	// Also schedule reconnects while the active run is paused
	ReconnectWhilePaused bool `yaml:"reconnect_while_paused"`

	// WebSocket handshake timeout
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// SessionConfig contains session lifecycle defaults.
type SessionConfig struct {
	// How often in-memory state is mirrored into the store
	AutoSaveInterval time.Duration `yaml:"auto_save_interval"`

	// Maximum simulation runs per session
	MaxSimulations int `yaml:"max_simulations"`

	// Total serialized-session capacity of the store
	MaxStorageBytes int64 `yaml:"max_storage_bytes"`

	// How often cleanup is expected to run (informational; cleanup is caller-invoked)
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// Sessions older than this are removed by cleanup and score zero recency
	MaxSessionAge time.Duration `yaml:"max_session_age"`

	// Minimum data-integrity score before recovery records an issue
	MinIntegrity float64 `yaml:"min_integrity"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	// Path to the BoltDB database file
	DBPath string `yaml:"db_path"`
}

// ImportConfig contains auto-import watcher settings.
type ImportConfig struct {
	// Directory watched for exported session JSON files; empty disables the watcher
	WatchDir string `yaml:"watch_dir"`

	// Debounce interval for file events
	Debounce time.Duration `yaml:"debounce"`
}

// DisplayConfig contains CLI output settings.
type DisplayConfig struct {
	// Default output format (simple, table, json)
	DefaultFormat string `yaml:"default_format"`

	// Enable colored output
	ColorEnabled bool `yaml:"color_enabled"`

	// Live status refresh rate
	RefreshRate time.Duration `yaml:"refresh_rate"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns an error if any invariant is violated:
//   - Missing server URL
//   - Invalid durations (must be > 0)
//   - Jitter or integrity thresholds outside [0, 1]
//   - Invalid display format or log settings
//
// Thread-safety: this method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return ErrNoServerURL
	}
	if c.Server.ReconnectDelay <= 0 {
		return ErrInvalidReconnectDelay
	}
	if c.Server.ReconnectJitter < 0 || c.Server.ReconnectJitter > 1 {
		return ErrInvalidReconnectJitter
	}
	if c.Server.HandshakeTimeout <= 0 {
		return ErrInvalidHandshakeTimeout
	}

	if c.Session.AutoSaveInterval <= 0 {
		return ErrInvalidAutoSaveInterval
	}
	if c.Session.MaxSimulations <= 0 {
		return ErrInvalidMaxSimulations
	}
	if c.Session.MaxStorageBytes <= 0 {
		return ErrInvalidMaxStorage
	}
	if c.Session.CleanupInterval <= 0 {
		return ErrInvalidCleanupInterval
	}
	if c.Session.MaxSessionAge <= 0 {
		return ErrInvalidMaxSessionAge
	}
	if c.Session.MinIntegrity < 0 || c.Session.MinIntegrity > 1 {
		return ErrInvalidMinIntegrity
	}

	if c.Import.WatchDir != "" && c.Import.Debounce <= 0 {
		return ErrInvalidImportDebounce
	}

	validFormats := map[string]bool{
		"simple": true,
		"table":  true,
		"json":   true,
	}
	if !validFormats[c.Display.DefaultFormat] {
		return ErrInvalidDisplayFormat
	}
	if c.Display.RefreshRate <= 0 {
		return ErrInvalidRefreshRate
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}
