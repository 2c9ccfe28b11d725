package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, searches for a config file in:
// 1. ./config.yaml (current directory)
// 2. ~/.config/evoclient/config.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	configPath := l.configPath
	if configPath == "" {
		configPath = l.findConfigFile()
	}

	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// An explicitly requested file must load; a discovered one may not.
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg)
		}
	}

	cfg = l.applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// findConfigFile searches for a config file in standard locations.
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		DefaultConfigPath(),
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults, but only if they are non-zero.
func (l *loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Server.URL != "" {
		result.Server.URL = override.Server.URL
	}
	if override.Server.ReconnectDelay > 0 {
		result.Server.ReconnectDelay = override.Server.ReconnectDelay
	}
	if override.Server.ReconnectMaxAttempts > 0 {
		result.Server.ReconnectMaxAttempts = override.Server.ReconnectMaxAttempts
	}
	if override.Server.ReconnectJitter > 0 {
		result.Server.ReconnectJitter = override.Server.ReconnectJitter
	}
	// Booleans always take the override value.
	result.Server.ReconnectWhilePaused = override.Server.ReconnectWhilePaused
	if override.Server.HandshakeTimeout > 0 {
		result.Server.HandshakeTimeout = override.Server.HandshakeTimeout
	}

	if override.Session.AutoSaveInterval > 0 {
		result.Session.AutoSaveInterval = override.Session.AutoSaveInterval
	}
	if override.Session.MaxSimulations > 0 {
		result.Session.MaxSimulations = override.Session.MaxSimulations
	}
	if override.Session.MaxStorageBytes > 0 {
		result.Session.MaxStorageBytes = override.Session.MaxStorageBytes
	}
	if override.Session.CleanupInterval > 0 {
		result.Session.CleanupInterval = override.Session.CleanupInterval
	}
	if override.Session.MaxSessionAge > 0 {
		result.Session.MaxSessionAge = override.Session.MaxSessionAge
	}
	if override.Session.MinIntegrity > 0 {
		result.Session.MinIntegrity = override.Session.MinIntegrity
	}

	if override.Storage.DBPath != "" {
		result.Storage.DBPath = override.Storage.DBPath
	}

	if override.Import.WatchDir != "" {
		result.Import.WatchDir = override.Import.WatchDir
	}
	if override.Import.Debounce > 0 {
		result.Import.Debounce = override.Import.Debounce
	}

	if override.Display.DefaultFormat != "" {
		result.Display.DefaultFormat = override.Display.DefaultFormat
	}
	result.Display.ColorEnabled = override.Display.ColorEnabled
	if override.Display.RefreshRate > 0 {
		result.Display.RefreshRate = override.Display.RefreshRate
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Output != "" {
		result.Logging.Output = override.Logging.Output
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	return &result
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - EVOCLIENT_SERVER_URL: backend WebSocket endpoint
//   - EVOCLIENT_DB: path to the database file
//   - EVOCLIENT_IMPORT_DIR: auto-import drop directory
//   - EVOCLIENT_RECONNECT_DELAY: reconnect delay (Go duration syntax)
//   - EVOCLIENT_LOG_LEVEL: log level
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if url := os.Getenv("EVOCLIENT_SERVER_URL"); url != "" {
		result.Server.URL = url
	}

	if dbPath := os.Getenv("EVOCLIENT_DB"); dbPath != "" {
		result.Storage.DBPath = dbPath
	}

	if dir := os.Getenv("EVOCLIENT_IMPORT_DIR"); dir != "" {
		result.Import.WatchDir = dir
	}

	if delay := os.Getenv("EVOCLIENT_RECONNECT_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil && d > 0 {
			result.Server.ReconnectDelay = d
		}
	}

	if attempts := os.Getenv("EVOCLIENT_RECONNECT_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil && n >= 0 {
			result.Server.ReconnectMaxAttempts = n
		}
	}

	if logLevel := os.Getenv("EVOCLIENT_LOG_LEVEL"); logLevel != "" {
		result.Logging.Level = strings.ToLower(logLevel)
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// The file is created with 0600 permissions.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
