package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default returns a configuration with sensible default values.
//
// Session defaults mirror the persisted session_config record:
// auto-save every 30 s, at most 10 simulations per session, 100 MB of
// session storage, daily cleanup, 30-day session retention.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:                  "ws://localhost:8765/simulation",
			ReconnectDelay:       3 * time.Second,
			ReconnectMaxAttempts: 0, // unbounded while a run is active
			ReconnectJitter:      0,
			ReconnectWhilePaused: false,
			HandshakeTimeout:     10 * time.Second,
		},
		Session: SessionConfig{
			AutoSaveInterval: 30 * time.Second,
			MaxSimulations:   10,
			MaxStorageBytes:  100 * 1024 * 1024,
			CleanupInterval:  24 * time.Hour,
			MaxSessionAge:    720 * time.Hour, // 30 days
			MinIntegrity:     0.6,
		},
		Storage: StorageConfig{
			DBPath: defaultDBPath(),
		},
		Import: ImportConfig{
			WatchDir: "",
			Debounce: 500 * time.Millisecond,
		},
		Display: DisplayConfig{
			DefaultFormat: "table",
			ColorEnabled:  true,
			RefreshRate:   time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}

// defaultDBPath returns the default database location under the user's
// config directory, falling back to the working directory when the home
// directory cannot be determined.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "evoclient.db"
	}
	return filepath.Join(home, ".config", "evoclient", "sessions.db")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "evoclient", "config.yaml")
}
