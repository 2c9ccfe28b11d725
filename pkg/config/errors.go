package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrNoServerURL is returned when no backend URL is configured.
	ErrNoServerURL = errors.New("no server URL specified")

	// ErrInvalidReconnectDelay is returned when the reconnect delay is <= 0.
	ErrInvalidReconnectDelay = errors.New("invalid reconnect delay: must be > 0")

	// ErrInvalidReconnectJitter is returned when jitter is outside [0, 1].
	ErrInvalidReconnectJitter = errors.New("invalid reconnect jitter: must be in [0, 1]")

	// ErrInvalidHandshakeTimeout is returned when the handshake timeout is <= 0.
	ErrInvalidHandshakeTimeout = errors.New("invalid handshake timeout: must be > 0")

	// ErrInvalidAutoSaveInterval is returned when the auto-save interval is <= 0.
	ErrInvalidAutoSaveInterval = errors.New("invalid auto-save interval: must be > 0")

	// ErrInvalidMaxSimulations is returned when max simulations is <= 0.
	ErrInvalidMaxSimulations = errors.New("invalid max simulations: must be > 0")

	// ErrInvalidMaxStorage is returned when the storage capacity is <= 0.
	ErrInvalidMaxStorage = errors.New("invalid max storage: must be > 0")

	// ErrInvalidCleanupInterval is returned when the cleanup interval is <= 0.
	ErrInvalidCleanupInterval = errors.New("invalid cleanup interval: must be > 0")

	// ErrInvalidMaxSessionAge is returned when the max session age is <= 0.
	ErrInvalidMaxSessionAge = errors.New("invalid max session age: must be > 0")

	// ErrInvalidMinIntegrity is returned when min integrity is outside [0, 1].
	ErrInvalidMinIntegrity = errors.New("invalid min integrity: must be in [0, 1]")

	// ErrInvalidImportDebounce is returned when the import debounce is <= 0.
	ErrInvalidImportDebounce = errors.New("invalid import debounce: must be > 0")

	// ErrInvalidDisplayFormat is returned when the display format is not recognized.
	ErrInvalidDisplayFormat = errors.New("invalid display format: must be simple, table, or json")

	// ErrInvalidRefreshRate is returned when the refresh rate is <= 0.
	ErrInvalidRefreshRate = errors.New("invalid refresh rate: must be > 0")

	// ErrInvalidLogLevel is returned when the log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when the log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when the config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when the config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
