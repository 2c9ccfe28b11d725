// Package importer watches a drop directory and imports session files
// placed into it.
//
// Files ending in .json are debounced (editors and downloads write in
// bursts), validated through pkg/export, and created in the store. Imported
// files move to <dir>/done, rejected files to <dir>/failed, so the drop
// directory only ever holds work in progress.
package importer

import (
	"context"
	"time"
)

// Event reports one completed import.
type Event struct {
	// Path is the imported file.
	Path string

	// SessionID is the id of the created session.
	SessionID string

	// SessionName is the name of the created session.
	SessionName string

	// Timestamp is when the import finished.
	Timestamp time.Time
}

// Importer watches a drop directory for session files.
type Importer interface {
	// Start begins watching. Returns an error if the directory cannot
	// be watched or the importer was already started.
	Start(ctx context.Context) error

	// Events returns the channel of completed imports.
	Events() <-chan Event

	// Errors returns the channel of import failures.
	Errors() <-chan error

	// Close stops watching and releases the underlying watcher.
	Close() error
}

// Config contains importer configuration.
type Config struct {
	// WatchDir is the drop directory to watch.
	WatchDir string

	// Debounce is how long a file must stay quiet before it is read
	// (default: 500 milliseconds).
	Debounce time.Duration

	// EventBuffer sizes the events channel (default: 16).
	EventBuffer int
}
