// Package display provides output formatting for sessions, recovery
// reports, history, and live run status.
//
// It supports table, JSON, and simple text formats.
package display

import (
	"io"

	"github.com/evosim/evoclient/pkg/recovery"
	"github.com/evosim/evoclient/pkg/store"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays data in a formatted table.
	FormatTable Format = "table"

	// FormatJSON displays data as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays data in simple text format.
	FormatSimple Format = "simple"
)

// Formatter formats client data for the terminal.
type Formatter interface {
	// FormatSessions formats a session list.
	//
	// Parameters:
	//   - w: Output writer
	//   - sessions: Sessions to format
	//
	// Returns error if formatting fails.
	FormatSessions(w io.Writer, sessions []*store.Session) error

	// FormatSession formats one session with its runs.
	FormatSession(w io.Writer, session *store.Session) error

	// FormatSuggestions formats a recovery scan report.
	FormatSuggestions(w io.Writer, suggestions []recovery.Suggestion) error

	// FormatResults formats the outcomes of recovery attempts.
	FormatResults(w io.Writer, results []recovery.RecoveryResult) error

	// FormatHistory formats session history events.
	FormatHistory(w io.Writer, events []store.HistoryEvent) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// ShowTimestamps enables timestamp display.
	// Default: true in New.
	ShowTimestamps bool

	// Compact enables compact output (less whitespace).
	Compact bool

	// Width caps line width. Zero means detect from the terminal, falling
	// back to 100 columns.
	Width int
}
