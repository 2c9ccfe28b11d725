package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/evosim/evoclient/pkg/simulation"
)

const fallbackWidth = 100

// New creates a new formatter based on configuration.
//
// Parameters:
//   - cfg: Formatter configuration
//
// Returns a configured Formatter.
func New(cfg Config) Formatter {
	// Set defaults.
	if cfg.Format == "" {
		cfg.Format = FormatTable
	}
	if cfg.Width == 0 {
		cfg.Width = terminalWidth()
	}

	switch cfg.Format {
	case FormatJSON:
		return &jsonFormatter{config: cfg}
	case FormatSimple:
		return &simpleFormatter{config: cfg}
	case FormatTable:
		fallthrough
	default:
		return &tableFormatter{config: cfg}
	}
}

// terminalWidth reads the terminal width, falling back to a fixed width
// when stdout is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return fallbackWidth
	}

	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return width
}

// StatusLine renders a one-line live view of a run, clipped to width.
func StatusLine(state simulation.State, width int) string {
	if width <= 0 {
		width = fallbackWidth
	}

	line := fmt.Sprintf("[%s] gen %d/%d  %5.1f%%  pop %d  resistant %d  elapsed %s",
		state.Status,
		state.CurrentGeneration,
		state.TotalGenerations,
		state.Progress,
		state.PopulationSize,
		state.ResistantCount,
		formatDuration(state.Elapsed))

	if state.Status == simulation.StatusRunning && state.EstimatedRemaining > 0 {
		line += fmt.Sprintf("  eta %s", formatDuration(state.EstimatedRemaining))
	}
	if state.Status == simulation.StatusError && state.ErrorMessage != "" {
		line += "  " + state.ErrorMessage
	}

	return truncate(line, width)
}

// formatDuration renders a duration without sub-second noise.
func formatDuration(d time.Duration) string {
	return d.Truncate(time.Second).String()
}

// formatFloat formats a float with specified precision.
func formatFloat(f float64, precision int) string {
	format := fmt.Sprintf("%%.%df", precision)
	return fmt.Sprintf(format, f)
}

// truncate clips a string to at most width runes.
func truncate(s string, width int) string {
	if width <= 3 || len([]rune(s)) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

// writeHeader writes a section header.
func writeHeader(w io.Writer, title string, compact bool) error {
	if compact {
		_, err := fmt.Fprintf(w, "%s\n", title)
		return err
	}

	_, err := fmt.Fprintf(w, "\n%s\n%s\n\n", title, strings.Repeat("=", len(title)))
	return err
}
