// Package export serializes session records for exchange with other tools.
//
// Sessions export to json, csv, or xlsx. Only the json shape imports back;
// an exported-then-imported session is identical except for UpdatedAt,
// which the store bumps on write.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/evosim/evoclient/pkg/store"
)

// Exporter serializes one session to an output stream.
type Exporter interface {
	// Export writes the session in the exporter's format.
	Export(session *store.Session, w io.Writer) error

	// Extension returns the file extension for this format, without dot.
	Extension() string
}

// NewExporter returns the exporter for a format name.
//
// Parameters:
//   - format: one of "json", "csv", "xlsx"
//
// Returns:
//   - Exporter for the format
//   - ErrUnsupportedFormat for anything else
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "csv":
		return &CSVExporter{}, nil
	case "xlsx":
		return &XLSXExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: json, csv, xlsx)", ErrUnsupportedFormat, format)
	}
}

// WriteFile exports a session to a file. An empty path derives
// "<session-name>.<ext>" in the current directory; a path without an
// extension gets the format's extension appended.
func WriteFile(session *store.Session, format, path string) (string, error) {
	exporter, err := NewExporter(format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = session.Name + "." + exporter.Extension()
	} else if filepath.Ext(path) == "" {
		path += "." + exporter.Extension()
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}

	if err := exporter.Export(session, f); err != nil {
		_ = f.Close()
		return "", err
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize export file: %w", err)
	}

	return path, nil
}
