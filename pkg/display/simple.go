package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/evosim/evoclient/pkg/recovery"
	"github.com/evosim/evoclient/pkg/store"
)

// simpleFormatter formats output as plain lines, one item per line.
type simpleFormatter struct {
	config Config
}

// FormatSessions implements Formatter.FormatSessions.
func (f *simpleFormatter) FormatSessions(w io.Writer, sessions []*store.Session) error {
	for _, s := range sessions {
		line := fmt.Sprintf("%s  %s  %s/%s  %d runs",
			shortID(s.ID), s.Name, s.Status, s.Priority, len(s.Simulations))
		if len(s.Tags) > 0 {
			line += "  [" + strings.Join(s.Tags, ",") + "]"
		}
		if _, err := fmt.Fprintln(w, truncate(line, f.config.Width)); err != nil {
			return err
		}
	}
	return nil
}

// FormatSession implements Formatter.FormatSession.
func (f *simpleFormatter) FormatSession(w io.Writer, session *store.Session) error {
	if _, err := fmt.Fprintf(w, "%s  %s  %s/%s\n",
		session.ID, session.Name, session.Status, session.Priority); err != nil {
		return err
	}

	for i := range session.Simulations {
		ref := &session.Simulations[i]
		line := fmt.Sprintf("  %s  %s  %s%%",
			shortID(ref.ID), ref.Status, formatFloat(ref.Progress, 1))
		if _, err := fmt.Fprintln(w, truncate(line, f.config.Width)); err != nil {
			return err
		}
	}
	return nil
}

// FormatSuggestions implements Formatter.FormatSuggestions.
func (f *simpleFormatter) FormatSuggestions(w io.Writer, suggestions []recovery.Suggestion) error {
	for _, s := range suggestions {
		line := fmt.Sprintf("%s  %s  integrity %s  %s",
			shortID(s.Session.SessionID), s.Session.Name,
			formatFloat(s.Session.DataIntegrity, 2), s.Action)
		if _, err := fmt.Fprintln(w, truncate(line, f.config.Width)); err != nil {
			return err
		}
	}
	return nil
}

// FormatResults implements Formatter.FormatResults.
func (f *simpleFormatter) FormatResults(w io.Writer, results []recovery.RecoveryResult) error {
	for _, r := range results {
		var line string
		if r.Success {
			line = fmt.Sprintf("%s  recovered %d runs (%d lost)",
				shortID(r.SessionID), r.Metadata.ItemsRecovered, r.Metadata.ItemsLost)
		} else {
			line = fmt.Sprintf("%s  failed: %v", shortID(r.SessionID), r.Err)
		}
		if _, err := fmt.Fprintln(w, truncate(line, f.config.Width)); err != nil {
			return err
		}
	}
	return nil
}

// FormatHistory implements Formatter.FormatHistory.
func (f *simpleFormatter) FormatHistory(w io.Writer, events []store.HistoryEvent) error {
	for _, e := range events {
		line := fmt.Sprintf("%s  %s  %s",
			e.Timestamp.Format("2006-01-02 15:04:05"), shortID(e.SessionID), e.Type)
		if e.SimulationID != "" {
			line += "  " + shortID(e.SimulationID)
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		if _, err := fmt.Fprintln(w, truncate(line, f.config.Width)); err != nil {
			return err
		}
	}
	return nil
}
