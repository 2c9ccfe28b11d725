package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/evosim/evoclient/pkg/recovery"
	"github.com/evosim/evoclient/pkg/store"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatSessions implements Formatter.FormatSessions.
func (f *tableFormatter) FormatSessions(w io.Writer, sessions []*store.Session) error {
	if err := writeHeader(w, "Sessions", f.config.Compact); err != nil {
		return err
	}

	header := []string{"ID", "Name", "Status", "Priority", "Runs", "Tags"}
	if f.config.ShowTimestamps {
		header = append(header, "Updated")
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		row := []string{
			shortID(s.ID),
			s.Name,
			string(s.Status),
			string(s.Priority),
			fmt.Sprintf("%d", len(s.Simulations)),
			strings.Join(s.Tags, ","),
		}
		if f.config.ShowTimestamps {
			row = append(row, s.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		rows = append(rows, row)
	}

	return f.writeTable(w, header, rows)
}

// FormatSession implements Formatter.FormatSession.
func (f *tableFormatter) FormatSession(w io.Writer, session *store.Session) error {
	if err := writeHeader(w, "Session "+session.Name, f.config.Compact); err != nil {
		return err
	}

	meta := [][]string{
		{"ID", session.ID},
		{"Status", string(session.Status)},
		{"Priority", string(session.Priority)},
		{"Tags", strings.Join(session.Tags, ",")},
	}
	if f.config.ShowTimestamps {
		meta = append(meta,
			[]string{"Created", session.CreatedAt.Format("2006-01-02 15:04:05")},
			[]string{"Updated", session.UpdatedAt.Format("2006-01-02 15:04:05")},
		)
	}
	if err := f.writeTable(w, []string{"Field", "Value"}, meta); err != nil {
		return err
	}

	rows := make([][]string, 0, len(session.Simulations))
	for i := range session.Simulations {
		ref := &session.Simulations[i]
		rows = append(rows, []string{
			shortID(ref.ID),
			string(ref.Status),
			formatFloat(ref.Progress, 1) + "%",
			fmt.Sprintf("%d", ref.Parameters.NumGenerations),
			fmt.Sprintf("%d", ref.Parameters.InitialPopulationSize),
			formatFloat(ref.Parameters.MutationRate, 3),
			formatFloat(ref.Parameters.AntibioticConcentration, 2),
		})
	}

	return f.writeTable(w,
		[]string{"Run", "Status", "Progress", "Generations", "Population", "Mutation", "Antibiotic"},
		rows)
}

// FormatSuggestions implements Formatter.FormatSuggestions.
func (f *tableFormatter) FormatSuggestions(w io.Writer, suggestions []recovery.Suggestion) error {
	if err := writeHeader(w, "Interrupted Sessions", f.config.Compact); err != nil {
		return err
	}

	rows := make([][]string, 0, len(suggestions))
	for _, s := range suggestions {
		rows = append(rows, []string{
			shortID(s.Session.SessionID),
			s.Session.Name,
			string(s.Session.Reason),
			formatFloat(s.Session.DataIntegrity, 2),
			fmt.Sprintf("%d", len(s.Session.ActiveSimulations)),
			string(s.Action),
		})
	}

	return f.writeTable(w,
		[]string{"ID", "Name", "Reason", "Integrity", "Active Runs", "Suggested Action"},
		rows)
}

// FormatResults implements Formatter.FormatResults.
func (f *tableFormatter) FormatResults(w io.Writer, results []recovery.RecoveryResult) error {
	if err := writeHeader(w, "Recovery Results", f.config.Compact); err != nil {
		return err
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		outcome := "recovered"
		if !r.Success {
			outcome = "failed"
			if r.Err != nil {
				outcome = "failed: " + truncate(r.Err.Error(), 40)
			}
		}
		rows = append(rows, []string{
			shortID(r.SessionID),
			outcome,
			fmt.Sprintf("%d", r.Metadata.ItemsRecovered),
			fmt.Sprintf("%d", r.Metadata.ItemsLost),
			formatFloat(r.Metadata.DataIntegrity, 2),
			fmt.Sprintf("%d", len(r.Warnings)),
		})
	}

	if err := f.writeTable(w,
		[]string{"Session", "Outcome", "Recovered", "Lost", "Integrity", "Warnings"},
		rows); err != nil {
		return err
	}

	for _, r := range results {
		for _, warning := range r.Warnings {
			if _, err := fmt.Fprintf(w, "  warning (%s): %s\n", shortID(r.SessionID), warning); err != nil {
				return err
			}
		}
	}

	return nil
}

// FormatHistory implements Formatter.FormatHistory.
func (f *tableFormatter) FormatHistory(w io.Writer, events []store.HistoryEvent) error {
	if err := writeHeader(w, "Session History", f.config.Compact); err != nil {
		return err
	}

	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.Sequence),
			e.Timestamp.Format("2006-01-02 15:04:05"),
			shortID(e.SessionID),
			string(e.Type),
			shortID(e.SimulationID),
			truncate(e.Detail, 40),
		})
	}

	return f.writeTable(w,
		[]string{"#", "Time", "Session", "Event", "Run", "Detail"},
		rows)
}

// writeTable writes an aligned table with a header row.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes one padded table row, clipped to the configured width.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		width := 0
		if i < len(widths) {
			width = widths[i]
		}
		parts[i] = fmt.Sprintf("%-*s", width, cell)
	}

	line := strings.TrimRight(strings.Join(parts, "  "), " ")
	_, err := fmt.Fprintln(w, truncate(line, f.config.Width))
	return err
}

// shortID abbreviates uuids for table cells.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
