package display

import (
	"encoding/json"
	"io"

	"github.com/evosim/evoclient/pkg/recovery"
	"github.com/evosim/evoclient/pkg/store"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if !f.config.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// FormatSessions implements Formatter.FormatSessions.
func (f *jsonFormatter) FormatSessions(w io.Writer, sessions []*store.Session) error {
	return f.encode(w, sessions)
}

// FormatSession implements Formatter.FormatSession.
func (f *jsonFormatter) FormatSession(w io.Writer, session *store.Session) error {
	return f.encode(w, session)
}

// FormatSuggestions implements Formatter.FormatSuggestions.
func (f *jsonFormatter) FormatSuggestions(w io.Writer, suggestions []recovery.Suggestion) error {
	return f.encode(w, suggestions)
}

// FormatResults implements Formatter.FormatResults.
func (f *jsonFormatter) FormatResults(w io.Writer, results []recovery.RecoveryResult) error {
	type resultView struct {
		SessionID string            `json:"session_id"`
		Success   bool              `json:"success"`
		Warnings  []string          `json:"warnings,omitempty"`
		Issues    []recovery.Issue  `json:"issues,omitempty"`
		Metadata  recovery.Metadata `json:"metadata"`
		Error     string            `json:"error,omitempty"`
	}

	views := make([]resultView, 0, len(results))
	for _, r := range results {
		view := resultView{
			SessionID: r.SessionID,
			Success:   r.Success,
			Warnings:  r.Warnings,
			Issues:    r.Issues,
			Metadata:  r.Metadata,
		}
		if r.Err != nil {
			view.Error = r.Err.Error()
		}
		views = append(views, view)
	}

	return f.encode(w, views)
}

// FormatHistory implements Formatter.FormatHistory.
func (f *jsonFormatter) FormatHistory(w io.Writer, events []store.HistoryEvent) error {
	return f.encode(w, events)
}
