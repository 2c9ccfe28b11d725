package export

import (
	"encoding/json"
	"io"

	"github.com/evosim/evoclient/pkg/store"
)

// JSONExporter writes pretty-printed JSON. This is the canonical exchange
// format: Import accepts exactly this shape.
type JSONExporter struct{}

// Export writes the session as indented JSON.
func (e *JSONExporter) Export(session *store.Session, w io.Writer) error {
	if session == nil {
		return ErrNilSession
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(session)
}

// Extension returns "json".
func (e *JSONExporter) Extension() string {
	return "json"
}
