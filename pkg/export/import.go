package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/evosim/evoclient/pkg/store"
)

// Import parses an exported JSON session and validates it before handing
// it back for storage. Rejections are *store.ValidationError.
//
// Parameters:
//   - r: JSON stream in the shape JSONExporter writes
//
// Returns:
//   - Parsed session, ready for Store.Create
//   - Error if the payload is malformed or fails validation
func Import(r io.Reader) (*store.Session, error) {
	var session store.Session

	dec := json.NewDecoder(r)
	if err := dec.Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to parse session json: %w", err)
	}

	if err := validateImported(&session); err != nil {
		return nil, err
	}

	return &session, nil
}

// ImportFile imports a session from a JSON file on disk.
func ImportFile(path string) (*store.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return Import(f)
}

// validateImported checks the parsed record before it reaches the store.
// Tighter than store-side validation: imported data is untrusted, so
// simulation parameters are range-checked too.
func validateImported(session *store.Session) error {
	if session.ID == "" {
		return &store.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if session.Name == "" {
		return &store.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !session.Status.Valid() {
		return &store.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", session.Status)}
	}
	if session.Priority == "" {
		session.Priority = store.PriorityNormal
	}
	if !session.Priority.Valid() {
		return &store.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", session.Priority)}
	}

	seen := make(map[string]bool, len(session.Simulations))
	for i := range session.Simulations {
		ref := &session.Simulations[i]
		if ref.ID == "" {
			return &store.ValidationError{Field: "simulations", Reason: "simulation id must not be empty"}
		}
		if seen[ref.ID] {
			return &store.ValidationError{Field: "simulations", Reason: fmt.Sprintf("duplicate simulation id %q", ref.ID)}
		}
		seen[ref.ID] = true
		if ref.Progress < 0 || ref.Progress > 100 {
			return &store.ValidationError{Field: "simulations", Reason: fmt.Sprintf("progress %v outside [0, 100]", ref.Progress)}
		}
		if err := ref.Parameters.Validate(); err != nil {
			return &store.ValidationError{Field: "simulations", Reason: fmt.Sprintf("simulation %s: %v", ref.ID, err)}
		}
	}

	return nil
}
