package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/evosim/evoclient/pkg/store"
)

// CSVExporter writes a session header section followed by one row per
// simulation run. CSV export is one-way; it does not import back.
type CSVExporter struct{}

// Export writes the session as CSV.
func (e *CSVExporter) Export(session *store.Session, w io.Writer) error {
	if session == nil {
		return ErrNilSession
	}

	cw := csv.NewWriter(w)

	header := [][]string{
		{"field", "value"},
		{"id", session.ID},
		{"name", session.Name},
		{"status", string(session.Status)},
		{"priority", string(session.Priority)},
		{"tags", strings.Join(session.Tags, ";")},
		{"created_at", session.CreatedAt.Format(time.RFC3339)},
		{"updated_at", session.UpdatedAt.Format(time.RFC3339)},
		{"simulations", strconv.Itoa(len(session.Simulations))},
	}
	for _, row := range header {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}

	// Blank record separates the header section from the runs section.
	if err := cw.Write([]string{""}); err != nil {
		return fmt.Errorf("failed to write csv separator: %w", err)
	}

	if err := cw.Write(runColumns); err != nil {
		return fmt.Errorf("failed to write csv run header: %w", err)
	}
	for i := range session.Simulations {
		if err := cw.Write(runRow(&session.Simulations[i])); err != nil {
			return fmt.Errorf("failed to write csv run row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Extension returns "csv".
func (e *CSVExporter) Extension() string {
	return "csv"
}

var runColumns = []string{
	"simulation_id", "status", "progress",
	"initial_population_size", "num_generations",
	"mutation_rate", "antibiotic_concentration",
	"created_at", "updated_at",
}

func runRow(ref *store.SimulationReference) []string {
	return []string{
		ref.ID,
		string(ref.Status),
		strconv.FormatFloat(ref.Progress, 'f', -1, 64),
		strconv.Itoa(ref.Parameters.InitialPopulationSize),
		strconv.Itoa(ref.Parameters.NumGenerations),
		strconv.FormatFloat(ref.Parameters.MutationRate, 'f', -1, 64),
		strconv.FormatFloat(ref.Parameters.AntibioticConcentration, 'f', -1, 64),
		ref.CreatedAt.Format(time.RFC3339),
		ref.UpdatedAt.Format(time.RFC3339),
	}
}
