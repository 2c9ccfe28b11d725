package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/evosim/evoclient/pkg/protocol"
	"github.com/evosim/evoclient/pkg/simulation"
	"github.com/evosim/evoclient/pkg/store"
)

// testSession builds a session with fixed timestamps so round-trip
// comparisons are exact.
func testSession() *store.Session {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	return &store.Session{
		ID:        "9f1c2d34-0000-4000-8000-000000000001",
		Name:      "petri-batch",
		Status:    store.SessionPaused,
		Priority:  store.PriorityHigh,
		CreatedAt: created,
		UpdatedAt: created.Add(10 * time.Minute),
		Tags:      []string{"lab-a", "overnight"},
		Config: store.SessionConfig{
			AutoSaveInterval: 30 * time.Second,
			MaxSimulations:   10,
			MinIntegrity:     0.6,
		},
		Simulations: []store.SimulationReference{
			{
				ID: "run-1",
				Parameters: protocol.Parameters{
					InitialPopulationSize:   500,
					NumGenerations:          25,
					MutationRate:            0.01,
					AntibioticConcentration: 0.3,
				},
				Status:    simulation.StatusPaused,
				Progress:  44,
				CreatedAt: created.Add(time.Minute),
				UpdatedAt: created.Add(9 * time.Minute),
			},
		},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	original := testSession()

	var buf bytes.Buffer
	require.NoError(t, (&JSONExporter{}).Export(original, &buf))

	imported, err := Import(&buf)
	require.NoError(t, err)

	assert.Equal(t, original, imported)
}

func TestNewExporter(t *testing.T) {
	for _, format := range []string{"json", "csv", "xlsx"} {
		exporter, err := NewExporter(format)
		require.NoError(t, err)
		assert.Equal(t, format, exporter.Extension())
	}

	_, err := NewExporter("toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCSVSections(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&CSVExporter{}).Export(testSession(), &buf))

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"field", "value"}, records[0])
	assert.Equal(t, []string{"name", "petri-batch"}, records[2])

	// Last record is the single run row.
	last := records[len(records)-1]
	assert.Equal(t, "run-1", last[0])
	assert.Equal(t, "paused", last[1])
	assert.Equal(t, "44", last[2])
	assert.Equal(t, "500", last[3])
}

func TestXLSXSheets(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&XLSXExporter{}).Export(testSession(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	name, err := f.GetCellValue("Session", "B2")
	require.NoError(t, err)
	assert.Equal(t, "petri-batch", name)

	runID, err := f.GetCellValue("Simulations", "A2")
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
}

func TestImportValidation(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantField string
	}{
		{
			name:      "missing id",
			payload:   `{"name":"x","status":"active"}`,
			wantField: "id",
		},
		{
			name:      "missing name",
			payload:   `{"id":"s1","status":"active"}`,
			wantField: "name",
		},
		{
			name:      "unknown status",
			payload:   `{"id":"s1","name":"x","status":"zombie"}`,
			wantField: "status",
		},
		{
			name: "progress out of range",
			payload: `{"id":"s1","name":"x","status":"active","simulations":[
				{"id":"run-1","progress":150,
				 "parameters":{"initial_population_size":500,"num_generations":25,
				   "mutation_rate":0.01,"antibiotic_concentration":0.3}}]}`,
			wantField: "simulations",
		},
		{
			name: "invalid parameters",
			payload: `{"id":"s1","name":"x","status":"active","simulations":[
				{"id":"run-1","progress":10,
				 "parameters":{"initial_population_size":0,"num_generations":25,
				   "mutation_rate":0.01,"antibiotic_concentration":0.3}}]}`,
			wantField: "simulations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(strings.NewReader(tt.payload))
			var vErr *store.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestImportMalformed(t *testing.T) {
	_, err := Import(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestImportDefaultsPriority(t *testing.T) {
	session, err := Import(strings.NewReader(`{"id":"s1","name":"x","status":"active"}`))
	require.NoError(t, err)
	assert.Equal(t, store.PriorityNormal, session.Priority)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteFile(testSession(), "json", filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out.json"), path)

	imported, err := ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, "petri-batch", imported.Name)
}
