package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/evosim/evoclient/pkg/protocol"
	"github.com/evosim/evoclient/pkg/recovery"
	"github.com/evosim/evoclient/pkg/simulation"
	"github.com/evosim/evoclient/pkg/store"
)

func sampleSession() *store.Session {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	return &store.Session{
		ID:        "9f1c2d34-0000-4000-8000-000000000001",
		Name:      "petri-batch",
		Status:    store.SessionActive,
		Priority:  store.PriorityHigh,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
		Tags:      []string{"lab-a"},
		Simulations: []store.SimulationReference{
			{
				ID: "run-1",
				Parameters: protocol.Parameters{
					InitialPopulationSize:   500,
					NumGenerations:          25,
					MutationRate:            0.01,
					AntibioticConcentration: 0.3,
				},
				Status:   simulation.StatusRunning,
				Progress: 44,
			},
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string // Type name
	}{
		{
			name:   "default format (table)",
			config: Config{},
			want:   "*display.tableFormatter",
		},
		{
			name:   "json format",
			config: Config{Format: FormatJSON},
			want:   "*display.jsonFormatter",
		},
		{
			name:   "simple format",
			config: Config{Format: FormatSimple},
			want:   "*display.simpleFormatter",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			formatter := New(tt.config)
			if formatter == nil {
				t.Fatal("New() returned nil")
			}

			got := fmt.Sprintf("%T", formatter)
			if got != tt.want {
				t.Errorf("New() type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTableFormatSessions(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, ShowTimestamps: true, Width: 200})

	if err := f.FormatSessions(&buf, []*store.Session{sampleSession()}); err != nil {
		t.Fatalf("FormatSessions() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Sessions", "petri-batch", "active", "high", "lab-a", "9f1c2d34"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "9f1c2d34-0000") {
		t.Error("session id not abbreviated in table output")
	}
}

func TestTableFormatSessionsEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, Width: 200})

	if err := f.FormatSessions(&buf, nil); err != nil {
		t.Fatalf("FormatSessions() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No data") {
		t.Errorf("expected placeholder for empty list, got:\n%s", buf.String())
	}
}

func TestTableFormatSession(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, Width: 200})

	if err := f.FormatSession(&buf, sampleSession()); err != nil {
		t.Fatalf("FormatSession() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"petri-batch", "run-1", "44.0%", "500", "0.010", "0.30"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatSuggestions(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, Width: 200})

	suggestions := []recovery.Suggestion{{
		Session: recovery.InterruptedSession{
			SessionID:         "9f1c2d34-0000-4000-8000-000000000001",
			Name:              "petri-batch",
			Reason:            recovery.ReasonAppCrash,
			DataIntegrity:     0.95,
			ActiveSimulations: []string{"run-1"},
		},
		Action: recovery.ActionAutoRecover,
	}}

	if err := f.FormatSuggestions(&buf, suggestions); err != nil {
		t.Fatalf("FormatSuggestions() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"app_crash", "0.95", "auto_recover"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatResults(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatTable, Width: 200})

	results := []recovery.RecoveryResult{
		{
			SessionID: "aaaaaaaa-0000-4000-8000-000000000001",
			Success:   true,
			Warnings:  []string{"recovered data may be incomplete"},
			Metadata:  recovery.Metadata{ItemsRecovered: 2, DataIntegrity: 0.7},
		},
		{
			SessionID: "bbbbbbbb-0000-4000-8000-000000000002",
			Err:       errors.New("disk full"),
		},
	}

	if err := f.FormatResults(&buf, results); err != nil {
		t.Fatalf("FormatResults() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"recovered", "failed: disk full", "may be incomplete"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSimpleFormatHistory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatSimple, Width: 200})

	events := []store.HistoryEvent{{
		Sequence:     1,
		SessionID:    "9f1c2d34-0000-4000-8000-000000000001",
		Type:         store.EventSimulationStarted,
		SimulationID: "run-1",
		Timestamp:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}}

	if err := f.FormatHistory(&buf, events); err != nil {
		t.Fatalf("FormatHistory() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "simulation_started") {
		t.Errorf("output missing event type:\n%s", out)
	}
	if !strings.Contains(out, "2026-03-14 10:00:00") {
		t.Errorf("output missing timestamp:\n%s", out)
	}
}

func TestJSONFormatSessionsRoundTrips(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatJSON, Width: 200})

	if err := f.FormatSessions(&buf, []*store.Session{sampleSession()}); err != nil {
		t.Fatalf("FormatSessions() error = %v", err)
	}

	var decoded []store.Session
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Name != "petri-batch" {
		t.Errorf("unexpected decoded sessions: %+v", decoded)
	}
}

func TestJSONFormatResultsCarriesError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := New(Config{Format: FormatJSON, Width: 200})

	results := []recovery.RecoveryResult{{
		SessionID: "s1",
		Err:       errors.New("disk full"),
	}}

	if err := f.FormatResults(&buf, results); err != nil {
		t.Fatalf("FormatResults() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"error": "disk full"`) {
		t.Errorf("error string missing from json output:\n%s", buf.String())
	}
}

func TestStatusLine(t *testing.T) {
	t.Parallel()

	state := simulation.State{
		Status:             simulation.StatusRunning,
		CurrentGeneration:  10,
		TotalGenerations:   25,
		Progress:           40,
		PopulationSize:     480,
		ResistantCount:     30,
		Elapsed:            20 * time.Second,
		EstimatedRemaining: 30 * time.Second,
	}

	line := StatusLine(state, 200)
	for _, want := range []string{"running", "gen 10/25", "40.0%", "pop 480", "eta 30s"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line missing %q: %s", want, line)
		}
	}
}

func TestStatusLineTruncates(t *testing.T) {
	t.Parallel()

	state := simulation.State{
		Status:       simulation.StatusError,
		ErrorMessage: strings.Repeat("x", 300),
	}

	line := StatusLine(state, 80)
	if len([]rune(line)) > 80 {
		t.Errorf("status line not clipped: %d chars", len([]rune(line)))
	}
	if !strings.HasSuffix(line, "...") {
		t.Errorf("clipped line missing ellipsis: %s", line)
	}
}
