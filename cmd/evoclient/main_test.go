package main

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/evosim/evoclient/pkg/config"
	"github.com/evosim/evoclient/pkg/logger"
	"github.com/evosim/evoclient/pkg/store"
)

// TestParseTags tests tag list parsing.
func TestParseTags(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "overnight", []string{"overnight"}},
		{"multiple", "overnight,batch", []string{"overnight", "batch"}},
		{"whitespace", " overnight , batch ", []string{"overnight", "batch"}},
		{"empty entries", "overnight,,batch,", []string{"overnight", "batch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTags(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("parseTags(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseTags(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestRunCommandFlags tests run command flag parsing.
func TestRunCommandFlags(t *testing.T) {
	tests := []struct {
		name            string
		args            []string
		wantSession     string
		wantName        string
		wantPopulation  int
		wantGenerations int
		wantMutation    float64
		wantAntibiotic  float64
	}{
		{
			name:            "defaults",
			args:            []string{},
			wantPopulation:  500,
			wantGenerations: 50,
			wantMutation:    0.01,
			wantAntibiotic:  0.3,
		},
		{
			name:            "new session with parameters",
			args:            []string{"-name", "overnight", "-population", "1000", "-generations", "200"},
			wantName:        "overnight",
			wantPopulation:  1000,
			wantGenerations: 200,
			wantMutation:    0.01,
			wantAntibiotic:  0.3,
		},
		{
			name:            "existing session",
			args:            []string{"-session", "abc123", "-antibiotic", "0.8"},
			wantSession:     "abc123",
			wantPopulation:  500,
			wantGenerations: 50,
			wantMutation:    0.01,
			wantAntibiotic:  0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("run", flag.ContinueOnError)
			sessionID := fs.String("session", "", "session id")
			name := fs.String("name", "", "new session name")
			population := fs.Int("population", 500, "initial population size")
			generations := fs.Int("generations", 50, "number of generations")
			mutation := fs.Float64("mutation", 0.01, "mutation rate")
			antibiotic := fs.Float64("antibiotic", 0.3, "antibiotic concentration")

			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if *sessionID != tt.wantSession {
				t.Errorf("session = %q, want %q", *sessionID, tt.wantSession)
			}
			if *name != tt.wantName {
				t.Errorf("name = %q, want %q", *name, tt.wantName)
			}
			if *population != tt.wantPopulation {
				t.Errorf("population = %d, want %d", *population, tt.wantPopulation)
			}
			if *generations != tt.wantGenerations {
				t.Errorf("generations = %d, want %d", *generations, tt.wantGenerations)
			}
			if *mutation != tt.wantMutation {
				t.Errorf("mutation = %v, want %v", *mutation, tt.wantMutation)
			}
			if *antibiotic != tt.wantAntibiotic {
				t.Errorf("antibiotic = %v, want %v", *antibiotic, tt.wantAntibiotic)
			}
		})
	}
}

// TestCommandRouting tests that commands are routed correctly.
func TestCommandRouting(t *testing.T) {
	tests := []struct {
		name        string
		command     string
		shouldRoute bool
	}{
		{"run command", "run", true},
		{"sessions command", "sessions", true},
		{"export command", "export", true},
		{"import command", "import", true},
		{"recover command", "recover", true},
		{"checkpoint command", "checkpoint", true},
		{"history command", "history", true},
		{"cleanup command", "cleanup", true},
		{"config command", "config", true},
		{"help command", "help", true},
		{"unknown command", "unknown", false},
	}

	validCommands := map[string]bool{
		"run":        true,
		"sessions":   true,
		"export":     true,
		"import":     true,
		"recover":    true,
		"checkpoint": true,
		"history":    true,
		"cleanup":    true,
		"config":     true,
		"help":       true,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if validCommands[tt.command] != tt.shouldRoute {
				t.Errorf("command %q validity = %v, want %v", tt.command, validCommands[tt.command], tt.shouldRoute)
			}
		})
	}
}

// newTestApp builds an app over a temporary store.
func newTestApp(t *testing.T) *app {
	t.Helper()

	log := logger.Noop()
	st, err := store.New(store.Config{
		DBPath: filepath.Join(t.TempDir(), "sessions.db"),
	}, log)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})

	return &app{cfg: config.Default(), log: log, store: st}
}

// TestResolveSession tests session resolution by id, prefix, and current.
func TestResolveSession(t *testing.T) {
	a := newTestApp(t)

	first := store.NewSession("first")
	first.ID = "aabbccdd-0000-0000-0000-000000000001"
	second := store.NewSession("second")
	second.ID = "aaee0000-0000-0000-0000-000000000002"

	for _, s := range []*store.Session{first, second} {
		if err := a.store.Create(s); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
	}

	t.Run("exact id", func(t *testing.T) {
		got, err := a.resolveSession(first.ID)
		if err != nil {
			t.Fatalf("resolveSession() error = %v", err)
		}
		if got.ID != first.ID {
			t.Errorf("resolved %q, want %q", got.ID, first.ID)
		}
	})

	t.Run("unique prefix", func(t *testing.T) {
		got, err := a.resolveSession("aabb")
		if err != nil {
			t.Fatalf("resolveSession() error = %v", err)
		}
		if got.ID != first.ID {
			t.Errorf("resolved %q, want %q", got.ID, first.ID)
		}
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		if _, err := a.resolveSession("aa"); err == nil {
			t.Fatal("expected error for ambiguous prefix")
		}
	})

	t.Run("no match", func(t *testing.T) {
		if _, err := a.resolveSession("zz"); err == nil {
			t.Fatal("expected error for unknown id")
		}
	})

	t.Run("falls back to current", func(t *testing.T) {
		if err := a.store.SetCurrent(second.ID); err != nil {
			t.Fatalf("failed to set current session: %v", err)
		}
		got, err := a.resolveSession("")
		if err != nil {
			t.Fatalf("resolveSession() error = %v", err)
		}
		if got.ID != second.ID {
			t.Errorf("resolved %q, want %q", got.ID, second.ID)
		}
	})

	t.Run("no current", func(t *testing.T) {
		if err := a.store.ClearCurrent(); err != nil {
			t.Fatalf("failed to clear current session: %v", err)
		}
		if _, err := a.resolveSession(""); err == nil {
			t.Fatal("expected error when no current session is set")
		}
	})
}

// TestVersionFlag tests version flag handling.
func TestVersionFlag(t *testing.T) {
	version = "v0.1.0"
	if version != "v0.1.0" {
		t.Errorf("version = %q, want %q", version, "v0.1.0")
	}
	version = "dev"
}
