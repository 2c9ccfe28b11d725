// Package store provides durable persistence of session aggregates.
//
// Sessions, the current-session pointer, global defaults, append-only
// session history, and checkpoints live in one BoltDB file and survive
// process restarts. All writes are whole-record patch operations inside a
// single transaction: an update never partially overwrites unrelated
// fields, and capacity violations reject the write with no partial state.
//
// Example usage:
//
//	st, err := store.New(store.Config{
//	    DBPath: "~/.config/evoclient/sessions.db",
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	session := store.NewSession("morning-batch")
//	if err := st.Create(session); err != nil {
//	    log.Fatal(err)
//	}
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/evosim/evoclient/pkg/protocol"
	"github.com/evosim/evoclient/pkg/simulation"
)

// SessionStatus describes the lifecycle of a session aggregate.
type SessionStatus string

// Session statuses. Transitions are monotonic except paused<->active and
// active<->error.
const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
	SessionCancelled SessionStatus = "cancelled"
	SessionArchived  SessionStatus = "archived"
)

// Valid reports whether the status belongs to the known set.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionCompleted,
		SessionError, SessionCancelled, SessionArchived:
		return true
	default:
		return false
	}
}

// Priority orders sessions for display and filtering.
type Priority string

// Session priorities.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether the priority belongs to the known set.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// SessionConfig carries per-session limits and intervals.
type SessionConfig struct {
	// AutoSaveInterval is how often live state is mirrored into the store.
	AutoSaveInterval time.Duration `json:"auto_save_interval"`

	// MaxSimulations bounds the number of runs per session.
	MaxSimulations int `json:"max_simulations"`

	// MinIntegrity is the session's recovery integrity floor.
	MinIntegrity float64 `json:"min_integrity"`
}

// SimulationReference is a session's pointer to one simulation run.
type SimulationReference struct {
	// ID is the run identifier.
	ID string `json:"id"`

	// Parameters is the validated parameter record the run was started with.
	Parameters protocol.Parameters `json:"parameters"`

	// Status is the run's last known status.
	Status simulation.Status `json:"status"`

	// Progress is the run progress in percent (0-100).
	Progress float64 `json:"progress"`

	// State is the best-effort persisted snapshot used for recovery.
	State *simulation.State `json:"state,omitempty"`

	// CreatedAt is when the run was started.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the last time this reference was refreshed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is the aggregate root owned by the store.
type Session struct {
	// ID is the unique, immutable session identifier.
	ID string `json:"id"`

	// Name is the user-facing session name.
	Name string `json:"name"`

	// Status is the session lifecycle status.
	Status SessionStatus `json:"status"`

	// Priority orders sessions.
	Priority Priority `json:"priority"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is bumped on every store mutation.
	UpdatedAt time.Time `json:"updated_at"`

	// Tags are user labels, kept unique and order-preserving.
	Tags []string `json:"tags,omitempty"`

	// Config carries per-session limits.
	Config SessionConfig `json:"config"`

	// Simulations is the ordered list of runs in this session.
	Simulations []SimulationReference `json:"simulations"`
}

// NewSession builds a session with a generated id and default fields.
func NewSession(name string) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Name:     name,
		Status:   SessionActive,
		Priority: PriorityNormal,
		Config: SessionConfig{
			AutoSaveInterval: 30 * time.Second,
			MaxSimulations:   10,
			MinIntegrity:     0.6,
		},
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	out := *s
	out.Tags = append([]string(nil), s.Tags...)
	out.Simulations = make([]SimulationReference, len(s.Simulations))
	copy(out.Simulations, s.Simulations)
	for i := range out.Simulations {
		if st := s.Simulations[i].State; st != nil {
			copied := *st
			out.Simulations[i].State = &copied
		}
	}
	return &out
}

// Simulation returns the referenced run, or nil if absent.
func (s *Session) Simulation(id string) *SimulationReference {
	for i := range s.Simulations {
		if s.Simulations[i].ID == id {
			return &s.Simulations[i]
		}
	}
	return nil
}

// Patch describes a partial session update. Nil fields are left untouched;
// set fields replace the stored value wholesale.
type Patch struct {
	Name        *string                `json:"name,omitempty"`
	Status      *SessionStatus         `json:"status,omitempty"`
	Priority    *Priority              `json:"priority,omitempty"`
	Tags        *[]string              `json:"tags,omitempty"`
	Config      *SessionConfig         `json:"config,omitempty"`
	Simulations *[]SimulationReference `json:"simulations,omitempty"`
}

// SortField selects the List ordering.
type SortField string

// Sort fields accepted by List.
const (
	SortByName      SortField = "name"
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
	SortByPriority  SortField = "priority"
	SortByStatus    SortField = "status"
)

// Filter narrows and orders List results. Zero-value fields do not filter.
type Filter struct {
	// Statuses restricts to the given status set.
	Statuses []SessionStatus

	// Priorities restricts to the given priority set.
	Priorities []Priority

	// Tags requires every listed tag to be present.
	Tags []string

	// Search is a case-insensitive free-text match over name, id, and tags.
	Search string

	// CreatedAfter/CreatedBefore bound the creation timestamp.
	CreatedAfter  time.Time
	CreatedBefore time.Time

	// SortBy selects the sort field (default: updated_at).
	SortBy SortField

	// SortDesc reverses the order.
	SortDesc bool
}

// GlobalConfig is the persisted session_config record of store-wide defaults.
type GlobalConfig struct {
	// AutoSaveInterval is the default per-session auto-save interval.
	AutoSaveInterval time.Duration `json:"auto_save_interval"`

	// MaxSimulations is the default per-session run limit.
	MaxSimulations int `json:"max_simulations"`

	// MaxStorageBytes bounds the total serialized session data.
	MaxStorageBytes int64 `json:"max_storage_bytes"`

	// CleanupInterval is how often cleanup is expected to be invoked.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// MaxSessionAge is the retention horizon used by Cleanup and by the
	// recovery integrity score.
	MaxSessionAge time.Duration `json:"max_session_age"`
}

// DefaultGlobalConfig returns the stock session_config record.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		AutoSaveInterval: 30 * time.Second,
		MaxSimulations:   10,
		MaxStorageBytes:  100 * 1024 * 1024,
		CleanupInterval:  24 * time.Hour,
		MaxSessionAge:    720 * time.Hour,
	}
}

// Checkpoint is an immutable snapshot of a session and its simulation
// states, usable for restore. Never mutated after creation.
type Checkpoint struct {
	// ID is the checkpoint identifier.
	ID string `json:"checkpoint_id"`

	// SessionID links the checkpoint to its session.
	SessionID string `json:"session_id"`

	// CreatedAt is the snapshot timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Session is the full session record at snapshot time.
	Session *Session `json:"session"`

	// States maps simulation ids to their in-memory state at snapshot time.
	States map[string]simulation.State `json:"states,omitempty"`
}
