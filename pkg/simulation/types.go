// Package simulation maintains the authoritative state of one simulation run.
//
// The machine is a single-threaded actor: user commands, server events, and
// timer ticks are delivered to one mailbox and folded into state by a pure
// transition function, so every transition is testable without a live
// connection. Outbound wire commands are produced as effects and handed to
// an injected send function.
package simulation

import (
	"time"

	"github.com/evosim/evoclient/pkg/protocol"
)

// Status describes the lifecycle of a simulation run.
type Status string

// Simulation statuses.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Restartable reports whether a start command is accepted in this status.
func (s Status) Restartable() bool {
	switch s {
	case StatusIdle, StatusCancelled, StatusError, StatusCompleted:
		return true
	default:
		return false
	}
}

// State is the authoritative in-memory snapshot of a run.
type State struct {
	// Status is the current lifecycle status.
	Status Status `json:"status"`

	// CurrentGeneration is the highest generation number received.
	CurrentGeneration int `json:"current_generation"`

	// TotalGenerations is the configured run length.
	TotalGenerations int `json:"total_generations"`

	// Progress is the run progress in percent (0-100), monotonically
	// non-decreasing while running.
	Progress float64 `json:"progress"`

	// Elapsed is the wall-clock time spent running.
	Elapsed time.Duration `json:"elapsed"`

	// EstimatedRemaining is the projected time to completion; zero while
	// progress is zero (undefined) or when the run is not running.
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	// PopulationSize is the current bacterial population.
	PopulationSize int `json:"population_size"`

	// ResistantCount is the number of resistant bacteria.
	ResistantCount int `json:"resistant_count"`

	// AntibioticConcentration is the current normalized dose.
	AntibioticConcentration float64 `json:"antibiotic_concentration"`

	// ErrorMessage carries the human-readable failure reason in StatusError.
	ErrorMessage string `json:"error_message,omitempty"`

	// StartedAt is the wall-clock start reference of the current run.
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Config contains machine configuration.
type Config struct {
	// Send transmits an outbound command; typically connection.Manager.Send.
	// A nil Send drops outbound commands (useful in tests).
	Send func(protocol.Command)

	// ConnOpen reports whether the connection is open. Pause and cancel are
	// no-ops while it returns false. A nil ConnOpen is treated as open.
	ConnOpen func() bool

	// TickInterval is the elapsed-time update period (default: 1s).
	TickInterval time.Duration

	// UpdateBuffer is the state update channel capacity (default: 16).
	UpdateBuffer int
}
