// Package protocol defines the JSON wire protocol spoken with the
// simulation backend over the streaming connection.
//
// Client-to-server messages are commands (start, pause, cancel); server-to-
// client messages are events (progress updates, completion, errors). The
// codec is tolerant: unrecognized event types are surfaced for the caller to
// log and ignore, and malformed payloads produce a ParseError rather than
// terminating the stream.
package protocol

// CommandType identifies a client-to-server message.
type CommandType string

// Client-to-server command types.
const (
	CommandStartSimulation  CommandType = "start_simulation"
	CommandPauseSimulation  CommandType = "pause_simulation"
	CommandCancelSimulation CommandType = "cancel_simulation"
)

// Parameters describes one simulation run. The record is produced by the
// parameter-form collaborator and treated as validated input here; Validate
// re-checks ranges before the record crosses the wire or enters the store.
type Parameters struct {
	// InitialPopulationSize is the starting bacterial population.
	InitialPopulationSize int `json:"initial_population_size"`

	// NumGenerations is the number of generations to simulate.
	NumGenerations int `json:"num_generations"`

	// MutationRate is the per-generation mutation probability.
	MutationRate float64 `json:"mutation_rate"`

	// AntibioticConcentration is the normalized antibiotic dose.
	AntibioticConcentration float64 `json:"antibiotic_concentration"`
}

// Validate checks parameter ranges.
func (p Parameters) Validate() error {
	if p.InitialPopulationSize <= 0 {
		return ErrInvalidPopulation
	}
	if p.NumGenerations <= 0 {
		return ErrInvalidGenerations
	}
	if p.MutationRate < 0 || p.MutationRate > 1 {
		return ErrInvalidMutationRate
	}
	if p.AntibioticConcentration < 0 || p.AntibioticConcentration > 1 {
		return ErrInvalidConcentration
	}
	return nil
}

// Command is a client-to-server message.
type Command struct {
	Type CommandType `json:"type"`

	// Parameters is set only for start_simulation.
	Parameters *Parameters `json:"parameters,omitempty"`
}

// StartCommand builds a start_simulation command.
func StartCommand(params Parameters) Command {
	return Command{Type: CommandStartSimulation, Parameters: &params}
}

// PauseCommand builds a pause_simulation command.
func PauseCommand() Command {
	return Command{Type: CommandPauseSimulation}
}

// CancelCommand builds a cancel_simulation command.
func CancelCommand() Command {
	return Command{Type: CommandCancelSimulation}
}

// EventType identifies a server-to-client message.
type EventType string

// Server-to-client event types.
const (
	EventSimulationUpdate   EventType = "simulation_update"
	EventSimulationComplete EventType = "simulation_complete"
	EventError              EventType = "error"
)

// UpdateData carries the per-generation payload of a simulation_update event.
type UpdateData struct {
	// Generation is the generation number this update describes.
	Generation int `json:"generation"`

	// Progress is the run progress in percent (0-100).
	Progress float64 `json:"progress"`

	// PopulationSize is the current bacterial population.
	PopulationSize int `json:"population_size"`

	// ResistantCount is the number of resistant bacteria.
	ResistantCount int `json:"resistant_count"`

	// AntibioticConcentration is the current normalized dose.
	AntibioticConcentration float64 `json:"antibiotic_concentration"`
}

// Event is a decoded server-to-client message.
type Event struct {
	// Type is the event type as sent by the server. It may be a value
	// outside the known set; callers log and ignore those.
	Type EventType

	// Update is set for simulation_update events.
	Update *UpdateData

	// Message is set for error events.
	Message string
}

// Known reports whether the event type belongs to the known protocol set.
// Unknown types are tolerated for forward compatibility.
func (e *Event) Known() bool {
	switch e.Type {
	case EventSimulationUpdate, EventSimulationComplete, EventError:
		return true
	default:
		return false
	}
}
