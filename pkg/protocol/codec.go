package protocol

import (
	"encoding/json"
	"fmt"
)

// envelope is the raw wire shape of a server-to-client message.
type envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// EncodeCommand serializes a client command for the wire.
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd.Type == CommandStartSimulation {
		if cmd.Parameters == nil {
			return nil, fmt.Errorf("start_simulation requires parameters")
		}
		if err := cmd.Parameters.Validate(); err != nil {
			return nil, fmt.Errorf("invalid parameters: %w", err)
		}
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	return data, nil
}

// DecodeEvent parses an inbound frame into an Event.
//
// Returns a *ParseError for malformed payloads; such frames are dropped by
// the caller without affecting the connection. Events with an unrecognized
// type decode successfully with Known() returning false, so callers can log
// and ignore them (forward compatibility).
func DecodeEvent(raw []byte) (*Event, error) {
	if len(raw) == 0 {
		return nil, newParseError(raw, ErrEmptyPayload)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, newParseError(raw, err)
	}

	if env.Type == "" {
		return nil, newParseError(raw, ErrMissingType)
	}

	event := &Event{Type: EventType(env.Type)}

	switch event.Type {
	case EventSimulationUpdate:
		if len(env.Data) == 0 {
			return nil, newParseError(raw, fmt.Errorf("simulation_update without data"))
		}
		var update UpdateData
		if err := json.Unmarshal(env.Data, &update); err != nil {
			return nil, newParseError(raw, err)
		}
		event.Update = &update

	case EventError:
		event.Message = env.Message

	case EventSimulationComplete:
		// No payload.

	default:
		// Unknown type: decoded as-is, caller decides.
	}

	return event, nil
}
