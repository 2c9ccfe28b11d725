package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// SessionEventType identifies an entry in the session history log.
type SessionEventType string

// Session lifecycle events.
const (
	EventSessionCreated   SessionEventType = "session_created"
	EventSessionActivated SessionEventType = "session_activated"
	EventSessionPaused    SessionEventType = "session_paused"
	EventSessionResumed   SessionEventType = "session_resumed"
	EventSessionCompleted SessionEventType = "session_completed"
	EventSessionCancelled SessionEventType = "session_cancelled"
	EventSessionRecovered SessionEventType = "session_recovered"
	EventSessionExported  SessionEventType = "session_exported"
	EventSessionImported  SessionEventType = "session_imported"
)

// Simulation run events within a session.
const (
	EventSimulationAdded     SessionEventType = "simulation_added"
	EventSimulationUpdated   SessionEventType = "simulation_updated"
	EventSimulationRemoved   SessionEventType = "simulation_removed"
	EventSimulationStarted   SessionEventType = "simulation_started"
	EventSimulationCompleted SessionEventType = "simulation_completed"
	EventSimulationFailed    SessionEventType = "simulation_failed"
	EventCheckpointCreated   SessionEventType = "checkpoint_created"
)

// HistoryEvent is one append-only entry in the session history log.
type HistoryEvent struct {
	// Sequence is the log position, assigned on append.
	Sequence uint64 `json:"sequence"`

	// SessionID identifies the session this event belongs to.
	SessionID string `json:"session_id"`

	// Type is the event kind.
	Type SessionEventType `json:"type"`

	// SimulationID is set for simulation-scoped events.
	SimulationID string `json:"simulation_id,omitempty"`

	// Detail carries free-form context (error text, export path, and so on).
	Detail string `json:"detail,omitempty"`

	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// AppendHistory implements Store.AppendHistory.
func (s *boltStore) AppendHistory(event HistoryEvent) error {
	if event.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if event.Type == "" {
		return &ValidationError{Field: "type", Reason: "must not be empty"}
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		history := tx.Bucket(bucketHistory)

		seq, err := history.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate history sequence: %w", err)
		}
		event.Sequence = seq

		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal history event: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		if err := history.Put(key, data); err != nil {
			return &StorageError{Op: "history", Reason: "append failed", Err: err}
		}

		return nil
	})
}

// History implements Store.History.
func (s *boltStore) History(sessionID string) ([]HistoryEvent, error) {
	events := make([]HistoryEvent, 0, 32)

	err := s.db.View(func(tx *bolt.Tx) error {
		// Keys are big-endian sequence numbers, so iteration order
		// is append order.
		return tx.Bucket(bucketHistory).ForEach(func(k, v []byte) error {
			var event HistoryEvent
			if unmarshalErr := json.Unmarshal(v, &event); unmarshalErr != nil {
				s.logger.Warn("skipping unreadable history event",
					"sequence", binary.BigEndian.Uint64(k),
					"error", unmarshalErr)
				return nil
			}

			if sessionID == "" || event.SessionID == sessionID {
				events = append(events, event)
			}
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	return events, nil
}
