package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// checkpointKey builds the composite bucket key sessionID/checkpointID.
// Session ids are UUIDs, so the separator never collides.
func checkpointKey(sessionID, checkpointID string) []byte {
	return []byte(sessionID + "/" + checkpointID)
}

// checkpointPrefix is the key prefix covering one session's checkpoints.
func checkpointPrefix(sessionID string) []byte {
	return []byte(sessionID + "/")
}

// PutCheckpoint implements Store.PutCheckpoint.
func (s *boltStore) PutCheckpoint(cp *Checkpoint) error {
	if cp == nil {
		return &ValidationError{Field: "checkpoint", Reason: "nil record"}
	}
	if cp.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if cp.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}

	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSessions).Get([]byte(cp.SessionID)) == nil {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, cp.SessionID)
		}

		key := checkpointKey(cp.SessionID, cp.ID)
		if putErr := tx.Bucket(bucketCheckpoints).Put(key, data); putErr != nil {
			return &StorageError{Op: "checkpoint", Reason: "write failed", Err: putErr}
		}
		return nil
	})

	if err != nil {
		return err
	}

	s.logger.Info("checkpoint saved",
		"session", cp.SessionID,
		"checkpoint", cp.ID)

	return nil
}

// GetCheckpoint implements Store.GetCheckpoint.
func (s *boltStore) GetCheckpoint(sessionID, checkpointID string) (*Checkpoint, error) {
	var cp *Checkpoint

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCheckpoints).Get(checkpointKey(sessionID, checkpointID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, checkpointID)
		}

		var record Checkpoint
		if unmarshalErr := json.Unmarshal(data, &record); unmarshalErr != nil {
			return fmt.Errorf("failed to unmarshal checkpoint: %w", unmarshalErr)
		}

		cp = &record
		return nil
	})

	if err != nil {
		return nil, err
	}

	return cp, nil
}

// ListCheckpoints implements Store.ListCheckpoints.
func (s *boltStore) ListCheckpoints(sessionID string) ([]*Checkpoint, error) {
	checkpoints := make([]*Checkpoint, 0, 8)
	prefix := checkpointPrefix(sessionID)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCheckpoints).Cursor()

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record Checkpoint
			if unmarshalErr := json.Unmarshal(v, &record); unmarshalErr != nil {
				s.logger.Warn("skipping unreadable checkpoint",
					"key", string(k),
					"error", unmarshalErr)
				continue
			}
			checkpoints = append(checkpoints, &record)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	// Key order is lexical on checkpoint id; present oldest first instead.
	sortCheckpoints(checkpoints)
	return checkpoints, nil
}

// sortCheckpoints orders checkpoints by creation time with an id tie-break.
func sortCheckpoints(checkpoints []*Checkpoint) {
	sort.SliceStable(checkpoints, func(i, j int) bool {
		a, b := checkpoints[i], checkpoints[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// deleteCheckpointsTx removes all checkpoints for a session inside an
// existing write transaction.
func deleteCheckpointsTx(tx *bolt.Tx, sessionID string) error {
	c := tx.Bucket(bucketCheckpoints).Cursor()
	prefix := checkpointPrefix(sessionID)

	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	for _, k := range keys {
		if err := tx.Bucket(bucketCheckpoints).Delete(k); err != nil {
			return &StorageError{Op: "delete", Reason: "checkpoint delete failed", Err: err}
		}
	}

	return nil
}
