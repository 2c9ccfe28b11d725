package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evosim/evoclient/pkg/logger"
)

// Bucket names.
var (
	bucketSessions    = []byte("sessions")        // session id -> Session JSON
	bucketMeta        = []byte("meta")            // current_session, session_config
	bucketHistory     = []byte("session_history") // seq -> HistoryEvent JSON (append-only)
	bucketCheckpoints = []byte("checkpoints")     // sessionID/checkpointID -> Checkpoint JSON
)

// Meta keys.
var (
	keyCurrentSession = []byte("current_session")
	keySessionConfig  = []byte("session_config")
)

// Store provides durable session persistence.
type Store interface {
	// Create persists a new session.
	//
	// Returns:
	//   - *ValidationError if the record fails shape checks
	//   - ErrSessionExists if the id is taken
	//   - *StorageError if a capacity bound would be exceeded
	Create(session *Session) error

	// Get retrieves a session by id.
	//
	// Returns ErrSessionNotFound if absent.
	Get(id string) (*Session, error)

	// Update applies a partial patch to a session and bumps UpdatedAt.
	//
	// The merge happens inside one transaction: unrelated fields are never
	// touched, and a rejected patch leaves the record unchanged.
	Update(id string, patch Patch) (*Session, error)

	// Delete removes a session along with its checkpoints.
	// Does not error if the session doesn't exist.
	Delete(id string) error

	// List returns sessions matching the filter, sorted by the requested
	// field with a stable tie-break on id.
	List(filter Filter) ([]*Session, error)

	// SetCurrent marks the session as the process-wide current session.
	SetCurrent(id string) error

	// Current returns the current session.
	//
	// Returns ErrNoCurrentSession if none is set.
	Current() (*Session, error)

	// ClearCurrent unsets the current session pointer.
	ClearCurrent() error

	// Config returns the persisted global defaults.
	Config() (GlobalConfig, error)

	// SetConfig replaces the persisted global defaults.
	SetConfig(cfg GlobalConfig) error

	// Cleanup removes sessions whose UpdatedAt is older than maxAge, along
	// with their checkpoints, and returns the number removed.
	Cleanup(maxAge time.Duration) (int, error)

	// PutCheckpoint persists an immutable checkpoint.
	PutCheckpoint(cp *Checkpoint) error

	// GetCheckpoint retrieves one checkpoint.
	//
	// Returns ErrCheckpointNotFound if absent.
	GetCheckpoint(sessionID, checkpointID string) (*Checkpoint, error)

	// ListCheckpoints returns a session's checkpoints, oldest first.
	ListCheckpoints(sessionID string) ([]*Checkpoint, error)

	// AppendHistory appends an event to the session history log.
	AppendHistory(event HistoryEvent) error

	// History returns a session's history events in append order.
	// An empty sessionID returns the full log.
	History(sessionID string) ([]HistoryEvent, error)

	// Close closes the database.
	Close() error
}

// Config contains store configuration.
type Config struct {
	// DBPath is the BoltDB file path.
	DBPath string

	// Timeout is the database open timeout (default: 1 second).
	Timeout time.Duration

	// MaxStorageBytes overrides the persisted capacity bound when > 0.
	MaxStorageBytes int64
}

// boltStore implements Store using BoltDB.
type boltStore struct {
	db     *bolt.DB
	logger logger.Logger
	config Config
}

// New opens (creating if needed) the session database.
//
// Parameters:
//   - cfg: Store configuration
//   - log: Logger instance
//
// Returns:
//   - Configured Store
//   - Error if the database cannot be opened
func New(cfg Config, log logger.Logger) (Store, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	dbPath := expandHome(cfg.DBPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSessions, bucketMeta, bucketHistory, bucketCheckpoints} {
			if _, createErr := tx.CreateBucketIfNotExists(name); createErr != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, createErr)
			}
		}
		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error",
				"error", closeErr)
		}
		return nil, err
	}

	log.Info("session store opened", "db_path", dbPath)

	return &boltStore{
		db:     db,
		logger: log,
		config: cfg,
	}, nil
}

// Create implements Store.Create.
func (s *boltStore) Create(session *Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)

		if sessions.Get([]byte(session.ID)) != nil {
			return fmt.Errorf("%w: %s", ErrSessionExists, session.ID)
		}

		if err := s.checkCapacity(tx, session, nil); err != nil {
			return err
		}

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		if err := sessions.Put([]byte(session.ID), data); err != nil {
			return &StorageError{Op: "create", Reason: "write failed", Err: err}
		}

		s.logger.Info("session created",
			"session", session.ID,
			"name", session.Name)

		return nil
	})
}

// Get implements Store.Get.
func (s *boltStore) Get(id string) (*Session, error) {
	var session *Session

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}

		var sess Session
		if unmarshalErr := json.Unmarshal(data, &sess); unmarshalErr != nil {
			return fmt.Errorf("failed to unmarshal session: %w", unmarshalErr)
		}

		session = &sess
		return nil
	})

	if err != nil {
		return nil, err
	}

	return session, nil
}

// Update implements Store.Update.
func (s *boltStore) Update(id string, patch Patch) (*Session, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var updated *Session

	err := s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)

		data := sessions.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}

		var existing Session
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("failed to unmarshal existing session: %w", err)
		}

		merged := mergePatch(existing, patch)
		merged.UpdatedAt = time.Now()

		if err := validateSession(&merged); err != nil {
			return err
		}

		if err := s.checkCapacity(tx, &merged, data); err != nil {
			return err
		}

		newData, err := json.Marshal(&merged)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		if err := sessions.Put([]byte(id), newData); err != nil {
			return &StorageError{Op: "update", Reason: "write failed", Err: err}
		}

		updated = &merged
		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Debug("session updated", "session", id)
	return updated, nil
}

// Delete implements Store.Delete.
func (s *boltStore) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)

		if sessions.Get([]byte(id)) == nil {
			// Absent sessions delete cleanly.
			return nil
		}

		if err := sessions.Delete([]byte(id)); err != nil {
			return &StorageError{Op: "delete", Reason: "delete failed", Err: err}
		}

		if err := deleteCheckpointsTx(tx, id); err != nil {
			return err
		}

		// Clear the current pointer if it referenced this session.
		meta := tx.Bucket(bucketMeta)
		if string(meta.Get(keyCurrentSession)) == id {
			if err := meta.Delete(keyCurrentSession); err != nil {
				return fmt.Errorf("failed to clear current session: %w", err)
			}
		}

		s.logger.Info("session deleted", "session", id)
		return nil
	})
}

// List implements Store.List.
func (s *boltStore) List(filter Filter) ([]*Session, error) {
	sessions := make([]*Session, 0, 16)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			var sess Session
			if unmarshalErr := json.Unmarshal(v, &sess); unmarshalErr != nil {
				s.logger.Warn("skipping unreadable session",
					"session", string(k),
					"error", unmarshalErr)
				return nil
			}

			if matchesFilter(&sess, filter) {
				sessions = append(sessions, &sess)
			}
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sortSessions(sessions, filter.SortBy, filter.SortDesc)
	return sessions, nil
}

// SetCurrent implements Store.SetCurrent.
func (s *boltStore) SetCurrent(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSessions).Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return tx.Bucket(bucketMeta).Put(keyCurrentSession, []byte(id))
	})
}

// Current implements Store.Current.
func (s *boltStore) Current() (*Session, error) {
	var id string

	if err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCurrentSession)
		if data == nil {
			return ErrNoCurrentSession
		}
		id = string(data)
		return nil
	}); err != nil {
		return nil, err
	}

	return s.Get(id)
}

// ClearCurrent implements Store.ClearCurrent.
func (s *boltStore) ClearCurrent() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Delete(keyCurrentSession)
	})
}

// Config implements Store.Config.
func (s *boltStore) Config() (GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySessionConfig)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &cfg)
	})

	if err != nil {
		return GlobalConfig{}, fmt.Errorf("failed to read session config: %w", err)
	}

	return cfg, nil
}

// SetConfig implements Store.SetConfig.
func (s *boltStore) SetConfig(cfg GlobalConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal session config: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySessionConfig, data)
	})
}

// Cleanup implements Store.Cleanup.
func (s *boltStore) Cleanup(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)

		var stale []string
		if err := sessions.ForEach(func(k, v []byte) error {
			var sess Session
			if unmarshalErr := json.Unmarshal(v, &sess); unmarshalErr != nil {
				// Unreadable records are stale by definition.
				stale = append(stale, string(k))
				return nil
			}
			if sess.UpdatedAt.Before(cutoff) {
				stale = append(stale, string(k))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, id := range stale {
			if err := sessions.Delete([]byte(id)); err != nil {
				return &StorageError{Op: "cleanup", Reason: "delete failed", Err: err}
			}
			if err := deleteCheckpointsTx(tx, id); err != nil {
				return err
			}
			removed++
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.Info("cleanup removed stale sessions", "count", removed)
	}

	return removed, nil
}

// Close implements Store.Close.
func (s *boltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.logger.Info("session store closed")
	return nil
}

// checkCapacity enforces the per-session run bound and the total storage
// bound inside the write transaction. oldData is the record being replaced,
// or nil for a create.
func (s *boltStore) checkCapacity(tx *bolt.Tx, session *Session, oldData []byte) error {
	maxSims := session.Config.MaxSimulations
	if maxSims <= 0 {
		maxSims = DefaultGlobalConfig().MaxSimulations
	}
	if len(session.Simulations) > maxSims {
		return &StorageError{
			Op:     "write",
			Reason: fmt.Sprintf("simulation limit exceeded (%d > %d)", len(session.Simulations), maxSims),
		}
	}

	maxBytes := s.config.MaxStorageBytes
	if maxBytes <= 0 {
		cfg := DefaultGlobalConfig()
		if data := tx.Bucket(bucketMeta).Get(keySessionConfig); data != nil {
			_ = json.Unmarshal(data, &cfg)
		}
		maxBytes = cfg.MaxStorageBytes
	}

	newData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var total int64
	if err := tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
		total += int64(len(v))
		return nil
	}); err != nil {
		return err
	}

	total += int64(len(newData)) - int64(len(oldData))
	if total > maxBytes {
		return &StorageError{
			Op:     "write",
			Reason: fmt.Sprintf("storage limit exceeded (%d > %d bytes)", total, maxBytes),
		}
	}

	return nil
}

// mergePatch applies the set fields of a patch onto a copy of the session.
func mergePatch(existing Session, patch Patch) Session {
	merged := existing

	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Status != nil {
		merged.Status = *patch.Status
	}
	if patch.Priority != nil {
		merged.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		merged.Tags = append([]string(nil), (*patch.Tags)...)
	}
	if patch.Config != nil {
		merged.Config = *patch.Config
	}
	if patch.Simulations != nil {
		merged.Simulations = append([]SimulationReference(nil), (*patch.Simulations)...)
	}

	return merged
}

// validateSession checks record shape before any write.
func validateSession(session *Session) error {
	if session == nil {
		return &ValidationError{Field: "session", Reason: "nil record"}
	}
	if session.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if session.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !session.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", session.Status)}
	}
	if session.Priority == "" {
		session.Priority = PriorityNormal
	}
	if !session.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", session.Priority)}
	}

	seen := make(map[string]bool, len(session.Simulations))
	for i := range session.Simulations {
		ref := &session.Simulations[i]
		if ref.ID == "" {
			return &ValidationError{Field: "simulations", Reason: "simulation id must not be empty"}
		}
		if seen[ref.ID] {
			return &ValidationError{Field: "simulations", Reason: fmt.Sprintf("duplicate simulation id %q", ref.ID)}
		}
		seen[ref.ID] = true
		if ref.Progress < 0 || ref.Progress > 100 {
			return &ValidationError{Field: "simulations", Reason: fmt.Sprintf("progress %v outside [0, 100]", ref.Progress)}
		}
	}

	return nil
}

// validatePatch rejects patches that would obviously corrupt a record.
func validatePatch(patch Patch) error {
	if patch.Name != nil && *patch.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *patch.Status)}
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *patch.Priority)}
	}
	return nil
}

// matchesFilter reports whether a session passes all filter conditions.
func matchesFilter(session *Session, filter Filter) bool {
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, session.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, session.Priority) {
		return false
	}

	for _, tag := range filter.Tags {
		if !containsString(session.Tags, tag) {
			return false
		}
	}

	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(session.Name), needle) &&
			!strings.Contains(strings.ToLower(session.ID), needle) &&
			!anyTagContains(session.Tags, needle) {
			return false
		}
	}

	if !filter.CreatedAfter.IsZero() && session.CreatedAt.Before(filter.CreatedAfter) {
		return false
	}
	if !filter.CreatedBefore.IsZero() && session.CreatedAt.After(filter.CreatedBefore) {
		return false
	}

	return true
}

// sortSessions orders results by the requested field with a stable
// tie-break on id.
func sortSessions(sessions []*Session, field SortField, desc bool) {
	less := func(a, b *Session) bool {
		switch field {
		case SortByName:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		case SortByCreatedAt:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case SortByPriority:
			if pa, pb := priorityRank(a.Priority), priorityRank(b.Priority); pa != pb {
				return pa < pb
			}
		case SortByStatus:
			if a.Status != b.Status {
				return a.Status < b.Status
			}
		default: // SortByUpdatedAt
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		}
		return a.ID < b.ID
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		if desc {
			return less(sessions[j], sessions[i])
		}
		return less(sessions[i], sessions[j])
	})
}

// priorityRank orders priorities low < normal < high.
func priorityRank(p Priority) int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

func containsStatus(set []SessionStatus, s SessionStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(set []Priority, p Priority) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func anyTagContains(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
