package recovery

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evosim/evoclient/pkg/logger"
	"github.com/evosim/evoclient/pkg/protocol"
	"github.com/evosim/evoclient/pkg/simulation"
	"github.com/evosim/evoclient/pkg/store"
)

// fakeRegistry reports liveness from a fixed set.
type fakeRegistry struct {
	live map[string]bool
}

func (r *fakeRegistry) IsLive(sessionID string) bool {
	return r.live[sessionID]
}

// failingStore wraps a real store and fails Update for one session id.
type failingStore struct {
	store.Store
	failID string
}

func (s *failingStore) Update(id string, patch store.Patch) (*store.Session, error) {
	if id == s.failID {
		return nil, errors.New("disk full")
	}
	return s.Store.Update(id, patch)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := store.New(store.Config{
		DBPath: filepath.Join(t.TempDir(), "sessions.db"),
	}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	return st
}

func newTestEngine(t *testing.T, st store.Store, live ...string) Engine {
	t.Helper()

	reg := &fakeRegistry{live: make(map[string]bool)}
	for _, id := range live {
		reg.live[id] = true
	}

	return New(st, reg, Config{}, logger.Noop())
}

func testParams() protocol.Parameters {
	return protocol.Parameters{
		InitialPopulationSize:   500,
		NumGenerations:          25,
		MutationRate:            0.01,
		AntibioticConcentration: 0.3,
	}
}

// createSession persists a session with one in-flight run. withState
// controls whether the run carries a restorable snapshot.
func createSession(t *testing.T, st store.Store, name string, status simulation.Status, withState bool) *store.Session {
	t.Helper()

	session := store.NewSession(name)
	ref := store.SimulationReference{
		ID:         "run-1",
		Parameters: testParams(),
		Status:     status,
		Progress:   40,
	}
	if withState {
		ref.State = &simulation.State{
			Status:            status,
			CurrentGeneration: 10,
			TotalGenerations:  25,
			Progress:          40,
		}
	}
	session.Simulations = []store.SimulationReference{ref}

	require.NoError(t, st.Create(session))
	return session
}

func TestDataIntegrity(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	maxAge := 720 * time.Hour

	base := func(withState bool, age time.Duration) *store.Session {
		s := store.NewSession("scored")
		s.UpdatedAt = now.Add(-age)
		ref := store.SimulationReference{ID: "run-1", Status: simulation.StatusRunning}
		if withState {
			ref.State = &simulation.State{Status: simulation.StatusRunning}
		}
		s.Simulations = []store.SimulationReference{ref}
		return s
	}

	t.Run("full marks", func(t *testing.T) {
		got := dataIntegrity(base(true, 0), nil, now, maxAge)
		assert.InDelta(t, 1.0, got, 0.001)
	})

	t.Run("missing snapshot drops snapshot component", func(t *testing.T) {
		got := dataIntegrity(base(false, 0), nil, now, maxAge)
		assert.InDelta(t, 0.6, got, 0.001)
	})

	t.Run("recency decays linearly", func(t *testing.T) {
		got := dataIntegrity(base(true, maxAge/2), nil, now, maxAge)
		assert.InDelta(t, 0.9, got, 0.001)
	})

	t.Run("ancient session loses recency", func(t *testing.T) {
		got := dataIntegrity(base(true, 2*maxAge), nil, now, maxAge)
		assert.InDelta(t, 0.8, got, 0.001)
	})

	t.Run("inconsistent checkpoint drops checkpoint component", func(t *testing.T) {
		session := base(true, 0)
		bad := &store.Checkpoint{
			ID:        "cp-1",
			SessionID: session.ID,
			Session:   session.Clone(),
			States: map[string]simulation.State{
				"ghost": {},
			},
		}
		got := dataIntegrity(session, []*store.Checkpoint{bad}, now, maxAge)
		assert.InDelta(t, 0.6, got, 0.001)
	})

	t.Run("idle session scores full snapshot marks", func(t *testing.T) {
		s := store.NewSession("idle")
		s.UpdatedAt = now
		got := dataIntegrity(s, nil, now, maxAge)
		assert.InDelta(t, 1.0, got, 0.001)
	})
}

func TestCheckForInterrupted(t *testing.T) {
	st := newTestStore(t)

	crashed := createSession(t, st, "crashed", simulation.StatusRunning, true)
	live := createSession(t, st, "live", simulation.StatusRunning, true)

	done := store.NewSession("done")
	done.Status = store.SessionCompleted
	require.NoError(t, st.Create(done))

	eng := newTestEngine(t, st, live.ID)

	interrupted, err := eng.CheckForInterrupted()
	require.NoError(t, err)
	require.Len(t, interrupted, 1)

	is := interrupted[0]
	assert.Equal(t, crashed.ID, is.SessionID)
	assert.Equal(t, ReasonAppCrash, is.Reason)
	assert.Equal(t, []string{"run-1"}, is.ActiveSimulations)
	assert.Greater(t, is.DataIntegrity, 0.9)
}

func TestInterruptReasonClassification(t *testing.T) {
	withError := store.NewSession("net")
	withError.Simulations = []store.SimulationReference{{
		ID:     "run-1",
		Status: simulation.StatusError,
		State:  &simulation.State{Status: simulation.StatusError, ErrorMessage: "connection reset"},
	}}
	assert.Equal(t, ReasonNetworkError, classifyReason(withError))

	paused := store.NewSession("idle")
	paused.Simulations = []store.SimulationReference{{ID: "run-1", Status: simulation.StatusPaused}}
	assert.Equal(t, ReasonUnknown, classifyReason(paused))
}

func TestSuggestionBands(t *testing.T) {
	st := newTestStore(t)

	high := createSession(t, st, "high", simulation.StatusRunning, true)
	mid := createSession(t, st, "mid", simulation.StatusRunning, false)

	low := createSession(t, st, "low", simulation.StatusRunning, false)
	require.NoError(t, st.PutCheckpoint(&store.Checkpoint{
		ID:        "cp-bad",
		SessionID: low.ID,
		Session:   low.Clone(),
		States: map[string]simulation.State{
			"ghost": {},
		},
	}))

	eng := newTestEngine(t, st)

	suggestions, err := eng.Suggestions()
	require.NoError(t, err)
	require.Len(t, suggestions, 3)

	actions := make(map[string]SuggestedAction, 3)
	for _, s := range suggestions {
		actions[s.Session.SessionID] = s.Action
	}

	assert.Equal(t, ActionAutoRecover, actions[high.ID])
	assert.Equal(t, ActionManualReview, actions[mid.ID])
	assert.Equal(t, ActionDiscard, actions[low.ID])
}

func TestRecoverSessionFromState(t *testing.T) {
	st := newTestStore(t)
	session := createSession(t, st, "crashed", simulation.StatusRunning, true)
	eng := newTestEngine(t, st)

	result := eng.RecoverSession(session.ID, DefaultOptions())

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Metadata.ItemsRecovered)
	assert.Zero(t, result.Metadata.ItemsLost)
	assert.Greater(t, result.Metadata.DataIntegrity, 0.9)

	// The interrupted run comes back paused, ready to resume.
	ref := result.Session.Simulation("run-1")
	require.NotNil(t, ref)
	assert.Equal(t, simulation.StatusPaused, ref.Status)
	assert.Equal(t, simulation.StatusPaused, ref.State.Status)

	// Backup checkpoint was taken before mutation.
	cps, err := st.ListCheckpoints(session.ID)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, simulation.StatusRunning, cps[0].Session.Simulation("run-1").Status)

	history, err := st.History(session.ID)
	require.NoError(t, err)
	var types []store.SessionEventType
	for _, e := range history {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, store.EventCheckpointCreated)
	assert.Contains(t, types, store.EventSessionRecovered)
}

func TestRecoverSessionMissingState(t *testing.T) {
	st := newTestStore(t)
	session := createSession(t, st, "bare", simulation.StatusRunning, false)
	eng := newTestEngine(t, st)

	result := eng.RecoverSession(session.ID, Options{Type: RecoverFromState, PreserveSimulations: true})

	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Metadata.ItemsLost)
	assert.NotEmpty(t, result.Warnings)
	assert.Equal(t, simulation.StatusError, result.Session.Simulation("run-1").Status)
}

func TestRecoverSessionDiscardsRuns(t *testing.T) {
	st := newTestStore(t)
	session := createSession(t, st, "discarding", simulation.StatusRunning, true)
	eng := newTestEngine(t, st)

	result := eng.RecoverSession(session.ID, Options{Type: RecoverFromState, PreserveSimulations: false})

	require.NoError(t, result.Err)
	assert.Equal(t, simulation.StatusCancelled, result.Session.Simulation("run-1").Status)
}

func TestRecoverSessionNotFound(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st)

	result := eng.RecoverSession("missing", DefaultOptions())

	assert.False(t, result.Success)
	var rErr *RecoveryError
	require.ErrorAs(t, result.Err, &rErr)
	assert.Equal(t, "load", rErr.Stage)
	assert.ErrorIs(t, result.Err, store.ErrSessionNotFound)
}

func TestRecoverSessionLowIntegrityContinues(t *testing.T) {
	st := newTestStore(t)
	session := createSession(t, st, "shaky", simulation.StatusRunning, false)
	eng := newTestEngine(t, st)

	result := eng.RecoverSession(session.ID, DefaultOptions())

	// Low integrity is an issue, not an abort.
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	require.NotEmpty(t, result.Issues)
	assert.Equal(t, SeverityWarning, result.Issues[0].Severity)
}

func TestAutoRecover(t *testing.T) {
	st := newTestStore(t)
	session := createSession(t, st, "auto", simulation.StatusRunning, true)
	eng := newTestEngine(t, st)

	results := eng.AutoRecover()

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, session.ID, results[0].SessionID)

	got, err := st.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionActive, got.Status)
}

func TestAutoRecoverSkipsLowIntegrity(t *testing.T) {
	st := newTestStore(t)
	createSession(t, st, "mid", simulation.StatusRunning, false)
	eng := newTestEngine(t, st)

	results := eng.AutoRecover()
	assert.Empty(t, results)
}

func TestAutoRecoverIsolation(t *testing.T) {
	st := newTestStore(t)

	healthy := createSession(t, st, "healthy", simulation.StatusRunning, true)
	doomed := createSession(t, st, "doomed", simulation.StatusRunning, true)

	reg := &fakeRegistry{live: map[string]bool{}}
	eng := New(&failingStore{Store: st, failID: doomed.ID}, reg, Config{}, logger.Noop())

	results := eng.AutoRecover()
	require.Len(t, results, 2)

	byID := make(map[string]RecoveryResult, 2)
	for _, r := range results {
		byID[r.SessionID] = r
	}

	// One failure never aborts the sweep.
	assert.True(t, byID[healthy.ID].Success)
	assert.False(t, byID[doomed.ID].Success)
	assert.Error(t, byID[doomed.ID].Err)
}

func TestCheckpointRoundTrip(t *testing.T) {
	st := newTestStore(t)
	session := createSession(t, st, "snapshotted", simulation.StatusRunning, true)
	eng := newTestEngine(t, st)

	cp, err := eng.CreateCheckpoint(session.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, float64(40), cp.States["run-1"].Progress)

	// Drift the live record away from the snapshot.
	status := store.SessionError
	_, err = st.Update(session.ID, store.Patch{Status: &status})
	require.NoError(t, err)

	result := eng.RestoreFromCheckpoint(session.ID, cp.ID)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, store.SessionActive, result.Session.Status)

	// Snapshot of a running run restores paused.
	ref := result.Session.Simulation("run-1")
	require.NotNil(t, ref)
	assert.Equal(t, simulation.StatusPaused, ref.Status)
	assert.Equal(t, float64(40), ref.State.Progress)
}

func TestRestoreFromMissingCheckpoint(t *testing.T) {
	st := newTestStore(t)
	session := createSession(t, st, "plain", simulation.StatusRunning, true)
	eng := newTestEngine(t, st)

	result := eng.RestoreFromCheckpoint(session.ID, "missing")
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, store.ErrCheckpointNotFound)
}
