package importer

import (
	"context"
	"encoding/json"
	"os"
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

const waitTimeout = 5 * time.Second

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

func startImporter(t *testing.T, st store.Store) (Importer, string) {
	t.Helper()

	dir := t.TempDir()
	imp, err := New(Config{
		WatchDir: dir,
		Debounce: 50 * time.Millisecond,
	}, st, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = imp.Close()
	})

	require.NoError(t, imp.Start(context.Background()))
	return imp, dir
}

// dropSession writes a valid exported session into the drop directory.
func dropSession(t *testing.T, dir, name string) *store.Session {
	t.Helper()

	session := store.NewSession(name)
	session.Simulations = []store.SimulationReference{{
		ID: "run-1",
		Parameters: protocol.Parameters{
			InitialPopulationSize:   500,
			NumGenerations:          25,
			MutationRate:            0.01,
			AntibioticConcentration: 0.3,
		},
		Status:   simulation.StatusCompleted,
		Progress: 100,
	}}

	data, err := json.Marshal(session)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), data, 0644))

	return session
}

func waitForEvent(t *testing.T, imp Importer) Event {
	t.Helper()

	select {
	case event := <-imp.Events():
		return event
	case err := <-imp.Errors():
		t.Fatalf("unexpected import error: %v", err)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for import event")
	}
	return Event{}
}

func waitForError(t *testing.T, imp Importer) error {
	t.Helper()

	select {
	case err := <-imp.Errors():
		return err
	case event := <-imp.Events():
		t.Fatalf("unexpected import event: %+v", event)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for import error")
	}
	return nil
}

func TestNewRequiresWatchDir(t *testing.T) {
	_, err := New(Config{}, newTestStore(t), logger.Noop())
	assert.ErrorIs(t, err, ErrNoWatchDir)
}

func TestImportDroppedFile(t *testing.T) {
	st := newTestStore(t)
	imp, dir := startImporter(t, st)

	session := dropSession(t, dir, "dropped")

	event := waitForEvent(t, imp)
	assert.Equal(t, session.ID, event.SessionID)
	assert.Equal(t, "dropped", event.SessionName)

	got, err := st.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "dropped", got.Name)

	// Source file archived to done/.
	_, err = os.Stat(filepath.Join(dir, "dropped.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, doneDir, "dropped.json"))
	assert.NoError(t, err)

	history, err := st.History(session.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, store.EventSessionImported, history[0].Type)
}

func TestImportInvalidFileGoesToFailed(t *testing.T) {
	st := newTestStore(t)
	imp, dir := startImporter(t, st)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))

	err := waitForError(t, imp)
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, failedDir, "broken.json"))
	assert.NoError(t, statErr)

	sessions, err := st.List(store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestImportRejectsDuplicateSession(t *testing.T) {
	st := newTestStore(t)
	imp, dir := startImporter(t, st)

	session := dropSession(t, dir, "first")
	waitForEvent(t, imp)

	// Same session id dropped again.
	data, err := json.Marshal(session)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "again.json"), data, 0644))

	importErr := waitForError(t, imp)
	assert.ErrorIs(t, importErr, store.ErrSessionExists)
}

func TestIgnoresOtherFiles(t *testing.T) {
	st := newTestStore(t)
	imp, dir := startImporter(t, st)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))

	select {
	case event := <-imp.Events():
		t.Fatalf("unexpected event for non-json file: %+v", event)
	case err := <-imp.Errors():
		t.Fatalf("unexpected error for non-json file: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	sessions, err := st.List(store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSweepsExistingFiles(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()

	session := dropSession(t, dir, "preexisting")

	imp, err := New(Config{
		WatchDir: dir,
		Debounce: 50 * time.Millisecond,
	}, st, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = imp.Close()
	})

	require.NoError(t, imp.Start(context.Background()))

	event := waitForEvent(t, imp)
	assert.Equal(t, session.ID, event.SessionID)
}

func TestDebounceCoalescesWrites(t *testing.T) {
	st := newTestStore(t)
	imp, dir := startImporter(t, st)

	session := dropSession(t, dir, "bursty")
	// Rewrite the same file a few times inside the debounce window.
	data, err := json.Marshal(session)
	require.NoError(t, err)
	for n := 0; n < 3; n++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bursty.json"), data, 0644))
		time.Sleep(10 * time.Millisecond)
	}

	waitForEvent(t, imp)

	// No second import follows.
	select {
	case event := <-imp.Events():
		t.Fatalf("file imported twice: %+v", event)
	case err := <-imp.Errors():
		t.Fatalf("unexpected error after coalesced import: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStartTwice(t *testing.T) {
	st := newTestStore(t)
	imp, _ := startImporter(t, st)

	assert.ErrorIs(t, imp.Start(context.Background()), ErrAlreadyStarted)
}

func TestCloseIdempotent(t *testing.T) {
	st := newTestStore(t)
	imp, _ := startImporter(t, st)

	require.NoError(t, imp.Close())
	assert.NoError(t, imp.Close())
	assert.ErrorIs(t, imp.Start(context.Background()), ErrImporterClosed)
}
