package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/evosim/evoclient/pkg/export"
	"github.com/evosim/evoclient/pkg/logger"
	"github.com/evosim/evoclient/pkg/store"
)

const (
	doneDir   = "done"
	failedDir = "failed"
)

// importer implements the Importer interface using fsnotify.
type importer struct {
	fsw    *fsnotify.Watcher
	store  store.Store
	logger logger.Logger
	config Config

	events chan Event
	errors chan error

	mu       sync.RWMutex
	running  bool
	closed   bool
	stopChan chan struct{}

	// Debouncing state.
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex
}

// New creates a drop-directory importer.
//
// Parameters:
//   - cfg: Importer configuration
//   - st: Store imported sessions are created in
//   - log: Logger instance
//
// Returns:
//   - Configured Importer
//   - Error if the underlying watcher cannot be created
func New(cfg Config, st store.Store, log logger.Logger) (Importer, error) {
	if cfg.WatchDir == "" {
		return nil, ErrNoWatchDir
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.EventBuffer == 0 {
		cfg.EventBuffer = 16
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &importer{
		fsw:            fsw,
		store:          st,
		logger:         log,
		config:         cfg,
		events:         make(chan Event, cfg.EventBuffer),
		errors:         make(chan error, cfg.EventBuffer),
		stopChan:       make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}, nil
}

// Start implements Importer.Start.
func (i *importer) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrImporterClosed
	}
	if i.running {
		i.mu.Unlock()
		return ErrAlreadyStarted
	}
	i.running = true
	i.mu.Unlock()

	for _, sub := range []string{"", doneDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(i.config.WatchDir, sub), 0755); err != nil {
			return fmt.Errorf("failed to prepare drop directory: %w", err)
		}
	}

	if err := i.fsw.Add(i.config.WatchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", i.config.WatchDir, err)
	}

	i.logger.Info("import watcher started",
		"dir", i.config.WatchDir,
		"debounce", i.config.Debounce)

	go i.processEvents(ctx)

	// Pick up files dropped before the watch began.
	go i.sweepExisting()

	return nil
}

// Events implements Importer.Events.
func (i *importer) Events() <-chan Event {
	return i.events
}

// Errors implements Importer.Errors.
func (i *importer) Errors() <-chan error {
	return i.errors
}

// Close implements Importer.Close.
func (i *importer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	if i.running {
		close(i.stopChan)
		i.running = false
	}

	i.debounceMu.Lock()
	for _, timer := range i.debounceTimers {
		timer.Stop()
	}
	i.debounceTimers = nil
	i.debounceMu.Unlock()

	close(i.events)
	close(i.errors)

	if err := i.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	i.logger.Info("import watcher closed")
	return nil
}

// processEvents handles events from fsnotify.
func (i *importer) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			i.logger.Info("import processing stopped", "reason", "context cancelled")
			return

		case <-i.stopChan:
			i.logger.Info("import processing stopped", "reason", "stop signal")
			return

		case event, ok := <-i.fsw.Events:
			if !ok {
				return
			}
			i.handleEvent(event)

		case err, ok := <-i.fsw.Errors:
			if !ok {
				return
			}
			i.logger.Error("fsnotify error", "error", err)
			i.sendError(err)
		}
	}
}

// sweepExisting imports files that were already in the drop directory.
func (i *importer) sweepExisting() {
	entries, err := os.ReadDir(i.config.WatchDir)
	if err != nil {
		i.logger.Warn("failed to scan drop directory", "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		i.debounce(filepath.Join(i.config.WatchDir, entry.Name()))
	}
}

// handleEvent filters and debounces one fsnotify event.
func (i *importer) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".json") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	i.debounce(event.Name)
}

// debounce delays the import until the file has been quiet for the
// configured interval. Repeated writes reset the timer.
func (i *importer) debounce(path string) {
	i.debounceMu.Lock()
	defer i.debounceMu.Unlock()

	if i.debounceTimers == nil {
		return
	}

	if timer, exists := i.debounceTimers[path]; exists {
		timer.Stop()
	}

	i.debounceTimers[path] = time.AfterFunc(i.config.Debounce, func() {
		i.debounceMu.Lock()
		delete(i.debounceTimers, path)
		i.debounceMu.Unlock()

		i.importFile(path)
	})
}

// importFile runs one import attempt and archives the source file.
func (i *importer) importFile(path string) {
	i.mu.RLock()
	if i.closed {
		i.mu.RUnlock()
		return
	}
	i.mu.RUnlock()

	session, err := export.ImportFile(path)
	if err == nil {
		err = i.store.Create(session)
	}
	if err == nil {
		err = i.store.AppendHistory(store.HistoryEvent{
			SessionID: session.ID,
			Type:      store.EventSessionImported,
			Detail:    filepath.Base(path),
		})
	}

	if err != nil {
		i.logger.Warn("import failed",
			"path", path,
			"error", err)
		i.archive(path, failedDir)
		i.sendError(fmt.Errorf("import of %s failed: %w", filepath.Base(path), err))
		return
	}

	i.logger.Info("session imported",
		"path", path,
		"session", session.ID,
		"name", session.Name)

	i.archive(path, doneDir)

	i.sendEvent(Event{
		Path:        path,
		SessionID:   session.ID,
		SessionName: session.Name,
		Timestamp:   time.Now(),
	})
}

// archive moves a processed file out of the drop directory. Name clashes
// get a timestamp suffix so nothing is overwritten.
func (i *importer) archive(path, sub string) {
	dest := filepath.Join(i.config.WatchDir, sub, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		dest = fmt.Sprintf("%s.%d", dest, time.Now().UnixNano())
	}

	if err := os.Rename(path, dest); err != nil {
		i.logger.Warn("failed to archive import file",
			"path", path,
			"dest", dest,
			"error", err)
	}
}

func (i *importer) sendEvent(event Event) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return
	}

	select {
	case i.events <- event:
	default:
		i.logger.Warn("event channel full, dropping import event", "path", event.Path)
	}
}

func (i *importer) sendError(err error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return
	}

	select {
	case i.errors <- err:
	default:
		i.logger.Warn("error channel full, dropping import error")
	}
}
