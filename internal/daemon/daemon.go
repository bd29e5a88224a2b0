// Package daemon provides the long-running sync process for a device.
//
// The daemon:
// 1. Watches the local store directory for snapshot changes
// 2. Listens to the backend's realtime change feed
// 3. Collapses bursts of triggers into one debounced reconciliation
// 4. Runs a periodic safety-net sync and handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/careloop/careloop/internal/feed"
	tasksync "github.com/careloop/careloop/internal/sync"
	"github.com/fsnotify/fsnotify"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long the trigger queue must stay quiet
	// before a reconciliation runs. This batches rapid updates together.
	DebounceInterval time.Duration

	// FullSyncInterval is how often to reconcile regardless of
	// triggers, repairing anything missed while the feed was down.
	FullSyncInterval time.Duration

	// Feed configures the realtime change-feed subscription. Leave
	// BaseURL empty to run without a feed (file watching and the
	// periodic sync still operate).
	Feed feed.Config

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		FullSyncInterval: 5 * time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates store watching, feed events, and reconciliation.
type Daemon struct {
	engine   *tasksync.Engine
	userID   string
	storeDir string
	config   *Config

	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   bool
	pendingAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon with default configuration.
//
// The daemon requires:
//   - engine: the reconciliation engine to run
//   - userID: the signed-in user whose records are reconciled
//   - storeDir: directory backing the local key-value store
//
// Use Start() to begin watching and syncing.
func New(engine *tasksync.Engine, userID, storeDir string) (*Daemon, error) {
	return NewWithConfig(engine, userID, storeDir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(engine *tasksync.Engine, userID, storeDir string, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	if storeDir == "" {
		return nil, fmt.Errorf("storeDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:   engine,
		userID:   userID,
		storeDir: storeDir,
		config:   config,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Perform an initial reconciliation
// 2. Watch the store directory and the change feed for triggers
// 3. Run debounced reconciliations as triggers arrive
//
// This blocks until ctx is cancelled or startup fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.runSync(); err != nil {
		d.config.Logger.Printf("Warning: initial sync failed: %v", err)
	}

	if err := d.watcher.Add(d.storeDir); err != nil {
		return fmt.Errorf("failed to watch store directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.storeDir)

	var unsubscribe func()
	if d.config.Feed.BaseURL != "" {
		var err error
		unsubscribe, err = feed.Subscribe(d.ctx, d.config.Feed, func(ev feed.Event) {
			if ev.UserID != d.userID {
				return
			}
			d.config.Logger.Printf("Feed event: %s %s", ev.Type, ev.TaskID)
			d.queueSync()
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to change feed: %w", err)
		}
	}

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processPending()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.stop(unsubscribe)
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	return d.stop(nil)
}

func (d *Daemon) stop(unsubscribe func()) error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchFileEvents monitors filesystem events and queues sync triggers.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			// Only the task snapshot matters; atomic-write temp files
			// and the sync-time marker are noise.
			if !isSnapshotFile(event.Name) {
				continue
			}

			d.config.Logger.Printf("Store change: %s %s", event.Op, event.Name)
			d.queueSync()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// isSnapshotFile reports whether path is the task snapshot key file.
func isSnapshotFile(path string) bool {
	name := filepath.Base(path)
	return name == "tasks" && !strings.HasSuffix(path, ".tmp")
}

// queueSync marks a reconciliation as pending, restarting the
// debounce window.
func (d *Daemon) queueSync() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	d.pending = true
	d.pendingAt = time.Now()
}

// processPending runs a reconciliation once the trigger queue has
// stayed quiet for a full debounce interval.
func (d *Daemon) processPending() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.pendingMu.Lock()
			due := d.pending && time.Since(d.pendingAt) >= d.config.DebounceInterval
			d.pendingMu.Unlock()
			if !due {
				continue
			}

			if err := d.runSync(); err != nil {
				d.config.Logger.Printf("Error during sync: %v", err)
			}
		}
	}
}

// periodicSync reconciles on a fixed interval as a safety net.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.FullSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.runSync(); err != nil {
				d.config.Logger.Printf("Error during periodic sync: %v", err)
			}
		}
	}
}

// runSync performs one reconciliation pass. Triggers queued while the
// pass runs are dropped afterwards: the engine's own snapshot write
// fires a file event, and acting on it would loop forever. An external
// write racing the pass is picked up by the periodic sync.
func (d *Daemon) runSync() error {
	ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()

	d.config.Logger.Println("Reconciling with server")
	_, err := d.engine.SyncWithServer(ctx, d.userID)

	d.pendingMu.Lock()
	d.pending = false
	d.pendingMu.Unlock()

	return err
}
