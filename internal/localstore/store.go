// Package localstore provides the device-local task snapshot: a single
// serialized task list persisted in secure key-value storage, plus the
// sync metadata that goes with it.
//
// The store holds tasks for every user who has ever synced on the
// device. Filtering by user is the caller's job.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/careloop/careloop/internal/kv"
	"github.com/careloop/careloop/internal/task"
)

// Storage keys. taskKey holds the serialized snapshot, syncTimeKey the
// timestamp of the last successful reconciliation.
const (
	taskKey     = "tasks"
	syncTimeKey = "last_sync_time"
)

// TaskStore persists the full task snapshot under one key.
//
// There is no partial-record update: every mutation reads the snapshot,
// edits it in memory, and writes it back. A mutex serializes those
// read-modify-write cycles so overlapping saves cannot race.
type TaskStore struct {
	store  kv.Store
	mu     sync.Mutex
	logger *log.Logger
}

// NewTaskStore creates a TaskStore over the given key-value store.
// If logger is nil, a default logger writing to stderr is used.
func NewTaskStore(store kv.Store, logger *log.Logger) *TaskStore {
	if logger == nil {
		logger = log.New(os.Stderr, "[localstore] ", log.LstdFlags)
	}
	return &TaskStore{store: store, logger: logger}
}

// Read returns the current task snapshot.
//
// A corrupt snapshot is logged and treated as empty rather than
// surfaced: a decode failure must not brick the app.
func (s *TaskStore) Read(ctx context.Context) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx)
}

// Write replaces the task snapshot.
func (s *TaskStore) Write(ctx context.Context, tasks []task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(ctx, tasks)
}

// Update applies fn to the current snapshot and persists the result,
// all under the store lock. This is the single-flight path every
// mutation goes through.
func (s *TaskStore) Update(ctx context.Context, fn func(tasks []task.Task) []task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.readLocked(ctx)
	if err != nil {
		return err
	}
	return s.writeLocked(ctx, fn(tasks))
}

func (s *TaskStore) readLocked(ctx context.Context) ([]task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, ok, err := s.store.GetItem(taskKey)
	if errors.Is(err, kv.ErrCorrupt) {
		s.logger.Printf("WARNING: task snapshot is corrupt, treating as empty: %v", err)
		return []task.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task snapshot: %w", err)
	}
	if !ok {
		return []task.Task{}, nil
	}

	var tasks []task.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		s.logger.Printf("WARNING: task snapshot failed to decode, treating as empty: %v", err)
		return []task.Task{}, nil
	}
	return tasks, nil
}

func (s *TaskStore) writeLocked(ctx context.Context, tasks []task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tasks == nil {
		tasks = []task.Task{}
	}

	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal task snapshot: %w", err)
	}
	if err := s.store.SetItem(taskKey, string(data)); err != nil {
		return fmt.Errorf("failed to write task snapshot: %w", err)
	}
	return nil
}

// LastSyncTime returns the timestamp of the last successful
// reconciliation, or nil if the device has never synced.
func (s *TaskStore) LastSyncTime(ctx context.Context) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, ok, err := s.store.GetItem(syncTimeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read last sync time: %w", err)
	}
	if !ok {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.logger.Printf("WARNING: last sync time failed to parse, treating as unset: %v", err)
		return nil, nil
	}
	return &t, nil
}

// SetLastSyncTime records the moment of a successful reconciliation.
func (s *TaskStore) SetLastSyncTime(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.store.SetItem(syncTimeKey, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write last sync time: %w", err)
	}
	return nil
}
