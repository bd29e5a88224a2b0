package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/careloop/careloop/internal/gateway"
	"github.com/careloop/careloop/internal/localstore"
	"github.com/careloop/careloop/internal/task"
)

// Engine reconciles the device-local task snapshot with the backend's
// task table for one user at a time.
type Engine struct {
	local  *localstore.TaskStore
	remote gateway.Gateway
	now    func() time.Time
	logger *log.Logger
}

// New creates an Engine.
//
// If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	engine := sync.New(store, gateway.NewClient(url, token), nil)
//	tasks, err := engine.SyncWithServer(ctx, userID)
func New(local *localstore.TaskStore, remote gateway.Gateway, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		local:  local,
		remote: remote,
		now:    time.Now,
		logger: logger,
	}
}

// SetClock overrides the engine's clock. Tests use this to make the
// recorded sync time deterministic.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SyncWithServer reconciles local and remote state for userID and
// returns the resulting authoritative task list for that user.
//
// The sequence:
//  1. Read the local snapshot and filter to userID.
//  2. Fetch the user's remote set.
//  3. Push every local task that is new or strictly newer than its
//     remote counterpart. Equal timestamps are not pushed; the remote
//     copy wins through the re-fetch, which keeps both sides identical
//     without a redundant write.
//  4. Re-fetch the authoritative remote set. The pre-push response is
//     never trusted: the re-fetch captures server-assigned fields and
//     records written concurrently by other devices.
//  5. Replace this user's slice of the local snapshot with the
//     authoritative set, preserving every other user's tasks.
//  6. Record the sync time.
//
// Whole-record last-write-wins: no field-level merging. A failure
// anywhere aborts the remaining steps and leaves the local snapshot in
// its optimistic pre-sync state; the caller retries on the next
// mutation or foreground event.
func (e *Engine) SyncWithServer(ctx context.Context, userID string) ([]task.Task, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}

	snapshot, err := e.local.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read local snapshot: %w", err)
	}
	localTasks := task.FilterByUser(snapshot, userID)

	remoteTasks, err := e.remote.FetchAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote tasks: %w", err)
	}

	toPush := selectForPush(localTasks, remoteTasks)
	if len(toPush) > 0 {
		if _, err := e.remote.UpsertMany(ctx, toPush); err != nil {
			return nil, fmt.Errorf("failed to push %d tasks: %w", len(toPush), err)
		}
		e.logger.Printf("Pushed %d tasks for user %s", len(toPush), userID)
	}

	authoritative, err := e.remote.FetchAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-fetch after push: %w", err)
	}

	err = e.local.Update(ctx, func(tasks []task.Task) []task.Task {
		merged := make([]task.Task, 0, len(tasks)+len(authoritative))
		for _, t := range tasks {
			if t.UserID != userID {
				merged = append(merged, t)
			}
		}
		return append(merged, authoritative...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist merged snapshot: %w", err)
	}

	if err := e.local.SetLastSyncTime(ctx, e.now()); err != nil {
		return nil, fmt.Errorf("failed to record sync time: %w", err)
	}

	e.logger.Printf("Sync complete for user %s: local=%d remote=%d pushed=%d",
		userID, len(localTasks), len(authoritative), len(toPush))
	return authoritative, nil
}

// selectForPush returns the local tasks that should replace their
// remote counterparts: tasks the remote has never seen, and tasks
// whose updated_at is strictly later than the remote copy's.
func selectForPush(localTasks, remoteTasks []task.Task) []task.Task {
	remoteByID := task.ByID(remoteTasks)

	var toPush []task.Task
	for _, lt := range localTasks {
		rt, exists := remoteByID[lt.ID]
		if !exists || lt.NewerThan(&rt) {
			toPush = append(toPush, lt)
		}
	}
	return toPush
}
