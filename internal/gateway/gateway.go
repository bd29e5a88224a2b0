// Package gateway provides access to the backend's task table: the
// cross-device source of truth the reconciliation engine syncs against.
package gateway

import (
	"context"
	"errors"

	"github.com/careloop/careloop/internal/task"
)

// Common errors returned by gateway operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, gateway.ErrAuthRequired) {
//	    // surface a re-login flow
//	}
var (
	// ErrAuthRequired is returned when no valid session is present.
	// Not retryable without user action.
	ErrAuthRequired = errors.New("authentication required")

	// ErrUnreachable is returned when the backend cannot be reached
	// (connectivity failure, timeout).
	ErrUnreachable = errors.New("backend unreachable")

	// ErrBackend is returned when the backend rejected the request
	// (constraint violation, server error).
	ErrBackend = errors.New("backend error")
)

// IsRetryable returns true if the error is likely to succeed on retry.
// Authentication failures are not retryable; connectivity and backend
// failures are, on the next sync attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	if errors.Is(err, ErrBackend) {
		return true
	}
	return false
}

// Gateway is the task-table contract exposed by the backend.
//
// All operations require an authenticated session and return
// ErrAuthRequired without one. Upserts stamp updated_at server-side at
// the moment of the call; created_at is set on first insert and never
// rewritten.
type Gateway interface {
	// FetchAll returns every task owned by userID, ordered by
	// created_at ascending.
	FetchAll(ctx context.Context, userID string) ([]task.Task, error)

	// UpsertOne inserts the task if its id is absent, otherwise
	// updates it in place. Returns the stored record with
	// server-assigned fields.
	UpsertOne(ctx context.Context, t task.Task) (task.Task, error)

	// UpsertMany applies UpsertOne semantics as a batch. Partial
	// failure surfaces as a single error for the whole call.
	UpsertMany(ctx context.Context, tasks []task.Task) ([]task.Task, error)

	// DeleteOne removes the task with the given id. Deleting an
	// absent id is not an error (idempotent).
	DeleteOne(ctx context.Context, id string) error
}
