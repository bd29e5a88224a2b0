// Package storage exposes the uniform task-storage surface the app
// calls, dispatching to either the local-first implementation (mobile)
// or a direct remote passthrough (web).
package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/careloop/careloop/internal/feed"
	"github.com/careloop/careloop/internal/gateway"
	"github.com/careloop/careloop/internal/kv"
	"github.com/careloop/careloop/internal/task"
)

// Platform selects the storage implementation. Chosen once at process
// start; there is no runtime switching.
type Platform string

const (
	// PlatformMobile uses encrypted local-first storage with
	// background reconciliation.
	PlatformMobile Platform = "mobile"

	// PlatformWeb passes every operation straight through to the
	// remote gateway; there is no local cache.
	PlatformWeb Platform = "web"
)

// ChangeCallback receives the user's task list after each change-feed
// driven refresh.
type ChangeCallback func(tasks []task.Task)

// Storage is the operation set the UI layer programs against,
// identical across platforms.
type Storage interface {
	// GetTasks returns the tasks owned by userID.
	GetTasks(ctx context.Context, userID string) ([]task.Task, error)

	// SaveTask upserts one task. On mobile the write lands locally
	// and a background sync is kicked off.
	SaveTask(ctx context.Context, t task.Task) error

	// SaveTasks bulk-upserts tasks, with SaveTask semantics.
	SaveTasks(ctx context.Context, tasks []task.Task) error

	// DeleteTask removes a task locally and remotely. Deleting an
	// unknown id is not an error.
	DeleteTask(ctx context.Context, id string) error

	// SyncWithServer runs one reconciliation pass for userID.
	// No-op on web, which has nothing to reconcile.
	SyncWithServer(ctx context.Context, userID string) error

	// SubscribeToChanges invokes fn with a fresh task list on every
	// server-side change to userID's records. The returned function
	// releases the subscription; the caller must invoke it on
	// teardown.
	SubscribeToChanges(ctx context.Context, userID string, fn ChangeCallback) (func(), error)

	// LastSyncTime returns when the device last completed a sync,
	// or nil if it never has. Always nil on web.
	LastSyncTime(ctx context.Context) (*time.Time, error)
}

// subscribeFunc opens a change-feed subscription. Injected so tests
// can drive events without a live backend.
type subscribeFunc func(ctx context.Context, fn feed.Handler) (func(), error)

// Options configures New.
type Options struct {
	// Remote is the task gateway. Required on both platforms.
	Remote gateway.Gateway

	// Local is the current-generation secure store. Required on
	// mobile, ignored on web.
	Local kv.Store

	// Legacy is the previous-generation store migrated from on
	// mobile construction. Optional.
	Legacy kv.Store

	// Feed configures the change-feed connection. BaseURL and Token
	// are required when SubscribeToChanges is used.
	Feed feed.Config

	// Logger for storage activity (default: package-level logger).
	Logger *log.Logger

	// subscribe overrides the feed connection in tests.
	subscribe subscribeFunc
}

// New constructs the Storage implementation for the given platform.
//
// On mobile this also runs the one-time legacy storage migration; a
// migration failure is logged and deferred to the next construction,
// never fatal.
func New(platform Platform, opts Options) (Storage, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("remote gateway is required")
	}

	switch platform {
	case PlatformMobile:
		return newLocalFirst(opts)
	case PlatformWeb:
		return newRemote(opts)
	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
}

// feedSubscriber builds the real subscription function from Options.
func feedSubscriber(opts Options) subscribeFunc {
	if opts.subscribe != nil {
		return opts.subscribe
	}
	return func(ctx context.Context, fn feed.Handler) (func(), error) {
		return feed.Subscribe(ctx, opts.Feed, fn)
	}
}
