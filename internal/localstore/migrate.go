package localstore

import (
	"fmt"
	"log"
	"os"

	"github.com/careloop/careloop/internal/kv"
)

// migrationFlagKey marks the one-time legacy migration as done. It
// lives in the current store: once present and "true", the routine is
// a no-op for the lifetime of the installation.
const migrationFlagKey = "storage_migration_complete"

// MigrateOptions configures the legacy-store migration.
type MigrateOptions struct {
	// Legacy is the previous, unencrypted storage generation.
	Legacy kv.Store

	// Current is the encrypted storage generation data is moved into.
	Current kv.Store

	// Logger for migration activity (default: stderr logger).
	Logger *log.Logger
}

// MigrateResult reports what the migration did.
type MigrateResult struct {
	// AlreadyDone is true if the completion flag was already set and
	// nothing was touched.
	AlreadyDone bool

	// TasksMoved is true if a legacy task snapshot was copied over.
	TasksMoved bool

	// SyncTimeMoved is true if a legacy sync timestamp was copied over.
	SyncTimeMoved bool
}

// Migrate performs the one-time transfer of task data and sync
// metadata from the legacy store into the current store.
//
// The routine is idempotent and safe to interrupt: the completion flag
// is only set after every copy and purge step succeeded, so a failed
// run leaves the flag pending and the migration retries on the next
// construction. Re-copying the same blob simply overwrites the
// destination. On a fresh install with nothing to migrate the flag is
// still set, so the legacy store is never probed again.
func Migrate(opts MigrateOptions) (*MigrateResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[migrate] ", log.LstdFlags)
	}

	result := &MigrateResult{}

	flag, ok, err := opts.Current.GetItem(migrationFlagKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration flag: %w", err)
	}
	if ok && flag == "true" {
		result.AlreadyDone = true
		return result, nil
	}

	// Task snapshot: copied verbatim, the destination store handles
	// encryption transparently.
	blob, ok, err := opts.Legacy.GetItem(taskKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy task snapshot: %w", err)
	}
	if ok {
		if err := opts.Current.SetItem(taskKey, blob); err != nil {
			return nil, fmt.Errorf("failed to copy task snapshot: %w", err)
		}
		if err := opts.Legacy.RemoveItem(taskKey); err != nil {
			return nil, fmt.Errorf("failed to purge legacy task snapshot: %w", err)
		}
		result.TasksMoved = true
		logger.Printf("Migrated legacy task snapshot (%d bytes)", len(blob))
	}

	syncTime, ok, err := opts.Legacy.GetItem(syncTimeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy sync time: %w", err)
	}
	if ok {
		if err := opts.Current.SetItem(syncTimeKey, syncTime); err != nil {
			return nil, fmt.Errorf("failed to copy sync time: %w", err)
		}
		if err := opts.Legacy.RemoveItem(syncTimeKey); err != nil {
			return nil, fmt.Errorf("failed to purge legacy sync time: %w", err)
		}
		result.SyncTimeMoved = true
		logger.Printf("Migrated legacy sync time: %s", syncTime)
	}

	// Flag last: any failure above leaves the migration pending.
	if err := opts.Current.SetItem(migrationFlagKey, "true"); err != nil {
		return nil, fmt.Errorf("failed to set migration flag: %w", err)
	}

	if !result.TasksMoved && !result.SyncTimeMoved {
		logger.Printf("No legacy data found, migration marked complete")
	}
	return result, nil
}
