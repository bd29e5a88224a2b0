package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/careloop/careloop/internal/kv"
	"github.com/careloop/careloop/internal/task"
)

func newStorePair(t *testing.T) (*kv.PlainStore, *kv.EncryptedStore) {
	t.Helper()

	legacy, err := kv.NewPlainStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create legacy store: %v", err)
	}
	current, err := kv.NewEncryptedStore(t.TempDir(), bytes.Repeat([]byte{0x33}, kv.KeySize))
	if err != nil {
		t.Fatalf("failed to create current store: %v", err)
	}
	return legacy, current
}

func seedLegacy(t *testing.T, legacy kv.Store, count int) {
	t.Helper()

	var tasks []task.Task
	for i := 0; i < count; i++ {
		tasks = append(tasks, task.Task{
			ID:        fmt.Sprintf("t-%d", i),
			Title:     fmt.Sprintf("Task %d", i),
			UserID:    "u-1",
			CreatedAt: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		t.Fatalf("failed to marshal seed tasks: %v", err)
	}
	if err := legacy.SetItem("tasks", string(data)); err != nil {
		t.Fatalf("failed to seed legacy tasks: %v", err)
	}
	if err := legacy.SetItem("last_sync_time", "2024-01-15T10:00:00Z"); err != nil {
		t.Fatalf("failed to seed legacy sync time: %v", err)
	}
}

func TestMigrateMovesLegacyData(t *testing.T) {
	legacy, current := newStorePair(t)
	seedLegacy(t, legacy, 3)

	result, err := Migrate(MigrateOptions{Legacy: legacy, Current: current, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if !result.TasksMoved || !result.SyncTimeMoved || result.AlreadyDone {
		t.Errorf("unexpected result: %+v", result)
	}

	// New store holds the 3 tasks.
	store := NewTaskStore(current, testLogger())
	tasks, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("expected 3 migrated tasks, got %d", len(tasks))
	}

	// Sync time came along.
	syncTime, err := store.LastSyncTime(context.Background())
	if err != nil {
		t.Fatalf("LastSyncTime failed: %v", err)
	}
	if syncTime == nil || !syncTime.Equal(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected migrated sync time: %v", syncTime)
	}

	// Legacy keys are purged.
	if _, ok, _ := legacy.GetItem("tasks"); ok {
		t.Error("legacy task snapshot not purged")
	}
	if _, ok, _ := legacy.GetItem("last_sync_time"); ok {
		t.Error("legacy sync time not purged")
	}

	// Flag is set.
	flag, ok, _ := current.GetItem("storage_migration_complete")
	if !ok || flag != "true" {
		t.Errorf("migration flag not set: ok=%v flag=%q", ok, flag)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	legacy, current := newStorePair(t)
	seedLegacy(t, legacy, 2)

	opts := MigrateOptions{Legacy: legacy, Current: current, Logger: testLogger()}
	if _, err := Migrate(opts); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}

	// Plant new legacy data after completion; a second run must not
	// touch it because the flag short-circuits.
	if err := legacy.SetItem("tasks", `[{"id":"late","title":"x","user_id":"u"}]`); err != nil {
		t.Fatalf("failed to plant late legacy data: %v", err)
	}

	result, err := Migrate(opts)
	if err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if !result.AlreadyDone || result.TasksMoved || result.SyncTimeMoved {
		t.Errorf("second run should be a no-op: %+v", result)
	}
	if _, ok, _ := legacy.GetItem("tasks"); !ok {
		t.Error("second run should not have purged anything")
	}
}

func TestMigrateFreshInstall(t *testing.T) {
	legacy, current := newStorePair(t)

	result, err := Migrate(MigrateOptions{Legacy: legacy, Current: current, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if result.TasksMoved || result.SyncTimeMoved || result.AlreadyDone {
		t.Errorf("fresh install should move nothing: %+v", result)
	}

	// Flag set anyway, so the routine never re-runs.
	flag, ok, _ := current.GetItem("storage_migration_complete")
	if !ok || flag != "true" {
		t.Error("migration flag should be set on fresh installs")
	}
}

// failingStore wraps a Store and fails SetItem for one key, simulating
// an interrupted migration.
type failingStore struct {
	kv.Store
	failKey string
}

func (f *failingStore) SetItem(key, value string) error {
	if key == f.failKey {
		return fmt.Errorf("disk full")
	}
	return f.Store.SetItem(key, value)
}

func TestMigrateRetriesAfterFailure(t *testing.T) {
	legacy, current := newStorePair(t)
	seedLegacy(t, legacy, 1)

	// First attempt dies copying the sync time; flag must stay pending.
	_, err := Migrate(MigrateOptions{
		Legacy:  legacy,
		Current: &failingStore{Store: current, failKey: "last_sync_time"},
		Logger:  testLogger(),
	})
	if err == nil {
		t.Fatal("expected first migration attempt to fail")
	}
	if _, ok, _ := current.GetItem("storage_migration_complete"); ok {
		t.Fatal("flag must be left pending after a failed run")
	}

	// Retry with a healthy store completes.
	result, err := Migrate(MigrateOptions{Legacy: legacy, Current: current, Logger: testLogger()})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.AlreadyDone {
		t.Error("retry should have performed the migration")
	}
	if !result.SyncTimeMoved {
		t.Error("retry should have moved the sync time")
	}

	store := NewTaskStore(current, testLogger())
	tasks, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("expected 1 task after retry, got %d", len(tasks))
	}
}
