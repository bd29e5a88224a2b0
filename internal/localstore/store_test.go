package localstore

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/careloop/careloop/internal/kv"
	"github.com/careloop/careloop/internal/task"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestStore(t *testing.T) *TaskStore {
	t.Helper()
	backing, err := kv.NewPlainStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backing store: %v", err)
	}
	return NewTaskStore(backing, testLogger())
}

func TestReadEmptyStore(t *testing.T) {
	store := newTestStore(t)

	tasks, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected empty snapshot, got %d tasks", len(tasks))
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := []task.Task{
		{ID: "a", Title: "Take medication", Time: "8:00 AM", UserID: "u-1"},
		{ID: "b", Title: "Log symptoms", Completed: true, UserID: "u-2"},
	}
	if err := store.Write(ctx, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Title != "Take medication" || got[0].Time != "8:00 AM" {
		t.Errorf("task a round trip mismatch: %+v", got[0])
	}
	if got[1].ID != "b" || !got[1].Completed {
		t.Errorf("task b round trip mismatch: %+v", got[1])
	}
}

func TestCorruptSnapshotTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	backing, err := kv.NewPlainStore(dir)
	if err != nil {
		t.Fatalf("failed to create backing store: %v", err)
	}
	if err := backing.SetItem("tasks", "{{{not json"); err != nil {
		t.Fatalf("failed to plant corrupt snapshot: %v", err)
	}

	store := NewTaskStore(backing, testLogger())
	tasks, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("corrupt snapshot should not be fatal: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected empty snapshot, got %d tasks", len(tasks))
	}
}

func TestUpdateSerializes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Concurrent appends through Update must not lose writes.
	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		go func() {
			done <- store.Update(ctx, func(tasks []task.Task) []task.Task {
				return append(tasks, task.Task{ID: id, Title: "t", UserID: "u-1"})
			})
		}()
	}
	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	tasks, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(tasks) != 10 {
		t.Errorf("expected 10 tasks, got %d (lost writes)", len(tasks))
	}
}

func TestLastSyncTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.LastSyncTime(ctx)
	if err != nil {
		t.Fatalf("LastSyncTime failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil before first sync, got %v", got)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.SetLastSyncTime(ctx, now); err != nil {
		t.Fatalf("SetLastSyncTime failed: %v", err)
	}

	got, err = store.LastSyncTime(ctx)
	if err != nil {
		t.Fatalf("LastSyncTime failed: %v", err)
	}
	if got == nil || !got.Equal(now) {
		t.Errorf("expected %v, got %v", now, got)
	}
}

func TestEncryptedBacking(t *testing.T) {
	dir := t.TempDir()
	key, err := kv.LoadOrCreateKey(filepath.Join(dir, "device.key"))
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	backing, err := kv.NewEncryptedStore(filepath.Join(dir, "secure"), key)
	if err != nil {
		t.Fatalf("failed to create encrypted store: %v", err)
	}

	store := NewTaskStore(backing, testLogger())
	ctx := context.Background()

	want := []task.Task{{ID: "a", Title: "Check wound dressing", UserID: "u-1"}}
	if err := store.Write(ctx, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Check wound dressing" {
		t.Errorf("round trip through encrypted store failed: %+v", got)
	}
}
