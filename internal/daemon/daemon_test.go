package daemon

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/careloop/careloop/internal/gateway"
	"github.com/careloop/careloop/internal/kv"
	"github.com/careloop/careloop/internal/localstore"
	tasksync "github.com/careloop/careloop/internal/sync"
	"github.com/careloop/careloop/internal/task"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeGateway is an in-memory server double shared with the daemon's
// background goroutines, so every method takes the lock.
type fakeGateway struct {
	mu         sync.Mutex
	tasks      map[string]task.Task
	fetchCalls int
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{tasks: map[string]task.Task{}}
}

func (g *fakeGateway) FetchAll(ctx context.Context, userID string) ([]task.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	var out []task.Task
	for _, t := range g.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (g *fakeGateway) UpsertOne(ctx context.Context, t task.Task) (task.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.upsertLocked(t), nil
}

func (g *fakeGateway) UpsertMany(ctx context.Context, tasks []task.Task) ([]task.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, g.upsertLocked(t))
	}
	return out, nil
}

func (g *fakeGateway) DeleteOne(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tasks, id)
	return nil
}

func (g *fakeGateway) upsertLocked(t task.Task) task.Task {
	if prev, ok := g.tasks[t.ID]; ok {
		t.CreatedAt = prev.CreatedAt
	}
	t.UpdatedAt = time.Now().UTC()
	g.tasks[t.ID] = t
	return t
}

func (g *fakeGateway) get(id string) (task.Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	return t, ok
}

func (g *fakeGateway) fetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchCalls
}

// testHarness wires a daemon against a temp-dir store and fake server.
type testHarness struct {
	daemon   *Daemon
	gateway  *fakeGateway
	store    *localstore.TaskStore
	storeDir string
	cancel   context.CancelFunc
	done     chan error
}

func startDaemon(t *testing.T, gw *fakeGateway, debounce time.Duration) *testHarness {
	t.Helper()

	dir := t.TempDir()
	backing, err := kv.NewPlainStore(dir)
	if err != nil {
		t.Fatalf("NewPlainStore failed: %v", err)
	}
	store := localstore.NewTaskStore(backing, testLogger())
	engine := tasksync.New(store, gw, testLogger())

	cfg := &Config{
		DebounceInterval: debounce,
		FullSyncInterval: time.Hour, // keep the safety net out of timing tests
		Logger:           testLogger(),
	}
	d, err := NewWithConfig(engine, "u-1", dir, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	h := &testHarness{daemon: d, gateway: gw, store: store, storeDir: dir, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not shut down")
		}
	})

	// The initial sync records a sync time; waiting for it keeps
	// later store writes from racing the startup pass.
	waitFor(t, func() bool {
		ts, err := store.LastSyncTime(context.Background())
		return err == nil && ts != nil
	}, "initial sync")

	return h
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestNewValidation(t *testing.T) {
	dir := t.TempDir()
	backing, err := kv.NewPlainStore(dir)
	if err != nil {
		t.Fatalf("NewPlainStore failed: %v", err)
	}
	engine := tasksync.New(localstore.NewTaskStore(backing, testLogger()), newFakeGateway(), testLogger())

	if _, err := New(nil, "u-1", dir); err == nil {
		t.Error("expected error for nil engine")
	}
	if _, err := New(engine, "", dir); err == nil {
		t.Error("expected error for empty userID")
	}
	if _, err := New(engine, "u-1", ""); err == nil {
		t.Error("expected error for empty storeDir")
	}
}

func TestInitialSyncPullsRemoteTasks(t *testing.T) {
	gw := newFakeGateway()
	gw.tasks["t-1"] = task.Task{
		ID: "t-1", Title: "take meds", UserID: "u-1",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}

	h := startDaemon(t, gw, 50*time.Millisecond)

	waitFor(t, func() bool {
		tasks, err := h.store.Read(context.Background())
		return err == nil && len(tasks) == 1 && tasks[0].ID == "t-1"
	}, "remote task to land locally")
}

func TestStoreChangeTriggersSync(t *testing.T) {
	gw := newFakeGateway()
	h := startDaemon(t, gw, 50*time.Millisecond)

	// An app process writes a task into the shared local store.
	in := task.Task{ID: "t-2", Title: "evening walk", UserID: "u-1"}
	in.SetDefaults()
	in.Touch()
	if err := h.store.Write(context.Background(), []task.Task{in}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	waitFor(t, func() bool {
		_, ok := gw.get("t-2")
		return ok
	}, "local write to reach the server")
}

func TestBurstsAreDebounced(t *testing.T) {
	gw := newFakeGateway()
	h := startDaemon(t, gw, 200*time.Millisecond)

	base := gw.fetches()

	// Ten rapid edits well inside one debounce window.
	for i := 0; i < 10; i++ {
		in := task.Task{ID: "t-3", Title: "hydrate", UserID: "u-1", Completed: i%2 == 0}
		in.SetDefaults()
		in.Touch()
		if err := h.store.Write(context.Background(), []task.Task{in}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, func() bool {
		_, ok := gw.get("t-3")
		return ok
	}, "burst to be synced")

	// Let any stray ticks drain, then check the burst collapsed into
	// far fewer passes than edits.
	time.Sleep(500 * time.Millisecond)
	if fetches := gw.fetches() - base; fetches > 6 {
		t.Errorf("expected the burst to debounce into a few passes, got %d fetches", fetches)
	}
}

func TestIsSnapshotFile(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/data/store/tasks", true},
		{"/data/store/tasks.tmp", false},
		{"/data/store/last_sync_time", false},
		{"/data/store/last_sync_time.tmp", false},
		{"/data/store/storage_migration_complete", false},
	}
	for _, tc := range cases {
		if got := isSnapshotFile(tc.path); got != tc.want {
			t.Errorf("isSnapshotFile(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
