package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/careloop/careloop/internal/feed"
	"github.com/careloop/careloop/internal/gateway"
	"github.com/careloop/careloop/internal/localstore"
	"github.com/careloop/careloop/internal/sync"
	"github.com/careloop/careloop/internal/task"
)

// localFirst is the mobile implementation: every read and write goes
// to the encrypted local store first, and reconciliation with the
// server happens in the background.
type localFirst struct {
	local     *localstore.TaskStore
	remote    gateway.Gateway
	engine    *sync.Engine
	subscribe subscribeFunc
	logger    *log.Logger
}

func newLocalFirst(opts Options) (*localFirst, error) {
	if opts.Local == nil {
		return nil, fmt.Errorf("local store is required on mobile")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[storage] ", log.LstdFlags)
	}

	if opts.Legacy != nil {
		_, err := localstore.Migrate(localstore.MigrateOptions{
			Legacy:  opts.Legacy,
			Current: opts.Local,
			Logger:  logger,
		})
		if err != nil {
			// Partial migrations are safe to retry; the next
			// construction picks up where this one stopped.
			logger.Printf("warning: storage migration incomplete: %v", err)
		}
	}

	local := localstore.NewTaskStore(opts.Local, logger)
	return &localFirst{
		local:     local,
		remote:    opts.Remote,
		engine:    sync.New(local, opts.Remote, logger),
		subscribe: feedSubscriber(opts),
		logger:    logger,
	}, nil
}

func (s *localFirst) GetTasks(ctx context.Context, userID string) ([]task.Task, error) {
	tasks, err := s.local.Read(ctx)
	if err != nil {
		return nil, err
	}
	return task.FilterByUser(tasks, userID), nil
}

func (s *localFirst) SaveTask(ctx context.Context, t task.Task) error {
	return s.SaveTasks(ctx, []task.Task{t})
}

func (s *localFirst) SaveTasks(ctx context.Context, tasks []task.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	users := map[string]bool{}
	for i := range tasks {
		tasks[i].SetDefaults()
		if err := tasks[i].Validate(); err != nil {
			return err
		}
		tasks[i].Touch()
		users[tasks[i].UserID] = true
	}

	err := s.local.Update(ctx, func(existing []task.Task) []task.Task {
		for _, t := range tasks {
			existing = upsert(existing, t)
		}
		return existing
	})
	if err != nil {
		return err
	}

	// The write already succeeded locally; reconciliation happens in
	// the background and its failures are retried on the next pass.
	for userID := range users {
		go s.backgroundSync(userID)
	}
	return nil
}

func (s *localFirst) DeleteTask(ctx context.Context, id string) error {
	err := s.local.Update(ctx, func(existing []task.Task) []task.Task {
		out := existing[:0]
		for _, t := range existing {
			if t.ID != id {
				out = append(out, t)
			}
		}
		return out
	})
	if err != nil {
		return err
	}
	if err := s.remote.DeleteOne(ctx, id); err != nil {
		return fmt.Errorf("delete task %s remotely: %w", id, err)
	}
	return nil
}

func (s *localFirst) SyncWithServer(ctx context.Context, userID string) error {
	_, err := s.engine.SyncWithServer(ctx, userID)
	return err
}

func (s *localFirst) SubscribeToChanges(ctx context.Context, userID string, fn ChangeCallback) (func(), error) {
	return s.subscribe(ctx, func(ev feed.Event) {
		if ev.UserID != userID {
			return
		}
		tasks, err := s.engine.SyncWithServer(ctx, userID)
		if err != nil {
			s.logger.Printf("warning: change-driven sync failed: %v", err)
			return
		}
		fn(tasks)
	})
}

func (s *localFirst) LastSyncTime(ctx context.Context) (*time.Time, error) {
	return s.local.LastSyncTime(ctx)
}

func (s *localFirst) backgroundSync(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.engine.SyncWithServer(ctx, userID); err != nil {
		if gateway.IsRetryable(err) {
			s.logger.Printf("background sync deferred: %v", err)
		} else {
			s.logger.Printf("warning: background sync failed: %v", err)
		}
	}
}

// upsert replaces the task with a matching id, or appends.
func upsert(tasks []task.Task, t task.Task) []task.Task {
	for i := range tasks {
		if tasks[i].ID == t.ID {
			tasks[i] = t
			return tasks
		}
	}
	return append(tasks, t)
}
