package storage

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/careloop/careloop/internal/feed"
	"github.com/careloop/careloop/internal/gateway"
	"github.com/careloop/careloop/internal/task"
)

// remote is the web implementation: a thin passthrough to the gateway
// with no local persistence, so there is never anything to reconcile.
type remote struct {
	gw        gateway.Gateway
	subscribe subscribeFunc
	logger    *log.Logger
}

func newRemote(opts Options) (*remote, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[storage] ", log.LstdFlags)
	}
	return &remote{
		gw:        opts.Remote,
		subscribe: feedSubscriber(opts),
		logger:    logger,
	}, nil
}

func (s *remote) GetTasks(ctx context.Context, userID string) ([]task.Task, error) {
	return s.gw.FetchAll(ctx, userID)
}

func (s *remote) SaveTask(ctx context.Context, t task.Task) error {
	t.SetDefaults()
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := s.gw.UpsertOne(ctx, t)
	return err
}

func (s *remote) SaveTasks(ctx context.Context, tasks []task.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	for i := range tasks {
		tasks[i].SetDefaults()
		if err := tasks[i].Validate(); err != nil {
			return err
		}
	}
	_, err := s.gw.UpsertMany(ctx, tasks)
	return err
}

func (s *remote) DeleteTask(ctx context.Context, id string) error {
	return s.gw.DeleteOne(ctx, id)
}

// SyncWithServer is a no-op: the server is already the only copy.
func (s *remote) SyncWithServer(ctx context.Context, userID string) error {
	return nil
}

func (s *remote) SubscribeToChanges(ctx context.Context, userID string, fn ChangeCallback) (func(), error) {
	return s.subscribe(ctx, func(ev feed.Event) {
		if ev.UserID != userID {
			return
		}
		tasks, err := s.gw.FetchAll(ctx, userID)
		if err != nil {
			s.logger.Printf("warning: change-driven refresh failed: %v", err)
			return
		}
		fn(tasks)
	})
}

// LastSyncTime always reports nil: web has no device-side sync state.
func (s *remote) LastSyncTime(ctx context.Context) (*time.Time, error) {
	return nil, nil
}
