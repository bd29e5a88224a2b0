// Package feed subscribes to the backend's realtime change feed: a
// server-pushed stream of row-level task events scoped to one user.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/careloop/careloop/internal/task"
	"github.com/coder/websocket"
)

// EventType classifies a change event.
type EventType string

const (
	// EventInsert indicates a task was created on the server.
	EventInsert EventType = "insert"
	// EventUpdate indicates a task was modified on the server.
	EventUpdate EventType = "update"
	// EventDelete indicates a task was removed on the server.
	EventDelete EventType = "delete"
)

// Event is one change delivered on the feed. Unknown types are still
// delivered: every event means "something changed, reconcile", so the
// consumer treats anything unrecognized as a catch-all.
type Event struct {
	Type      EventType  `json:"type"`
	TaskID    string     `json:"task_id"`
	UserID    string     `json:"user_id"`
	Task      *task.Task `json:"task,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Handler is called for every event received on the feed.
type Handler func(Event)

// Config configures a feed subscription.
type Config struct {
	// BaseURL is the backend's HTTP base URL; the feed endpoint and
	// ws:// scheme are derived from it.
	BaseURL string

	// Token is the bearer token identifying the session.
	Token string

	// ReconnectDelay is the wait before re-dialing after a dropped
	// connection (default: 2s). The subscription survives transient
	// errors; every event after reconnect triggers a reconciliation,
	// which repairs anything missed while disconnected.
	ReconnectDelay time.Duration

	// Logger for subscription activity (default: stderr logger).
	Logger *log.Logger
}

// Subscribe opens the realtime feed and invokes fn for every change to
// the subscribed user's records. The server derives the user from the
// session token.
//
// The returned function releases the underlying connection; the caller
// must invoke it on teardown. Subscribe fails fast if the first dial
// cannot be established, so callers learn immediately about bad
// addresses or credentials.
func Subscribe(ctx context.Context, cfg Config, fn Handler) (func(), error) {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[feed] ", log.LstdFlags)
	}

	subCtx, cancel := context.WithCancel(ctx)

	conn, err := dial(subCtx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		run(subCtx, cfg, conn, fn)
	}()

	unsubscribe := func() {
		cancel()
		wg.Wait()
	}
	return unsubscribe, nil
}

// run reads events until the subscription is cancelled, re-dialing
// after dropped connections.
func run(ctx context.Context, cfg Config, conn *websocket.Conn, fn Handler) {
	for {
		if conn != nil {
			readLoop(ctx, cfg, conn, fn)
			_ = conn.Close(websocket.StatusNormalClosure, "")
			conn = nil
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.ReconnectDelay):
		}

		next, err := dial(ctx, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			cfg.Logger.Printf("Feed reconnect failed, retrying: %v", err)
			continue
		}
		conn = next
		cfg.Logger.Printf("Feed reconnected")
	}
}

func readLoop(ctx context.Context, cfg Config, conn *websocket.Conn, fn Handler) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				cfg.Logger.Printf("Feed connection lost: %v", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			cfg.Logger.Printf("WARNING: dropping undecodable feed event: %v", err)
			continue
		}
		fn(ev)
	}
}

func dial(ctx context.Context, cfg Config) (*websocket.Conn, error) {
	endpoint, err := feedURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + cfg.Token}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial change feed: %w", err)
	}
	return conn, nil
}

// feedURL derives the ws:// realtime endpoint from an HTTP base URL.
func feedURL(baseURL string) (string, error) {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
		// Already a websocket URL.
	default:
		return "", fmt.Errorf("unsupported base URL %q", baseURL)
	}
	return base + "/v1/realtime", nil
}
