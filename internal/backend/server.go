package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/careloop/careloop/internal/task"
	"github.com/coder/websocket"
)

// EventType classifies a change-feed event.
type EventType string

const (
	// EventInsert indicates a task was created.
	EventInsert EventType = "insert"

	// EventUpdate indicates an existing task was modified.
	EventUpdate EventType = "update"

	// EventDelete indicates a task was removed.
	EventDelete EventType = "delete"
)

// ChangeEvent is one row-level change broadcast on the realtime feed.
// Subscribers only receive events for their own user_id.
type ChangeEvent struct {
	Type      EventType  `json:"type"`
	TaskID    string     `json:"task_id"`
	UserID    string     `json:"user_id"`
	Task      *task.Task `json:"task,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on (default: 8080).
	Port int

	// Tokens maps bearer tokens to user IDs.
	Tokens map[string]string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.Default(),
	}
}

// Server serves the task-table HTTP API and the realtime change feed.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	db       *DB
	auth     *TokenAuth

	// Change-feed subscriber management. Each connection is filtered
	// to one user's records.
	subscribers   map[*websocket.Conn]string
	subscribersMu sync.RWMutex
	broadcast     chan ChangeEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a backend server over the given database.
func NewServer(db *DB, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:        fmt.Sprintf(":%d", config.Port),
		db:          db,
		auth:        NewTokenAuth(config.Tokens),
		subscribers: make(map[*websocket.Conn]string),
		broadcast:   make(chan ChangeEvent, 100),
		ctx:         ctx,
		cancel:      cancel,
		logger:      config.Logger,
	}
}

// Start begins serving. Non-blocking; use Stop for shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tasks", s.handleTasks)
	mux.HandleFunc("/v1/tasks/", s.handleTaskByID)
	mux.HandleFunc("/v1/tasks/batch", s.handleBatch)
	mux.HandleFunc("/v1/realtime", s.handleRealtime)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Backend listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and all feed connections.
func (s *Server) Stop() error {
	s.logger.Println("Stopping backend server")
	s.cancel()

	s.subscribersMu.Lock()
	for conn := range s.subscribers {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.subscribers, conn)
	}
	s.subscribersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Println("Backend server stopped")
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the server's base HTTP URL.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// SubscriberCount returns the current number of feed connections.
func (s *Server) SubscriberCount() int {
	s.subscribersMu.RLock()
	defer s.subscribersMu.RUnlock()
	return len(s.subscribers)
}

// publish queues a change event for broadcast.
func (s *Server) publish(ev ChangeEvent) {
	ev.Timestamp = time.Now().UTC()
	select {
	case s.broadcast <- ev:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping event")
	}
}

// broadcastLoop fans change events out to matching subscribers.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case ev := <-s.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Printf("Failed to marshal event: %v", err)
				continue
			}

			s.subscribersMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.subscribers))
			for conn, userID := range s.subscribers {
				if userID == ev.UserID {
					conns = append(conns, conn)
				}
			}
			s.subscribersMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.logger.Printf("Failed to send to subscriber: %v", err)
					s.removeSubscriber(conn)
				}
			}
		}
	}
}

// handleTasks serves GET /v1/tasks (fetch all for user) and
// POST /v1/tasks (upsert one).
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.auth.Authenticate(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleFetchAll(w, r, userID)
	case http.MethodPost:
		s.handleUpsertOne(w, r, userID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFetchAll(w http.ResponseWriter, r *http.Request, userID string) {
	requested := r.URL.Query().Get("user_id")
	if requested == "" {
		requested = userID
	}
	if requested != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	tasks, err := s.db.FetchAll(r.Context(), requested)
	if err != nil {
		s.logger.Printf("FetchAll failed: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) handleUpsertOne(w http.ResponseWriter, r *http.Request, userID string) {
	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Pre-normalization inserts may omit user_id; stamp the session's.
	if t.UserID == "" {
		t.UserID = userID
	}
	if t.UserID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if _, err := s.upsertWithEvent(r.Context(), &t); err != nil {
		s.logger.Printf("Upsert failed: %v", err)
		http.Error(w, "upsert failed", http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// upsertWithEvent stores the task and publishes insert or update
// depending on prior existence. The stored record is written back
// into t.
func (s *Server) upsertWithEvent(ctx context.Context, t *task.Task) (EventType, error) {
	eventType := EventInsert
	if _, err := s.db.GetTask(ctx, t.ID); err == nil {
		eventType = EventUpdate
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	stored, err := s.db.UpsertTask(ctx, *t)
	if err != nil {
		return "", err
	}
	*t = stored

	s.publish(ChangeEvent{
		Type:   eventType,
		TaskID: stored.ID,
		UserID: stored.UserID,
		Task:   &stored,
	})
	return eventType, nil
}

// handleBatch serves POST /v1/tasks/batch.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.auth.Authenticate(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Tasks []task.Task `json:"tasks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	existed := make(map[string]bool, len(body.Tasks))
	for i := range body.Tasks {
		if body.Tasks[i].UserID == "" {
			body.Tasks[i].UserID = userID
		}
		if body.Tasks[i].UserID != userID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if _, err := s.db.GetTask(r.Context(), body.Tasks[i].ID); err == nil {
			existed[body.Tasks[i].ID] = true
		}
	}

	stored, err := s.db.UpsertTasks(r.Context(), body.Tasks)
	if err != nil {
		s.logger.Printf("Batch upsert failed: %v", err)
		http.Error(w, "batch upsert failed", http.StatusUnprocessableEntity)
		return
	}

	for i := range stored {
		eventType := EventInsert
		if existed[stored[i].ID] {
			eventType = EventUpdate
		}
		s.publish(ChangeEvent{
			Type:   eventType,
			TaskID: stored[i].ID,
			UserID: stored[i].UserID,
			Task:   &stored[i],
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": stored})
}

// handleTaskByID serves DELETE /v1/tasks/{id}.
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.auth.Authenticate(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Deletes are scoped to the caller's own records. Deleting an
	// absent or foreign id is a silent no-op (idempotent).
	existing, err := s.db.GetTask(r.Context(), id)
	if err == nil && existing.UserID == userID {
		if err := s.db.DeleteTask(r.Context(), id); err != nil {
			s.logger.Printf("Delete failed: %v", err)
			http.Error(w, "delete failed", http.StatusInternalServerError)
			return
		}
		s.publish(ChangeEvent{Type: EventDelete, TaskID: id, UserID: userID})
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Printf("Delete lookup failed: %v", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRealtime upgrades to WebSocket and registers the connection on
// the change feed, filtered to the session's user.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.auth.Authenticate(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.subscribersMu.Lock()
	s.subscribers[conn] = userID
	count := len(s.subscribers)
	s.subscribersMu.Unlock()
	s.logger.Printf("Feed subscriber connected for user %s (total: %d)", userID, count)

	go s.readLoop(conn)
}

// readLoop keeps the connection alive and detects disconnects. Client
// messages are not processed.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeSubscriber(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeSubscriber(conn *websocket.Conn) {
	s.subscribersMu.Lock()
	if _, exists := s.subscribers[conn]; exists {
		delete(s.subscribers, conn)
		count := len(s.subscribers)
		s.subscribersMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Feed subscriber disconnected (total: %d)", count)
	} else {
		s.subscribersMu.Unlock()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"subscribers": s.SubscriberCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
