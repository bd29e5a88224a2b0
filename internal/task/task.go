// Package task provides the task record shared by local storage, the
// remote gateway, and the reconciliation engine.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is one tracked care task. The structure is conflict-friendly:
// flat fields with last-write-wins semantics, resolved on UpdatedAt.
//
// Time is a free-text schedule label ("morning", "8:00 AM with food");
// it is stored and displayed verbatim, never parsed.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Time      string    `json:"time,omitempty"`
	Completed bool      `json:"completed"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// SetDefaults applies default values for fields the caller omitted.
// New tasks get a client-generated UUID and fresh timestamps.
func (t *Task) SetDefaults() {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// Touch sets UpdatedAt to now. Call whenever any field is modified;
// reconciliation relies on UpdatedAt being non-decreasing across saves.
func (t *Task) Touch() {
	t.UpdatedAt = time.Now().UTC()
}

// NewerThan reports whether this task's UpdatedAt is strictly later
// than other's. A zero UpdatedAt compares as the earliest possible
// time, so a record with a missing timestamp always loses to one with
// a real timestamp and never beats another missing timestamp.
func (t *Task) NewerThan(other *Task) bool {
	return t.UpdatedAt.After(other.UpdatedAt)
}

// ByID builds an id-keyed index over the given tasks. Later entries
// win on duplicate ids.
func ByID(tasks []Task) map[string]Task {
	m := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}

// FilterByUser returns the tasks owned by userID, preserving order.
func FilterByUser(tasks []Task, userID string) []Task {
	var out []Task
	for _, t := range tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}
