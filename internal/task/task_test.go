package task

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{
			name: "valid task",
			task: Task{ID: "t-1", Title: "Take medication", UserID: "u-1"},
		},
		{
			name:    "missing id",
			task:    Task{Title: "Take medication", UserID: "u-1"},
			wantErr: true,
		},
		{
			name:    "missing title",
			task:    Task{ID: "t-1", UserID: "u-1"},
			wantErr: true,
		},
		{
			name:    "missing user",
			task:    Task{ID: "t-1", Title: "Take medication"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	task := Task{Title: "Log symptoms", UserID: "u-1"}
	task.SetDefaults()

	if task.ID == "" {
		t.Error("expected generated ID")
	}
	if task.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if !task.UpdatedAt.Equal(task.CreatedAt) {
		t.Errorf("expected UpdatedAt == CreatedAt, got %v / %v", task.UpdatedAt, task.CreatedAt)
	}

	// Existing values must not be overwritten.
	existing := Task{ID: "t-1", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	existing.SetDefaults()
	if existing.ID != "t-1" {
		t.Errorf("ID overwritten: %s", existing.ID)
	}
	if existing.CreatedAt.Year() != 2024 {
		t.Errorf("CreatedAt overwritten: %v", existing.CreatedAt)
	}
}

func TestNewerThan(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	newer := &Task{UpdatedAt: t2}
	older := &Task{UpdatedAt: t1}
	missing := &Task{}

	if !newer.NewerThan(older) {
		t.Error("later timestamp should win")
	}
	if older.NewerThan(newer) {
		t.Error("earlier timestamp should lose")
	}
	if older.NewerThan(older) {
		t.Error("equal timestamps are not strictly newer")
	}

	// Missing timestamps compare as the earliest possible time.
	if missing.NewerThan(older) {
		t.Error("missing timestamp should lose to a real one")
	}
	if missing.NewerThan(missing) {
		t.Error("missing vs missing is a tie, not a win")
	}
	if !older.NewerThan(missing) {
		t.Error("real timestamp should beat a missing one")
	}
}

func TestFilterByUser(t *testing.T) {
	tasks := []Task{
		{ID: "a", UserID: "u-1"},
		{ID: "b", UserID: "u-2"},
		{ID: "c", UserID: "u-1"},
	}

	got := FilterByUser(tasks, "u-1")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("FilterByUser returned %+v", got)
	}

	if got := FilterByUser(tasks, "u-3"); len(got) != 0 {
		t.Errorf("expected no tasks for unknown user, got %+v", got)
	}
}
