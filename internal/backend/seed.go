package backend

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/careloop/careloop/internal/task"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout for demo/test data loaded with --seed.
type seedFile struct {
	Tasks []seedTask `yaml:"tasks"`
}

type seedTask struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Time      string `yaml:"time"`
	Completed bool   `yaml:"completed"`
	UserID    string `yaml:"user_id"`
	CreatedAt string `yaml:"created_at"`
	UpdatedAt string `yaml:"updated_at"`
}

// LoadSeed parses a YAML seed file into task records. Timestamps are
// optional RFC3339 strings; missing values are defaulted on upsert.
func LoadSeed(path string) ([]task.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	tasks := make([]task.Task, 0, len(file.Tasks))
	for i, st := range file.Tasks {
		t := task.Task{
			ID:        st.ID,
			Title:     st.Title,
			Time:      st.Time,
			Completed: st.Completed,
			UserID:    st.UserID,
			CreatedAt: parseSeedTime(st.CreatedAt),
			UpdatedAt: parseSeedTime(st.UpdatedAt),
		}
		t.SetDefaults()
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("seed task %d: %w", i, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Seed upserts the given tasks into the database.
func (db *DB) Seed(ctx context.Context, tasks []task.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if _, err := db.UpsertTasks(ctx, tasks); err != nil {
		return fmt.Errorf("failed to seed tasks: %w", err)
	}
	return nil
}

func parseSeedTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
