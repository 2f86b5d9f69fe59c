package store

import (
	"context"
	"errors"

	"github.com/seantiz/modeld/internal/model"
)

// ErrInvalidTransition is returned when a task state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// TaskStats holds aggregate run statistics.
type TaskStats struct {
	Total         int            `json:"total"`
	CountByState  map[string]int `json:"count_by_state"`
	CountByModel  map[string]int `json:"count_by_model"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for task runs.
type Store interface {
	CreateTask(ctx context.Context, r *model.TaskRun) error
	GetTask(ctx context.Context, id string) (*model.TaskRun, error)
	ListTasks(ctx context.Context, limit, offset int) ([]*model.TaskRun, int, error)
	UpdateTaskState(ctx context.Context, id string, state model.State) error
	UpdateTask(ctx context.Context, r *model.TaskRun) error
	GetTaskStats(ctx context.Context) (*TaskStats, error)
	InsertLogLine(ctx context.Context, runID string, seq int, line string) error
	GetLogLines(ctx context.Context, runID string) ([]model.LogLine, error)
	Close() error
}
