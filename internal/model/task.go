package model

import "time"

// State is a task's position in the run lifecycle.
type State string

// Task lifecycle states.
const (
	StateCreated            State = "created"
	StateBound              State = "bound"
	StateRunning            State = "running"
	StateArtifactsGenerated State = "artifacts_generated"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// validTransitions maps each state to the set of states it may transition to.
var validTransitions = map[State]map[State]bool{
	StateCreated: {
		StateBound: true,
	},
	StateBound: {
		StateRunning: true,
	},
	StateRunning: {
		StateArtifactsGenerated: true,
		StateFailed:             true,
	},
	StateArtifactsGenerated: {
		StateCompleted: true,
		StateFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// LogLine represents a single persisted output line from a task run.
type LogLine struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskRun is the persisted view of one run attempt of a task. ID is
// assigned per attempt; TaskID is the caller's task id and repeats across
// retries.
type TaskRun struct {
	ID           string            `json:"id"`
	TaskID       string            `json:"task_id"`
	EmailAddress string            `json:"email_address"`
	ModelName    string            `json:"model_name"`
	ModelVersion string            `json:"model_version"`
	FailureCount int               `json:"failure_count"`
	Parameters   map[string]string `json:"parameters"`
	State        State             `json:"state"`
	Error        string            `json:"error,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Attachments  []string          `json:"attachments,omitempty"`
	DurationMS   *int              `json:"duration_ms,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}
