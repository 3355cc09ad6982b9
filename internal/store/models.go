package store

import "time"

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	StatusRunning    RunStatus = "running"
	StatusDone       RunStatus = "done"
	StatusIncomplete RunStatus = "incomplete"
	StatusFailed     RunStatus = "failed"
)

// Run is one pipeline execution over a task in a workspace.
type Run struct {
	ID         string    `json:"id"` // uuid
	Workspace  string    `json:"workspace"`
	Task       string    `json:"task"`
	Status     RunStatus `json:"status"`
	Iterations int       `json:"iterations"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
}

// Stage is one role execution within a run.
type Stage struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Iteration  int       `json:"iteration"`
	Role       string    `json:"role"`
	Verdict    string    `json:"verdict"`
	Artifact   string    `json:"artifact,omitempty"` // workspace-relative path
	Failed     bool      `json:"failed"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Escalation is one human-input request raised during a run.
type Escalation struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Iteration  int       `json:"iteration"`
	Role       string    `json:"role"`
	Question   string    `json:"question"`
	Resolution string    `json:"resolution"`
	Timestamp  time.Time `json:"timestamp"`
}

// Event is a free-form audit entry on a run: state transitions, merges,
// checkpoint warnings.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Type      string    `json:"event_type"` // started, transition, checkpoint, merged, ended
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
