// Package model defines the core domain types for the MetaRec backend.
//
// Types use strong typing (enums, time.Time) and avoid interface{} except
// where a value is genuinely caller-defined (event data, artifacts).
package model

import "time"

// RunStatus is the lifecycle state of a debug run.
// Transitions only move forward: queued → running → terminal.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
	RunStatusTimeout   RunStatus = "timeout"
)

// Terminal reports whether no further status transition may follow.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusError, RunStatusTimeout:
		return true
	}
	return false
}

// RunKind identifies which workflow produced a run.
type RunKind string

const (
	RunKindBehaviorCreate RunKind = "behavior_create"
	RunKindBehaviorTrack  RunKind = "behavior_track"
)

// EventStatus is the severity of a run event.
const (
	EventStatusInfo      = "info"
	EventStatusWarning   = "warning"
	EventStatusCompleted = "completed"
	EventStatusError     = "error"
)

// RunEvent is one timestamped occurrence in a run's event log.
// The log is append-only: events are never reordered or deleted.
type RunEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Label      string    `json:"label"`
	Status     string    `json:"status"`
	DurationMs *int64    `json:"duration_ms"`
	Data       any       `json:"data"`
}

// Explanation is an LLM-generated natural-language reading of a trace.
type Explanation struct {
	GeneratedAt time.Time `json:"generated_at"`
	DurationMs  int64     `json:"duration_ms"`
	Content     string    `json:"content"`
}

// RunRecord is the full persisted state of one debug run.
type RunRecord struct {
	ID          string         `json:"id"`
	Kind        RunKind        `json:"kind"`
	Status      RunStatus      `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Config      map[string]any `json:"config"`
	Events      []RunEvent     `json:"events"`
	Artifacts   map[string]any `json:"artifacts"`
	Explanation *Explanation   `json:"explanation"`
	Error       *string        `json:"error"`
}

// RunSummary is the lightweight listing shape for a run.
type RunSummary struct {
	ID         string    `json:"id"`
	Kind       RunKind   `json:"kind"`
	Status     RunStatus `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	EventCount int       `json:"event_count"`
	Error      *string   `json:"error"`
}

// Summary projects a record into its listing shape.
func (r *RunRecord) Summary() RunSummary {
	return RunSummary{
		ID:         r.ID,
		Kind:       r.Kind,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		EventCount: len(r.Events),
		Error:      r.Error,
	}
}
