package domain

import (
	"encoding/json"
	"time"
)

// TaskStatus is the lifecycle state of a queue task
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskType identifies the handler for a queue task
type TaskType string

const (
	// TaskProcessConnection enriches a freshly discovered connection,
	// classifies it and plans outreach actions.
	TaskProcessConnection TaskType = "process_connection"
)

// Valid reports whether the type has a registered handler
func (t TaskType) Valid() bool {
	return t == TaskProcessConnection
}

// Task is one unit of work in the generic queue. Payload is opaque at the
// storage boundary; each task type declares its own payload struct.
type Task struct {
	ID          int64
	Type        TaskType
	AccountID   int64
	ProspectID  *int64
	Priority    int // lower runs sooner
	Payload     json.RawMessage
	Status      TaskStatus
	RetryCount  int
	MaxRetries  int
	ScheduledAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      string
	Error       string
}

// CanRetry reports whether a failed handler run should requeue the task
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// ConnectionPayload is the typed payload of a process_connection task
type ConnectionPayload struct {
	Identifier  string    `json:"identifier"`
	AttendeeID  string    `json:"attendee_id,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	Headline    string    `json:"headline,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}
