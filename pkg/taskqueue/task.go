// Package taskqueue implements the per-session persistent priority
// task queue: a Redis sorted set for pending work, a set for active
// claims, a capped list for recently completed ids, and a pub/sub
// channel carrying status-change events.
package taskqueue

import "time"

// Priority is a task's priority class. Lower scores dequeue first.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityMedium Priority = 50
	PriorityLow    Priority = 100
)

// Status is a task's lifecycle state. The task hash's Status field is
// authoritative over sorted-set/set membership.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Task is the JSON-serialized record stored under the task hash key.
type Task struct {
	ID             string
	SessionID      string
	AgentRole      string
	Priority       Priority
	Payload        map[string]any
	Status         Status
	RetryCount     int
	MaxRetries     int
	Error          string
	AssignedWorker string
	CreatedAt      time.Time
	StartedAt      time.Time
	CompletedAt    time.Time
}

// Event is published on the coordinator-wide updates channel on every
// status change.
type Event struct {
	Event     string `json:"event"`
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Stats is the read model returned for a session's queue.
type Stats struct {
	Pending   int
	Active    int
	Completed int
}

const UpdatesChannel = "podex:tasks:updates"
