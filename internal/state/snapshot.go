// Package state holds the orchestrator's authoritative state snapshot and
// the store that owns it. All mutation goes through the store's mutate
// wrapper, which persists the snapshot and notifies subscribers; there is no
// write path that bypasses notification.
package state

import (
	"encoding/json"
	"time"

	"github.com/orchid-dev/orchid/internal/task"
)

// Maximum retained audit-log entries. Oldest entries are dropped beyond
// this to bound snapshot size and broadcast cost.
const maxQueueEntries = 1024

// WorkflowStatus is the lifecycle state of an external workflow instance.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// IsTerminal reports whether the status is final for its instance.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// WorkflowInstance tracks one externally-running workflow. Every instance is
// owned by exactly one task and is created only after that task completes.
type WorkflowInstance struct {
	ID              string          `json:"id"`
	WorkflowBinding string          `json:"workflowBinding"`
	TaskID          string          `json:"taskId"`
	StartedAt       time.Time       `json:"startedAt"`
	Status          WorkflowStatus  `json:"status"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Clone returns a deep copy of the workflow instance.
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	cp := *w
	cp.Result = append(json.RawMessage(nil), w.Result...)
	return &cp
}

// AgentStatus records the last observed liveness of a dispatch-pool agent.
type AgentStatus struct {
	AgentID       string    `json:"agentId"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	ActiveTaskID  string    `json:"activeTaskId,omitempty"`
	Status        string    `json:"status"` // "idle", "busy", "error"
}

// QueueEntry is one append-only audit record of a task status transition.
// Diagnostics only; never used for control flow.
type QueueEntry struct {
	TaskID    string      `json:"taskId"`
	Status    task.Status `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// Metrics are monotonically non-decreasing engine counters.
// CompletedTasks + FailedTasks never exceeds TotalTasks.
type Metrics struct {
	TotalTasks            int        `json:"totalTasks"`
	CompletedTasks        int        `json:"completedTasks"`
	FailedTasks           int        `json:"failedTasks"`
	DroppedSinkDeliveries int        `json:"droppedSinkDeliveries"`
	LastDispatchAt        *time.Time `json:"lastDispatchAt,omitempty"`
}

// Snapshot is the complete orchestrator state at a point in time, used for
// both storage and broadcast. Readers always observe a whole,
// self-consistent snapshot; no partial updates are visible.
type Snapshot struct {
	Tasks             map[string]*task.Stored      `json:"tasks"`
	AgentStatus       map[string]AgentStatus       `json:"agentStatus"`
	WorkflowInstances map[string]*WorkflowInstance `json:"workflowInstances"`
	MessageQueue      []QueueEntry                 `json:"messageQueue"`
	Metrics           Metrics                      `json:"metrics"`
	Subscribers       []string                     `json:"subscribers"`
}

// NewSnapshot returns an empty, fully-initialized snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Tasks:             make(map[string]*task.Stored),
		AgentStatus:       make(map[string]AgentStatus),
		WorkflowInstances: make(map[string]*WorkflowInstance),
		MessageQueue:      []QueueEntry{},
		Subscribers:       []string{},
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	cp := &Snapshot{
		Tasks:             make(map[string]*task.Stored, len(s.Tasks)),
		AgentStatus:       make(map[string]AgentStatus, len(s.AgentStatus)),
		WorkflowInstances: make(map[string]*WorkflowInstance, len(s.WorkflowInstances)),
		MessageQueue:      make([]QueueEntry, len(s.MessageQueue)),
		Metrics:           s.Metrics,
		Subscribers:       make([]string, len(s.Subscribers)),
	}
	for id, t := range s.Tasks {
		cp.Tasks[id] = t.Clone()
	}
	for id, a := range s.AgentStatus {
		cp.AgentStatus[id] = a
	}
	for id, w := range s.WorkflowInstances {
		cp.WorkflowInstances[id] = w.Clone()
	}
	copy(cp.MessageQueue, s.MessageQueue)
	copy(cp.Subscribers, s.Subscribers)
	if s.Metrics.LastDispatchAt != nil {
		at := *s.Metrics.LastDispatchAt
		cp.Metrics.LastDispatchAt = &at
	}
	return cp
}

// AppendAudit records a status transition in the message queue, dropping
// the oldest entries beyond the retention cap.
func (s *Snapshot) AppendAudit(taskID string, status task.Status) {
	s.MessageQueue = append(s.MessageQueue, QueueEntry{
		TaskID:    taskID,
		Status:    status,
		Timestamp: time.Now(),
	})
	if over := len(s.MessageQueue) - maxQueueEntries; over > 0 {
		s.MessageQueue = append([]QueueEntry(nil), s.MessageQueue[over:]...)
	}
}

// AddSubscriber records a live connection id. Adding an id twice is a no-op.
func (s *Snapshot) AddSubscriber(connID string) {
	for _, id := range s.Subscribers {
		if id == connID {
			return
		}
	}
	s.Subscribers = append(s.Subscribers, connID)
}

// RemoveSubscriber drops a connection id from the subscriber set.
func (s *Snapshot) RemoveSubscriber(connID string) {
	for i, id := range s.Subscribers {
		if id == connID {
			s.Subscribers = append(s.Subscribers[:i], s.Subscribers[i+1:]...)
			return
		}
	}
}

// normalize repairs nil maps/slices after JSON decoding.
func (s *Snapshot) normalize() {
	if s.Tasks == nil {
		s.Tasks = make(map[string]*task.Stored)
	}
	if s.AgentStatus == nil {
		s.AgentStatus = make(map[string]AgentStatus)
	}
	if s.WorkflowInstances == nil {
		s.WorkflowInstances = make(map[string]*WorkflowInstance)
	}
	if s.MessageQueue == nil {
		s.MessageQueue = []QueueEntry{}
	}
	if s.Subscribers == nil {
		s.Subscribers = []string{}
	}
}
