// Package task defines the task model: the closed set of task types, their
// typed payloads, the lifecycle status enum, and submission validation.
package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies which agent pool a task is routed to.
type Type string

// The closed set of task types. Routing is fixed and small; there is no
// general-purpose workflow language on top of these.
const (
	TypeErrorRecreation    Type = "error_recreation"
	TypeSolutionValidation Type = "solution_validation"
	TypeTesting            Type = "testing"
)

// Valid reports whether t is one of the known task types.
func (t Type) Valid() bool {
	switch t {
	case TypeErrorRecreation, TypeSolutionValidation, TypeTesting:
		return true
	}
	return false
}

// Types returns all known task types in routing order.
func Types() []Type {
	return []Type{TypeErrorRecreation, TypeSolutionValidation, TypeTesting}
}

// Status is the lifecycle state of a stored task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is final for its task id.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// WorkflowConfig names an external workflow to trigger after the task
// completes successfully, with parameters passed through to the instance.
type WorkflowConfig struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Definition is a task submission as provided by the caller.
type Definition struct {
	Type     Type            `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Workflow *WorkflowConfig `json:"workflow,omitempty"`
	AgentID  string          `json:"agentId,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// Failure captures why a task failed.
type Failure struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Stored is a task as held by the orchestrator. Status transitions are
// monotonic: pending -> running -> completed or failed. A terminal task
// never re-enters pending or running; retries are new submissions.
type Stored struct {
	Definition

	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Failure        `json:"error,omitempty"`
}

// Clone returns a deep copy of the stored task.
func (t *Stored) Clone() *Stored {
	cp := *t
	cp.Payload = append(json.RawMessage(nil), t.Payload...)
	cp.Result = append(json.RawMessage(nil), t.Result...)
	if t.Workflow != nil {
		wf := WorkflowConfig{Name: t.Workflow.Name}
		if t.Workflow.Params != nil {
			wf.Params = make(map[string]any, len(t.Workflow.Params))
			for k, v := range t.Workflow.Params {
				wf.Params[k] = v
			}
		}
		cp.Workflow = &wf
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	if t.Error != nil {
		e := *t.Error
		cp.Error = &e
	}
	return &cp
}

// NewID generates a unique task identifier.
func NewID() string {
	return uuid.NewString()
}
