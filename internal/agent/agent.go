// Package agent implements the dispatch pool: a typed registry that routes
// each task to a named agent within its type's pool and performs the
// synchronous request/response call. Pools are resolved at startup; a task
// whose pool or agent is missing fails dispatch rather than being retried.
package agent

import (
	"context"
	"encoding/json"

	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/task"
)

// DefaultAgentID is the shared default instance within each pool, used when
// a task does not name an agent.
const DefaultAgentID = "default"

// Agent executes one task and returns its opaque result. The call is
// synchronous from the orchestrator's point of view; the agent may perform
// arbitrarily long internal work. The pool enforces no timeout — callers
// needing bounded latency must bound the context at the transport layer.
type Agent interface {
	Execute(ctx context.Context, t *task.Stored) (json.RawMessage, error)
}

// Registry maps each task type to a pool of named agents. It is populated
// at startup and read-only afterwards.
type Registry struct {
	pools map[task.Type]map[string]Agent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		pools: make(map[task.Type]map[string]Agent),
	}
}

// Add registers an agent under the given type's pool. Registering the same
// (type, id) pair twice is an error.
func (r *Registry) Add(tt task.Type, agentID string, a Agent) error {
	if !tt.Valid() {
		return errors.Wrapf(errors.ErrUnknownTaskType, "register agent %q", agentID)
	}
	if agentID == "" {
		agentID = DefaultAgentID
	}

	pool, ok := r.pools[tt]
	if !ok {
		pool = make(map[string]Agent)
		r.pools[tt] = pool
	}
	if _, exists := pool[agentID]; exists {
		return errors.Wrapf(errors.New("agent already registered"), "%s/%s", tt, agentID)
	}
	pool[agentID] = a
	return nil
}

// Resolve returns the agent for (type, id), with id defaulting to "default".
func (r *Registry) Resolve(tt task.Type, agentID string) (Agent, error) {
	if agentID == "" {
		agentID = DefaultAgentID
	}

	if !tt.Valid() {
		return nil, errors.NewDispatchError("no pool for task type", errors.ErrUnknownTaskType).
			WithPool(string(tt), agentID)
	}
	pool, ok := r.pools[tt]
	if !ok {
		return nil, errors.NewDispatchError("agent pool not configured", errors.ErrAgentUnavailable).
			WithPool(string(tt), agentID)
	}
	a, ok := pool[agentID]
	if !ok {
		return nil, errors.NewDispatchError("no such agent in pool", errors.ErrAgentUnavailable).
			WithPool(string(tt), agentID)
	}
	return a, nil
}

// Dispatch routes the task to its agent and awaits the result. The task's
// type selects the pool; its AgentID (default "default") selects the
// instance, which permits partitioning concurrent tasks of one type across
// independent stateful agents.
func (r *Registry) Dispatch(ctx context.Context, t *task.Stored) (json.RawMessage, error) {
	a, err := r.Resolve(t.Type, t.AgentID)
	if err != nil {
		var de *errors.DispatchError
		if errors.As(err, &de) {
			de.WithTaskID(t.ID)
		}
		return nil, err
	}

	result, err := a.Execute(ctx, t)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AgentIDs returns the registered agent ids for a type, for status reporting.
func (r *Registry) AgentIDs(tt task.Type) []string {
	pool, ok := r.pools[tt]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(pool))
	for id := range pool {
		ids = append(ids, id)
	}
	return ids
}
