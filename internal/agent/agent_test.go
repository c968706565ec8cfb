package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/task"
)

type stubAgent struct {
	result json.RawMessage
	err    error
	calls  int
}

func (s *stubAgent) Execute(ctx context.Context, t *task.Stored) (json.RawMessage, error) {
	s.calls++
	return s.result, s.err
}

func storedTask(tt task.Type, agentID string, payload any) *task.Stored {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return &task.Stored{
		Definition: task.Definition{
			Type:    tt,
			Payload: raw,
			AgentID: agentID,
		},
		ID:     "task-1",
		Status: task.StatusRunning,
	}
}

func TestRegistryAddDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(task.TypeTesting, "default", &stubAgent{}); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if err := r.Add(task.TypeTesting, "default", &stubAgent{}); err == nil {
		t.Fatal("expected error registering duplicate agent")
	}
}

func TestRegistryAddUnknownType(t *testing.T) {
	r := NewRegistry()
	err := r.Add(task.Type("bogus"), "default", &stubAgent{})
	if !errors.Is(err, errors.ErrUnknownTaskType) {
		t.Fatalf("got %v, want ErrUnknownTaskType", err)
	}
}

func TestRegistryResolveMissingPool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(task.TypeTesting, "default")
	if !errors.Is(err, errors.ErrAgentUnavailable) {
		t.Fatalf("got %v, want ErrAgentUnavailable", err)
	}
}

func TestRegistryResolveMissingAgent(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(task.TypeTesting, "default", &stubAgent{}); err != nil {
		t.Fatal(err)
	}
	_, err := r.Resolve(task.TypeTesting, "gpu-7")
	if !errors.Is(err, errors.ErrAgentUnavailable) {
		t.Fatalf("got %v, want ErrAgentUnavailable", err)
	}
}

func TestRegistryResolveDefaultsAgentID(t *testing.T) {
	r := NewRegistry()
	want := &stubAgent{}
	if err := r.Add(task.TypeTesting, "", want); err != nil {
		t.Fatal(err)
	}
	got, err := r.Resolve(task.TypeTesting, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != Agent(want) {
		t.Fatal("Resolve returned a different agent than was registered")
	}
}

func TestRegistryDispatchRoutesToAgent(t *testing.T) {
	r := NewRegistry()
	def := &stubAgent{result: json.RawMessage(`{"ok":true}`)}
	other := &stubAgent{result: json.RawMessage(`{"ok":false}`)}
	if err := r.Add(task.TypeTesting, "default", def); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(task.TypeTesting, "replica", other); err != nil {
		t.Fatal(err)
	}

	got, err := r.Dispatch(context.Background(), storedTask(task.TypeTesting, "replica", map[string]any{"id": "x"}))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if string(got) != `{"ok":false}` {
		t.Fatalf("got %s, want the replica agent's result", got)
	}
	if def.calls != 0 || other.calls != 1 {
		t.Fatalf("calls = default:%d replica:%d, want 0/1", def.calls, other.calls)
	}
}

func TestRegistryDispatchAttachesTaskID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), storedTask(task.TypeTesting, "", nil))
	var de *errors.DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want DispatchError", err)
	}
	if de.TaskID != "task-1" {
		t.Fatalf("TaskID = %q, want task-1", de.TaskID)
	}
}

func TestRegistryAgentIDs(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(task.TypeTesting, "default", &stubAgent{}); err != nil {
		t.Fatal(err)
	}
	ids := r.AgentIDs(task.TypeTesting)
	if len(ids) != 1 || ids[0] != "default" {
		t.Fatalf("AgentIDs = %v, want [default]", ids)
	}
	if got := r.AgentIDs(task.TypeErrorRecreation); got != nil {
		t.Fatalf("AgentIDs for empty pool = %v, want nil", got)
	}
}
