// Package workflow models external workflow engines behind a binding
// interface and polls their instances to completion. Bindings are resolved
// by name at trigger time; the set of bindings is fixed at startup.
package workflow

import (
	"context"
	"encoding/json"

	"github.com/orchid-dev/orchid/internal/errors"
)

// Canonical binding names for the built-in local workflows.
const (
	BindingErrorAnalysis = "error_analysis"
	BindingValidation    = "validation"
	BindingTesting       = "testing"
)

// Status is the lifecycle state a binding reports for one instance.
// Pending is treated as running by the monitor: the instance exists but has
// not produced a result yet.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// InstanceStatus is one polled observation of a workflow instance.
type InstanceStatus struct {
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// CreateOptions names a new instance and carries its start parameters.
type CreateOptions struct {
	ID     string
	Params map[string]any
}

// Instance is a handle to one running workflow within a binding.
type Instance interface {
	ID() string
	Status(ctx context.Context) (InstanceStatus, error)
}

// Binding is a workflow engine. Create starts an instance; Get retrieves a
// handle for a previously created one.
type Binding interface {
	Create(ctx context.Context, opts CreateOptions) (Instance, error)
	Get(id string) (Instance, bool)
}

// Registry maps binding names to engines. Populated at startup, read-only
// afterwards; a task naming an unregistered binding fails at trigger time
// with ErrWorkflowBindingMissing.
type Registry struct {
	bindings map[string]Binding
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]Binding)}
}

// Add registers a binding. Registering the same name twice is an error.
func (r *Registry) Add(name string, b Binding) error {
	if name == "" {
		return errors.New("workflow binding name must not be empty")
	}
	if _, exists := r.bindings[name]; exists {
		return errors.Wrapf(errors.New("binding already registered"), "%s", name)
	}
	r.bindings[name] = b
	return nil
}

// Resolve returns the binding for name.
func (r *Registry) Resolve(name string) (Binding, error) {
	b, ok := r.bindings[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrWorkflowBindingMissing, "%s", name)
	}
	return b, nil
}

// Names returns the registered binding names, for status reporting.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	return names
}
