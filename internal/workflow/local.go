package workflow

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/orchid-dev/orchid/internal/errors"
)

// Func is the body of a local workflow: it receives the instance params and
// returns the instance result.
type Func func(ctx context.Context, params map[string]any) (json.RawMessage, error)

// LocalBinding runs workflow instances in-process. Create starts the
// workflow function in a goroutine; Status reports pending until it
// finishes. Instances live in memory only, so a restarted engine observes
// them as missing and records the instance as failed.
type LocalBinding struct {
	fn Func

	mu        sync.Mutex
	instances map[string]*localInstance
}

// NewLocalBinding wraps fn as a Binding.
func NewLocalBinding(fn Func) *LocalBinding {
	return &LocalBinding{
		fn:        fn,
		instances: make(map[string]*localInstance),
	}
}

func (b *LocalBinding) Create(ctx context.Context, opts CreateOptions) (Instance, error) {
	if opts.ID == "" {
		return nil, errors.New("instance id must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.instances[opts.ID]; exists {
		return nil, errors.Wrapf(errors.New("instance already exists"), "%s", opts.ID)
	}

	inst := &localInstance{id: opts.ID}
	inst.status.Status = StatusPending
	b.instances[opts.ID] = inst

	go inst.run(b.fn, opts.Params)
	return inst, nil
}

func (b *LocalBinding) Get(id string) (Instance, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inst, ok := b.instances[id]
	return inst, ok
}

type localInstance struct {
	id string

	mu     sync.Mutex
	status InstanceStatus
}

func (i *localInstance) ID() string { return i.id }

func (i *localInstance) Status(ctx context.Context) (InstanceStatus, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status, nil
}

// run executes the workflow body. The detached context is deliberate: the
// instance outlives whichever request created it.
func (i *localInstance) run(fn Func, params map[string]any) {
	i.setStatus(InstanceStatus{Status: StatusRunning})

	result, err := fn(context.Background(), params)
	if err != nil {
		i.setStatus(InstanceStatus{Status: StatusFailed, Error: err.Error()})
		return
	}
	i.setStatus(InstanceStatus{Status: StatusCompleted, Result: result})
}

func (i *localInstance) setStatus(status InstanceStatus) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.status = status
}
