package state

import (
	"sync"
	"time"

	"github.com/orchid-dev/orchid/internal/logging"
	"github.com/orchid-dev/orchid/internal/task"
)

// NotifyFunc receives a deep copy of the snapshot after every mutation.
type NotifyFunc func(*Snapshot)

// Store owns the authoritative state snapshot for one engine instance.
// Mutations are linearized by an internal mutex: each mutation reads the
// latest snapshot, applies its change, persists, and notifies before the
// next mutation is applied. Notify hooks run while the store is locked and
// must not call back into the store.
type Store struct {
	mu     sync.Mutex
	dir    string
	snap   *Snapshot
	notify NotifyFunc
	logger *logging.Logger
}

// Open loads the persisted snapshot from dir, or starts empty when no state
// file exists yet. Pass an empty dir for a purely in-memory store (tests).
func Open(dir string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	st := &Store{
		dir:    dir,
		snap:   NewSnapshot(),
		logger: logger,
	}

	if dir != "" {
		snap, err := loadSnapshot(dir)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			st.snap = snap
			logger.Info("state restored",
				"tasks", len(snap.Tasks),
				"workflow_instances", len(snap.WorkflowInstances))
		}
	}

	return st, nil
}

// OnUpdate registers the notify hook invoked after every mutation.
// Only one hook is supported; the engine fans out from there.
func (st *Store) OnUpdate(fn NotifyFunc) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.notify = fn
}

// Mutate applies fn to the snapshot, persists the result, and notifies the
// registered hook with a deep copy. The whole sequence holds the store lock,
// so readers never observe a partial update and broadcasts happen in
// mutation order.
func (st *Store) Mutate(fn func(*Snapshot)) error {
	return st.MutateIf(func(s *Snapshot) bool {
		fn(s)
		return true
	})
}

// MutateIf is Mutate with an abort path: when fn returns false the snapshot
// must be unchanged, and neither persistence nor notification happens.
func (st *Store) MutateIf(fn func(*Snapshot) bool) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !fn(st.snap) {
		return nil
	}

	if st.dir != "" {
		if err := saveSnapshot(st.dir, st.snap); err != nil {
			st.logger.Error("failed to persist state", "error", err)
			return err
		}
	}

	if st.notify != nil {
		st.notify(st.snap.Clone())
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (st *Store) Snapshot() *Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snap.Clone()
}

// Task returns a copy of the stored task, or false when the id is unknown.
func (st *Store) Task(id string) (*task.Stored, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	t, ok := st.snap.Tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// WorkflowInstance returns a copy of the tracked instance, or false when
// the id is unknown.
func (st *Store) WorkflowInstance(id string) (*WorkflowInstance, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	w, ok := st.snap.WorkflowInstances[id]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// Metrics returns the current counters.
func (st *Store) Metrics() Metrics {
	st.mu.Lock()
	defer st.mu.Unlock()

	m := st.snap.Metrics
	if st.snap.Metrics.LastDispatchAt != nil {
		at := *st.snap.Metrics.LastDispatchAt
		m.LastDispatchAt = &at
	}
	return m
}

// UpdateTask mutates a single task in place through fn, stamping UpdatedAt
// and appending an audit entry when the status changed. Returns
// ok=false without mutating anything if the task does not exist.
func (st *Store) UpdateTask(id string, fn func(*task.Stored)) (ok bool, err error) {
	err = st.MutateIf(func(s *Snapshot) bool {
		t, found := s.Tasks[id]
		if !found {
			return false
		}
		ok = true
		before := t.Status
		fn(t)
		t.UpdatedAt = time.Now()
		if t.Status != before {
			s.AppendAudit(id, t.Status)
		}
		return true
	})
	return ok, err
}
