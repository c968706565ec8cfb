package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/logging"
	"github.com/orchid-dev/orchid/internal/scheduler"
	"github.com/orchid-dev/orchid/internal/state"
	"github.com/orchid-dev/orchid/internal/task"
)

// CallbackCheckStatus is the scheduler callback name for instance polls.
const CallbackCheckStatus = "checkWorkflowStatus"

// DefaultCheckInterval is the poll cadence for running instances.
const DefaultCheckInterval = 30 * time.Second

// checkPayload identifies the instance a scheduled poll should examine.
type checkPayload struct {
	InstanceID      string `json:"instanceId"`
	WorkflowBinding string `json:"workflowBinding"`
}

// Monitor triggers workflow instances for completed tasks and polls them on
// a fixed cadence until they reach a terminal status. A monitor outcome
// never changes the status of the task that owns the instance.
type Monitor struct {
	store    *state.Store
	registry *Registry
	sched    *scheduler.Scheduler
	interval time.Duration
	logger   *logging.Logger
}

// NewMonitor wires a Monitor. A zero interval uses DefaultCheckInterval.
func NewMonitor(store *state.Store, registry *Registry, sched *scheduler.Scheduler, interval time.Duration, logger *logging.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Monitor{
		store:    store,
		registry: registry,
		sched:    sched,
		interval: interval,
		logger:   logger,
	}
}

// Register installs the monitor's poll callback on the scheduler. Must be
// called before the scheduler recovers persisted entries.
func (m *Monitor) Register() error {
	return m.sched.Register(CallbackCheckStatus, m.check)
}

// Trigger starts a workflow instance for a completed task. The task's
// result is passed to the instance under the "data" parameter, alongside
// the configured params. The instance is recorded as running and a
// recurring poll is scheduled.
func (m *Monitor) Trigger(ctx context.Context, cfg *task.WorkflowConfig, taskID string, result json.RawMessage) (string, error) {
	binding, err := m.registry.Resolve(cfg.Name)
	if err != nil {
		return "", err
	}

	params := make(map[string]any, len(cfg.Params)+1)
	for k, v := range cfg.Params {
		params[k] = v
	}
	if len(result) > 0 {
		params["data"] = json.RawMessage(result)
	}

	instance, err := binding.Create(ctx, CreateOptions{
		ID:     task.NewID(),
		Params: params,
	})
	if err != nil {
		return "", errors.Wrapf(err, "create %s instance", cfg.Name)
	}
	instanceID := instance.ID()

	err = m.store.Mutate(func(snap *state.Snapshot) {
		snap.WorkflowInstances[instanceID] = &state.WorkflowInstance{
			ID:              instanceID,
			WorkflowBinding: cfg.Name,
			TaskID:          taskID,
			StartedAt:       time.Now().UTC(),
			Status:          state.WorkflowRunning,
		}
	})
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(checkPayload{
		InstanceID:      instanceID,
		WorkflowBinding: cfg.Name,
	})
	if err != nil {
		return "", err
	}
	if _, err := m.sched.ScheduleEvery(m.interval, CallbackCheckStatus, payload); err != nil {
		return "", err
	}

	m.logger.WithWorkflow(instanceID).Info("workflow instance started",
		"binding", cfg.Name, "task_id", taskID)
	return instanceID, nil
}

// check is the scheduled poll. It returns scheduler.ErrStopRepeat once the
// instance no longer needs polling; any recorded failure stays on the
// instance, never on the owning task.
func (m *Monitor) check(ctx context.Context, raw json.RawMessage) error {
	var payload checkPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		m.logger.Error("malformed workflow check payload", "error", err)
		return scheduler.ErrStopRepeat
	}
	log := m.logger.WithWorkflow(payload.InstanceID)

	recorded, ok := m.store.WorkflowInstance(payload.InstanceID)
	if !ok {
		return scheduler.ErrStopRepeat
	}
	if recorded.Status.IsTerminal() {
		return scheduler.ErrStopRepeat
	}

	binding, err := m.registry.Resolve(payload.WorkflowBinding)
	if err != nil {
		log.Warn("workflow binding disappeared", "binding", payload.WorkflowBinding)
		m.recordInstance(payload.InstanceID, InstanceStatus{
			Status: StatusFailed,
			Error:  err.Error(),
		})
		return scheduler.ErrStopRepeat
	}

	instance, ok := binding.Get(payload.InstanceID)
	if !ok {
		log.Warn("workflow instance not found in binding", "binding", payload.WorkflowBinding)
		m.recordInstance(payload.InstanceID, InstanceStatus{
			Status: StatusFailed,
			Error:  errors.ErrWorkflowInstanceNotFound.Error(),
		})
		return scheduler.ErrStopRepeat
	}

	status, err := instance.Status(ctx)
	if err != nil {
		log.Error("workflow status check failed", "error", err)
		m.recordInstance(payload.InstanceID, InstanceStatus{
			Status: StatusFailed,
			Error:  err.Error(),
		})
		return scheduler.ErrStopRepeat
	}

	m.recordInstance(payload.InstanceID, status)
	if status.Status == StatusRunning || status.Status == StatusPending {
		return nil
	}
	return scheduler.ErrStopRepeat
}

// recordInstance merges a polled status into the stored instance. Pending
// maps to running; an absent result or error leaves the recorded one alone.
func (m *Monitor) recordInstance(instanceID string, status InstanceStatus) {
	err := m.store.MutateIf(func(snap *state.Snapshot) bool {
		existing, ok := snap.WorkflowInstances[instanceID]
		if !ok {
			return false
		}
		switch status.Status {
		case StatusPending, StatusRunning:
			existing.Status = state.WorkflowRunning
		case StatusCompleted:
			existing.Status = state.WorkflowCompleted
		case StatusFailed:
			existing.Status = state.WorkflowFailed
		}
		if len(status.Result) > 0 {
			existing.Result = append(json.RawMessage(nil), status.Result...)
		}
		if status.Error != "" {
			existing.Error = status.Error
		}
		return true
	})
	if err != nil {
		m.logger.WithWorkflow(instanceID).Error("record workflow status", "error", err)
	}
}
