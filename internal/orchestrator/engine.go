// Package orchestrator composes the store, scheduler, dispatch pool,
// workflow monitor, notifier, and result sink into the task engine. One
// engine owns one state snapshot; all task lifecycle transitions flow
// through it.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/orchid-dev/orchid/internal/agent"
	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/logging"
	"github.com/orchid-dev/orchid/internal/notify"
	"github.com/orchid-dev/orchid/internal/scheduler"
	"github.com/orchid-dev/orchid/internal/sink"
	"github.com/orchid-dev/orchid/internal/state"
	"github.com/orchid-dev/orchid/internal/task"
	"github.com/orchid-dev/orchid/internal/workflow"
)

// CallbackProcessTask is the scheduler callback name for task processing.
const CallbackProcessTask = "processTask"

// processPayload identifies the task a scheduled processing run targets.
type processPayload struct {
	TaskID string `json:"taskId"`
}

// Acceptance is the synchronous reply to a submission: the task is
// persisted and queued, not yet executed.
type Acceptance struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// Options wires an Engine. Store, Scheduler, Agents, and Workflows are
// required; Sink and Logger are optional.
type Options struct {
	Store     *state.Store
	Scheduler *scheduler.Scheduler
	Agents    *agent.Registry
	Workflows *workflow.Registry

	// CheckInterval is the workflow poll cadence; zero means the default.
	CheckInterval time.Duration

	// Sink receives finished-task results, best effort. Nil disables
	// result emission entirely.
	Sink sink.Sink

	Logger *logging.Logger
}

// Engine is the task orchestration core.
type Engine struct {
	store    *state.Store
	sched    *scheduler.Scheduler
	agents   *agent.Registry
	monitor  *workflow.Monitor
	hub      *notify.Hub
	delivery *sink.Delivery
	logger   *logging.Logger
}

// New wires an Engine from its components and registers the scheduler
// callbacks. Call Start afterwards to recover persisted work.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Scheduler == nil || opts.Agents == nil || opts.Workflows == nil {
		return nil, errors.New("orchestrator: store, scheduler, agents, and workflows are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	e := &Engine{
		store:  opts.Store,
		sched:  opts.Scheduler,
		agents: opts.Agents,
		logger: logger,
	}

	e.monitor = workflow.NewMonitor(opts.Store, opts.Workflows, opts.Scheduler, opts.CheckInterval, logger)
	if err := e.monitor.Register(); err != nil {
		return nil, err
	}
	if err := e.sched.Register(CallbackProcessTask, e.processTask); err != nil {
		return nil, err
	}

	e.hub = notify.NewHub(e.store.Snapshot, logger)
	e.hub.SetCallbacks(
		func(id string) {
			if err := e.store.Mutate(func(s *state.Snapshot) { s.AddSubscriber(id) }); err != nil {
				logger.Error("record subscriber", "conn_id", id, "error", err)
			}
		},
		func(id string) {
			if err := e.store.Mutate(func(s *state.Snapshot) { s.RemoveSubscriber(id) }); err != nil {
				logger.Error("remove subscriber", "conn_id", id, "error", err)
			}
		},
	)
	e.store.OnUpdate(e.hub.Broadcast)

	if opts.Sink != nil {
		e.delivery = sink.NewDelivery(opts.Sink, logger, func() {
			err := e.store.Mutate(func(s *state.Snapshot) {
				s.Metrics.DroppedSinkDeliveries++
			})
			if err != nil {
				logger.Error("count dropped delivery", "error", err)
			}
		})
	}

	return e, nil
}

// Hub exposes the notifier for transport layers to attach connections.
func (e *Engine) Hub() *notify.Hub {
	return e.hub
}

// Start recovers persisted scheduler entries and re-queues tasks that were
// pending or running when the previous process stopped. Stale subscriber
// ids from the previous process are cleared first; their connections died
// with it.
func (e *Engine) Start() error {
	err := e.store.MutateIf(func(s *state.Snapshot) bool {
		if len(s.Subscribers) == 0 {
			return false
		}
		s.Subscribers = s.Subscribers[:0]
		return true
	})
	if err != nil {
		return err
	}

	if err := e.sched.Recover(); err != nil {
		return err
	}
	return e.recoverPending()
}

// recoverPending re-schedules processing for every non-terminal task.
// Combined with scheduler recovery this can double-queue a task; the
// terminal guard in processTask makes the extra run a no-op once the first
// one resolves it.
func (e *Engine) recoverPending() error {
	snap := e.store.Snapshot()
	for id, t := range snap.Tasks {
		if t.Status.IsTerminal() {
			continue
		}
		e.logger.WithTask(id).Info("re-queueing unresolved task", "status", t.Status)
		if err := e.scheduleProcess(id); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the scheduler. In-flight callbacks run to completion.
func (e *Engine) Close() {
	e.sched.Close()
}

// Submit validates and persists a new task, then queues it for immediate
// processing. The task executes asynchronously; the returned Acceptance
// only promises that the task is durably recorded.
func (e *Engine) Submit(ctx context.Context, def *task.Definition) (Acceptance, error) {
	if err := task.Validate(def); err != nil {
		return Acceptance{}, err
	}

	id := task.NewID()
	now := time.Now().UTC()
	stored := &task.Stored{
		Definition: *def,
		ID:         id,
		Status:     task.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := e.store.Mutate(func(s *state.Snapshot) {
		s.Tasks[id] = stored
		s.Metrics.TotalTasks++
		at := now
		s.Metrics.LastDispatchAt = &at
		s.AppendAudit(id, task.StatusPending)
	})
	if err != nil {
		return Acceptance{}, err
	}

	if err := e.scheduleProcess(id); err != nil {
		// The task is persisted; recovery or an explicit resume picks
		// it up.
		return Acceptance{}, err
	}

	e.logger.WithTask(id).Info("task accepted", "type", def.Type)
	return Acceptance{TaskID: id, Status: "accepted"}, nil
}

// Resume re-queues processing for a persisted task id. Resuming a terminal
// task is a no-op; resuming an unknown id is an error.
func (e *Engine) Resume(ctx context.Context, taskID string) error {
	t, ok := e.store.Task(taskID)
	if !ok {
		return errors.Wrapf(errors.ErrTaskNotFound, "resume %s", taskID)
	}
	if t.Status.IsTerminal() {
		e.logger.WithTask(taskID).Debug("resume ignored for terminal task", "status", t.Status)
		return nil
	}
	return e.scheduleProcess(taskID)
}

// Status returns the full state snapshot.
func (e *Engine) Status() *state.Snapshot {
	return e.store.Snapshot()
}

// Metrics returns the engine counters.
func (e *Engine) Metrics() state.Metrics {
	return e.store.Metrics()
}

// Task returns one stored task by id.
func (e *Engine) Task(taskID string) (*task.Stored, error) {
	t, ok := e.store.Task(taskID)
	if !ok {
		return nil, errors.Wrapf(errors.ErrTaskNotFound, "%s", taskID)
	}
	return t, nil
}

// markAgent records the last observed liveness of the agent a task was
// routed to, keyed by pool and instance.
func (e *Engine) markAgent(t *task.Stored, status, activeTaskID string) {
	agentID := t.AgentID
	if agentID == "" {
		agentID = agent.DefaultAgentID
	}
	key := string(t.Type) + "/" + agentID
	err := e.store.Mutate(func(s *state.Snapshot) {
		s.AgentStatus[key] = state.AgentStatus{
			AgentID:       agentID,
			LastHeartbeat: time.Now().UTC(),
			ActiveTaskID:  activeTaskID,
			Status:        status,
		}
	})
	if err != nil {
		e.logger.Error("record agent status", "agent_id", agentID, "error", err)
	}
}

func (e *Engine) scheduleProcess(taskID string) error {
	payload, err := json.Marshal(processPayload{TaskID: taskID})
	if err != nil {
		return err
	}
	_, err = e.sched.ScheduleOnce(0, CallbackProcessTask, payload)
	return err
}

// processTask drives one task from pending through dispatch to a terminal
// state. Redelivery of the callback for an already-terminal task is a
// no-op, which makes the at-least-once scheduler safe to sit under it.
func (e *Engine) processTask(ctx context.Context, raw json.RawMessage) error {
	var payload processPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		e.logger.Error("malformed process payload", "error", err)
		return nil
	}
	log := e.logger.WithTask(payload.TaskID)

	t, ok := e.store.Task(payload.TaskID)
	if !ok {
		log.Warn("processing requested for unknown task")
		return nil
	}

	// Transition to running with the terminal check inside the mutation:
	// a duplicate delivery racing a finalize must never reanimate the task.
	proceed := false
	err := e.store.MutateIf(func(s *state.Snapshot) bool {
		st, found := s.Tasks[payload.TaskID]
		if !found || st.Status.IsTerminal() {
			return false
		}
		proceed = true
		if st.Status == task.StatusRunning {
			return false
		}
		st.Status = task.StatusRunning
		st.UpdatedAt = time.Now().UTC()
		s.AppendAudit(payload.TaskID, task.StatusRunning)
		return true
	})
	if err != nil {
		return err
	}
	if !proceed {
		log.Debug("skipping already-resolved task")
		return nil
	}
	t.Status = task.StatusRunning

	e.markAgent(t, "busy", payload.TaskID)
	result, err := e.dispatch(ctx, t)
	if err != nil {
		e.markAgent(t, "error", "")
		log.Warn("task failed", "error", err)
		if e.finalizeFailure(payload.TaskID, err) {
			e.emitFailure(ctx, t, err)
		}
		return nil
	}
	e.markAgent(t, "idle", "")

	if !e.finalizeSuccess(payload.TaskID, result) {
		return nil
	}
	log.Info("task completed")

	if t.Workflow != nil {
		if _, werr := e.monitor.Trigger(ctx, t.Workflow, payload.TaskID, result); werr != nil {
			// A workflow trigger failure never re-opens the task.
			log.Error("workflow trigger failed", "workflow", t.Workflow.Name, "error", werr)
		}
	}
	e.emitResult(ctx, t, result)
	return nil
}

// panicError preserves the stack of an agent panic so it lands in the
// task's failure record.
type panicError struct {
	value any
	stack string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("agent panicked: %v", p.value)
}

// dispatch calls the agent pool, converting a panic in an in-process agent
// into an ordinary dispatch failure.
func (e *Engine) dispatch(ctx context.Context, t *task.Stored) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
			e.logger.WithTask(t.ID).Error("agent panic", "panic", r)
		}
	}()
	return e.agents.Dispatch(ctx, t)
}

// finalizeSuccess moves the task to completed and bumps the counter,
// unless another delivery already resolved it. Returns whether this call
// performed the transition.
func (e *Engine) finalizeSuccess(taskID string, result json.RawMessage) bool {
	finalized := false
	err := e.store.MutateIf(func(s *state.Snapshot) bool {
		t, ok := s.Tasks[taskID]
		if !ok || t.Status.IsTerminal() {
			return false
		}
		t.Status = task.StatusCompleted
		t.Result = append(json.RawMessage(nil), result...)
		t.UpdatedAt = time.Now().UTC()
		s.Metrics.CompletedTasks++
		s.AppendAudit(taskID, task.StatusCompleted)
		finalized = true
		return true
	})
	if err != nil {
		e.logger.WithTask(taskID).Error("finalize completed task", "error", err)
	}
	return finalized
}

// finalizeFailure is the failed-state counterpart of finalizeSuccess.
func (e *Engine) finalizeFailure(taskID string, cause error) bool {
	failure := &task.Failure{Message: cause.Error()}
	var pe *panicError
	if errors.As(cause, &pe) {
		failure.Stack = pe.stack
	}

	finalized := false
	err := e.store.MutateIf(func(s *state.Snapshot) bool {
		t, ok := s.Tasks[taskID]
		if !ok || t.Status.IsTerminal() {
			return false
		}
		t.Status = task.StatusFailed
		t.Error = failure
		t.UpdatedAt = time.Now().UTC()
		s.Metrics.FailedTasks++
		s.AppendAudit(taskID, task.StatusFailed)
		finalized = true
		return true
	})
	if err != nil {
		e.logger.WithTask(taskID).Error("finalize failed task", "error", err)
	}
	return finalized
}

func (e *Engine) emitResult(ctx context.Context, t *task.Stored, result json.RawMessage) {
	if e.delivery == nil {
		return
	}
	e.delivery.Emit(ctx, sink.Message{
		TaskID: t.ID,
		Type:   t.Type,
		Result: result,
	})
}

func (e *Engine) emitFailure(ctx context.Context, t *task.Stored, cause error) {
	if e.delivery == nil {
		return
	}
	msg := sink.Message{
		TaskID: t.ID,
		Type:   t.Type,
		Error:  cause.Error(),
	}
	if stored, ok := e.store.Task(t.ID); ok && stored.Error != nil {
		msg.Stack = stored.Error.Stack
	}
	e.delivery.Emit(ctx, msg)
}
