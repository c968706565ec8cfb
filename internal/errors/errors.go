// Package errors provides centralized error definitions and error handling
// utilities for the orchestrator. It defines the submission and dispatch
// error taxonomy as sentinel errors, domain-specific error types with
// context builders, and classification helpers.
//
// Creating errors:
//
//	err := errors.NewDispatchError("agent call failed", cause).WithTaskID("abc")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrAgentUnavailable) { ... }
//
//	var execErr *errors.AgentExecutionError
//	if errors.As(err, &execErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience so callers only
// import this package for error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Submission errors, surfaced synchronously to the caller.
var (
	// ErrInvalidTaskDefinition indicates a malformed submission, rejected
	// before anything is persisted.
	ErrInvalidTaskDefinition = New("invalid task definition")
	// ErrTaskNotFound indicates that a task id is not known to the engine.
	ErrTaskNotFound = New("task not found")
)

// Dispatch errors, captured into the failing task's terminal state.
var (
	// ErrUnknownTaskType indicates that dispatch cannot resolve a pool for
	// the task's declared type.
	ErrUnknownTaskType = New("unknown task type")
	// ErrAgentUnavailable indicates that the named agent pool is not
	// configured.
	ErrAgentUnavailable = New("agent unavailable")
)

// Workflow errors.
var (
	// ErrWorkflowBindingMissing indicates that a declared workflow binding
	// was absent from the registry.
	ErrWorkflowBindingMissing = New("workflow binding missing")
	// ErrWorkflowInstanceNotFound indicates that a workflow instance id is
	// not known to the engine.
	ErrWorkflowInstanceNotFound = New("workflow instance not found")
)

// ErrSinkDelivery indicates a failed result-sink delivery. Non-fatal: it is
// logged and counted, never propagated into task state.
var ErrSinkDelivery = New("sink delivery failed")

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// baseError provides common functionality for all domain error types.
type baseError struct {
	message string
	cause   error
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// DispatchError represents a failure to route or execute a task through the
// agent dispatch pool.
//
// Example:
//
//	err := errors.NewDispatchError("pool not configured", errors.ErrAgentUnavailable).
//		WithTaskID("t1").WithPool("testing", "default")
type DispatchError struct {
	baseError
	TaskID  string
	Pool    string
	AgentID string
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(message string, cause error) *DispatchError {
	return &DispatchError{baseError: baseError{message: message, cause: cause}}
}

// WithTaskID adds a task id to the error context.
func (e *DispatchError) WithTaskID(id string) *DispatchError {
	e.TaskID = id
	return e
}

// WithPool adds the pool namespace and agent id to the error context.
func (e *DispatchError) WithPool(pool, agentID string) *DispatchError {
	e.Pool = pool
	e.AgentID = agentID
	return e
}

// Error returns the formatted error message.
func (e *DispatchError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Pool != "" {
		parts = append(parts, fmt.Sprintf("pool=%s", e.Pool))
	}
	if e.AgentID != "" {
		parts = append(parts, fmt.Sprintf("agent=%s", e.AgentID))
	}

	prefix := "dispatch error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("dispatch error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *DispatchError) Is(target error) bool {
	if _, ok := target.(*DispatchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AgentExecutionError represents a non-success response from a remote agent.
// The message carries the agent's textual error body.
type AgentExecutionError struct {
	baseError
	Endpoint   string
	StatusCode int
}

// NewAgentExecutionError creates a new AgentExecutionError.
func NewAgentExecutionError(message string, cause error) *AgentExecutionError {
	return &AgentExecutionError{baseError: baseError{message: message, cause: cause}}
}

// WithEndpoint adds the agent endpoint to the error context.
func (e *AgentExecutionError) WithEndpoint(endpoint string) *AgentExecutionError {
	e.Endpoint = endpoint
	return e
}

// WithStatusCode adds the HTTP status code to the error context.
func (e *AgentExecutionError) WithStatusCode(code int) *AgentExecutionError {
	e.StatusCode = code
	return e
}

// Error returns the formatted error message.
func (e *AgentExecutionError) Error() string {
	var parts []string
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", e.Endpoint))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}

	prefix := "agent execution failed"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("agent execution failed [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *AgentExecutionError) Is(target error) bool {
	if _, ok := target.(*AgentExecutionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// WorkflowCheckError represents a failed workflow status check. It is
// terminal for the workflow instance only, never the owning task.
type WorkflowCheckError struct {
	baseError
	InstanceID string
	Binding    string
}

// NewWorkflowCheckError creates a new WorkflowCheckError.
func NewWorkflowCheckError(message string, cause error) *WorkflowCheckError {
	return &WorkflowCheckError{baseError: baseError{message: message, cause: cause}}
}

// WithInstance adds the instance id and binding name to the error context.
func (e *WorkflowCheckError) WithInstance(instanceID, binding string) *WorkflowCheckError {
	e.InstanceID = instanceID
	e.Binding = binding
	return e
}

// Error returns the formatted error message.
func (e *WorkflowCheckError) Error() string {
	var parts []string
	if e.InstanceID != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", e.InstanceID))
	}
	if e.Binding != "" {
		parts = append(parts, fmt.Sprintf("binding=%s", e.Binding))
	}

	prefix := "workflow check failed"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("workflow check failed [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *WorkflowCheckError) Is(target error) bool {
	if _, ok := target.(*WorkflowCheckError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input, rejected before persistence.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{baseError: baseError{message: message}}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidTaskDefinition) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsSubmissionError returns true for errors that are surfaced synchronously
// to the submitting caller rather than captured into task state.
func IsSubmissionError(err error) bool {
	if err == nil {
		return false
	}
	var validation *ValidationError
	return Is(err, ErrInvalidTaskDefinition) || Is(err, ErrTaskNotFound) || As(err, &validation)
}

// IsDispatchError returns true for errors that terminate a task's processing.
func IsDispatchError(err error) bool {
	if err == nil {
		return false
	}
	var dispatch *DispatchError
	var exec *AgentExecutionError
	return Is(err, ErrUnknownTaskType) || Is(err, ErrAgentUnavailable) ||
		As(err, &dispatch) || As(err, &exec)
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
