package agent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/task"
)

// errorPattern is one recognized signature in a sandbox failure.
type errorPattern struct {
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
}

type errorAnalysis struct {
	Patterns          []errorPattern `json:"patterns"`
	Suggestions       []string       `json:"suggestions"`
	RequiresIteration bool           `json:"requiresIteration"`
}

type recreationResult struct {
	Success        bool          `json:"success"`
	ErrorRecreated bool          `json:"errorRecreated"`
	Output         string        `json:"output,omitempty"`
	Error          string        `json:"error,omitempty"`
	StackTrace     string        `json:"stackTrace,omitempty"`
	Analysis       errorAnalysis `json:"analysis"`
}

// RecreationAgent replays a reported error inside a sandbox and
// classifies what came back.
type RecreationAgent struct {
	sandbox Sandbox
	timeout time.Duration
}

// NewRecreationAgent wraps a sandbox. A zero timeout uses the sandbox
// service's own default.
func NewRecreationAgent(sandbox Sandbox, timeout time.Duration) *RecreationAgent {
	return &RecreationAgent{sandbox: sandbox, timeout: timeout}
}

func (a *RecreationAgent) Execute(ctx context.Context, t *task.Stored) (json.RawMessage, error) {
	payload, err := t.DecodeRecreation()
	if err != nil {
		return nil, err
	}

	exec, err := a.sandbox.Execute(ctx, ExecuteParams{
		Code:        payload.Code,
		Runtime:     payload.Runtime,
		Timeout:     a.timeout,
		Environment: payload.Context,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sandbox execution failed")
	}

	analysis := analyzeExecution(exec)
	result := recreationResult{
		Success:        exec.Error == "",
		ErrorRecreated: exec.Error != "",
		Output:         exec.Output,
		Error:          exec.Error,
		StackTrace:     exec.StackTrace,
		Analysis:       analysis,
	}
	return json.Marshal(result)
}

// analyzeExecution maps a sandbox result to the patterns it exhibits.
// A clean run is itself a signal: the error did not recreate.
func analyzeExecution(exec ExecuteResult) errorAnalysis {
	var patterns []errorPattern
	if exec.Error == "" {
		patterns = append(patterns, errorPattern{Pattern: "no-error", Confidence: 0.9})
	} else {
		patterns = append(patterns, errorPattern{Pattern: exec.Error, Confidence: 0.85})
		if strings.Contains(exec.Error, "TypeError") {
			patterns = append(patterns, errorPattern{Pattern: "type-mismatch", Confidence: 0.65})
		}
		if strings.Contains(exec.Error, "ReferenceError") {
			patterns = append(patterns, errorPattern{Pattern: "undefined-reference", Confidence: 0.6})
		}
	}

	analysis := errorAnalysis{Patterns: patterns}
	for _, p := range patterns {
		analysis.Suggestions = append(analysis.Suggestions, "Investigate pattern: "+p.Pattern)
		if p.Confidence < 0.7 {
			analysis.RequiresIteration = true
		}
	}
	return analysis
}
