package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/orchid-dev/orchid/internal/task"
)

type fakeSandbox struct {
	result ExecuteResult
	err    error
	params ExecuteParams
}

func (f *fakeSandbox) Execute(ctx context.Context, params ExecuteParams) (ExecuteResult, error) {
	f.params = params
	return f.result, f.err
}

func TestRecreationAgentCleanRun(t *testing.T) {
	sb := &fakeSandbox{result: ExecuteResult{Output: "42"}}
	a := NewRecreationAgent(sb, 5*time.Second)

	raw, err := a.Execute(context.Background(), storedTask(task.TypeErrorRecreation, "", map[string]any{
		"id":      "bug-1",
		"code":    "console.log(42)",
		"runtime": "node",
	}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var got recreationResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Success || got.ErrorRecreated {
		t.Fatalf("success=%v errorRecreated=%v, want true/false", got.Success, got.ErrorRecreated)
	}
	if len(got.Analysis.Patterns) != 1 || got.Analysis.Patterns[0].Pattern != "no-error" {
		t.Fatalf("patterns = %+v, want single no-error pattern", got.Analysis.Patterns)
	}
	if got.Analysis.Patterns[0].Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", got.Analysis.Patterns[0].Confidence)
	}
	if got.Analysis.RequiresIteration {
		t.Fatal("clean run should not require iteration")
	}
	if sb.params.Code != "console.log(42)" || sb.params.Runtime != "node" {
		t.Fatalf("sandbox params = %+v, want payload forwarded", sb.params)
	}
}

func TestRecreationAgentTypeErrorRequiresIteration(t *testing.T) {
	sb := &fakeSandbox{result: ExecuteResult{
		Error:      "TypeError: x is not a function",
		StackTrace: "at main.js:3",
	}}
	a := NewRecreationAgent(sb, 0)

	raw, err := a.Execute(context.Background(), storedTask(task.TypeErrorRecreation, "", map[string]any{
		"id":   "bug-2",
		"code": "x()",
	}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var got recreationResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Success || !got.ErrorRecreated {
		t.Fatalf("success=%v errorRecreated=%v, want false/true", got.Success, got.ErrorRecreated)
	}
	if len(got.Analysis.Patterns) != 2 {
		t.Fatalf("patterns = %+v, want raw error plus type-mismatch", got.Analysis.Patterns)
	}
	if got.Analysis.Patterns[1].Pattern != "type-mismatch" || got.Analysis.Patterns[1].Confidence != 0.65 {
		t.Fatalf("second pattern = %+v, want type-mismatch at 0.65", got.Analysis.Patterns[1])
	}
	if !got.Analysis.RequiresIteration {
		t.Fatal("low-confidence pattern should require iteration")
	}
	if len(got.Analysis.Suggestions) != 2 {
		t.Fatalf("suggestions = %v, want one per pattern", got.Analysis.Suggestions)
	}
}

func TestRecreationAgentReferenceError(t *testing.T) {
	sb := &fakeSandbox{result: ExecuteResult{Error: "ReferenceError: y is not defined"}}
	a := NewRecreationAgent(sb, 0)

	raw, err := a.Execute(context.Background(), storedTask(task.TypeErrorRecreation, "", map[string]any{
		"id":   "bug-3",
		"code": "y",
	}))
	if err != nil {
		t.Fatal(err)
	}

	var got recreationResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	last := got.Analysis.Patterns[len(got.Analysis.Patterns)-1]
	if last.Pattern != "undefined-reference" || last.Confidence != 0.6 {
		t.Fatalf("last pattern = %+v, want undefined-reference at 0.6", last)
	}
}

func TestValidationAgentComparesCases(t *testing.T) {
	a := NewValidationAgent()
	raw, err := a.Execute(context.Background(), storedTask(task.TypeSolutionValidation, "", map[string]any{
		"id":       "sol-1",
		"solution": "return a+b",
		"testCases": []map[string]any{
			{"name": "adds", "expected": float64(3), "actual": float64(3)},
			{"name": "legacy keys", "expectedOutput": "ok", "actualOutput": "ok"},
			{"name": "mismatch", "expected": float64(1), "actual": float64(2)},
		},
	}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var got validationResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Valid {
		t.Fatal("a failing case should make the result invalid")
	}
	if len(got.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(got.Results))
	}
	if !got.Results[0].Passed || !got.Results[1].Passed || got.Results[2].Passed {
		t.Fatalf("pass pattern = %+v, want pass/pass/fail", got.Results)
	}
	if got.Coverage != 2.0/3.0 {
		t.Fatalf("coverage = %v, want 2/3", got.Coverage)
	}
	if got.PerformanceMetrics.TotalCases != 3 || got.PerformanceMetrics.PassedCases != 2 {
		t.Fatalf("performanceMetrics = %+v, want 3 total, 2 passed", got.PerformanceMetrics)
	}
	if got.PerformanceMetrics.EvaluatedAt.IsZero() {
		t.Fatal("evaluatedAt should be set")
	}
}

func TestValidationAgentNoCasesFullCoverage(t *testing.T) {
	a := NewValidationAgent()
	raw, err := a.Execute(context.Background(), storedTask(task.TypeSolutionValidation, "", map[string]any{
		"id":       "sol-2",
		"solution": "noop",
	}))
	if err != nil {
		t.Fatal(err)
	}
	var got validationResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Valid || got.Coverage != 1 {
		t.Fatalf("valid=%v coverage=%v, want true/1 with no cases", got.Valid, got.Coverage)
	}
}

func TestTestingAgentSingleHealthCheck(t *testing.T) {
	a := NewTestingAgent()
	raw, err := a.Execute(context.Background(), storedTask(task.TypeTesting, "", map[string]any{
		"id":        "suite-1",
		"suiteName": "health",
		"tests": []map[string]any{
			{"name": "health check", "expected": "ok", "actual": "ok", "durationMs": float64(12)},
		},
	}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var got testingResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	want := testSummary{Passed: 1, Failed: 0, Skipped: 0, DurationMs: 12}
	if got.Summary != want {
		t.Fatalf("summary = %+v, want %+v", got.Summary, want)
	}
	if got.SuiteName != "health" {
		t.Fatalf("suiteName = %q, want health", got.SuiteName)
	}
	if len(got.Details) != 1 || got.Details[0].Status != "passed" || got.Details[0].TestName != "health check" {
		t.Fatalf("details = %+v, want single passed health check", got.Details)
	}
}

func TestTestingAgentSkipsUnrecordedOutcomes(t *testing.T) {
	a := NewTestingAgent()
	raw, err := a.Execute(context.Background(), storedTask(task.TypeTesting, "", map[string]any{
		"id":        "suite-2",
		"suiteName": "mixed",
		"tests": []map[string]any{
			{"name": "ok", "expected": float64(1), "actual": float64(1)},
			{"name": "broken", "expected": "a", "actual": "b"},
			{"name": "not run", "expected": "a"},
			{},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}

	var got testingResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Summary.Passed != 1 || got.Summary.Failed != 1 || got.Summary.Skipped != 2 {
		t.Fatalf("summary = %+v, want 1 passed, 1 failed, 2 skipped", got.Summary)
	}
	if got.Details[3].TestName != "test-3" {
		t.Fatalf("unnamed test = %q, want generated test-3", got.Details[3].TestName)
	}
}

func TestTestingAgentMergesCoverage(t *testing.T) {
	a := NewTestingAgent()
	raw, err := a.Execute(context.Background(), storedTask(task.TypeTesting, "", map[string]any{
		"id":        "suite-3",
		"suiteName": "coverage",
		"tests": []map[string]any{
			{"name": "a", "expected": "x", "actual": "x", "coverage": map[string]any{"lines": float64(40), "branches": float64(20)}},
			{"name": "b", "expected": "y", "actual": "y", "coverage": map[string]any{"lines": float64(75)}},
		},
	}))
	if err != nil {
		t.Fatal(err)
	}

	var got testingResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Coverage["lines"] != float64(75) {
		t.Fatalf("lines = %v, want the higher 75", got.Coverage["lines"])
	}
	if got.Coverage["branches"] != float64(20) {
		t.Fatalf("branches = %v, want 20 preserved", got.Coverage["branches"])
	}
}
