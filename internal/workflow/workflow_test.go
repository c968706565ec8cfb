package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/orchid-dev/orchid/internal/errors"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRegistryResolveMissing(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("validation")
	if !errors.Is(err, errors.ErrWorkflowBindingMissing) {
		t.Fatalf("got %v, want ErrWorkflowBindingMissing", err)
	}
}

func TestRegistryDuplicateAdd(t *testing.T) {
	r := NewRegistry()
	if err := r.Add("validation", NewLocalBinding(Validation)); err != nil {
		t.Fatal(err)
	}
	if err := r.Add("validation", NewLocalBinding(Validation)); err == nil {
		t.Fatal("expected error registering binding twice")
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}
	for _, name := range []string{BindingErrorAnalysis, BindingValidation, BindingTesting} {
		if _, err := r.Resolve(name); err != nil {
			t.Errorf("Resolve(%q) failed: %v", name, err)
		}
	}
}

func TestLocalBindingRunsToCompletion(t *testing.T) {
	b := NewLocalBinding(Validation)
	inst, err := b.Create(context.Background(), CreateOptions{
		ID: "wf-1",
		Params: map[string]any{
			"testCases": []any{
				map[string]any{"expected": "ok", "actual": "ok"},
			},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		st, _ := inst.Status(context.Background())
		return st.Status == StatusCompleted
	})

	st, err := inst.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var result struct {
		AllTestsPassed bool    `json:"allTestsPassed"`
		Coverage       float64 `json:"coverage"`
	}
	if err := json.Unmarshal(st.Result, &result); err != nil {
		t.Fatal(err)
	}
	if !result.AllTestsPassed || result.Coverage != 1 {
		t.Fatalf("result = %+v, want all passed at full coverage", result)
	}

	got, ok := b.Get("wf-1")
	if !ok || got.ID() != "wf-1" {
		t.Fatal("Get should return the created instance")
	}
}

func TestLocalBindingDuplicateID(t *testing.T) {
	b := NewLocalBinding(Validation)
	if _, err := b.Create(context.Background(), CreateOptions{ID: "wf-1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Create(context.Background(), CreateOptions{ID: "wf-1"}); err == nil {
		t.Fatal("expected error creating duplicate instance id")
	}
}

func TestErrorAnalysisPatterns(t *testing.T) {
	raw, err := ErrorAnalysis(context.Background(), map[string]any{
		"error":      "boom",
		"stackTrace": "TypeError: at line 3",
	})
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Patterns []struct {
			Pattern    string  `json:"pattern"`
			Confidence float64 `json:"confidence"`
		} `json:"patterns"`
		Suggestions       []string `json:"suggestions"`
		RequiresIteration bool     `json:"requiresIteration"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Patterns) != 2 {
		t.Fatalf("patterns = %+v, want raw error plus TypeError", got.Patterns)
	}
	if got.Patterns[0].Confidence != 0.8 || got.Patterns[1].Confidence != 0.6 {
		t.Fatalf("confidences = %+v, want 0.8 and 0.6", got.Patterns)
	}
	if !got.RequiresIteration {
		t.Fatal("TypeError at 0.6 should require iteration")
	}
	if got.Suggestions[0] != "Investigate pattern: boom" {
		t.Fatalf("suggestion = %q", got.Suggestions[0])
	}
}

func TestErrorAnalysisNoError(t *testing.T) {
	raw, err := ErrorAnalysis(context.Background(), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Patterns []struct {
			Pattern    string  `json:"pattern"`
			Confidence float64 `json:"confidence"`
		} `json:"patterns"`
		RequiresIteration bool `json:"requiresIteration"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Patterns) != 1 || got.Patterns[0].Pattern != "no-error" || got.Patterns[0].Confidence != 0.9 {
		t.Fatalf("patterns = %+v, want single no-error at 0.9", got.Patterns)
	}
	if got.RequiresIteration {
		t.Fatal("no-error should not require iteration")
	}
}

func TestValidationCaseWithoutExpectedPasses(t *testing.T) {
	raw, err := Validation(context.Background(), map[string]any{
		"testCases": []any{
			map[string]any{"actual": "whatever"},
			map[string]any{"expectedOutput": float64(2), "actualOutput": float64(3)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		AllTestsPassed bool    `json:"allTestsPassed"`
		Coverage       float64 `json:"coverage"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.AllTestsPassed {
		t.Fatal("mismatched legacy-key case should fail")
	}
	if got.Coverage != 0.5 {
		t.Fatalf("coverage = %v, want 0.5", got.Coverage)
	}
}

func TestTestingWorkflowStatuses(t *testing.T) {
	tests := []struct {
		name string
		test map[string]any
		want string
	}{
		{"both match", map[string]any{"expected": "a", "actual": "a"}, "passed"},
		{"mismatch", map[string]any{"expected": "a", "actual": "b"}, "failed"},
		{"no outcome", map[string]any{"expected": "a"}, "skipped"},
		{"empty", nil, "skipped"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Testing(context.Background(), map[string]any{"test": tc.test})
			if err != nil {
				t.Fatal(err)
			}
			var got struct {
				Status     string `json:"status"`
				DurationMs int64  `json:"durationMs"`
			}
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatal(err)
			}
			if got.Status != tc.want {
				t.Fatalf("status = %q, want %q", got.Status, tc.want)
			}
			if got.DurationMs < 1 {
				t.Fatalf("durationMs = %d, want >= 1", got.DurationMs)
			}
		})
	}
}
