package workflow

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// RegisterBuiltins installs the three local workflow bindings under their
// canonical names.
func RegisterBuiltins(r *Registry) error {
	for name, fn := range map[string]Func{
		BindingErrorAnalysis: ErrorAnalysis,
		BindingValidation:    Validation,
		BindingTesting:       Testing,
	} {
		if err := r.Add(name, NewLocalBinding(fn)); err != nil {
			return err
		}
	}
	return nil
}

// ErrorAnalysis classifies an error message and stack trace into patterns
// with confidences. A run with no recognizable error reports the no-error
// pattern at high confidence.
func ErrorAnalysis(ctx context.Context, params map[string]any) (json.RawMessage, error) {
	errMsg, _ := params["error"].(string)
	stackTrace, _ := params["stackTrace"].(string)

	type pattern struct {
		Pattern    string  `json:"pattern"`
		Confidence float64 `json:"confidence"`
	}
	var patterns []pattern
	if errMsg != "" {
		patterns = append(patterns, pattern{Pattern: errMsg, Confidence: 0.8})
	}
	if strings.Contains(stackTrace, "TypeError") {
		patterns = append(patterns, pattern{Pattern: "TypeError", Confidence: 0.6})
	}
	if strings.Contains(stackTrace, "ReferenceError") {
		patterns = append(patterns, pattern{Pattern: "ReferenceError", Confidence: 0.6})
	}
	if len(patterns) == 0 {
		patterns = append(patterns, pattern{Pattern: "no-error", Confidence: 0.9})
	}

	suggestions := make([]string, 0, len(patterns))
	requiresIteration := false
	for _, p := range patterns {
		suggestions = append(suggestions, "Investigate pattern: "+p.Pattern)
		if p.Confidence < 0.7 {
			requiresIteration = true
		}
	}

	return json.Marshal(map[string]any{
		"patterns":          patterns,
		"suggestions":       suggestions,
		"requiresIteration": requiresIteration,
	})
}

// Validation re-checks a solution's test cases. A case with no expected
// value counts as passed; the legacy expectedOutput/actualOutput keys are
// accepted alongside expected/actual.
func Validation(ctx context.Context, params map[string]any) (json.RawMessage, error) {
	testCases := caseList(params["testCases"])

	totalCases := len(testCases)
	passedCases := 0
	for _, tc := range testCases {
		expected, hasExpected := firstKey(tc, "expected", "expectedOutput")
		actual, _ := firstKey(tc, "actual", "actualOutput")
		if !hasExpected || reflect.DeepEqual(expected, actual) {
			passedCases++
		}
	}

	coverage := 1.0
	if totalCases > 0 {
		coverage = float64(passedCases) / float64(totalCases)
	}

	return json.Marshal(map[string]any{
		"allTestsPassed": totalCases == passedCases,
		"coverage":       coverage,
		"performanceMetrics": map[string]any{
			"evaluatedAt": time.Now().UTC(),
			"totalCases":  totalCases,
			"passedCases": passedCases,
		},
	})
}

// Testing evaluates a single test record: passed or failed when it carries
// both an expected and an actual value, skipped otherwise.
func Testing(ctx context.Context, params map[string]any) (json.RawMessage, error) {
	start := time.Now()
	test, _ := params["test"].(map[string]any)

	expected, hasExpected := firstKey(test, "expected", "expectedOutput")
	actual, hasActual := firstKey(test, "actual", "actualOutput")

	status := "skipped"
	if hasExpected && hasActual {
		if reflect.DeepEqual(expected, actual) {
			status = "passed"
		} else {
			status = "failed"
		}
	}

	durationMs := time.Since(start).Milliseconds()
	if durationMs < 1 {
		durationMs = 1
	}

	testName := "unnamed-test"
	if name, ok := test["name"].(string); ok && name != "" {
		testName = name
	}

	result := map[string]any{
		"status":     status,
		"durationMs": durationMs,
		"details": map[string]any{
			"testName":    testName,
			"evaluatedAt": start.UTC(),
		},
	}
	if cov, ok := test["coverage"]; ok {
		result["coverage"] = cov
	}
	return json.Marshal(result)
}

// caseList normalizes a decoded JSON array of objects.
func caseList(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func firstKey(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}
