package agent

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/orchid-dev/orchid/internal/task"
)

type testDetail struct {
	Index      int     `json:"index"`
	TestName   string  `json:"testName"`
	Status     string  `json:"status"`
	DurationMs float64 `json:"durationMs,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

type testSummary struct {
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	DurationMs float64 `json:"durationMs"`
}

type testingResult struct {
	SuiteName string         `json:"suiteName"`
	Summary   testSummary    `json:"summary"`
	Details   []testDetail   `json:"details"`
	Coverage  map[string]any `json:"coverage,omitempty"`
}

// TestingAgent aggregates a suite of pre-executed test results into a
// single report. Tests without both an expected and an actual value are
// counted as skipped rather than failed.
type TestingAgent struct{}

func NewTestingAgent() *TestingAgent {
	return &TestingAgent{}
}

func (a *TestingAgent) Execute(ctx context.Context, t *task.Stored) (json.RawMessage, error) {
	payload, err := t.DecodeTesting()
	if err != nil {
		return nil, err
	}

	result := testingResult{SuiteName: payload.SuiteName}
	for i, test := range payload.Tests {
		detail := testDetail{Index: i, TestName: testName(test, i)}
		if ms, ok := numberField(test, "durationMs"); ok {
			detail.DurationMs = ms
			result.Summary.DurationMs += ms
		}

		expected, hasExpected := caseField(test, "expected", "expectedOutput")
		actual, hasActual := caseField(test, "actual", "actualOutput")
		switch {
		case !hasExpected || !hasActual:
			detail.Status = "skipped"
			detail.Detail = "no recorded outcome"
			result.Summary.Skipped++
		case reflect.DeepEqual(expected, actual):
			detail.Status = "passed"
			result.Summary.Passed++
		default:
			detail.Status = "failed"
			result.Summary.Failed++
		}
		result.Details = append(result.Details, detail)

		if cov, ok := test["coverage"].(map[string]any); ok {
			result.Coverage = mergeCoverage(result.Coverage, cov)
		}
	}
	return json.Marshal(result)
}

func testName(test map[string]any, index int) string {
	for _, key := range []string{"name", "testName"} {
		if name, ok := test[key].(string); ok && name != "" {
			return name
		}
	}
	return "test-" + strconv.Itoa(index)
}

func numberField(test map[string]any, key string) (float64, bool) {
	v, ok := test[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// mergeCoverage keeps the highest value seen per numeric metric and the
// latest value for anything else.
func mergeCoverage(base, next map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any, len(next))
	}
	for k, v := range next {
		nv, nOK := v.(float64)
		bv, bOK := base[k].(float64)
		if nOK && bOK {
			if nv > bv {
				base[k] = nv
			}
			continue
		}
		base[k] = v
	}
	return base
}
