package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/orchid-dev/orchid/internal/task"
)

type caseResult struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

type performanceMetrics struct {
	EvaluatedAt time.Time `json:"evaluatedAt"`
	TotalCases  int       `json:"totalCases"`
	PassedCases int       `json:"passedCases"`
}

type validationResult struct {
	Valid              bool               `json:"valid"`
	Results            []caseResult       `json:"results"`
	Coverage           float64            `json:"coverage"`
	PerformanceMetrics performanceMetrics `json:"performanceMetrics"`
}

// ValidationAgent checks a proposed solution against its test cases.
// Execution is assumed to have happened upstream: each case carries the
// expected and observed values and the agent only compares them.
type ValidationAgent struct {
	now func() time.Time
}

func NewValidationAgent() *ValidationAgent {
	return &ValidationAgent{now: time.Now}
}

func (a *ValidationAgent) Execute(ctx context.Context, t *task.Stored) (json.RawMessage, error) {
	payload, err := t.DecodeValidation()
	if err != nil {
		return nil, err
	}

	result := validationResult{Valid: true}
	passed := 0
	for i, tc := range payload.TestCases {
		cr := caseResult{Index: i}
		if name, ok := tc["name"].(string); ok {
			cr.Name = name
		}

		expected, hasExpected := caseField(tc, "expected", "expectedOutput")
		actual, hasActual := caseField(tc, "actual", "actualOutput")
		switch {
		case !hasExpected || !hasActual:
			cr.Detail = "missing expected or actual value"
		case reflect.DeepEqual(expected, actual):
			cr.Passed = true
			passed++
		default:
			cr.Detail = fmt.Sprintf("expected %v, got %v", expected, actual)
		}

		if !cr.Passed {
			result.Valid = false
		}
		result.Results = append(result.Results, cr)
	}

	total := len(payload.TestCases)
	if total > 0 {
		result.Coverage = float64(passed) / float64(total)
	} else {
		result.Coverage = 1
	}
	result.PerformanceMetrics = performanceMetrics{
		EvaluatedAt: a.now().UTC(),
		TotalCases:  total,
		PassedCases: passed,
	}
	return json.Marshal(result)
}

// caseField reads the first present key from a test case map. Callers
// pass the canonical key first and its legacy alias second.
func caseField(tc map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := tc[k]; ok {
			return v, true
		}
	}
	return nil, false
}
