package task

import (
	"encoding/json"
	"fmt"
)

// RecreationPayload is the input for an error_recreation task: code to run
// in the sandbox along with its runtime and environment context.
type RecreationPayload struct {
	ID      string         `json:"id"`
	Code    string         `json:"code"`
	Runtime string         `json:"runtime,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ValidationPayload is the input for a solution_validation task.
type ValidationPayload struct {
	ID           string           `json:"id"`
	Solution     string           `json:"solution"`
	Requirements []string         `json:"requirements,omitempty"`
	TestCases    []map[string]any `json:"testCases,omitempty"`
}

// TestingPayload is the input for a testing task: a named suite of tests.
type TestingPayload struct {
	ID        string           `json:"id"`
	SuiteName string           `json:"suiteName"`
	Tests     []map[string]any `json:"tests"`
	Context   map[string]any   `json:"context,omitempty"`
}

// DecodeRecreation decodes the definition's payload as a RecreationPayload.
func (d *Definition) DecodeRecreation() (RecreationPayload, error) {
	var p RecreationPayload
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return p, fmt.Errorf("decode error_recreation payload: %w", err)
	}
	return p, nil
}

// DecodeValidation decodes the definition's payload as a ValidationPayload.
func (d *Definition) DecodeValidation() (ValidationPayload, error) {
	var p ValidationPayload
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return p, fmt.Errorf("decode solution_validation payload: %w", err)
	}
	return p, nil
}

// DecodeTesting decodes the definition's payload as a TestingPayload.
func (d *Definition) DecodeTesting() (TestingPayload, error) {
	var p TestingPayload
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return p, fmt.Errorf("decode testing payload: %w", err)
	}
	return p, nil
}
