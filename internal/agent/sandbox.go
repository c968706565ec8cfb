package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orchid-dev/orchid/internal/errors"
)

// ExecuteParams describes one sandboxed code execution.
type ExecuteParams struct {
	Code        string         `json:"code"`
	Runtime     string         `json:"runtime"`
	Timeout     time.Duration  `json:"timeout,omitempty"`
	Environment map[string]any `json:"environment,omitempty"`
}

// ExecuteResult is what the sandbox reports back.
type ExecuteResult struct {
	Output      string         `json:"output"`
	Error       string         `json:"error,omitempty"`
	StackTrace  string         `json:"stackTrace,omitempty"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
}

// Sandbox is the black-box code-execution service used by the error
// recreation agent. Only its RPC boundary is modeled here.
type Sandbox interface {
	Execute(ctx context.Context, params ExecuteParams) (ExecuteResult, error)
}

// HTTPSandbox talks to a remote sandbox service's /execute endpoint.
type HTTPSandbox struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSandbox creates an HTTPSandbox rooted at baseURL.
func NewHTTPSandbox(baseURL string, client *http.Client) *HTTPSandbox {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSandbox{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

// Execute posts the execution request and decodes the sandbox's result.
func (s *HTTPSandbox) Execute(ctx context.Context, params ExecuteParams) (ExecuteResult, error) {
	var result ExecuteResult

	body, err := json.Marshal(params)
	if err != nil {
		return result, errors.Wrap(err, "marshal sandbox request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return result, errors.Wrap(err, "build sandbox request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return result, errors.Wrap(err, "sandbox call failed")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, errors.Wrap(err, "read sandbox response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, errors.Wrapf(errors.New(strings.TrimSpace(string(respBody))),
			"sandbox returned %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return result, errors.Wrap(err, "decode sandbox response")
	}
	return result, nil
}
