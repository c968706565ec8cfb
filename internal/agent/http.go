package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/task"
)

// request is the wire form of a dispatch call to a remote agent.
type request struct {
	Type    task.Type       `json:"type"`
	Payload json.RawMessage `json:"payload"`
	AgentID string          `json:"agentId"`
}

// HTTPAgent calls a remote agent over a point-to-point HTTP POST. A non-2xx
// response becomes an AgentExecutionError carrying the response body as the
// failure message.
type HTTPAgent struct {
	endpoint string
	client   *http.Client
}

// NewHTTPAgent creates an HTTPAgent for the given endpoint URL. When client
// is nil, http.DefaultClient is used; the pool itself enforces no timeout.
func NewHTTPAgent(endpoint string, client *http.Client) *HTTPAgent {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAgent{endpoint: endpoint, client: client}
}

// Execute posts the task to the remote agent and returns its response body.
func (a *HTTPAgent) Execute(ctx context.Context, t *task.Stored) (json.RawMessage, error) {
	agentID := t.AgentID
	if agentID == "" {
		agentID = DefaultAgentID
	}

	body, err := json.Marshal(request{
		Type:    t.Type,
		Payload: t.Payload,
		AgentID: agentID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal agent request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build agent request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.NewAgentExecutionError("agent call failed", err).
			WithEndpoint(a.endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewAgentExecutionError("read agent response", err).
			WithEndpoint(a.endpoint)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = resp.Status
		}
		return nil, errors.NewAgentExecutionError(msg, nil).
			WithEndpoint(a.endpoint).
			WithStatusCode(resp.StatusCode)
	}

	return respBody, nil
}
