package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/orchid-dev/orchid/internal/orchestrator"
	"github.com/orchid-dev/orchid/internal/state"
	"github.com/orchid-dev/orchid/internal/task"
)

// apiClient talks to a running engine over its HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newClient() *apiClient {
	return &apiClient{
		base: strings.TrimSuffix(viper.GetString("client.server"), "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) submit(def *task.Definition) (orchestrator.Acceptance, error) {
	var acc orchestrator.Acceptance
	err := c.post("/orchestrate", def, &acc)
	return acc, err
}

func (c *apiClient) resume(taskID string) error {
	return c.post("/resume", map[string]string{"taskId": taskID}, nil)
}

func (c *apiClient) status() (*state.Snapshot, error) {
	var snap state.Snapshot
	if err := c.get("/status", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *apiClient) metrics() (state.Metrics, error) {
	var m state.Metrics
	err := c.get("/metrics", &m)
	return m, err
}

func (c *apiClient) post(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to reach engine at %s: %w", c.base, err)
	}
	return c.decode(resp, out)
}

func (c *apiClient) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("failed to reach engine at %s: %w", c.base, err)
	}
	return c.decode(resp, out)
}

func (c *apiClient) decode(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
