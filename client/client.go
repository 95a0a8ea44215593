// Package client is the Go client for the nexus daemon HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/server/api"
	"github.com/GoCodeAlone/nexus/server/sse"
	"github.com/GoCodeAlone/nexus/task"
)

// DefaultServer is the daemon address used when none is configured.
const DefaultServer = "http://127.0.0.1:19200"

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client holds HTTP client state for daemon calls.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a Client for the daemon at baseURL. Requests other than
// streams time out after 15 seconds.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultServer
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Health returns the daemon's health report.
func (c *Client) Health(ctx context.Context) (*api.Health, error) {
	var h api.Health
	if err := c.get(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// SubmitTask submits input for asynchronous execution.
func (c *Client) SubmitTask(ctx context.Context, input task.Input) (*api.SubmitResponse, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	var resp api.SubmitResponse
	if err := c.post(ctx, "/tasks", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTask returns the current state of task id.
func (c *Client) GetTask(ctx context.Context, id string) (*task.State, error) {
	var st task.State
	if err := c.get(ctx, "/tasks/"+id, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListTasks returns every task in creation order.
func (c *Client) ListTasks(ctx context.Context) ([]task.State, error) {
	var tasks []task.State
	if err := c.get(ctx, "/tasks", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListAgents returns the registered agents.
func (c *Client) ListAgents(ctx context.Context) ([]agent.Info, error) {
	var agents []agent.Info
	if err := c.get(ctx, "/agents", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// StreamTask opens the event stream of task id. The caller reads events
// from the decoder until io.EOF and must close the returned closer.
func (c *Client) StreamTask(ctx context.Context, id string) (*sse.Decoder, io.Closer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/tasks/"+id+"/stream", nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", sse.ContentType)

	// Streams last as long as the task, so the client timeout does not apply.
	hc := *c.httpClient()
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, c.unreachable(err)
	}
	if err := checkStatus(resp); err != nil {
		_ = resp.Body.Close()
		return nil, nil, err
	}
	return sse.NewDecoder(resp.Body), resp.Body, nil
}

// get performs a GET and decodes JSON into v.
func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

// post performs a POST and decodes the JSON response into v.
func (c *Client) post(ctx context.Context, path string, body io.Reader, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return c.unreachable(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if err := checkStatus(resp); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) unreachable(err error) error {
	return fmt.Errorf("cannot reach nexus daemon at %s (is nexusd running?): %w", c.BaseURL, err)
}

// checkStatus turns an error response into an *APIError, preferring the
// "error" field of a JSON body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(body))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
