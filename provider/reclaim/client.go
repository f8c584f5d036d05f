package reclaim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the Reclaim API root.
const DefaultBaseURL = "https://api.app.reclaim.ai/api"

// DefaultTimeout bounds each provider call.
const DefaultTimeout = 60 * time.Second

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reclaim: status %d: %s", e.StatusCode, e.Body)
}

// breaker is shared across per-request clients. Upstream health is a
// property of the provider, not of any one caller.
var breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
	Name:        "reclaim",
	MaxRequests: 1,
	Timeout:     30 * time.Second,
	ReadyToTrip: func(c gobreaker.Counts) bool {
		return c.ConsecutiveFailures >= 5
	},
})

// Client talks to the Reclaim API with one caller's token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// New builds a client for one request's token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns every task visible to the token.
func (c *Client) List(ctx context.Context) ([]*Task, error) {
	var tasks []*Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListActive returns tasks not in a terminal status.
func (c *Client) ListActive(ctx context.Context) ([]*Task, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*Task, 0, len(all))
	for _, t := range all {
		if t.Active() {
			active = append(active, t)
		}
	}
	return active, nil
}

// Get fetches one task.
func (c *Client) Get(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Create submits a new task.
func (c *Client) Create(ctx context.Context, t *Task) (*Task, error) {
	var created Task
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, t, &created); err != nil {
		return nil, err
	}
	c.logger.Info("Created task", "task_id", created.ID, "title", created.Title)
	return &created, nil
}

// Update applies a partial patch.
func (c *Client) Update(ctx context.Context, id string, patch *TaskPatch) (*Task, error) {
	var updated Task
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), nil, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkComplete uses Reclaim's dedicated done endpoint rather than a
// status patch.
func (c *Client) MarkComplete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/planner/done/task/"+url.PathEscape(id), nil, nil, nil)
}

// AddTime extends the task's remaining time.
func (c *Client) AddTime(ctx context.Context, id string, hours float64) error {
	q := url.Values{}
	q.Set("minutes", fmt.Sprintf("%d", int(hours*60)))
	return c.do(ctx, http.MethodPost, "/planner/add-time/task/"+url.PathEscape(id), q, nil, nil)
}

// Delete removes the task.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	result, err := breaker.Execute(func() (any, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
		}
		return data, nil
	})
	if err != nil {
		c.logger.Warn("Task provider call failed",
			"method", method, "path", path, "duration", time.Since(start), "error", err)
		return err
	}

	if out == nil {
		return nil
	}
	data := result.([]byte)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
