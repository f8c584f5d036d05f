package nylas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the Nylas v3 API root.
const DefaultBaseURL = "https://api.us.nylas.com/v3"

// DefaultTimeout bounds each provider call.
const DefaultTimeout = 60 * time.Second

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nylas: status %d: %s", e.StatusCode, e.Body)
}

var breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
	Name:        "nylas",
	MaxRequests: 1,
	Timeout:     30 * time.Second,
	ReadyToTrip: func(c gobreaker.Counts) bool {
		return c.ConsecutiveFailures >= 5
	},
})

// envelope is the v3 response wrapper.
type envelope struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// Client talks to the Nylas API with one caller's key and grant.
type Client struct {
	baseURL    string
	apiKey     string
	grantID    string
	calendarID string
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

// WithCalendarID targets a calendar other than primary.
func WithCalendarID(id string) Option {
	return func(c *Client) { c.calendarID = id }
}

// New builds a client for one request's key and grant.
func New(apiKey, grantID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		grantID:    grantID,
		calendarID: DefaultCalendarID,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) grantPath(suffix string) string {
	return "/grants/" + url.PathEscape(c.grantID) + suffix
}

// ListEvents returns events overlapping [start, end).
func (c *Client) ListEvents(ctx context.Context, start, end time.Time) ([]*Event, error) {
	q := url.Values{}
	q.Set("calendar_id", c.calendarID)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("limit", "200")

	var events []*Event
	if err := c.do(ctx, http.MethodGet, c.grantPath("/events"), q, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FindEvent fetches one event by id.
func (c *Client) FindEvent(ctx context.Context, id string) (*Event, error) {
	q := url.Values{}
	q.Set("calendar_id", c.calendarID)

	var event Event
	if err := c.do(ctx, http.MethodGet, c.grantPath("/events/"+url.PathEscape(id)), q, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateEvent submits a new event. notify controls whether participants
// receive invitations.
func (c *Client) CreateEvent(ctx context.Context, e *Event, notify bool) (*Event, error) {
	q := url.Values{}
	q.Set("calendar_id", c.calendarID)
	q.Set("notify_participants", strconv.FormatBool(notify))

	var created Event
	if err := c.do(ctx, http.MethodPost, c.grantPath("/events"), q, e, &created); err != nil {
		return nil, err
	}
	c.logger.Info("Created event", "event_id", created.ID, "title", created.Title)
	return &created, nil
}

// UpdateEvent replaces the mutable fields of an event.
func (c *Client) UpdateEvent(ctx context.Context, id string, e *Event, notify bool) (*Event, error) {
	q := url.Values{}
	q.Set("calendar_id", c.calendarID)
	q.Set("notify_participants", strconv.FormatBool(notify))

	var updated Event
	if err := c.do(ctx, http.MethodPut, c.grantPath("/events/"+url.PathEscape(id)), q, e, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DestroyEvent cancels the event, notifying participants when asked.
func (c *Client) DestroyEvent(ctx context.Context, id string, notify bool) error {
	q := url.Values{}
	q.Set("calendar_id", c.calendarID)
	q.Set("notify_participants", strconv.FormatBool(notify))
	return c.do(ctx, http.MethodDelete, c.grantPath("/events/"+url.PathEscape(id)), q, nil, nil)
}

// FindGrant fetches the grant record, which carries the account email.
func (c *Client) FindGrant(ctx context.Context) (*Grant, error) {
	var grant Grant
	if err := c.do(ctx, http.MethodGet, "/grants/"+url.PathEscape(c.grantID), nil, nil, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
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
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
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
		c.logger.Warn("Calendar provider call failed",
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

	// v3 wraps payloads in {request_id, data}.
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && len(env.Data) > 0 {
		data = env.Data
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
