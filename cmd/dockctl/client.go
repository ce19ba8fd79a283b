package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-cartdock/internal/httpc"
	"github.com/teslashibe/go-cartdock/pkg/dock"
	"github.com/teslashibe/go-cartdock/pkg/web"
)

// apiClient talks to the dockd HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: httpc.New(httpc.DefaultTimeout),
	}
}

// apiError is a non-2xx reply.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", c.base+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) != nil {
			e.Error = strings.TrimSpace(string(data))
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *apiClient) submit(ctx context.Context, goal dock.Goal) (string, error) {
	var resp web.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/goals", goal, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *apiClient) goal(ctx context.Context, id string) (dock.GoalStatus, error) {
	var st dock.GoalStatus
	err := c.do(ctx, http.MethodGet, "/api/goals/"+url.PathEscape(id), nil, &st)
	return st, err
}

func (c *apiClient) cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/goals/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) status(ctx context.Context) (web.StatusResponse, error) {
	var st web.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// wait polls until the goal reaches a terminal state.
func (c *apiClient) wait(ctx context.Context, id string, interval time.Duration) (dock.GoalStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.goal(ctx, id)
		if err != nil {
			return st, err
		}
		if st.State.Done() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// feedbackURL maps the server URL onto the websocket endpoint, optionally
// limited to one goal.
func feedbackURL(base, goalID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/feedback"
	if goalID != "" {
		u.RawQuery = url.Values{"goal": {goalID}}.Encode()
	}
	return u.String(), nil
}
