package gateway

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

	"github.com/careloop/careloop/internal/task"
)

// Client is the HTTP implementation of Gateway against the backend's
// REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a gateway client for the backend at baseURL,
// authenticating with the given bearer token. An empty token means no
// session: every call fails with ErrAuthRequired server-side.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// taskList is the envelope for list responses and batch requests.
type taskList struct {
	Tasks []task.Task `json:"tasks"`
}

// FetchAll implements Gateway.
func (c *Client) FetchAll(ctx context.Context, userID string) ([]task.Task, error) {
	endpoint := fmt.Sprintf("%s/v1/tasks?user_id=%s", c.baseURL, url.QueryEscape(userID))

	var list taskList
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &list); err != nil {
		return nil, err
	}
	if list.Tasks == nil {
		list.Tasks = []task.Task{}
	}
	return list.Tasks, nil
}

// UpsertOne implements Gateway.
func (c *Client) UpsertOne(ctx context.Context, t task.Task) (task.Task, error) {
	var stored task.Task
	err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/tasks", t, &stored)
	if err != nil {
		return task.Task{}, err
	}
	return stored, nil
}

// UpsertMany implements Gateway.
func (c *Client) UpsertMany(ctx context.Context, tasks []task.Task) ([]task.Task, error) {
	if len(tasks) == 0 {
		return []task.Task{}, nil
	}

	var list taskList
	err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/tasks/batch", taskList{Tasks: tasks}, &list)
	if err != nil {
		return nil, err
	}
	return list.Tasks, nil
}

// DeleteOne implements Gateway.
func (c *Client) DeleteOne(ctx context.Context, id string) error {
	endpoint := c.baseURL + "/v1/tasks/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// do performs one JSON request/response cycle and maps transport and
// status failures onto the gateway error taxonomy.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrAuthRequired
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrBackend, err)
	}
	return nil
}
