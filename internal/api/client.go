package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"steamfetch/internal/history"
	"steamfetch/internal/library"
)

// Client talks to a running daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon at bind (host:port or full URL).
func NewClient(bind, token string) *Client {
	base := strings.TrimSpace(bind)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Enqueue submits a new download.
func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (JobView, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/queue", req, &resp); err != nil {
		return JobView{}, err
	}
	return resp.Job, nil
}

// Queue fetches the current snapshot.
func (c *Client) Queue(ctx context.Context) ([]JobView, error) {
	var resp QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Job fetches one job by id.
func (c *Client) Job(ctx context.Context, id string) (JobView, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue/"+url.PathEscape(id), nil, &resp); err != nil {
		return JobView{}, err
	}
	return resp.Job, nil
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/queue/"+url.PathEscape(id), nil, nil)
}

// SubmitGuardCode answers a pending two-factor prompt.
func (c *Client) SubmitGuardCode(ctx context.Context, id, code string) error {
	return c.do(ctx, http.MethodPost, "/api/queue/"+url.PathEscape(id)+"/guard", GuardCodeRequest{Code: code}, nil)
}

// History fetches persisted terminal records, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]history.Entry, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ClearHistory removes records in the named final states, or all when none
// are given.
func (c *Client) ClearHistory(ctx context.Context, states ...string) (int64, error) {
	path := "/api/history"
	if len(states) > 0 {
		path += "?state=" + url.QueryEscape(strings.Join(states, ","))
	}
	var resp ClearHistoryResponse
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// Library fetches installed titles.
func (c *Client) Library(ctx context.Context) ([]library.Game, error) {
	var resp LibraryResponse
	if err := c.do(ctx, http.MethodGet, "/api/library", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
