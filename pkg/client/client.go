package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrNotFound is returned when the daemon answers 404 for a window or tab.
var ErrNotFound = errors.New("not found")

// Client provides HTTP client functionality to communicate with the winsession daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	RetryMax int          // retries on connection errors and 5xx; 0 disables
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://127.0.0.1:7070/api",
		Timeout:  10 * time.Second,
		RetryMax: 2,
	}
}

// New creates a new winsession API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = config.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = config.Timeout
	rc.Logger = nil

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  rc.StandardClient(),
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.CurrentIndex(ctx)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

func (c *Client) Windows(ctx context.Context) ([]Window, error) {
	var out []Window
	err := c.do(ctx, http.MethodGet, "/windows", nil, &out)
	return out, err
}

func (c *Client) Window(ctx context.Context, idx int) (Window, error) {
	var out Window
	err := c.do(ctx, http.MethodGet, "/windows/"+strconv.Itoa(idx), nil, &out)
	return out, err
}

// AddWindow registers a window and returns its index.
func (c *Client) AddWindow(ctx context.Context, req EntryRequest) (int, error) {
	var out indexResponse
	err := c.do(ctx, http.MethodPost, "/windows", req, &out)
	return out.Index, err
}

func (c *Client) UpdateWindow(ctx context.Context, idx int, req EntryRequest) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/windows/%d/panes", idx), req, nil)
}

func (c *Client) RemoveWindow(ctx context.Context, idx int) error {
	return c.do(ctx, http.MethodDelete, "/windows/"+strconv.Itoa(idx), nil, nil)
}

// AddTab registers a tab under parent and returns its index.
func (c *Client) AddTab(ctx context.Context, parent int, req EntryRequest) (int, error) {
	var out indexResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/windows/%d/tabs", parent), req, &out)
	return out.Index, err
}

func (c *Client) RemoveTab(ctx context.Context, parent, tab int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/windows/%d/tabs/%d", parent, tab), nil, nil)
}

// DetachTab turns a tab into a window and returns the new window index.
func (c *Client) DetachTab(ctx context.Context, parent, tab int) (int, error) {
	var out indexResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/windows/%d/tabs/%d/detach", parent, tab), nil, &out)
	return out.Index, err
}

// AttachWindow turns a window into a tab of parent.
func (c *Client) AttachWindow(ctx context.Context, win, parent int) error {
	q := url.Values{"parent": {strconv.Itoa(parent)}}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/windows/%d/attach?%s", win, q.Encode()), nil, nil)
}

func (c *Client) NextIndex(ctx context.Context) (int, error) {
	var out indexResponse
	err := c.do(ctx, http.MethodPost, "/index/next", nil, &out)
	return out.Index, err
}

func (c *Client) CurrentIndex(ctx context.Context) (int, error) {
	var out indexResponse
	err := c.do(ctx, http.MethodGet, "/index/current", nil, &out)
	return out.Index, err
}

func (c *Client) Save(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/session/save", nil, nil)
}

func (c *Client) Restore(ctx context.Context) (RestoreResult, error) {
	var out RestoreResult
	err := c.do(ctx, http.MethodPost, "/session/restore", nil, &out)
	return out, err
}

func (c *Client) AllWindowsOpened(ctx context.Context) (bool, error) {
	var out openedBody
	err := c.do(ctx, http.MethodGet, "/session/opened", nil, &out)
	return out.Opened, err
}

func (c *Client) SetAllWindowsOpened(ctx context.Context, v bool) error {
	return c.do(ctx, http.MethodPut, "/session/opened", openedBody{Opened: v}, nil)
}

// do performs an HTTP request with common error handling. in is sent as
// JSON when non-nil; out receives the decoded 2xx body when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, errorResp.Error)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}
