package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	gosync "sync"
	"time"

	"github.com/existflow/irontrack/internal/apperr"
	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/model"
)

// DefaultTimeout bounds a single request to the remote.
const DefaultTimeout = 30 * time.Second

// Client talks to an irontrack server.
type Client struct {
	mu         gosync.RWMutex
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new sync client for baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetBaseURL points the client at another server.
func (c *Client) SetBaseURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(url, "/")
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// PushSnapshot posts the local snapshot for the server to merge. The
// device-local sync settings are never sent.
func (c *Client) PushSnapshot(ctx context.Context, s *model.Snapshot) error {
	logger.Info("Pushing snapshot to server",
		logger.F("tasks", len(s.Tasks)),
		logger.F("tombstones", len(s.Tombstones)))
	return c.do(ctx, http.MethodPost, "/api/sync", s.Outbound(), nil)
}

// PullSnapshot fetches the server's current snapshot.
func (c *Client) PullSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var s model.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/sync", nil, &s); err != nil {
		return nil, err
	}
	logger.Info("Received snapshot from server",
		logger.F("tasks", len(s.Tasks)),
		logger.F("tombstones", len(s.Tombstones)))
	return &s, nil
}

// GetAll fetches the full server state.
func (c *Client) GetAll(ctx context.Context) (*model.Snapshot, error) {
	var s model.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/all", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PutAll replaces the full server state.
func (c *Client) PutAll(ctx context.Context, s *model.Snapshot) error {
	return c.do(ctx, http.MethodPut, "/api/all", s.Outbound(), nil)
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Send replays a queued operation against its endpoint.
func (c *Client) Send(ctx context.Context, op model.QueuedOperation) error {
	var body io.Reader
	if len(op.Payload) > 0 {
		body = bytes.NewReader(op.Payload)
	}
	method := op.Method
	if method == "" {
		method = http.MethodPost
	}
	return c.send(ctx, method, op.Endpoint, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.CodeSerialization, "failed to encode request", err)
		}
		body = bytes.NewReader(data)
	}
	return c.send(ctx, method, path, body, out)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, out any) error {
	url := path
	if !strings.Contains(path, "://") {
		base := c.BaseURL()
		if base == "" {
			return apperr.New(apperr.CodeConfigInvalid, "no remote url configured")
		}
		url = base + path
	}

	logger.Debug("HTTP Request",
		logger.F("method", method),
		logger.F("url", url))

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return apperr.Wrap(apperr.CodeConfigInvalid, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("HTTP request failed", logger.F("error", err), logger.F("url", url))
		return apperr.Wrap(apperr.CodeNetwork, fmt.Sprintf("%s %s", method, url), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	logger.Debug("HTTP Response",
		logger.F("status", resp.StatusCode),
		logger.F("statusText", resp.Status))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Warn("Server rejected request",
			logger.F("status", resp.StatusCode),
			logger.F("response", strings.TrimSpace(string(respBody))))
		return apperr.HTTP(method, url, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.CodeSerialization, "failed to decode response", err)
	}
	return nil
}
