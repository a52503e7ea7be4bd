package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client is a REST client that fails over across a list of base URLs using
// round-robin selection filtered by a HealthTracker, the same failover
// shape the teacher uses for JSON-RPC calls but applied to plain GET/POST
// requests with JSON bodies.
type Client struct {
	endpoints []string
	health    HealthTracker
	http      *http.Client

	mu      sync.Mutex
	current int
}

// NewClient builds a Client over the given base URLs (tried in round-robin
// order, skipping unhealthy ones). A single endpoint is the common case for
// the blockchain gateway; a venue HTTP adapter may be given several.
func NewClient(endpoints []string, timeout time.Duration) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}
	return &Client{
		endpoints: endpoints,
		health:    NewCircuitBreaker(),
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// Get issues an HTTP GET to path (appended to a base URL) with failover,
// returning the raw response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// PostJSON issues an HTTP POST of body to path with failover.
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	attempted := make(map[string]bool)

	for len(attempted) < len(c.endpoints) {
		endpoint := c.nextHealthy(attempted)
		if endpoint == "" {
			break
		}
		attempted[endpoint] = true

		result, err := c.call(ctx, method, endpoint+path, body)
		if err == nil {
			c.health.RecordSuccess(endpoint)
			return result, nil
		}
		c.health.RecordFailure(endpoint)
		lastErr = err
	}
	return nil, fmt.Errorf("all endpoints failed, last error: %w", lastErr)
}

func (c *Client) call(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *Client) nextHealthy(attempted map[string]bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < len(c.endpoints); i++ {
		idx := (c.current + i) % len(c.endpoints)
		endpoint := c.endpoints[idx]
		if attempted[endpoint] {
			continue
		}
		if c.health.IsHealthy(endpoint) {
			c.current = (idx + 1) % len(c.endpoints)
			return endpoint
		}
	}
	for _, endpoint := range c.endpoints {
		if !attempted[endpoint] {
			return endpoint
		}
	}
	return ""
}

// Close releases idle connections held by the underlying HTTP client.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
