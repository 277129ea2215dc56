// Package client provides an HTTP client for the cardview daemon API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jamesainslie/cardview/pkg/cardview/types"
)

// DefaultTimeout bounds each request when the caller's context has no
// earlier deadline.
const DefaultTimeout = 5 * time.Second

// Client talks to a running cardview daemon over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a client for the daemon at baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: DefaultTimeout},
	}
}

// Snapshot fetches the current catalog snapshot from the daemon.
func (c *Client) Snapshot(ctx context.Context) (types.Snapshot, error) {
	var snap types.Snapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/snapshot", nil)
	if err != nil {
		return snap, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return snap, fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return snap, fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Healthy reports whether the daemon answers its health probe.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
