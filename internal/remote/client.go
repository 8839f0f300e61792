// Package remote provides the HTTP client for the portal backend API.
// The sync manager treats it as an opaque push collaborator: it sends a
// JSON-encoded mutation to an endpoint and reports the remote id the
// server assigned.
package remote

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
)

// Config holds remote API connection configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client pushes mutations to the portal backend API.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// PushResult is the interesting part of a successful push response.
type PushResult struct {
	RemoteID string `json:"id"`
}

// Error describes a failed push. Transient errors (network faults,
// server-side 5xx, throttling) are expected during offline operation
// and retried; permanent errors indicate the payload itself was
// rejected.
type Error struct {
	StatusCode int
	Message    string
	Transient  bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote push failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote push failed: %s", e.Message)
}

// IsTransient reports whether err is a retryable remote failure.
// Non-remote errors (e.g. context cancellation, network faults wrapped
// by the transport) are treated as transient.
func IsTransient(err error) bool {
	if rerr, ok := err.(*Error); ok {
		return rerr.Transient
	}
	return true
}

// NewClient creates a new Client.
func NewClient(config *Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: false,
			},
		},
	}
}

// Push sends data to endpoint with the given HTTP method and returns
// the remote identifier from the response body, if any. An empty
// method defaults to POST (a create operation).
func (c *Client) Push(ctx context.Context, endpoint, method string, data []byte) (*PushResult, error) {
	if method == "" {
		method = http.MethodPost
	}

	target, err := url.JoinPath(c.config.BaseURL, endpoint)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("invalid endpoint %q: %v", endpoint, err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Message: err.Error(), Transient: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Transient:  isTransientStatus(resp.StatusCode),
		}
	}

	result := &PushResult{}
	if len(body) > 0 {
		// A missing or non-JSON body is fine for updates; only
		// creations carry a remote id.
		_ = json.Unmarshal(body, result)
	}

	return result, nil
}

// Ping checks backend reachability with a HEAD request to the base
// URL. Any HTTP response counts as reachable, including errors: a 404
// from the server still means the network path is up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.config.BaseURL, nil)
	if err != nil {
		return &Error{Message: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: err.Error(), Transient: true}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
	resp.Body.Close()
	return nil
}

// isTransientStatus reports whether a status code is worth retrying.
func isTransientStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
