// Package remote talks to the summarization service: one POST per
// submission, raw text back.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a request when no timeout is configured.
	DefaultTimeout = 60 * time.Second

	// maxDetail caps how much of an error body is kept for diagnostics.
	maxDetail = 512
)

// TransportError covers network failures and unreadable responses.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("summarize transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseError is any non-2xx status, regardless of body.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("summarize: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client posts encoded documents to the summarization endpoint.
type Client struct {
	endpoint string
	client   *http.Client
}

// New creates a client. A zero timeout uses DefaultTimeout.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type requestBody struct {
	File string `json:"file"`
}

// Summarize sends payload as {"file": payload} and returns the response body
// verbatim.
func (c *Client) Summarize(ctx context.Context, payload string) (string, error) {
	body, err := json.Marshal(requestBody{File: payload})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ResponseError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), maxDetail)}
	}
	return string(respBody), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
