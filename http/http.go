package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request when no client is configured.
const DefaultTimeout = 30 * time.Second

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP status code %d for %s", e.Code, e.URL)
}

// NotFound reports whether the server answered 404.
func (e *StatusError) NotFound() bool {
	return e.Code == http.StatusNotFound
}

// Client performs GET requests against the public databases.
type Client struct {
	client    *http.Client
	userAgent string
}

// NewClient returns a client with the given per-request timeout.
// A zero timeout falls back to DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		userAgent: "localrmsd",
	}
}

// Get fetches url and returns the whole body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: res.StatusCode}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	return body, nil
}
