// Package httputil holds the JSON reply helpers used by the API handlers
// and a small client abstraction used to talk to a running server.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// maxBodySize caps how much of a response body the helpers will read.
const maxBodySize = 256 << 20

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient returns a client with the given overall timeout. A
// zero timeout means none.
func NewStandardClient(timeout time.Duration) *StandardClient {
	return &StandardClient{Client: &http.Client{Timeout: timeout}}
}

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Fetch sends a request and returns the body of a 2xx reply. Other
// statuses become a *StatusError carrying the server's error message.
func Fetch(ctx context.Context, c HTTPClient, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er ErrorResponse
		_ = json.Unmarshal(data, &er)
		return nil, &StatusError{Code: resp.StatusCode, Message: er.Error}
	}
	return data, nil
}

// FetchJSON is Fetch followed by decoding the body into out.
func FetchJSON(ctx context.Context, c HTTPClient, method, url string, out interface{}) error {
	data, err := Fetch(ctx, c, method, url, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ClientFunc adapts a function to HTTPClient.
type ClientFunc func(*http.Request) (*http.Response, error)

func (f ClientFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// ReplayClient answers requests with queued replies, in order, and keeps
// every request it was sent. Once the queue is drained it answers an
// empty 200.
type ReplayClient struct {
	mu       sync.Mutex
	queue    []ClientFunc
	requests []*http.Request
}

func reply(status int, body string) ClientFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{},
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			Request:    req,
		}, nil
	}
}

// Respond queues a reply with the given status and body.
func (c *ReplayClient) Respond(status int, body string) *ReplayClient {
	return c.enqueue(reply(status, body))
}

// Fail queues a transport error.
func (c *ReplayClient) Fail(err error) *ReplayClient {
	return c.enqueue(func(*http.Request) (*http.Response, error) { return nil, err })
}

func (c *ReplayClient) enqueue(f ClientFunc) *ReplayClient {
	c.mu.Lock()
	c.queue = append(c.queue, f)
	c.mu.Unlock()
	return c
}

func (c *ReplayClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	next := reply(http.StatusOK, "")
	if len(c.queue) > 0 {
		next, c.queue = c.queue[0], c.queue[1:]
	}
	c.mu.Unlock()
	return next(req)
}

// Requests returns the requests seen so far.
func (c *ReplayClient) Requests() []*http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*http.Request(nil), c.requests...)
}
