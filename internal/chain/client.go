// Package chain reads game events from the chain RPC nodes and the secondary chain explorer.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mtlprog/nftdash/internal/memcache"
)

// ErrAllNodesFailed is returned when no node produced a usable response.
var ErrAllNodesFailed = errors.New("all chain nodes failed")

// StatusError is a non-200 response from a node.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.Code, e.URL, e.Body)
}

// retryable reports whether another node might answer where this one did not.
func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Observer records the outcome of each HTTP exchange.
type Observer interface {
	ObserveUpstream(host, outcome string)
}

// Client is an HTTP client over an ordered list of chain nodes. Each node is retried
// on 429 with exponential backoff; transport errors and 5xx fall over to the next node.
type Client struct {
	nodes      []string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	dedupe     *memcache.Store
	dedupeTTL  time.Duration
	observer   Observer
}

// Option configures a Client.
type Option func(*Client)

// WithDedupe answers identical GET paths from store for ttl after a success.
func WithDedupe(store *memcache.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.dedupe = store
		c.dedupeTTL = ttl
	}
}

// WithObserver reports request outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client. The first node is the primary, the rest are fallbacks.
// A negative maxRetries is treated as zero: each node gets exactly one attempt.
func NewClient(nodes []string, maxRetries int, baseDelay time.Duration, opts ...Option) *Client {
	c := &Client{
		nodes:      nodes,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: max(0, maxRetries),
		baseDelay:  baseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get returns the body for path from the first node that answers it.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	key := "chain:" + path
	if c.dedupe != nil && c.dedupeTTL > 0 {
		if v, ok := c.dedupe.Get(key); ok {
			return v.([]byte), nil
		}
	}

	var lastErr error
	for i, node := range c.nodes {
		body, err := c.getFrom(ctx, node, path)
		if err == nil {
			if c.dedupe != nil && c.dedupeTTL > 0 {
				c.dedupe.Set(key, body, c.dedupeTTL)
			}
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		lastErr = err
		if i < len(c.nodes)-1 {
			slog.Warn("chain node failed, trying next", "node", node, "path", path, "error", err)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no nodes configured")
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrAllNodesFailed, path, lastErr)
}

// getFrom performs a GET against one node with retry on 429.
func (c *Client) getFrom(ctx context.Context, node, path string) ([]byte, error) {
	target := node + path

	var lastErr error
	for attempt := range c.maxRetries + 1 {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.observe(node, "error")
			return nil, fmt.Errorf("executing request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			c.observe(node, "error")
			return nil, fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			c.observe(node, "ok")
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.observe(node, "rate_limited")
			lastErr = &StatusError{URL: target, Code: resp.StatusCode, Body: fmt.Sprintf("attempt %d/%d", attempt+1, c.maxRetries+1)}
			if attempt < c.maxRetries {
				delay := c.baseDelay * time.Duration(1<<uint(attempt))
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			return nil, lastErr
		}

		c.observe(node, fmt.Sprintf("http_%d", resp.StatusCode))
		return nil, &StatusError{URL: target, Code: resp.StatusCode, Body: string(body)}
	}

	return nil, lastErr
}

// getJSON performs a GET request and unmarshals the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing JSON from %s: %w", path, err)
	}
	return nil
}

func (c *Client) observe(node, outcome string) {
	if c.observer == nil {
		return
	}
	host := node
	if u, err := url.Parse(node); err == nil && u.Host != "" {
		host = u.Host
	}
	c.observer.ObserveUpstream(host, outcome)
}
