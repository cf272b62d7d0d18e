// Package httprpc is a JSON-RPC over HTTP transport. HTTP has no
// subscriptions, so SubmitExtrinsic is unsupported; use SubmitOnly or the
// wsrpc transport to watch extrinsics.
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/wippyai/subscript/errors"
	"github.com/wippyai/subscript/transport"
)

const maxResponse = 64 << 20

// Option configures a Client.
type Option func(*retryablehttp.Client)

// WithRetryMax sets how many times a failed request is retried.
func WithRetryMax(n int) Option {
	return func(c *retryablehttp.Client) { c.RetryMax = n }
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = min
		c.RetryWaitMax = max
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *retryablehttp.Client) { c.HTTPClient = hc }
}

// WithLogger routes retry logging to l.
func WithLogger(l *zap.Logger) Option {
	return func(c *retryablehttp.Client) { c.Logger = leveled{l.Sugar()} }
}

// Client sends each request as one HTTP POST.
type Client struct {
	transport.Node

	url  string
	http *retryablehttp.Client
	// once sends requests that must not be repeated.
	once   *retryablehttp.Client
	nextID atomic.Uint64
}

var _ transport.Transport = (*Client)(nil)
var _ transport.ChainReader = (*Client)(nil)

// New returns a client for the node at url (http:// or https://).
func New(url string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	for _, opt := range opts {
		opt(rc)
	}
	once := retryablehttp.NewClient()
	once.HTTPClient = rc.HTTPClient
	once.Logger = rc.Logger
	once.RetryMax = 0

	c := &Client{url: url, http: rc, once: once}
	c.Node = transport.Node{Caller: c}
	return c
}

// idempotent reports whether a failed request for method may be resent.
// A lost submission response does not mean the node rejected it.
func idempotent(method string) bool {
	return method != transport.MethodSubmitExtrinsic
}

// Call implements transport.Caller.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(transport.NewRequest(c.nextID.Add(1), method, params))
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequest(http.MethodPost, c.url, body)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	hc := c.http
	if !idempotent(method) {
		hc = c.once
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var msg transport.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return msg.Unmarshal(result)
}

// SubmitExtrinsic is not available over HTTP.
func (c *Client) SubmitExtrinsic(context.Context, []byte) (transport.Subscription, error) {
	return nil, errors.Unsupported(errors.PhaseTransport, "watching extrinsics over http")
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
