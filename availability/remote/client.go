package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/networked-ai/formguard"
	"github.com/networked-ai/formguard/availability"
	"github.com/networked-ai/formguard/internal/logger"
)

// Kind selects which user attribute is checked.
type Kind string

const (
	KindUsername Kind = "username"
	KindEmail    Kind = "email"
	KindMobile   Kind = "mobile"
)

// CheckPath is appended to the client's base URL.
const CheckPath = "/users/check-availability"

const maxErrorBody = 512

type checkRequest struct {
	Type  Kind   `json:"type"`
	Value string `json:"value"`
}

type checkResponse struct {
	Available *bool `json:"available"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("availability endpoint: status %d", e.Code)
	}
	return fmt.Sprintf("availability endpoint: status %d: %s", e.Code, e.Body)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps outgoing checks to rps per second with the given burst.
// Non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l formguard.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHeader adds a header to every request (for example Authorization).
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// Client talks to the remote check-availability endpoint. Identical
// concurrent checks share one request.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	headers  http.Header
	log      formguard.Logger
	flights  singleflight.Group
	metrics  *clientMetrics
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + CheckPath,
		http:     &http.Client{Timeout: 10 * time.Second},
		headers:  http.Header{},
		log:      logger.Nop(),
		metrics:  newClientMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckFunc binds the client to one kind for use with availability.Rule.
func (c *Client) CheckFunc(kind Kind) availability.CheckFunc {
	return func(ctx context.Context, value string) (bool, error) {
		return c.Available(ctx, kind, value)
	}
}

// Available reports whether value is free for kind. Cancelling ctx stops
// waiting; a request shared with other callers keeps running until the HTTP
// client's timeout.
func (c *Client) Available(ctx context.Context, kind Kind, value string) (bool, error) {
	key := string(kind) + "\x00" + value
	shared := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (any, error) {
		return c.do(shared, kind, value)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func (c *Client) do(ctx context.Context, kind Kind, value string) (available bool, err error) {
	start := time.Now()
	defer func() { c.metrics.record(ctx, kind, available, err, time.Since(start)) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("availability: rate limit: %w", err)
		}
	}
	body, err := json.Marshal(checkRequest{Type: kind, Value: value})
	if err != nil {
		return false, fmt.Errorf("availability: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("availability: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("availability: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debugw("availability endpoint rejected check", "kind", kind, "status", resp.StatusCode)
		return false, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("availability: decode response: %w", err)
	}
	if out.Available == nil {
		return false, fmt.Errorf("availability: response is missing %q", "available")
	}
	return *out.Available, nil
}
