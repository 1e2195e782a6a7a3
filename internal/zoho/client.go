// Package zoho implements a rate-limited, retrying client for the Zoho
// Mail REST API.
package zoho

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultBaseURL    = "https://mail.zoho.in/api"
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Second
	userAgent         = "mailsift/1.0"

	// Backoff caps in seconds. Throttle responses back off longer than
	// server errors; transport failures grow uncapped within the small
	// retry budget.
	rateLimitBackoffCap   = 60
	serverErrorBackoffCap = 30
)

// TokenProvider yields access tokens for request authorization.
// ForceRefresh is invoked when the server rejects a token that the
// recorded expiry said was still valid.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Client issues authenticated requests against the Zoho Mail API with
// rate limiting, failure classification and retry.
type Client struct {
	httpClient *http.Client
	auth       TokenProvider
	limiter    *Limiter
	logger     *slog.Logger
	clock      Clock
	baseURL    string
	maxRetries int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithBaseURL points the client at a non-default API root, such as a
// regional deployment or a test server.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithMaxRetries sets the retry budget per request.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// withClock replaces the clock used for backoff waits in tests.
func withClock(clk Clock) ClientOption {
	return func(c *Client) { c.clock = clk }
}

// NewClient creates a Zoho Mail API client.
func NewClient(auth TokenProvider, limiter *Limiter, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		auth:       auth,
		limiter:    limiter,
		logger:     slog.Default(),
		clock:      realClock{},
		baseURL:    defaultBaseURL,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response carries the transport result of an API call. The executor
// handles transport, auth and throttle failures; any other status is
// handed back here for caller-level interpretation.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get issues an authenticated GET request against an API endpoint path
// such as "accounts/123/messages/view".
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, query)
}

// Do executes an authenticated request with rate limiting and retry.
//
// 401 triggers one forced token refresh and one re-issue within the
// same attempt. 429, 5xx and transport failures are retried with
// exponential backoff up to the retry budget; exhausting it yields a
// RequestError of kind KindExhausted wrapping the last failure.
func (c *Client) Do(ctx context.Context, method, endpoint string, query url.Values) (*Response, error) {
	reqURL := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var last *RequestError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffFor(last.Kind, attempt-1)
			c.logger.Debug("retrying request",
				"attempt", attempt, "backoff", backoff, "endpoint", endpoint, "cause", last.Kind.String())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(backoff):
			}
		}

		token, err := c.auth.Token(ctx)
		if err != nil {
			return nil, err
		}

		if err := c.limiter.Admit(ctx); err != nil {
			return nil, err
		}

		resp, err := c.issue(ctx, method, reqURL, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			last = classifyTransport(err)
			c.logger.Warn("request failed", "endpoint", endpoint, "kind", last.Kind.String(), "error", err)
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			c.logger.Info("got 401, forcing token refresh", "endpoint", endpoint)
			refreshed, rerr := c.auth.ForceRefresh(ctx)
			if rerr != nil {
				return nil, &RequestError{Kind: KindUnauthorized, Status: resp.StatusCode, Err: rerr}
			}
			resp, err = c.issue(ctx, method, reqURL, refreshed)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				last = classifyTransport(err)
				continue
			}
			if resp.StatusCode == http.StatusUnauthorized {
				return nil, &RequestError{
					Kind:   KindUnauthorized,
					Status: resp.StatusCode,
					Err:    errors.New("token rejected again after refresh"),
				}
			}
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			last = &RequestError{Kind: KindRateLimited, Status: resp.StatusCode, Err: errors.New("rate limited (429)")}
			c.logger.Warn("rate limited by server", "endpoint", endpoint, "attempt", attempt)
			continue

		case resp.StatusCode >= 500:
			last = &RequestError{
				Kind:   KindServerError,
				Status: resp.StatusCode,
				Err:    fmt.Errorf("server error (%d)", resp.StatusCode),
			}
			c.logger.Warn("server error", "endpoint", endpoint, "status", resp.StatusCode, "attempt", attempt)
			continue
		}

		if !resp.OK() {
			c.logger.Warn("request returned non-success status",
				"endpoint", endpoint, "status", resp.StatusCode)
		}
		return resp, nil
	}

	return nil, &RequestError{Kind: KindExhausted, Status: last.Status, Err: last}
}

// issue performs a single HTTP exchange with the given bearer token.
func (c *Client) issue(ctx context.Context, method, reqURL, token string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// classifyTransport maps a transport error to its failure kind.
func classifyTransport(err error) *RequestError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &RequestError{Kind: KindTimeout, Err: err}
	}
	return &RequestError{Kind: KindNetworkError, Err: err}
}

// backoffFor returns the wait before the retry following a failure at
// the given attempt index: 2^attempt seconds, capped per failure class.
func backoffFor(kind ErrorKind, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	secs := int64(1) << uint(attempt)

	switch kind {
	case KindRateLimited:
		if secs > rateLimitBackoffCap {
			secs = rateLimitBackoffCap
		}
	case KindServerError:
		if secs > serverErrorBackoffCap {
			secs = serverErrorBackoffCap
		}
	}
	return time.Duration(secs) * time.Second
}
