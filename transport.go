package ups

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gateway-fm/ups-go/retry"
)

// TokenFunc supplies the current bearer token, or empty when no session
// is held. It is called once per attempt, so a token refreshed between
// retries is picked up.
type TokenFunc func() string

// HTTPClient is the authenticated JSON transport for the UPS backend.
//
// Transient failures (connectivity, timeouts, non-2xx statuses other
// than 401) are retried with exponential backoff of 2^attempt seconds;
// HTTP 429 honors the Retry-After header when present. HTTP 401 is
// surfaced immediately as an authentication failure so the caller can
// re-authenticate.
type HTTPClient struct {
	baseURL       string
	client        *http.Client
	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration
	tokenFunc     TokenFunc
}

// NewHTTPClient builds a transport from the client config. tokenFunc
// may be nil for unauthenticated use.
func NewHTTPClient(cfg Config, tokenFunc TokenFunc) *HTTPClient {
	cfg = cfg.withDefaults()
	retryAttempts := cfg.RetryAttempts
	if retryAttempts < 0 {
		retryAttempts = 0
	}
	return &HTTPClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		client:        cfg.HTTPClient,
		timeout:       cfg.Timeout,
		retryAttempts: retryAttempts,
		retryDelay:    time.Second,
		tokenFunc:     tokenFunc,
	}
}

// requestOptions holds per-request modifiers.
type requestOptions struct {
	skipAuth bool
}

// RequestOption modifies a single request.
type RequestOption func(*requestOptions)

// SkipAuth suppresses the Authorization header. Payment verify/settle
// use this: authenticity is proven by the signature, not the session.
func SkipAuth() RequestOption {
	return func(o *requestOptions) { o.skipAuth = true }
}

// Request performs an HTTP request against the backend and returns the
// raw JSON response body. A 204 response returns a nil RawMessage,
// distinct from any JSON payload (a JSON null body decodes to the
// four-byte "null").
func (c *HTTPClient) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	cfg := retry.Config{
		MaxAttempts:  c.retryAttempts + 1, // retryAttempts counts additional tries
		InitialDelay: c.retryDelay,
		Multiplier:   2.0,
	}

	return retry.WithRetry(ctx, cfg, IsRetryable, func() (json.RawMessage, error) {
		return c.do(ctx, method, path, payload, o)
	})
}

// do performs a single attempt.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte, o requestOptions) (json.RawMessage, error) {
	attemptCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.url(path), bodyReader)
	if err != nil {
		return nil, NewNetworkError("build request", 0, nil, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if !o.skipAuth && c.tokenFunc != nil {
		if token := c.tokenFunc(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
			return nil, NewNetworkError("request timed out", 0, nil, err)
		}
		return nil, NewNetworkError("request failed", 0, nil, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, NewAuthError("authentication failed", nil)

	case resp.StatusCode == http.StatusTooManyRequests:
		details, _ := readErrorDetails(resp.Body)
		return nil, newRateLimitError(parseRetryAfter(resp.Header.Get("Retry-After")), details)

	case resp.StatusCode == http.StatusNoContent:
		return nil, nil

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		details, raw := readErrorDetails(resp.Body)
		return nil, NewNetworkError(
			fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, raw),
			resp.StatusCode, details, nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError("read response body", resp.StatusCode, nil, err)
	}
	return json.RawMessage(data), nil
}

// Get performs a GET and decodes the JSON response into out when out is
// non-nil and the response has content.
func (c *HTTPClient) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	raw, err := c.Request(ctx, http.MethodGet, path, nil, opts...)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// Post performs a POST with a JSON body and decodes the response into
// out when out is non-nil and the response has content.
func (c *HTTPClient) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	raw, err := c.Request(ctx, http.MethodPost, path, body, opts...)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

func (c *HTTPClient) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func decodeInto(raw json.RawMessage, out any) error {
	if out == nil || raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewNetworkError("decode response body", 0, string(raw), err)
	}
	return nil
}

// readErrorDetails parses an error response body: JSON bodies are
// returned decoded, anything else is carried as raw text.
func readErrorDetails(r io.Reader) (details any, raw string) {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(data) == 0 {
		return nil, ""
	}
	raw = string(data)
	var parsed any
	if err := json.Unmarshal(data, &parsed); err == nil {
		return parsed, raw
	}
	return raw, raw
}

// parseRetryAfter reads a Retry-After header given in seconds. Zero
// means no usable hint, in which case exponential backoff applies.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
