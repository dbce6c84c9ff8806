package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"veritas/internal/logging"
)

// DefaultBaseURL is the hosted backend the dashboard talked to.
const DefaultBaseURL = "https://veritas-ai-backend-db28.onrender.com/api/v1"

// TokenSource supplies the bearer token for authenticated calls.
// An empty token means the caller is logged out.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// Client is a high-level client for the claims backend.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	retries    int
	newBackOff func() backoff.BackOff
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	tokens     TokenSource
	retries    int
	newBackOff func() backoff.BackOff
}

// New creates a new Client for the backend at baseURL (including the /api/v1 prefix).
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api: baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		// Copy so a caller's shared client keeps its own timeout.
		hc := *httpClient
		hc.Timeout = cfg.timeout
		httpClient = &hc
	}

	logger := cfg.logger
	if logger == nil {
		logger = logging.Discard()
	}

	tokens := cfg.tokens
	if tokens == nil {
		tokens = StaticToken("")
	}

	newBackOff := cfg.newBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}

	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
		retries:    cfg.retries,
		newBackOff: newBackOff,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d < 0 {
			return fmt.Errorf("api: negative timeout %s", d)
		}
		cfg.timeout = d
		return nil
	}
}

// WithTokenSource sets where authenticated calls read the bearer token from.
func WithTokenSource(ts TokenSource) Option {
	return func(cfg *clientConfig) error {
		cfg.tokens = ts
		return nil
	}
}

// WithRetries enables up to n extra attempts for GET requests that fail with a
// transport error or a 5xx status. Non-idempotent calls are never retried.
func WithRetries(n int) Option {
	return func(cfg *clientConfig) error {
		if n < 0 {
			return fmt.Errorf("api: negative retries %d", n)
		}
		cfg.retries = n
		return nil
	}
}

// WithBackOff overrides the retry schedule. Mostly useful in tests.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(cfg *clientConfig) error {
		cfg.newBackOff = fn
		return nil
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// request describes one backend call. Body is kept as bytes so a retry can resend it.
type request struct {
	method      string
	path        string
	operation   string
	body        []byte
	contentType string
	auth        bool
}

func jsonRequest(method, path, operation string, v any, auth bool) (request, error) {
	r := request{method: method, path: path, operation: operation, auth: auth}
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return r, fmt.Errorf("%s: encode request: %w", operation, err)
		}
		r.body = b
		r.contentType = "application/json"
	}
	return r, nil
}

// do executes r and decodes a JSON response into dst (if non-nil).
// Error statuses become *APIError.
func (c *Client) do(ctx context.Context, r request, dst any) error {
	token := ""
	if r.auth {
		token = c.tokens.Token()
		if token == "" {
			return fmt.Errorf("%s: %w", r.operation, ErrNoSession)
		}
	}

	if r.method != http.MethodGet || c.retries == 0 {
		return c.once(ctx, r, token, dst)
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.once(ctx, r, token, dst)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			c.logger.WarnContext(ctx, "retrying API request", "operation", r.operation, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxTries(uint(c.retries+1)))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}

func (c *Client) once(ctx context.Context, r request, token string, dst any) error {
	url := c.baseURL + r.path

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", r.operation, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.InfoContext(ctx, "API request", "operation", r.operation, "method", r.method, "url", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: fmt.Errorf("%s: do request: %w", r.operation, err)}
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "API response", "operation", r.operation, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp, r.operation)
	}

	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("%s: decode response: %w", r.operation, err)
		}
	}
	return nil
}

func readAPIError(resp *http.Response, operation string) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var errRS errorRS
	if json.Unmarshal(respBody, &errRS) == nil {
		if msg := errRS.message(); msg != "" {
			return newAPIError(operation, resp.StatusCode, msg)
		}
	}
	msg := strings.TrimSpace(string(respBody))
	if msg == "" {
		msg = resp.Status
	}
	return newAPIError(operation, resp.StatusCode, msg)
}

// transportError marks a request that never produced an HTTP response.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// retryable reports whether a failed GET may be attempted again: a 5xx
// response or a transport failure. Malformed bodies are not retried.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.statusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *transportError
	return errors.As(err, &te)
}

// Root calls GET / and returns whatever the backend reports about itself.
func (c *Client) Root(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, request{method: http.MethodGet, path: "/", operation: "get root"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
