// Package remote replays staged operations against the clinic backend API.
package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dmeireles/writeback/internal/auth"
	apperrors "github.com/dmeireles/writeback/internal/errors"
	"github.com/dmeireles/writeback/internal/logging"
	"github.com/dmeireles/writeback/internal/tracing"
	"github.com/dmeireles/writeback/internal/uuid"
)

// DefaultTimeout bounds a single replay attempt. The engine owns retries, so
// a hung request must fail fast enough for the pass to move on.
const DefaultTimeout = 15 * time.Second

// Client executes one HTTP request per replay. It never retries internally;
// the sync engine owns the retry budget.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenSource
	userAgent  string
	logger     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource attaches bearer tokens from src to every request.
func WithTokenSource(src auth.TokenSource) Option {
	return func(c *Client) { c.tokens = src }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  "writebackd",
		logger:     logging.Component("remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute performs a single attempt of the given request. The returned
// success flag is true for any 2xx status; a transport-level failure (DNS,
// connect, timeout) is reported as an error with status 0.
func (c *Client) Execute(ctx context.Context, method, endpoint string, payload []byte) (bool, int, error) {
	ctx, span := tracing.StartSpan(ctx, "remote.execute",
		attribute.String("http.method", method),
		attribute.String("http.endpoint", endpoint),
	)
	defer span.End()

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return false, 0, apperrors.Wrap(apperrors.ErrTransport, "failed to build request", err)
	}

	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.New())

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			tracing.SetSpanError(ctx, err)
			return false, 0, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		c.logger.Warn().
			Err(err).
			Str("method", method).
			Str("endpoint", endpoint).
			Dur("latency", latency).
			Msg("replay request failed")
		return false, 0, apperrors.Wrap(apperrors.ErrTransport, "replay request failed", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int64("http.latency_ms", latency.Milliseconds()),
	)

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("latency", latency).
		Bool("success", success).
		Msg("replay request completed")

	return success, resp.StatusCode, nil
}
