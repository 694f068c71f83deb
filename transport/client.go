// Package transport is the HTTP collaborator used by the session manager: it
// issues JSON requests with configured timeouts and surfaces either the raw
// response (status plus body) or a transport error. Each call is attempted
// exactly once; retries are the caller's responsibility.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/videocms/authkit/internal/logging"
)

const (
	// DefaultRequestTimeout bounds the wait for response headers.
	DefaultRequestTimeout = 120 * time.Second
	// DefaultTotalTimeout bounds one whole request including the body read.
	DefaultTotalTimeout = 600 * time.Second
)

var (
	// ErrBuildRequest indicates the request could not be constructed; no
	// network traffic was attempted.
	ErrBuildRequest = errors.New("transport: build request")
	// ErrRoundTrip indicates the request never produced an HTTP response
	// (timeout, connection refused, TLS failure).
	ErrRoundTrip = errors.New("transport: round trip")
)

// Client issues JSON requests against the account service. Cookies are never
// stored; sessions are token-based.
type Client struct {
	inner *http.Client
}

// Option customises the Client.
type Option func(*options)

type options struct {
	requestTimeout time.Duration
	totalTimeout   time.Duration
}

// WithTimeouts overrides the per-request header timeout and the total
// request deadline.
func WithTimeouts(request, total time.Duration) Option {
	return func(o *options) {
		if request > 0 {
			o.requestTimeout = request
		}
		if total > 0 {
			o.totalTimeout = total
		}
	}
}

// New constructs a Client with the configured timeouts. No cookie jar is
// installed and local caching is never consulted.
func New(opts ...Option) *Client {
	o := options{
		requestTimeout: DefaultRequestTimeout,
		totalTimeout:   DefaultTotalTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		inner: &http.Client{
			Timeout: o.totalTimeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: o.requestTimeout,
			},
		},
	}
}

// Do performs one HTTP round trip. A non-nil body is JSON-encoded. Any HTTP
// response, success or failure status alike, is returned as (status, body,
// nil); a zero status with a non-nil error means no response was obtained.
func (c *Client) Do(ctx context.Context, method, url string, body any, headers map[string]string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: encode body: %v", ErrBuildRequest, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrBuildRequest, err)
	}

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	logger := logging.FromContext(ctx).With(
		slog.String("method", method),
		slog.String("url", url),
		slog.String("request_id", requestID),
	)

	start := time.Now()
	resp, err := c.inner.Do(req)
	if err != nil {
		logger.Warn("request failed", slog.String("error", err.Error()))
		return 0, nil, fmt.Errorf("%w: %v", ErrRoundTrip, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("read response failed", slog.String("error", err.Error()))
		return 0, nil, fmt.Errorf("%w: read body: %v", ErrRoundTrip, err)
	}

	logger.Debug("request completed",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	return resp.StatusCode, payload, nil
}
