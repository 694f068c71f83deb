// Package emailcheck talks to the third-party address-verification service
// used to sanity-check an email before registration. It is a collaborator
// independent of the account backend, with its own base URL, API key and
// failure domain.
package emailcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/videocms/authkit/transport"
)

// ErrUnavailable indicates the verification service could not be reached or
// answered with a failure status. Distinct from "address judged invalid".
var ErrUnavailable = errors.New("emailcheck: service unavailable")

// verifyResponse is the subset of the provider payload the SDK consumes.
type verifyResponse struct {
	IsValid bool `json:"is_valid"`
}

// Client queries the address-verification endpoint. Outbound calls are
// throttled to stay inside the provider's free-tier quota.
type Client struct {
	baseURL string
	apiKey  string
	http    *transport.Client
	limiter *rate.Limiter
}

// New constructs a verification client. rps bounds outbound calls per
// second; zero or negative falls back to one call per second.
func New(baseURL, apiKey string, httpClient *transport.Client, rps float64) *Client {
	if httpClient == nil {
		panic("emailcheck: transport client must not be nil")
	}
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Verify reports whether the provider judges the address deliverable. An
// unreachable service yields (false, status, err); a judged-invalid address
// yields (false, status, nil).
func (c *Client) Verify(ctx context.Context, address string) (bool, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	query := url.Values{}
	query.Set("address", address)
	query.Set("api_key", c.apiKey)
	endpoint := c.baseURL + "?" + query.Encode()

	status, body, err := c.http.Do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return false, status, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status < 200 || status > 299 {
		return false, status, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, status, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	return resp.IsValid, status, nil
}
