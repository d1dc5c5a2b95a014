// Package upstreamclient wraps an HTTPS chat-completion call to a single
// provider record: key rotation, a lightweight credential probe, and
// retry limited to auth-driven key rotation (spec §4.4). Generalizes the
// teacher's inline proxyToProviderEndpoint/key-selection logic in
// proxy/handler.go into a standalone dispatch client reused by every
// pipeline, with circuitbreaker.HealthManager tracking endpoint health in
// place of the teacher's two hardcoded endpoint classes.
package upstreamclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"llmproxy/apierror"
	"llmproxy/circuitbreaker"
	"llmproxy/config"
)

// Client dispatches a single outbound request to a provider's endpoint,
// rotating API keys on 401 and reporting success/failure to health.
type Client struct {
	health            *circuitbreaker.HealthManager
	connectionTimeout time.Duration
}

// New returns a Client that records endpoint health into health.
func New(health *circuitbreaker.HealthManager) *Client {
	return &Client{health: health, connectionTimeout: 10 * time.Second}
}

// Result is a successful dispatch: the raw response body and the status
// code it arrived with (always 200 on success — Send never returns a
// non-2xx Result, it normalizes those into an error instead).
type Result struct {
	Body       []byte
	StatusCode int
}

// UpstreamError carries the status code and body of a non-2xx upstream
// reply, so the caller's adapter can normalize it to the typed error
// taxonomy instead of the caller having to re-derive status/body from a
// plain error string. A connection-level failure (no response at all) is
// returned as a plain error instead, with StatusCode 0.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Provider   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.StatusCode, string(e.Body))
}

// Send POSTs body to endpoint with provider's authentication, rotating
// through provider.APIKeys on a 401 response up to keyCount-1 additional
// attempts. Any other failure (timeout, 5xx, connection error) propagates
// immediately without retry, per §4.4's "retries limited to
// authentication-driven key rotation" rule. Non-2xx status is reported to
// the health manager; a successful call at this endpoint is as well,
// unless skipHealthTracking is set (the big-endpoint-bypass the teacher
// applies to its slow model class).
func (c *Client) Send(ctx context.Context, provider config.ProviderRecord, endpoint string, body []byte, nextKey func() string, skipHealthTracking bool) (*Result, error) {
	keys := provider.APIKeys
	attempts := 1
	if len(keys) > 1 {
		attempts = len(keys)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		key := nextKey()

		result, statusCode, err := c.doRequest(ctx, provider, endpoint, body, key)
		if err != nil {
			if !skipHealthTracking {
				c.health.RecordFailure(endpoint)
			}
			return nil, err
		}

		if statusCode == http.StatusUnauthorized && attempt < attempts-1 {
			lastErr = apierror.New(apierror.TypeAuthentication, "upstream rejected credentials, rotating key")
			continue
		}

		if statusCode != http.StatusOK {
			if !skipHealthTracking {
				c.health.RecordFailure(endpoint)
			}
			return nil, &UpstreamError{StatusCode: statusCode, Body: result, Provider: provider.Name}
		}

		if !skipHealthTracking {
			c.health.RecordSuccess(endpoint)
		}
		return &Result{Body: result, StatusCode: statusCode}, nil
	}

	if !skipHealthTracking {
		c.health.RecordFailure(endpoint)
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, provider config.ProviderRecord, endpoint string, body []byte, key string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	applyAuth(httpReq, provider, key)

	timeout := provider.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: c.connectionTimeout}).DialContext,
		},
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("request to %s failed: %w", provider.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

// applyAuth attaches the provider's credential to the request per its
// configured auth method: a Bearer Authorization header, or an arbitrary
// header name carrying the raw key (e.g. Gemini's x-goog-api-key).
func applyAuth(req *http.Request, provider config.ProviderRecord, key string) {
	if key == "" {
		return
	}
	switch provider.AuthMethod {
	case config.AuthHeader:
		header := provider.AuthHeader
		if header == "" {
			header = "Authorization"
		}
		req.Header.Set(header, key)
	default:
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// Probe validates a provider's credentials with a lightweight model-list
// request before the provider is used, unless
// provider.SkipAuthentication bypasses it.
func (c *Client) Probe(ctx context.Context, provider config.ProviderRecord, probeURL string) error {
	if provider.SkipAuthentication || probeURL == "" {
		return nil
	}
	if len(provider.APIKeys) == 0 {
		return apierror.New(apierror.TypeAuthentication, "no api key configured for provider "+provider.Name)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build auth probe request: %w", err)
	}
	applyAuth(httpReq, provider, provider.APIKeys[0])

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return apierror.New(apierror.TypeConnection, "auth probe failed to reach provider "+provider.Name).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apierror.New(apierror.TypeAuthentication, "auth probe rejected credentials for provider "+provider.Name)
	}
	return nil
}
