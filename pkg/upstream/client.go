// Package upstream talks to the maps and weather providers. Responses are
// read with gjson so only the handful of fields the snapshot needs are
// touched; everything else in the (large) provider payloads is ignored.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ErrStatus is returned when a provider answers with a non-2xx HTTP status.
var ErrStatus = errors.New("unexpected upstream status")

// StatusError carries the HTTP status of a failed provider call. It matches
// ErrStatus with errors.Is.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s %d", ErrStatus, e.Path, e.Code)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// maxBodyBytes bounds how much of a provider response is read.
const maxBodyBytes = 4 << 20

// Options configure a provider client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// RatePerSecond limits outgoing requests; zero means unlimited.
	RatePerSecond float64
	Burst         int
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// client issues rate-limited GET requests against one provider.
type client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(opts Options, defaultBase string) *client {
	base := opts.BaseURL
	if base == "" {
		base = defaultBase
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &client{base: base, http: hc, limiter: limiter}
}

// get fetches base+path?query and returns the response body.
func (c *client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target, err := url.Parse(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}
	target.RawQuery = query.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Path: path, Code: resp.StatusCode}
	}
	return body, nil
}
