package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")

	ErrMethodNotAllowed = errors.New("http: method not allowed")
)

// DefaultUserAgent is sent with every request unless Options.UserAgent is set.
const DefaultUserAgent = "dirsync"

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 32
	MaxIdleConnsPerHost int

	// Timeout for individual requests. Transfers stream for as long as the
	// body takes, so this only bounds metadata requests.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// UserAgent is sent with every request.
	// Default: DefaultUserAgent
	UserAgent string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 32,
		Timeout:             30 * time.Second,
		RetryAttempts:       5,
		RetryBackoff:        time.Second,
		RetryMaxBackoff:     30 * time.Second,
		UserAgent:           DefaultUserAgent,
	}
}

// ArtifactInfo is what a HEAD request reveals about a remote artifact.
type ArtifactInfo struct {
	// Size is the advertised length, or -1 when the server sends none.
	Size int64

	// LastModified is zero when the server sends no Last-Modified header.
	LastModified time.Time
}

// Length returns Size, or 0 when the length is unknown.
func (i ArtifactInfo) Length() int64 {
	if i.Size < 0 {
		return 0
	}
	return i.Size
}

// Client is the network client shared by every transfer of a run.
type Client struct {
	client    *http.Client
	transfers *http.Client
	opts      Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		// Same pool, no overall deadline: a large artifact may legitimately
		// stream for longer than Timeout.
		transfers: &http.Client{
			Transport: transport,
		},
		opts: opts,
	}
}

// HTTPClient returns the underlying client used for streaming transfers.
func (c *Client) HTTPClient() *http.Client {
	return c.transfers
}

// Headers returns the headers the client adds to every request.
func (c *Client) Headers() map[string]string {
	return map[string]string{"User-Agent": c.opts.UserAgent}
}

// Head asks the server what it knows about the artifact at url.
func (c *Client) Head(ctx context.Context, url string) (ArtifactInfo, error) {
	resp, err := c.do(ctx, c.client, http.MethodHead, url)
	if err != nil {
		return ArtifactInfo{}, err
	}
	resp.Body.Close()

	info := ArtifactInfo{Size: resp.ContentLength}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.LastModified = t
		}
	}
	return info, nil
}

// Get fetches a small document such as a manifest. The request is bounded by
// Options.Timeout.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, c.client, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Stream opens an artifact body without the metadata timeout. The returned
// length is -1 when the server sends none.
func (c *Client) Stream(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	resp, err := c.do(ctx, c.transfers, http.MethodGet, url)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

// do sends method to url until it gets a non-5xx answer or runs out of
// attempts. Only a 2xx response is returned.
func (c *Client) do(ctx context.Context, hc *http.Client, method, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := hc.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if err := CheckStatus(resp.StatusCode); err != nil {
			resp.Body.Close()
			if resp.StatusCode >= 500 {
				lastErr = err
				continue
			}
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", method, url, c.opts.RetryAttempts+1, lastErr)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// CheckStatus returns an appropriate error for non-success status codes.
func CheckStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusMethodNotAllowed:
		return ErrMethodNotAllowed
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
