package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/reelstash/reelstash/internal/models"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "reelstash/1.0"
	// One burst per playlist worker; keeps a big index from hammering
	// the origin.
	defaultRate  = rate.Limit(8)
	defaultBurst = 4
)

// NetworkError wraps transport and non-2xx failures so callers can tell a
// network problem apart from a storage one.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client fetches catalog index and playlist documents over HTTP.
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit overrides the request rate limit (requests per second).
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewClient creates a fetch client with sane defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  defaultUserAgent,
		limiter:    rate.NewLimiter(defaultRate, defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Index fetches and decodes the playlist index document.
func (c *Client) Index(ctx context.Context, url string) (*models.PlaylistIndex, error) {
	var idx models.PlaylistIndex
	if err := c.getJSON(ctx, url, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// Playlist fetches and decodes one playlist document.
func (c *Client) Playlist(ctx context.Context, url string) (*models.Playlist, error) {
	var pl models.Playlist
	if err := c.getJSON(ctx, url, &pl); err != nil {
		return nil, err
	}
	return &pl, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &NetworkError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &NetworkError{URL: url, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
