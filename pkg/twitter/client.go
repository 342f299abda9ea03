package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

const (
	defaultSyndicationURL   = "https://cdn.syndication.twimg.com/tweet-result"
	defaultGuestActivateURL = "https://api.x.com/1.1/guest/activate.json"
	defaultGraphQLURL       = "https://api.x.com/graphql"

	// Query id of TweetResultByRestId. X rotates these; override through config.
	defaultTweetResultQueryID = "2ICDjqPd81tulZcYrtpTuQ"

	// Public bearer token shipped with the x.com web client.
	defaultBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// Error bodies are only read for log context.
	maxErrorBody = 4 << 10
)

// Config holds upstream endpoint and throttling settings.
type Config struct {
	SyndicationURL     string
	GuestActivateURL   string
	GraphQLURL         string
	TweetResultQueryID string
	BearerToken        string
	GuestToken         string // fixed guest token; empty activates sessions on demand
	GuestTokenTTL      time.Duration
	RequestsPerSecond  float64
	Burst              int
	Timeout            time.Duration
	UserAgent          string
}

func (c *Config) applyDefaults() {
	if c.SyndicationURL == "" {
		c.SyndicationURL = defaultSyndicationURL
	}
	if c.GuestActivateURL == "" {
		c.GuestActivateURL = defaultGuestActivateURL
	}
	if c.GraphQLURL == "" {
		c.GraphQLURL = defaultGraphQLURL
	}
	if c.TweetResultQueryID == "" {
		c.TweetResultQueryID = defaultTweetResultQueryID
	}
	if c.BearerToken == "" {
		c.BearerToken = defaultBearerToken
	}
	if c.GuestTokenTTL <= 0 {
		c.GuestTokenTTL = time.Hour
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// RateLimitError indicates the request hit a rate limit and includes a reset time if known.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if !e.Reset.IsZero() {
		return fmt.Sprintf("rate limited until %s", e.Reset.Format(time.RFC3339))
	}
	return "rate limited"
}

// Unwrap lets callers match any upstream rate limit with domain.ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Unauthorized reports whether the upstream rejected the credentials.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Client is the shared transport for all upstream lookups. Every request
// waits on one limiter so strategies cannot overrun the upstream together.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new upstream client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// doJSON sends req after waiting for a limiter slot and decodes a 2xx JSON body into out.
func (c *Client) doJSON(ctx context.Context, req *http.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		rl := &RateLimitError{}
		if reset := resp.Header.Get("x-rate-limit-reset"); reset != "" {
			if sec, err := strconv.ParseInt(reset, 10, 64); err == nil {
				rl.Reset = time.Unix(sec, 0)
			}
		}
		return rl
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
