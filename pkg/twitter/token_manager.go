package twitter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// TokenSource provides guest credentials for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) error
}

// StaticTokenSource uses a fixed guest token (no refresh).
type StaticTokenSource struct {
	TokenValue string
}

func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if strings.TrimSpace(s.TokenValue) == "" {
		return "", domain.ErrGuestToken
	}
	return s.TokenValue, nil
}

func (s *StaticTokenSource) ForceRefresh(ctx context.Context) error { return nil }

// GuestTokenSource activates guest sessions against the public bearer token
// and caches the issued token for the configured TTL.
type GuestTokenSource struct {
	c   *Client
	now func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewGuestTokenSource creates a caching guest token source.
func NewGuestTokenSource(c *Client) *GuestTokenSource {
	return &GuestTokenSource{c: c, now: time.Now}
}

func (s *GuestTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt) {
		return s.token, nil
	}
	if err := s.activateLocked(ctx); err != nil {
		return "", err
	}
	return s.token, nil
}

// ForceRefresh drops the cached token and activates a new one.
func (s *GuestTokenSource) ForceRefresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	return s.activateLocked(ctx)
}

type guestActivateResponse struct {
	GuestToken string `json:"guest_token"`
}

func (s *GuestTokenSource) activateLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.c.cfg.GuestActivateURL, nil)
	if err != nil {
		return fmt.Errorf("create activate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.c.cfg.BearerToken)

	var resp guestActivateResponse
	if err := s.c.doJSON(ctx, req, &resp); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGuestToken, err)
	}
	if strings.TrimSpace(resp.GuestToken) == "" {
		return fmt.Errorf("%w: empty guest_token in response", domain.ErrGuestToken)
	}

	s.token = resp.GuestToken
	s.expiresAt = s.now().Add(s.c.cfg.GuestTokenTTL)
	s.c.logger.Debug("guest token activated", "expires_at", s.expiresAt)
	return nil
}
