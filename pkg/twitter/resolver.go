package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Strategy is one way of turning a post id into video variants.
type Strategy interface {
	Name() string
	Variants(ctx context.Context, postID string) ([]domain.VideoVariant, error)
}

// Resolver turns media references into downloadable URLs by trying its
// strategies in order and stopping at the first that yields variants.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver creates a resolver over the given strategies.
func NewResolver(logger *slog.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{
		strategies: strategies,
		logger:     logger,
	}
}

// NewDefaultResolver wires the embed lookup followed by the guest-session lookup.
// A configured GuestToken is used as is instead of activating sessions.
func NewDefaultResolver(c *Client, logger *slog.Logger) *Resolver {
	var tokens TokenSource = NewGuestTokenSource(c)
	if c.cfg.GuestToken != "" {
		tokens = &StaticTokenSource{TokenValue: c.cfg.GuestToken}
	}
	return NewResolver(logger,
		NewSyndicationStrategy(c),
		NewGuestGraphQLStrategy(c, tokens),
	)
}

// Resolve returns the best URL for ref and all variants ranked by bitrate.
// bestURL is "" when every strategy came back empty. The only error is
// domain.ErrUnresolvableReference, returned when no post id can be found.
func (r *Resolver) Resolve(ctx context.Context, ref domain.MediaReference) (string, []domain.VideoVariant, error) {
	if IsDirectMediaURL(ref.OriginalURL) {
		v := domain.VideoVariant{
			URL:         ref.OriginalURL,
			ContentType: contentTypeForURL(ref.OriginalURL),
		}
		return v.URL, []domain.VideoVariant{v}, nil
	}

	postID := ExtractPostID(ref.OriginalURL)
	if postID == "" {
		postID = ExtractPostID(ref.PostID.String())
	}
	if postID == "" {
		return "", nil, domain.ErrUnresolvableReference
	}

	logger := r.logger.With("post_id", postID, "media_id", ref.ID)

	var variants []domain.VideoVariant
	for _, s := range r.strategies {
		found, err := r.runStrategy(ctx, s, postID)
		if errors.Is(err, domain.ErrRateLimited) {
			// Strategies share the upstream quota; the next cycle retries.
			logger.Warn("upstream rate limited, skipping remaining strategies", "strategy", s.Name(), "error", err)
			break
		}
		if err != nil {
			logger.Warn("resolution strategy failed", "strategy", s.Name(), "error", err)
			continue
		}
		if len(found) > 0 {
			logger.Debug("resolution strategy succeeded", "strategy", s.Name(), "variants", len(found))
			variants = found
			break
		}
		logger.Debug("resolution strategy found no variants", "strategy", s.Name())
	}

	domain.SortVariants(variants)
	return domain.BestVariantURL(variants), variants, nil
}

func (r *Resolver) runStrategy(ctx context.Context, s Strategy, postID string) (variants []domain.VideoVariant, err error) {
	defer func() {
		if p := recover(); p != nil {
			variants = nil
			err = fmt.Errorf("strategy panic: %v", p)
		}
	}()
	return s.Variants(ctx, postID)
}
