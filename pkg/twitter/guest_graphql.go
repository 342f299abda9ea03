package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Feature flags the web client sends with TweetResultByRestId. The endpoint
// rejects requests that omit required flags, so the set is sent as is.
const tweetResultFeatures = `{"creator_subscriptions_tweet_preview_api_enabled":true,` +
	`"communities_web_enable_tweet_community_results_fetch":true,` +
	`"c9s_tweet_anatomy_moderator_badge_enabled":true,` +
	`"articles_preview_enabled":true,` +
	`"tweetypie_unmention_optimization_enabled":true,` +
	`"responsive_web_edit_tweet_api_enabled":true,` +
	`"graphql_is_translatable_rweb_tweet_is_translatable_enabled":true,` +
	`"view_counts_everywhere_api_enabled":true,` +
	`"longform_notetweets_consumption_enabled":true,` +
	`"responsive_web_twitter_article_tweet_consumption_enabled":true,` +
	`"tweet_awards_web_tipping_enabled":false,` +
	`"creator_subscriptions_quote_tweet_preview_enabled":false,` +
	`"freedom_of_speech_not_reach_fetch_enabled":true,` +
	`"standardized_nudges_misinfo":true,` +
	`"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled":true,` +
	`"rweb_video_timestamps_enabled":true,` +
	`"longform_notetweets_rich_text_read_enabled":true,` +
	`"longform_notetweets_inline_media_enabled":true,` +
	`"rweb_tipjar_consumption_enabled":true,` +
	`"responsive_web_graphql_exclude_directive_enabled":true,` +
	`"verified_phone_label_enabled":false,` +
	`"responsive_web_graphql_skip_user_profile_image_extensions_enabled":false,` +
	`"responsive_web_graphql_timeline_navigation_enabled":true,` +
	`"responsive_web_enhance_cards_enabled":false}`

// GuestGraphQLStrategy queries TweetResultByRestId with a guest session.
type GuestGraphQLStrategy struct {
	c      *Client
	tokens TokenSource
}

// NewGuestGraphQLStrategy creates the guest-session lookup strategy.
func NewGuestGraphQLStrategy(c *Client, tokens TokenSource) *GuestGraphQLStrategy {
	return &GuestGraphQLStrategy{c: c, tokens: tokens}
}

// Name implements Strategy.
func (s *GuestGraphQLStrategy) Name() string { return "guest_graphql" }

// Variants implements Strategy. A missing guest token yields no variants.
func (s *GuestGraphQLStrategy) Variants(ctx context.Context, postID string) ([]domain.VideoVariant, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	parsed, err := s.query(ctx, postID, token)
	var se *StatusError
	if errors.As(err, &se) && se.Unauthorized() {
		// Guest tokens get revoked before their TTL; one fresh token per lookup.
		if rerr := s.tokens.ForceRefresh(ctx); rerr != nil {
			return nil, rerr
		}
		if token, err = s.tokens.Token(ctx); err != nil {
			return nil, err
		}
		parsed, err = s.query(ctx, postID, token)
	}
	if err != nil {
		return nil, err
	}

	var out variantCollector
	collectVideoInfoVariants(parsed, &out)
	return out.variants, nil
}

func (s *GuestGraphQLStrategy) query(ctx context.Context, postID, guestToken string) (map[string]any, error) {
	vars := map[string]any{
		"tweetId":                postID,
		"withCommunity":          false,
		"includePromotedContent": false,
		"withVoice":              false,
	}
	varsJSON, _ := json.Marshal(vars)

	reqURL := fmt.Sprintf("%s/%s/TweetResultByRestId?variables=%s&features=%s",
		s.c.cfg.GraphQLURL,
		s.c.cfg.TweetResultQueryID,
		url.QueryEscape(string(varsJSON)),
		url.QueryEscape(tweetResultFeatures),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.c.cfg.BearerToken)
	req.Header.Set("X-Guest-Token", guestToken)
	req.Header.Set("Content-Type", "application/json")

	var parsed map[string]any
	if err := s.c.doJSON(ctx, req, &parsed); err != nil {
		return nil, fmt.Errorf("guest graphql lookup: %w", err)
	}
	return parsed, nil
}

// collectVideoInfoVariants walks any response shape looking for
// video_info.variants arrays. Map keys are visited in sorted order so the
// first-seen order of variants is deterministic.
func collectVideoInfoVariants(v any, out *variantCollector) {
	switch t := v.(type) {
	case map[string]any:
		if vi, ok := t["video_info"].(map[string]any); ok {
			if variants, ok := vi["variants"].([]any); ok {
				for _, raw := range variants {
					entry, ok := raw.(map[string]any)
					if !ok {
						continue
					}
					u, _ := entry["url"].(string)
					ct, _ := entry["content_type"].(string)
					br, _ := entry["bitrate"].(float64)
					out.add(u, int(br), ct)
				}
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "video_info" {
				continue
			}
			collectVideoInfoVariants(t[k], out)
		}
	case []any:
		for _, vv := range t {
			collectVideoInfoVariants(vv, out)
		}
	}
}
