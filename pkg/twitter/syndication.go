package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

const mp4ContentType = "video/mp4"

// syndicationVariant is the bitrate-carrying variant shape used by
// mediaDetails and extended_entities.
type syndicationVariant struct {
	Bitrate     int    `json:"bitrate"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

type syndicationVideoInfo struct {
	DurationMillis int                  `json:"duration_millis"`
	Variants       []syndicationVariant `json:"variants"`
}

// syndicationResponse keeps only the media parts of the embed lookup.
// The endpoint has served all three shapes over time.
type syndicationResponse struct {
	MediaDetails []struct {
		Type      string               `json:"type"`
		VideoInfo syndicationVideoInfo `json:"video_info"`
	} `json:"mediaDetails"`
	ExtendedEntities struct {
		Media []struct {
			Type      string               `json:"type"`
			VideoInfo syndicationVideoInfo `json:"video_info"`
		} `json:"media"`
	} `json:"extended_entities"`
	Video struct {
		Variants []struct {
			Type string `json:"type"`
			Src  string `json:"src"`
		} `json:"variants"`
	} `json:"video"`
}

// SyndicationStrategy looks a post up through the unauthenticated embed endpoint.
type SyndicationStrategy struct {
	c *Client
}

// NewSyndicationStrategy creates the embed lookup strategy.
func NewSyndicationStrategy(c *Client) *SyndicationStrategy {
	return &SyndicationStrategy{c: c}
}

// Name implements Strategy.
func (s *SyndicationStrategy) Name() string { return "syndication" }

// Variants implements Strategy.
func (s *SyndicationStrategy) Variants(ctx context.Context, postID string) ([]domain.VideoVariant, error) {
	q := url.Values{}
	q.Set("id", postID)
	q.Set("token", "0")
	reqURL := s.c.cfg.SyndicationURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var resp syndicationResponse
	if err := s.c.doJSON(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("syndication lookup: %w", err)
	}
	return parseSyndicationVariants(&resp), nil
}

func parseSyndicationVariants(resp *syndicationResponse) []domain.VideoVariant {
	var out variantCollector

	for _, md := range resp.MediaDetails {
		for _, v := range md.VideoInfo.Variants {
			out.add(v.URL, v.Bitrate, v.ContentType)
		}
	}
	for _, em := range resp.ExtendedEntities.Media {
		for _, v := range em.VideoInfo.Variants {
			out.add(v.URL, v.Bitrate, v.ContentType)
		}
	}
	// This shape has no bitrate.
	for _, v := range resp.Video.Variants {
		out.add(v.Src, 0, v.Type)
	}

	return out.variants
}

// variantCollector dedupes by URL and keeps only MP4 renditions, first seen wins.
type variantCollector struct {
	seen     map[string]bool
	variants []domain.VideoVariant
}

func (c *variantCollector) add(rawURL string, bitrate int, contentType string) {
	if rawURL == "" || contentType != mp4ContentType {
		return
	}
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[rawURL] {
		return
	}
	c.seen[rawURL] = true
	c.variants = append(c.variants, domain.VideoVariant{
		URL:         rawURL,
		Bitrate:     bitrate,
		ContentType: contentType,
	})
}
