package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// VariantResolver resolves a media reference to ranked video variants.
type VariantResolver interface {
	Resolve(ctx context.Context, ref domain.MediaReference) (string, []domain.VideoVariant, error)
}

// ResolveHandler exposes URL resolution for diagnostics.
type ResolveHandler struct {
	resolver VariantResolver
	logger   *slog.Logger
}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler(resolver VariantResolver, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{resolver: resolver, logger: logger}
}

// VariantResponse is one ranked variant.
type VariantResponse struct {
	URL         string `json:"url"`
	Bitrate     int    `json:"bitrate"`
	ContentType string `json:"content_type"`
	Quality     string `json:"quality"`
}

// ResolveResponse is the JSON response for GET /api/v1/resolve.
type ResolveResponse struct {
	Ref      string            `json:"ref"`
	BestURL  string            `json:"best_url,omitempty"`
	Variants []VariantResponse `json:"variants"`
}

// Resolve handles GET /api/v1/resolve?ref=... where ref is a post URL,
// a thumbnail or media URL, or a bare post ID.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, "missing ref parameter")
		return
	}

	media := domain.MediaReference{Kind: domain.MediaKindVideo}
	if strings.Contains(ref, "://") {
		media.OriginalURL = ref
	} else {
		media.PostID = domain.PostID(ref)
	}

	best, variants, err := h.resolver.Resolve(r.Context(), media)
	if err != nil {
		if errors.Is(err, domain.ErrUnresolvableReference) {
			writeError(w, http.StatusUnprocessableEntity, "no post ID found in reference")
			return
		}
		h.logger.Error("resolve failed", "ref", ref, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve reference")
		return
	}

	resp := ResolveResponse{Ref: ref, BestURL: best, Variants: make([]VariantResponse, 0, len(variants))}
	for _, v := range variants {
		resp.Variants = append(resp.Variants, VariantResponse{
			URL:         v.URL,
			Bitrate:     v.Bitrate,
			ContentType: v.ContentType,
			Quality:     v.Quality(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
