package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/worker"
)

// ScannerService is the part of the completion scanner exposed over HTTP.
type ScannerService interface {
	Stats() worker.Stats
	ForceProcess(ctx context.Context, postID domain.PostID) (*worker.ForceResult, error)
}

// DefaultForceTimeout bounds a forced run once it is detached from the request.
const DefaultForceTimeout = 30 * time.Minute

// ScannerHandler serves scanner statistics and operator reprocessing.
type ScannerHandler struct {
	scanner      ScannerService
	forceTimeout time.Duration
	logger       *slog.Logger
}

// NewScannerHandler creates a new scanner handler.
func NewScannerHandler(scanner ScannerService, logger *slog.Logger) *ScannerHandler {
	return &ScannerHandler{scanner: scanner, forceTimeout: DefaultForceTimeout, logger: logger}
}

// ScannerStatsResponse wraps worker.Stats with human-readable durations.
type ScannerStatsResponse struct {
	worker.Stats
	UptimeHuman string `json:"uptime_human"`
}

// Stats handles GET /api/v1/scanner/stats.
func (h *ScannerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.scanner.Stats()
	writeJSON(w, http.StatusOK, ScannerStatsResponse{
		Stats:       stats,
		UptimeHuman: formatUptime(stats.Uptime),
	})
}

// Process handles POST /api/v1/posts/{postID}/process.
func (h *ScannerHandler) Process(w http.ResponseWriter, r *http.Request) {
	postID := strings.TrimSpace(chi.URLParam(r, "postID"))
	if postID == "" {
		writeError(w, http.StatusBadRequest, "missing post ID")
		return
	}

	// A client disconnect or the router timeout must not abort transfers
	// halfway; the run gets its own bound instead.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.forceTimeout)
	defer cancel()

	result, err := h.scanner.ForceProcess(ctx, domain.PostID(postID))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPostNotFound):
			writeError(w, http.StatusNotFound, "post not found")
		case errors.Is(err, domain.ErrAlreadyInProgress):
			writeError(w, http.StatusConflict, "post is already being processed")
		default:
			h.logger.Error("force process failed", "post_id", postID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to process post")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
