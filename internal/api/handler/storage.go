package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/mediagrabba/internal/worker"
)

// CleanupRunner runs retention passes and reports the latest one.
type CleanupRunner interface {
	RunOnce(ctx context.Context, retentionDays int) (*worker.CleanupResult, error)
	LastResult() *worker.CleanupResult
}

// CleanupStatusResponse is returned by GET /api/v1/storage/cleanup.
// LastRun is null until a pass has completed.
type CleanupStatusResponse struct {
	RetentionDays int                   `json:"retention_days"`
	LastRun       *worker.CleanupResult `json:"last_run"`
}

// StorageHandler exposes on-demand retention cleanup.
type StorageHandler struct {
	janitor          CleanupRunner
	defaultRetention int
	logger           *slog.Logger
}

// NewStorageHandler creates a new storage handler.
func NewStorageHandler(janitor CleanupRunner, defaultRetention int, logger *slog.Logger) *StorageHandler {
	return &StorageHandler{janitor: janitor, defaultRetention: defaultRetention, logger: logger}
}

// Cleanup handles POST /api/v1/storage/cleanup?retention_days=N.
func (h *StorageHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := h.defaultRetention
	if raw := r.URL.Query().Get("retention_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "retention_days must be a non-negative integer")
			return
		}
		days = n
	}

	result, err := h.janitor.RunOnce(r.Context(), days)
	if err != nil {
		if errors.Is(err, worker.ErrCleanupRunning) {
			writeError(w, http.StatusConflict, "cleanup already running")
			return
		}
		h.logger.Error("storage cleanup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Status handles GET /api/v1/storage/cleanup.
func (h *StorageHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CleanupStatusResponse{
		RetentionDays: h.defaultRetention,
		LastRun:       h.janitor.LastResult(),
	})
}
