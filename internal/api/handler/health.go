package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/mediagrabba/internal/repository"
)

var startTime = time.Now()

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store       repository.Pinger
	storageRoot string
}

// NewHealthHandler creates a new health handler. store may be nil for
// backends without a connection to check.
func NewHealthHandler(store repository.Pinger, storageRoot string) *HealthHandler {
	return &HealthHandler{
		store:       store,
		storageRoot: storageRoot,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp string     `json:"timestamp"`
	Error     string     `json:"error,omitempty"`
	Disk      *DiskStats `json:"disk,omitempty"`
}

// DiskStats describes the filesystem holding the storage root.
type DiskStats struct {
	Path       string  `json:"path"`
	TotalBytes int64   `json:"total_bytes"`
	FreeBytes  int64   `json:"free_bytes"`
	UsedBytes  int64   `json:"used_bytes"`
	UsedPct    float64 `json:"used_pct"`
}

// Live handles GET /health, the liveness check.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready, the readiness check.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:    "error",
				Timestamp: now,
				Error:     "metadata store unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: now,
		Disk:      h.diskStats(),
	})
}

func (h *HealthHandler) diskStats() *DiskStats {
	if h.storageRoot == "" {
		return nil
	}
	total, free, used, pct := getDiskStats(h.storageRoot)
	return &DiskStats{
		Path:       h.storageRoot,
		TotalBytes: total,
		FreeBytes:  free,
		UsedBytes:  used,
		UsedPct:    pct,
	}
}

// SystemStats contains process and storage resource statistics.
type SystemStats struct {
	Uptime        int64      `json:"uptime_seconds"`
	UptimeHuman   string     `json:"uptime_human"`
	MemAllocMB    int64      `json:"mem_alloc_mb"`
	MemSysMB      int64      `json:"mem_sys_mb"`
	MemHeapMB     int64      `json:"mem_heap_mb"`
	NumGoroutines int        `json:"num_goroutines"`
	NumCPU        int        `json:"num_cpu"`
	CPUPercent    float64    `json:"cpu_percent"`
	Disk          *DiskStats `json:"disk,omitempty"`
}

// Stats handles GET /api/v1/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	writeJSON(w, http.StatusOK, SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPercent:    getCPUUsage(),
		Disk:          h.diskStats(),
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
