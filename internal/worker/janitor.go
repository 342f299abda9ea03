package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iconidentify/mediagrabba/internal/config"
	"github.com/iconidentify/mediagrabba/internal/storage"
)

// ErrCleanupRunning is returned by RunOnce when a cleanup pass is already active.
var ErrCleanupRunning = errors.New("cleanup already running")

// CleanupResult summarizes one retention pass.
type CleanupResult struct {
	FilesRemoved  int           `json:"files_removed"`
	RetentionDays int           `json:"retention_days"`
	Duration      time.Duration `json:"duration"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// Janitor applies the storage retention policy on a cron schedule.
type Janitor struct {
	cfg      config.StorageConfig
	archiver storage.Archiver
	logger   *slog.Logger
	cron     *cron.Cron

	running sync.Mutex

	mu   sync.RWMutex
	last *CleanupResult
}

// NewJanitor creates a janitor for cfg.Root. archiver may be nil.
func NewJanitor(cfg config.StorageConfig, archiver storage.Archiver, logger *slog.Logger) *Janitor {
	return &Janitor{
		cfg:      cfg,
		archiver: archiver,
		logger:   logger,
	}
}

// Start registers the schedule and starts the cron runner.
func (j *Janitor) Start() error {
	c := cron.New()
	_, err := c.AddFunc(j.cfg.CleanupSchedule, func() {
		_, err := j.RunOnce(context.Background(), j.cfg.RetentionDays)
		if err != nil && !errors.Is(err, ErrCleanupRunning) {
			j.logger.Error("scheduled cleanup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", j.cfg.CleanupSchedule, err)
	}

	j.cron = c
	c.Start()
	j.logger.Info("storage janitor started",
		"schedule", j.cfg.CleanupSchedule,
		"retention_days", j.cfg.RetentionDays,
		"archive", j.archiver != nil,
	)
	return nil
}

// Stop halts the schedule and waits up to timeout for a running pass.
func (j *Janitor) Stop(timeout time.Duration) error {
	if j.cron == nil {
		return nil
	}
	ctx := j.cron.Stop()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
		return ErrShutdownTimeout
	}
}

// RunOnce performs a single cleanup pass. Overlapping calls fail fast with
// ErrCleanupRunning.
func (j *Janitor) RunOnce(ctx context.Context, retentionDays int) (*CleanupResult, error) {
	if !j.running.TryLock() {
		return nil, ErrCleanupRunning
	}
	defer j.running.Unlock()

	start := time.Now()
	removed, err := storage.Cleanup(ctx, j.cfg.Root, retentionDays, storage.CleanupOptions{
		Archiver: j.archiver,
		Logger:   j.logger,
	})
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{
		FilesRemoved:  removed,
		RetentionDays: retentionDays,
		Duration:      time.Since(start),
		FinishedAt:    time.Now(),
	}
	j.mu.Lock()
	j.last = result
	j.mu.Unlock()

	j.logger.Info("storage cleanup finished",
		"files_removed", removed,
		"retention_days", retentionDays,
		"duration", result.Duration.String(),
	)
	return result, nil
}

// LastResult returns the most recent completed pass, or nil.
func (j *Janitor) LastResult() *CleanupResult {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last
}
