package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/worker"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

type mockScanner struct {
	stats    worker.Stats
	result   *worker.ForceResult
	err      error
	lastPost domain.PostID
	lastCtx  context.Context
}

func (m *mockScanner) Stats() worker.Stats { return m.stats }

func (m *mockScanner) ForceProcess(ctx context.Context, postID domain.PostID) (*worker.ForceResult, error) {
	m.lastPost = postID
	m.lastCtx = ctx
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockResolver struct {
	best     string
	variants []domain.VideoVariant
	err      error
	last     domain.MediaReference
}

func (m *mockResolver) Resolve(ctx context.Context, ref domain.MediaReference) (string, []domain.VideoVariant, error) {
	m.last = ref
	return m.best, m.variants, m.err
}

type mockCleanup struct {
	days   int
	result *worker.CleanupResult
	last   *worker.CleanupResult
	err    error
}

func (m *mockCleanup) LastResult() *worker.CleanupResult { return m.last }

func (m *mockCleanup) RunOnce(ctx context.Context, retentionDays int) (*worker.CleanupResult, error) {
	m.days = retentionDays
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}
