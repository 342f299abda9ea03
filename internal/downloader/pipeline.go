package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/storage"
)

// DefaultConcurrency is the number of transfers a pipeline runs at once.
const DefaultConcurrency = 5

// Pipeline downloads every media item of one post under a shared
// concurrency cap. One item failing never affects its siblings.
type Pipeline struct {
	fetcher     Fetcher
	resolver    URLResolver
	planner     PathPlanner
	concurrency int
	logger      *slog.Logger
}

// NewPipeline creates a download pipeline.
func NewPipeline(fetcher Fetcher, resolver URLResolver, planner PathPlanner, concurrency int, logger *slog.Logger) *Pipeline {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pipeline{
		fetcher:     fetcher,
		resolver:    resolver,
		planner:     planner,
		concurrency: concurrency,
		logger:      logger,
	}
}

// DownloadAll returns exactly one outcome per item, in input order.
func (p *Pipeline) DownloadAll(ctx context.Context, postID domain.PostID, createdAt string, items []MediaInfo) []domain.DownloadOutcome {
	outcomes := make([]domain.DownloadOutcome, len(items))
	if len(items) == 0 {
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = p.downloadOne(ctx, postID, createdAt, item)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (p *Pipeline) downloadOne(ctx context.Context, postID domain.PostID, createdAt string, item MediaInfo) (out domain.DownloadOutcome) {
	logger := p.logger.With("post_id", postID, "media_id", item.MediaID, "index", item.Index)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("media download panicked", "panic", r)
			out = domain.FailedOutcome(item.MediaID, domain.ErrorKindInternal, fmt.Errorf("panic: %v", r), out.Attempts)
		}
	}()

	src := item.URL
	if item.Kind.NeedsResolution() && p.resolver != nil {
		best, variants, err := p.resolver.Resolve(ctx, domain.MediaReference{
			ID:          item.MediaID,
			PostID:      postID,
			Kind:        item.Kind,
			OriginalURL: item.URL,
			Width:       item.Width,
			Height:      item.Height,
			DurationMs:  item.DurationMs,
		})
		if err != nil {
			logger.Warn("media reference unresolvable", "url", item.URL, "error", err)
			return domain.FailedOutcome(item.MediaID, domain.KindOf(err), err, 0)
		}
		if best == "" {
			logger.Warn("no resolvable URL for media", "url", item.URL)
			return domain.FailedOutcome(item.MediaID, domain.ErrorKindNoResolvableURL, domain.ErrNoResolvableURL, 0)
		}
		if best != item.URL {
			logger.Debug("media URL resolved", "from", item.URL, "to", best, "variants", len(variants))
		}
		src = best
	}
	if src == "" {
		return domain.FailedOutcome(item.MediaID, domain.ErrorKindNoResolvableURL,
			errors.New("media item has no URL"), 0)
	}

	dest := p.planner.Path(item.Kind, createdAt, postID, item.Index, storage.ExtensionFor(item.Kind, src))

	out = p.fetcher.Fetch(ctx, FetchRequest{
		MediaID:    item.MediaID,
		URL:        src,
		DestPath:   dest,
		Kind:       item.Kind,
		Width:      item.Width,
		Height:     item.Height,
		DurationMs: item.DurationMs,
	})
	out.MediaID = item.MediaID
	if out.SourceURL == "" {
		out.SourceURL = src
	}

	if !out.Completed() {
		logger.Warn("media download failed",
			"error_kind", out.ErrorKind,
			"error", out.ErrorMessage,
			"attempts", out.Attempts,
		)
	}
	return out
}
