package repository

import (
	"context"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// MetadataStore is the narrow query/update surface the acquisition core
// uses. Implementations provide their own single-row atomicity.
type MetadataStore interface {
	// ListPostsMissingAnalysis returns posts with no stored analysis. Posts
	// never attempted come first, then the least recently failed, then by age.
	ListPostsMissingAnalysis(ctx context.Context, limit int) ([]domain.PostSummary, error)

	// ListPostsWithIncompleteMedia returns posts owning at least one media row
	// that is not completed. Posts with an incomplete row never attempted come
	// first, then the least recently attempted, then by age, so permanently
	// failing posts cannot hold the batch.
	ListPostsWithIncompleteMedia(ctx context.Context, limit int) ([]domain.PostSummary, error)

	// GetMediaForPost returns a post's media in position order.
	GetMediaForPost(ctx context.Context, postID domain.PostID) ([]domain.MediaReference, error)

	// UpdateMediaLocalPath records a verified download with its content digest
	// and marks the row completed.
	UpdateMediaLocalPath(ctx context.Context, mediaID, path, checksum string) error

	// RecordMediaFailure notes a failed download attempt. The row stays pending.
	RecordMediaFailure(ctx context.Context, mediaID string, at time.Time, reason string) error

	// RecordAnalysisFailure notes a failed analysis attempt for a post.
	RecordAnalysisFailure(ctx context.Context, postID domain.PostID, at time.Time) error

	// UpdateAnalysis stores AI enrichment for a post. sentiment may be nil.
	UpdateAnalysis(ctx context.Context, postID domain.PostID, analysis string, sentiment *domain.Sentiment, keywords []string) error

	// GetPostByID returns domain.ErrPostNotFound if the post does not exist.
	GetPostByID(ctx context.Context, postID domain.PostID) (*domain.PostSummary, error)
}

// Ingester adds posts and media. The acquisition core never calls it; it
// exists for the ingestion path and for tests.
type Ingester interface {
	InsertPost(ctx context.Context, post domain.PostSummary) error
	InsertMedia(ctx context.Context, media domain.MediaReference) error
}

// Pinger is implemented by stores backed by a database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
