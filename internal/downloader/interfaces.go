package downloader

import (
	"context"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Fetcher performs one verified download with its own retry policy.
// Failures are reported in the outcome, never as a Go error.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) domain.DownloadOutcome
}

// URLResolver turns a possibly-thumbnail reference into a downloadable URL.
type URLResolver interface {
	Resolve(ctx context.Context, ref domain.MediaReference) (string, []domain.VideoVariant, error)
}

// PathPlanner maps a media item to its destination on disk.
type PathPlanner interface {
	Path(kind domain.MediaKind, createdAt string, postID domain.PostID, index int, ext string) string
}

// FetchRequest describes a single transfer. Dimensions and duration are
// passed through to the outcome untouched.
type FetchRequest struct {
	MediaID    string
	URL        string
	DestPath   string
	Kind       domain.MediaKind
	Width      int
	Height     int
	DurationMs int64
}

// MediaInfo is one item of a post's media batch. Index is the item's
// position in the post's media list and feeds the file name.
type MediaInfo struct {
	MediaID    string
	Kind       domain.MediaKind
	URL        string
	Index      int
	Width      int
	Height     int
	DurationMs int64
}
