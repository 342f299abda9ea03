package domain

import "time"

// PostID is the upstream identifier of an ingested post.
type PostID string

// String returns the string representation of the PostID.
func (id PostID) String() string {
	return string(id)
}

// MediaKind is the declared kind of a media attachment.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
	MediaKindGIF   MediaKind = "gif"
)

// Valid reports whether the kind is in the set the downloader accepts.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaKindImage, MediaKindVideo, MediaKindAudio, MediaKindGIF:
		return true
	}
	return false
}

// NeedsResolution reports whether stored URLs of this kind may be thumbnails
// standing in for the real asset.
func (k MediaKind) NeedsResolution() bool {
	return k == MediaKindVideo || k == MediaKindGIF
}

// MediaStatus is the acquisition state of a media attachment.
type MediaStatus string

const (
	MediaStatusPending   MediaStatus = "pending"
	MediaStatusCompleted MediaStatus = "completed"
	MediaStatusFailed    MediaStatus = "failed"
)

// MediaReference is one media attachment on a post as stored in the metadata store.
// LocalPath is set only when Status is completed. Checksum is the hex
// BLAKE2b-256 digest of the file at LocalPath.
type MediaReference struct {
	ID            string      `json:"id"`
	PostID        PostID      `json:"post_id"`
	Kind          MediaKind   `json:"kind"`
	OriginalURL   string      `json:"original_url"`
	Width         int         `json:"width,omitempty"`
	Height        int         `json:"height,omitempty"`
	DurationMs    int64       `json:"duration_ms,omitempty"`
	LocalPath     string      `json:"local_path,omitempty"`
	Checksum      string      `json:"checksum,omitempty"`
	Status        MediaStatus `json:"status"`
	Position      int         `json:"position"`
	Attempts      int         `json:"attempts,omitempty"`
	LastAttemptAt *time.Time  `json:"last_attempt_at,omitempty"`
	LastError     string      `json:"last_error,omitempty"`
}

// HasLocalCopy returns true if the reference claims a completed download.
func (m *MediaReference) HasLocalCopy() bool {
	return m.Status == MediaStatusCompleted && m.LocalPath != ""
}

// PostSummary is the slice of a post the acquisition core needs.
type PostSummary struct {
	ID             PostID     `json:"id"`
	AuthorUsername string     `json:"author_username,omitempty"`
	Text           string     `json:"text"`
	CreatedAt      string     `json:"created_at"`
	Analysis       string     `json:"analysis,omitempty"`
	Sentiment      *Sentiment `json:"sentiment,omitempty"`
	Keywords       []string   `json:"keywords,omitempty"`
	AnalyzedAt     *time.Time `json:"analyzed_at,omitempty"`

	// AnalysisAttemptedAt is the time of the last failed analysis, if any.
	AnalysisAttemptedAt *time.Time `json:"analysis_attempted_at,omitempty"`
}

// HasAnalysis returns true if AI enrichment has already been stored.
func (p *PostSummary) HasAnalysis() bool {
	return p.Analysis != ""
}

// Sentiment is the tone classification attached to an analysis.
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// PostAnalysis is the AI enrichment written back for a post.
type PostAnalysis struct {
	Summary   string     `json:"summary"`
	Sentiment *Sentiment `json:"sentiment,omitempty"`
	Keywords  []string   `json:"keywords"`
}
