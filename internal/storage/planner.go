// Package storage lays out downloaded media on disk and enforces retention.
package storage

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// Top-level directories under the storage root.
const (
	DirImages     = "images"
	DirVideos     = "videos"
	DirAudio      = "audio"
	DirThumbnails = "thumbnails"
	dirOther      = "media"
)

// LayoutDirs are created by EnsureLayout and never removed by Cleanup.
var LayoutDirs = []string{DirImages, DirVideos, DirAudio, DirThumbnails}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Timestamp layouts seen in post metadata, tried in order.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.RubyDate, // Mon Jan 02 15:04:05 -0700 2006
	"2006-01-02",
}

// Planner maps media items to stable paths under Root.
type Planner struct {
	Root string
	now  func() time.Time
}

// NewPlanner creates a path planner rooted at root.
func NewPlanner(root string) *Planner {
	return &Planner{Root: root, now: time.Now}
}

// Path returns {root}/{kindDir}/{YYYY}/{MM}/{DD}/post_{postID}_{prefix}_{index}{ext}.
// The date comes from createdAt in UTC, or the current time if it cannot be parsed.
func (p *Planner) Path(kind domain.MediaKind, createdAt string, postID domain.PostID, index int, ext string) string {
	t := ParseCreatedAt(createdAt, p.now)
	return filepath.Join(
		p.Root,
		KindDir(kind),
		t.Format("2006"),
		t.Format("01"),
		t.Format("02"),
		FileName(postID, kind, index, ext),
	)
}

// EnsureLayout creates the top-level directories.
func (p *Planner) EnsureLayout() error {
	for _, dir := range LayoutDirs {
		if err := os.MkdirAll(filepath.Join(p.Root, dir), 0755); err != nil {
			return fmt.Errorf("create %s directory: %w", dir, err)
		}
	}
	return nil
}

// KindDir returns the top-level directory for a media kind. GIFs share the image tree.
func KindDir(kind domain.MediaKind) string {
	switch kind {
	case domain.MediaKindImage, domain.MediaKindGIF:
		return DirImages
	case domain.MediaKindVideo:
		return DirVideos
	case domain.MediaKindAudio:
		return DirAudio
	default:
		return dirOther
	}
}

// KindPrefix returns the short kind tag used in file names.
func KindPrefix(kind domain.MediaKind) string {
	switch kind {
	case domain.MediaKindImage:
		return "img"
	case domain.MediaKindVideo:
		return "vid"
	case domain.MediaKindAudio:
		return "aud"
	case domain.MediaKindGIF:
		return "gif"
	default:
		return "med"
	}
}

// FileName returns post_{postID}_{prefix}_{index}{ext}.
func FileName(postID domain.PostID, kind domain.MediaKind, index int, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	id := unsafeNameChars.ReplaceAllString(postID.String(), "_")
	return fmt.Sprintf("post_%s_%s_%d%s", id, KindPrefix(kind), index, strings.ToLower(ext))
}

// ParseCreatedAt parses a post timestamp. Unix seconds are accepted too.
// now is used when nothing matches; nil means time.Now.
func ParseCreatedAt(s string, now func() time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC()
	}
	if now == nil {
		now = time.Now
	}
	return now().UTC()
}

var knownExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
	".mp4": true, ".mov": true, ".webm": true, ".m4v": true,
	".mp3": true, ".m4a": true, ".aac": true, ".ogg": true, ".wav": true, ".opus": true,
}

// ExtensionFor picks the file extension for a download: the URL's own
// extension when it is a known media type, the ?format= hint used by the
// image CDN, or a per-kind default.
func ExtensionFor(kind domain.MediaKind, rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if knownExts[ext] {
			if ext == ".jpeg" {
				return ".jpg"
			}
			return ext
		}
		if format := strings.ToLower(u.Query().Get("format")); format != "" && knownExts["."+format] {
			return "." + format
		}
	}

	switch kind {
	case domain.MediaKindImage:
		return ".jpg"
	case domain.MediaKindAudio:
		return ".mp3"
	case domain.MediaKindVideo, domain.MediaKindGIF:
		// Animated GIFs are served as MP4.
		return ".mp4"
	default:
		return ".bin"
	}
}
