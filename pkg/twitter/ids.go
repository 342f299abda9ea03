package twitter

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	// Matches post pages on x.com, twitter.com and the common embed mirrors:
	//   https://x.com/user/status/1234567890?s=20
	//   https://twitter.com/i/web/status/1234567890
	//   https://mobile.twitter.com/user/statuses/1234567890
	//   https://fxtwitter.com/user/status/1234567890
	postURLPattern = regexp.MustCompile(`(?i)(?:^|[/.])(?:(?:fx|vx)?twitter\.com|(?:fixup)?x\.com)/(?:i/web/|i/|[a-z0-9_]{1,15}/)status(?:es)?/(\d{1,20})`)

	bareIDPattern = regexp.MustCompile(`^\d{1,20}$`)
)

// Path fragments used by the image CDN and the video thumbnail trees.
var thumbnailFragments = []string{
	"_thumb/",
	"/ext_tw_video_thumb/",
	"/amplify_video_thumb/",
	"/tweet_video_thumb/",
	"/img/",
}

var staticImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
}

// ExtractPostID extracts the post id from a post URL or a bare numeric id.
// It returns "" if neither shape matches.
func ExtractPostID(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if bareIDPattern.MatchString(ref) {
		return ref
	}
	if m := postURLPattern.FindStringSubmatch(ref); len(m) > 1 {
		return m[1]
	}
	return ""
}

// IsThumbnailURL reports whether u points at a still image rather than a
// playable asset. Unparsable input counts as a thumbnail.
func IsThumbnailURL(u string) bool {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Host == "" {
		return true
	}

	host := strings.ToLower(parsed.Host)
	if host == "pbs.twimg.com" || strings.HasSuffix(host, ".pbs.twimg.com") {
		return true
	}

	p := strings.ToLower(parsed.Path)
	for _, frag := range thumbnailFragments {
		if strings.Contains(p, frag) {
			return true
		}
	}
	if staticImageExts[path.Ext(p)] {
		return true
	}

	switch strings.ToLower(parsed.Query().Get("format")) {
	case "jpg", "jpeg", "png", "webp":
		return true
	}
	return false
}

// IsDirectMediaURL reports whether u can be handed to the downloader as is:
// an http(s) URL that is neither a thumbnail nor a post page.
func IsDirectMediaURL(u string) bool {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if postURLPattern.MatchString(u) {
		return false
	}
	return !IsThumbnailURL(u)
}

func contentTypeForURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	switch ext := strings.ToLower(path.Ext(parsed.Path)); ext {
	case ".mp4":
		return mp4ContentType
	case ".m3u8":
		return "application/x-mpegURL"
	case "":
		return ""
	default:
		return mime.TypeByExtension(ext)
	}
}
