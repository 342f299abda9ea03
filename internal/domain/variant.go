package domain

import "sort"

// Bitrate thresholds for quality labels, in bits per second.
const (
	bitrate1080p = 2_176_000
	bitrate720p  = 832_000
	bitrate480p  = 320_000
)

// VideoVariant is one candidate rendition of a video asset.
type VideoVariant struct {
	URL         string `json:"url"`
	Bitrate     int    `json:"bitrate"`
	ContentType string `json:"content_type"`
}

// Quality returns the display label derived from the variant's bitrate.
func (v VideoVariant) Quality() string {
	return QualityForBitrate(v.Bitrate)
}

// QualityForBitrate maps a bitrate to 1080p, 720p, 480p or 360p.
func QualityForBitrate(bps int) string {
	switch {
	case bps >= bitrate1080p:
		return "1080p"
	case bps >= bitrate720p:
		return "720p"
	case bps >= bitrate480p:
		return "480p"
	default:
		return "360p"
	}
}

// SortVariants orders variants by descending bitrate in place.
// Variants with equal bitrate keep their relative order.
func SortVariants(variants []VideoVariant) {
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bitrate > variants[j].Bitrate
	})
}

// BestVariantURL returns the URL of the first variant, or "" when there is none.
// Callers sort first.
func BestVariantURL(variants []VideoVariant) string {
	if len(variants) == 0 {
		return ""
	}
	return variants[0].URL
}
