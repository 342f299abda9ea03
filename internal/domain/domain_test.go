package domain

import (
	"errors"
	"fmt"
	"testing"
)

// =============================================================================
// Variant Tests
// =============================================================================

func TestQualityForBitrate(t *testing.T) {
	tests := []struct {
		name    string
		bitrate int
		want    string
	}{
		{"zero", 0, "360p"},
		{"just below 480p", 319_999, "360p"},
		{"exact 480p", 320_000, "480p"},
		{"just below 720p", 831_999, "480p"},
		{"exact 720p", 832_000, "720p"},
		{"just below 1080p", 2_175_999, "720p"},
		{"exact 1080p", 2_176_000, "1080p"},
		{"very high", 10_000_000, "1080p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QualityForBitrate(tt.bitrate); got != tt.want {
				t.Errorf("QualityForBitrate(%d) = %q, want %q", tt.bitrate, got, tt.want)
			}
			v := VideoVariant{Bitrate: tt.bitrate}
			if got := v.Quality(); got != tt.want {
				t.Errorf("VideoVariant.Quality() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSortVariants_DescendingAndStable(t *testing.T) {
	variants := []VideoVariant{
		{URL: "a", Bitrate: 832000},
		{URL: "b", Bitrate: 2176000},
		{URL: "c", Bitrate: 832000},
		{URL: "d", Bitrate: 0},
		{URL: "e", Bitrate: 2176000},
		{URL: "f", Bitrate: 832000},
	}

	SortVariants(variants)

	want := []string{"b", "e", "a", "c", "f", "d"}
	for i, v := range variants {
		if v.URL != want[i] {
			t.Errorf("variants[%d].URL = %q, want %q", i, v.URL, want[i])
		}
	}
}

func TestSortVariants_EqualBitratesKeepOrder(t *testing.T) {
	for n := 1; n <= 8; n++ {
		variants := make([]VideoVariant, n)
		for i := range variants {
			variants[i] = VideoVariant{URL: fmt.Sprintf("v%d", i), Bitrate: 500000}
		}
		SortVariants(variants)
		for i, v := range variants {
			if want := fmt.Sprintf("v%d", i); v.URL != want {
				t.Errorf("n=%d: variants[%d].URL = %q, want %q", n, i, v.URL, want)
			}
		}
	}
}

func TestBestVariantURL(t *testing.T) {
	if got := BestVariantURL(nil); got != "" {
		t.Errorf("BestVariantURL(nil) = %q, want empty", got)
	}
	got := BestVariantURL([]VideoVariant{{URL: "first"}, {URL: "second"}})
	if got != "first" {
		t.Errorf("BestVariantURL() = %q, want first", got)
	}
}

// =============================================================================
// Media Tests
// =============================================================================

func TestMediaKind_Valid(t *testing.T) {
	tests := []struct {
		kind MediaKind
		want bool
	}{
		{MediaKindImage, true},
		{MediaKindVideo, true},
		{MediaKindAudio, true},
		{MediaKindGIF, true},
		{MediaKind(""), false},
		{MediaKind("document"), false},
		{MediaKind("VIDEO"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Valid(); got != tt.want {
				t.Errorf("MediaKind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestMediaKind_NeedsResolution(t *testing.T) {
	if !MediaKindVideo.NeedsResolution() || !MediaKindGIF.NeedsResolution() {
		t.Error("video and gif should need resolution")
	}
	if MediaKindImage.NeedsResolution() || MediaKindAudio.NeedsResolution() {
		t.Error("image and audio should not need resolution")
	}
}

func TestMediaReference_HasLocalCopy(t *testing.T) {
	tests := []struct {
		name string
		ref  MediaReference
		want bool
	}{
		{"pending without path", MediaReference{Status: MediaStatusPending}, false},
		{"completed with path", MediaReference{Status: MediaStatusCompleted, LocalPath: "/x"}, true},
		{"completed without path", MediaReference{Status: MediaStatusCompleted}, false},
		{"pending with stale path", MediaReference{Status: MediaStatusPending, LocalPath: "/x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.HasLocalCopy(); got != tt.want {
				t.Errorf("HasLocalCopy() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestTransferError(t *testing.T) {
	base := errors.New("not found")
	err := NewTransferError(ErrorKindPermanentHTTP, 404, base)

	if !errors.Is(err, base) {
		t.Error("TransferError should unwrap to base error")
	}
	if !err.Permanent() {
		t.Error("permanent HTTP error should be permanent")
	}
	if got := err.Error(); got != "permanent_http_error (HTTP 404): not found" {
		t.Errorf("Error() = %q", got)
	}

	transient := NewTransferError(ErrorKindTransientTransfer, 0, base)
	if transient.Permanent() {
		t.Error("transient error should not be permanent")
	}
	if got := transient.Error(); got != "transient_transfer_error: not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKindNone},
		{"wrapped transfer error", fmt.Errorf("fetch: %w", NewTransferError(ErrorKindSizeLimitExceeded, 200, ErrSizeLimitExceeded)), ErrorKindSizeLimitExceeded},
		{"unresolvable", fmt.Errorf("resolve: %w", ErrUnresolvableReference), ErrorKindUnresolvableReference},
		{"no url", ErrNoResolvableURL, ErrorKindNoResolvableURL},
		{"invalid kind", ErrInvalidMediaKind, ErrorKindInvalidMediaKind},
		{"unknown", errors.New("boom"), ErrorKindTransientTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFailedOutcome(t *testing.T) {
	out := FailedOutcome("m1", ErrorKindNoResolvableURL, ErrNoResolvableURL, 0)
	if out.Completed() {
		t.Error("failed outcome reported completed")
	}
	if out.MediaID != "m1" || out.ErrorKind != ErrorKindNoResolvableURL {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if out.ErrorMessage != ErrNoResolvableURL.Error() {
		t.Errorf("ErrorMessage = %q", out.ErrorMessage)
	}
}
