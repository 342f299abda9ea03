package twitter

import "testing"

func TestExtractPostID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"x.com status", "https://x.com/user/status/1234567890", "1234567890"},
		{"twitter.com status", "https://twitter.com/user/status/1234567890", "1234567890"},
		{"with query", "https://x.com/user/status/1234567890?s=20", "1234567890"},
		{"media suffix", "https://x.com/user/status/1234567890/video/1", "1234567890"},
		{"web status", "https://twitter.com/i/web/status/1234567890", "1234567890"},
		{"i status", "https://x.com/i/status/1234567890", "1234567890"},
		{"mobile statuses", "https://mobile.twitter.com/user/statuses/1234567890", "1234567890"},
		{"fxtwitter mirror", "https://fxtwitter.com/user/status/1234567890", "1234567890"},
		{"no scheme", "x.com/user/status/1234567890", "1234567890"},
		{"bare id", "1234567890", "1234567890"},
		{"bare id with spaces", "  1234567890 ", "1234567890"},
		{"empty", "", ""},
		{"profile url", "https://x.com/user", ""},
		{"thumbnail", "https://pbs.twimg.com/ext_tw_video_thumb/1234567890/pu/img/a.jpg", ""},
		{"other host", "https://example.com/user/status/1234567890", ""},
		{"lookalike host", "https://notx.com/user/status/1234567890", ""},
		{"non-numeric", "abc123", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPostID(tt.in); got != tt.want {
				t.Errorf("ExtractPostID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsThumbnailURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://pbs.twimg.com/media/abc.jpg", true},
		{"https://pbs.twimg.com/media/abc?format=jpg&name=large", true},
		{"https://pbs.twimg.com/ext_tw_video_thumb/1/pu/img/abc.jpg", true},
		{"https://pbs.twimg.com/amplify_video_thumb/1/img/abc.jpg", true},
		{"https://pbs.twimg.com/tweet_video_thumb/abc.jpg", true},
		{"https://cdn.example.com/poster.png", true},
		{"https://cdn.example.com/poster.webp", true},
		{"https://cdn.example.com/frame?format=webp", true},
		{"https://video.twimg.com/ext_tw_video/1/pu/vid/avc1/1280x720/abc.mp4", false},
		{"https://video.twimg.com/tweet_video/abc.mp4", false},
		{"https://cdn.example.com/clip.mp4", false},
		{"", true},
		{"not a url", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsThumbnailURL(tt.url); got != tt.want {
				t.Errorf("IsThumbnailURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestIsDirectMediaURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://video.twimg.com/ext_tw_video/1/pu/vid/avc1/1280x720/abc.mp4", true},
		{"http://cdn.example.com/audio.mp3", true},
		{"https://x.com/user/status/1234567890", false},
		{"https://pbs.twimg.com/media/abc.jpg", false},
		{"ftp://cdn.example.com/clip.mp4", false},
		{"/relative/clip.mp4", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsDirectMediaURL(tt.url); got != tt.want {
				t.Errorf("IsDirectMediaURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}
