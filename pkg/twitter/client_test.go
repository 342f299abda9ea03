package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// upstream fakes the three endpoints the resolver talks to.
type upstream struct {
	server *httptest.Server

	syndicationCalls atomic.Int32
	activateCalls    atomic.Int32
	graphqlCalls     atomic.Int32

	syndication func(w http.ResponseWriter, r *http.Request)
	activate    func(w http.ResponseWriter, r *http.Request)
	graphql     func(w http.ResponseWriter, r *http.Request)
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/tweet-result", func(w http.ResponseWriter, r *http.Request) {
		u.syndicationCalls.Add(1)
		if u.syndication == nil {
			w.Write([]byte(`{}`))
			return
		}
		u.syndication(w, r)
	})
	mux.HandleFunc("/activate.json", func(w http.ResponseWriter, r *http.Request) {
		u.activateCalls.Add(1)
		if u.activate == nil {
			w.Write([]byte(`{"guest_token":"guest-1"}`))
			return
		}
		u.activate(w, r)
	})
	mux.HandleFunc("/graphql/", func(w http.ResponseWriter, r *http.Request) {
		u.graphqlCalls.Add(1)
		if u.graphql == nil {
			w.Write([]byte(`{"data":{}}`))
			return
		}
		u.graphql(w, r)
	})
	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) totalCalls() int32 {
	return u.syndicationCalls.Load() + u.activateCalls.Load() + u.graphqlCalls.Load()
}

func (u *upstream) client() *Client {
	return NewClient(Config{
		SyndicationURL:    u.server.URL + "/tweet-result",
		GuestActivateURL:  u.server.URL + "/activate.json",
		GraphQLURL:        u.server.URL + "/graphql",
		RequestsPerSecond: 1000,
		Burst:             100,
		Timeout:           5 * time.Second,
	}, testLogger())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// =============================================================================
// Client Tests
// =============================================================================

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{}, testLogger())
	cfg := c.cfg

	if cfg.SyndicationURL != defaultSyndicationURL {
		t.Errorf("SyndicationURL = %q", cfg.SyndicationURL)
	}
	if cfg.BearerToken != defaultBearerToken {
		t.Error("BearerToken should default to the web client token")
	}
	if cfg.GuestTokenTTL != time.Hour {
		t.Errorf("GuestTokenTTL = %v, want 1h", cfg.GuestTokenTTL)
	}
	if c.limiter == nil {
		t.Error("limiter should be set")
	}
}

func TestClient_DoJSON_StatusErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		header       map[string]string
		wantRate     bool
		wantUnauth   bool
		wantStatusOK bool
	}{
		{"rate limited", http.StatusTooManyRequests, map[string]string{"x-rate-limit-reset": "1700000000"}, true, false, false},
		{"unauthorized", http.StatusUnauthorized, nil, false, true, false},
		{"forbidden", http.StatusForbidden, nil, false, true, false},
		{"server error", http.StatusInternalServerError, nil, false, false, false},
		{"ok", http.StatusOK, nil, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			c := NewClient(Config{RequestsPerSecond: 1000}, testLogger())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			var out map[string]any
			err := c.doJSON(context.Background(), req, &out)

			if tt.wantStatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if out["ok"] != true {
					t.Errorf("decoded body = %v", out)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantRate {
				rl, ok := err.(*RateLimitError)
				if !ok {
					t.Fatalf("expected RateLimitError, got %T", err)
				}
				if rl.Reset.Unix() != 1700000000 {
					t.Errorf("Reset = %v", rl.Reset)
				}
				if !errors.Is(err, domain.ErrRateLimited) {
					t.Error("RateLimitError should match domain.ErrRateLimited")
				}
				return
			}
			se, ok := err.(*StatusError)
			if !ok {
				t.Fatalf("expected StatusError, got %T", err)
			}
			if se.Unauthorized() != tt.wantUnauth {
				t.Errorf("Unauthorized() = %v, want %v", se.Unauthorized(), tt.wantUnauth)
			}
		})
	}
}

func TestClient_DoJSON_CancelledWhileWaitingForLimiter(t *testing.T) {
	c := NewClient(Config{RequestsPerSecond: 0.001, Burst: 1}, testLogger())
	// Drain the only token.
	c.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:1", nil)
	err := c.doJSON(ctx, req, &struct{}{})
	if err == nil || !strings.Contains(err.Error(), "rate limiter") {
		t.Errorf("expected limiter error, got %v", err)
	}
}

// =============================================================================
// Syndication Parsing Tests
// =============================================================================

func TestParseSyndicationVariants_AllShapes(t *testing.T) {
	body := `{
		"mediaDetails": [{
			"type": "video",
			"video_info": {"variants": [
				{"bitrate": 832000, "content_type": "video/mp4", "url": "https://video.twimg.com/a.mp4"},
				{"content_type": "application/x-mpegURL", "url": "https://video.twimg.com/a.m3u8"}
			]}
		}],
		"extended_entities": {"media": [{
			"type": "video",
			"video_info": {"variants": [
				{"bitrate": 832000, "content_type": "video/mp4", "url": "https://video.twimg.com/a.mp4"},
				{"bitrate": 2176000, "content_type": "video/mp4", "url": "https://video.twimg.com/b.mp4"}
			]}
		}]},
		"video": {"variants": [
			{"type": "video/mp4", "src": "https://video.twimg.com/c.mp4"},
			{"type": "application/x-mpegURL", "src": "https://video.twimg.com/c.m3u8"}
		]}
	}`

	var resp syndicationResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := parseSyndicationVariants(&resp)
	want := []domain.VideoVariant{
		{URL: "https://video.twimg.com/a.mp4", Bitrate: 832000, ContentType: "video/mp4"},
		{URL: "https://video.twimg.com/b.mp4", Bitrate: 2176000, ContentType: "video/mp4"},
		{URL: "https://video.twimg.com/c.mp4", Bitrate: 0, ContentType: "video/mp4"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d variants, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("variant[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCollectVideoInfoVariants_NestedGraphQL(t *testing.T) {
	body := `{"data":{"tweetResult":{"result":{
		"__typename":"TweetWithVisibilityResults",
		"tweet":{"legacy":{"extended_entities":{"media":[{
			"video_info":{"variants":[
				{"bitrate":320000,"content_type":"video/mp4","url":"https://video.twimg.com/low.mp4"},
				{"content_type":"application/x-mpegURL","url":"https://video.twimg.com/pl.m3u8"},
				{"bitrate":950000,"content_type":"video/mp4","url":"https://video.twimg.com/high.mp4"}
			]}
		}]}}}
	}}}}`

	var parsed map[string]any
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var out variantCollector
	collectVideoInfoVariants(parsed, &out)

	if len(out.variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(out.variants))
	}
	if out.variants[0].Bitrate != 320000 || out.variants[1].Bitrate != 950000 {
		t.Errorf("unexpected variants: %+v", out.variants)
	}
}
