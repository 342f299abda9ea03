package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

// MemoryStore implements MetadataStore and Ingester in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	posts  map[domain.PostID]*domain.PostSummary
	order  []domain.PostID // ingestion order
	media  map[string]*domain.MediaReference
	byPost map[domain.PostID][]string
}

// NewMemoryStore creates a new in-memory metadata store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:  make(map[domain.PostID]*domain.PostSummary),
		media:  make(map[string]*domain.MediaReference),
		byPost: make(map[domain.PostID][]string),
	}
}

// InsertPost adds or replaces a post.
func (s *MemoryStore) InsertPost(ctx context.Context, post domain.PostSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[post.ID]; !ok {
		s.order = append(s.order, post.ID)
	}
	p := post
	p.Keywords = slices.Clone(post.Keywords)
	s.posts[post.ID] = &p
	return nil
}

// InsertMedia adds or replaces a media row. Missing status defaults to pending.
func (s *MemoryStore) InsertMedia(ctx context.Context, media domain.MediaReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[media.PostID]; !ok {
		return domain.ErrPostNotFound
	}
	if media.Status == "" {
		media.Status = domain.MediaStatusPending
	}
	if _, ok := s.media[media.ID]; !ok {
		s.byPost[media.PostID] = append(s.byPost[media.PostID], media.ID)
	}
	m := media
	s.media[media.ID] = &m
	return nil
}

// ListPostsMissingAnalysis implements MetadataStore.
func (s *MemoryStore) ListPostsMissingAnalysis(ctx context.Context, limit int) ([]domain.PostSummary, error) {
	return s.listPosts(limit, func(p *domain.PostSummary) (bool, *time.Time) {
		return !p.HasAnalysis(), p.AnalysisAttemptedAt
	}), nil
}

// ListPostsWithIncompleteMedia implements MetadataStore.
func (s *MemoryStore) ListPostsWithIncompleteMedia(ctx context.Context, limit int) ([]domain.PostSummary, error) {
	return s.listPosts(limit, func(p *domain.PostSummary) (bool, *time.Time) {
		var (
			incomplete bool
			last       *time.Time
		)
		for _, id := range s.byPost[p.ID] {
			m := s.media[id]
			if m.HasLocalCopy() {
				continue
			}
			if m.LastAttemptAt == nil {
				return true, nil
			}
			if !incomplete || m.LastAttemptAt.After(*last) {
				last = m.LastAttemptAt
			}
			incomplete = true
		}
		return incomplete, last
	}), nil
}

// listPosts returns matching posts ordered never-attempted first, then by
// oldest attempt, then by ingestion order.
func (s *MemoryStore) listPosts(limit int, match func(*domain.PostSummary) (bool, *time.Time)) []domain.PostSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type candidate struct {
		post *domain.PostSummary
		last *time.Time
	}
	var found []candidate
	for _, id := range s.order {
		p := s.posts[id]
		if ok, last := match(p); ok {
			found = append(found, candidate{post: p, last: last})
		}
	}
	slices.SortStableFunc(found, func(a, b candidate) int {
		switch {
		case a.last == nil && b.last == nil:
			return 0
		case a.last == nil:
			return -1
		case b.last == nil:
			return 1
		}
		return a.last.Compare(*b.last)
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	var out []domain.PostSummary
	for _, c := range found {
		out = append(out, clonePost(c.post))
	}
	return out
}

// GetMediaForPost implements MetadataStore.
func (s *MemoryStore) GetMediaForPost(ctx context.Context, postID domain.PostID) ([]domain.MediaReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byPost[postID]
	out := make([]domain.MediaReference, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.media[id])
	}
	slices.SortStableFunc(out, func(a, b domain.MediaReference) int {
		return a.Position - b.Position
	})
	return out, nil
}

// UpdateMediaLocalPath implements MetadataStore.
func (s *MemoryStore) UpdateMediaLocalPath(ctx context.Context, mediaID, path, checksum string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.media[mediaID]
	if !ok {
		return domain.ErrMediaNotFound
	}
	m.LocalPath = path
	m.Checksum = checksum
	m.Status = domain.MediaStatusCompleted
	m.LastError = ""
	return nil
}

// RecordMediaFailure implements MetadataStore.
func (s *MemoryStore) RecordMediaFailure(ctx context.Context, mediaID string, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.media[mediaID]
	if !ok {
		return domain.ErrMediaNotFound
	}
	at = at.UTC()
	m.Attempts++
	m.LastAttemptAt = &at
	m.LastError = reason
	return nil
}

// RecordAnalysisFailure implements MetadataStore.
func (s *MemoryStore) RecordAnalysisFailure(ctx context.Context, postID domain.PostID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return domain.ErrPostNotFound
	}
	at = at.UTC()
	p.AnalysisAttemptedAt = &at
	return nil
}

// UpdateAnalysis implements MetadataStore.
func (s *MemoryStore) UpdateAnalysis(ctx context.Context, postID domain.PostID, analysis string, sentiment *domain.Sentiment, keywords []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return domain.ErrPostNotFound
	}
	now := time.Now().UTC()
	p.Analysis = analysis
	p.Keywords = slices.Clone(keywords)
	p.AnalyzedAt = &now
	p.Sentiment = nil
	if sentiment != nil {
		sv := *sentiment
		p.Sentiment = &sv
	}
	return nil
}

// GetPostByID implements MetadataStore.
func (s *MemoryStore) GetPostByID(ctx context.Context, postID domain.PostID) (*domain.PostSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[postID]
	if !ok {
		return nil, domain.ErrPostNotFound
	}
	out := clonePost(p)
	return &out, nil
}

func clonePost(p *domain.PostSummary) domain.PostSummary {
	out := *p
	out.Keywords = slices.Clone(p.Keywords)
	if p.Sentiment != nil {
		sv := *p.Sentiment
		out.Sentiment = &sv
	}
	return out
}
