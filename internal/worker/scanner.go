package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/iconidentify/mediagrabba/internal/config"
	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/downloader"
	"github.com/iconidentify/mediagrabba/internal/repository"
	"github.com/iconidentify/mediagrabba/pkg/grok"
)

// ErrShutdownTimeout is returned when the scanner doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("scanner shutdown timed out")

// State is the scanner's position in its work cycle.
type State string

const (
	StateIdle          State = "idle"
	StateScanningAI    State = "scanning_ai"
	StateScanningMedia State = "scanning_media"
	StatePaused        State = "paused"
	StateStopped       State = "stopped"
)

// Analyzer produces AI enrichment for a post.
type Analyzer interface {
	AnalyzePost(ctx context.Context, req grok.PostAnalysisRequest) (*domain.PostAnalysis, error)
}

// MediaDownloader downloads one post's media batch.
type MediaDownloader interface {
	DownloadAll(ctx context.Context, postID domain.PostID, createdAt string, items []downloader.MediaInfo) []domain.DownloadOutcome
}

// Stats is a point-in-time copy of the scanner's cumulative counters.
type Stats struct {
	AIProcessed       int64         `json:"ai_processed"`
	AIFailed          int64         `json:"ai_failed"`
	MediaProcessed    int64         `json:"media_processed"`
	MediaFailed       int64         `json:"media_failed"`
	CyclesCompleted   int64         `json:"cycles_completed"`
	CyclesFailed      int64         `json:"cycles_failed"`
	LastCycleAt       time.Time     `json:"last_cycle_at,omitempty"`
	LastCycleDuration time.Duration `json:"last_cycle_duration"`
	LastError         string        `json:"last_error,omitempty"`
	StartedAt         time.Time     `json:"started_at,omitempty"`
	Uptime            time.Duration `json:"uptime"`
	State             State         `json:"state"`
}

// AIResult describes the AI branch of a forced run.
type AIResult struct {
	Attempted bool `json:"attempted"`
	Succeeded bool `json:"succeeded"`
	Skipped   bool `json:"skipped"`
}

// MediaResult describes the media branch of a forced run.
type MediaResult struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ForceResult is returned by ForceProcess.
type ForceResult struct {
	PostID domain.PostID `json:"post_id"`
	AI     AIResult      `json:"ai"`
	Media  MediaResult   `json:"media"`
	Errors []string      `json:"errors"`
}

// Scanner polls the metadata store for posts with missing analysis or
// incomplete media and drives them through the analyzer and download pipeline.
type Scanner struct {
	cfg        config.ScannerConfig
	store      repository.MetadataStore
	analyzer   Analyzer
	downloader MediaDownloader
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.RWMutex
	state State
	stats Stats

	inFlightMu sync.Mutex
	inFlight   map[domain.PostID]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScanner creates a scanner. analyzer may be nil, which disables the AI branch.
func NewScanner(
	cfg config.ScannerConfig,
	store repository.MetadataStore,
	analyzer Analyzer,
	dl MediaDownloader,
	logger *slog.Logger,
) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Second
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = 30 * time.Second
	}
	if cfg.AIBatchSize <= 0 {
		cfg.AIBatchSize = 10
	}
	if cfg.MediaBatchSize <= 0 {
		cfg.MediaBatchSize = 20
	}

	return &Scanner{
		cfg:        cfg,
		store:      store,
		analyzer:   analyzer,
		downloader: dl,
		logger:     logger,
		now:        time.Now,
		state:      StateIdle,
		inFlight:   make(map[domain.PostID]struct{}),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the background cycle loop. Calling it more than once has no effect.
func (s *Scanner) Start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.stats.StartedAt = s.now()
		s.mu.Unlock()

		s.logger.Info("starting completion scanner",
			"interval", s.cfg.Interval.String(),
			"ai_batch_size", s.cfg.AIBatchSize,
			"media_batch_size", s.cfg.MediaBatchSize,
			"ai_enabled", s.analyzer != nil,
		)

		s.wg.Add(1)
		go s.run()
	})
}

// Stop signals the loop to exit and waits for the current cycle to finish.
// In-flight transfers are not interrupted. On timeout the cycle keeps
// running, and the waiter goroutine exits once it does.
func (s *Scanner) Stop(timeout time.Duration) error {
	s.logger.Info("stopping completion scanner")
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		s.setState(StateStopped)
		s.logger.Info("completion scanner stopped gracefully")
		return nil
	case <-timer.C:
		s.logger.Warn("completion scanner still finishing a cycle", "timeout", timeout.String())
		return ErrShutdownTimeout
	}
}

// State returns the current scanner state.
func (s *Scanner) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats returns a copy of the cumulative counters.
func (s *Scanner) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.stats
	out.State = s.state
	if !out.StartedAt.IsZero() {
		out.Uptime = s.now().Sub(out.StartedAt)
	}
	return out
}

func (s *Scanner) run() {
	defer s.wg.Done()

	// The cycle context is never canceled by Stop; the stop channel is only
	// observed between cycles.
	ctx := context.Background()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		wait := s.cfg.Interval
		if err := s.RunCycle(ctx); err != nil {
			s.logger.Error("scan cycle failed, pausing", "error", err, "pause", s.cfg.ErrorPause.String())
			s.setState(StatePaused)
			wait = s.cfg.ErrorPause
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(wait):
		}
	}
}

// RunCycle performs one AI scan followed by one media scan. Errors from
// listing work abort the cycle; per-post failures are counted and logged.
func (s *Scanner) RunCycle(ctx context.Context) (err error) {
	cycleID := uuid.NewString()
	logger := s.logger.With("cycle_id", cycleID)
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan cycle panic: %v", r)
		}
		s.finishCycle(start, err)
	}()

	logger.Debug("scan cycle starting")

	s.setState(StateScanningAI)
	if err := s.scanAI(ctx, logger); err != nil {
		return fmt.Errorf("ai scan: %w", err)
	}

	s.setState(StateScanningMedia)
	if err := s.scanMedia(ctx, logger); err != nil {
		return fmt.Errorf("media scan: %w", err)
	}

	s.setState(StateIdle)
	logger.Debug("scan cycle finished", "duration", s.now().Sub(start).String())
	return nil
}

func (s *Scanner) finishCycle(start time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.LastCycleAt = s.now()
	s.stats.LastCycleDuration = s.stats.LastCycleAt.Sub(start)
	if err != nil {
		s.stats.CyclesFailed++
		s.stats.LastError = err.Error()
		return
	}
	s.stats.CyclesCompleted++
}

func (s *Scanner) scanAI(ctx context.Context, logger *slog.Logger) error {
	if s.analyzer == nil {
		return nil
	}

	posts, err := s.store.ListPostsMissingAnalysis(ctx, s.cfg.AIBatchSize)
	if err != nil {
		return fmt.Errorf("list posts missing analysis: %w", err)
	}
	if len(posts) > 0 {
		logger.Info("analyzing posts", "count", len(posts))
	}

	for _, post := range posts {
		var err error
		if !s.withPost(post.ID, func() { err = s.analyzePost(ctx, post) }) {
			logger.Debug("post in progress elsewhere, skipping", "post_id", post.ID)
			continue
		}
		if err != nil {
			s.addAI(0, 1)
			logger.Warn("post analysis failed", "post_id", post.ID, "error", err)
			s.recordAnalysisFailure(ctx, logger, post.ID)
			continue
		}
		s.addAI(1, 0)
	}
	return nil
}

func (s *Scanner) analyzePost(ctx context.Context, post domain.PostSummary) error {
	media, err := s.store.GetMediaForPost(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("get media: %w", err)
	}
	videos := lo.Filter(media, func(m domain.MediaReference, _ int) bool {
		return m.Kind == domain.MediaKindVideo || m.Kind == domain.MediaKindGIF
	})
	longest := lo.Max(lo.Map(videos, func(m domain.MediaReference, _ int) int64 { return m.DurationMs }))

	analysis, err := s.analyzer.AnalyzePost(ctx, grok.PostAnalysisRequest{
		PostID:         post.ID,
		Text:           post.Text,
		AuthorUsername: post.AuthorUsername,
		ImageCount:     lo.CountBy(media, func(m domain.MediaReference) bool { return m.Kind == domain.MediaKindImage }),
		VideoCount:     len(videos),
		VideoDuration:  int(longest / 1000),
	})
	if err != nil {
		return err
	}

	if err := s.store.UpdateAnalysis(ctx, post.ID, analysis.Summary, analysis.Sentiment, analysis.Keywords); err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}
	return nil
}

func (s *Scanner) scanMedia(ctx context.Context, logger *slog.Logger) error {
	posts, err := s.store.ListPostsWithIncompleteMedia(ctx, s.cfg.MediaBatchSize)
	if err != nil {
		return fmt.Errorf("list posts with incomplete media: %w", err)
	}
	if len(posts) > 0 {
		logger.Info("downloading media", "posts", len(posts))
	}

	for _, post := range posts {
		var (
			result MediaResult
			errs   []string
		)
		if !s.withPost(post.ID, func() { result, errs = s.processMedia(ctx, post) }) {
			logger.Debug("post in progress elsewhere, skipping", "post_id", post.ID)
			continue
		}

		s.addMedia(int64(result.Completed), int64(result.Failed))
		if len(errs) > 0 {
			logger.Warn("media download incomplete",
				"post_id", post.ID,
				"completed", result.Completed,
				"failed", result.Failed,
				"errors", errs,
			)
		}
	}
	return nil
}

// processMedia downloads every media row of post that lacks a verified local
// copy. Failed rows stay pending with the attempt recorded, which moves the
// post behind fresher work in the next listing.
func (s *Scanner) processMedia(ctx context.Context, post domain.PostSummary) (MediaResult, []string) {
	var (
		result MediaResult
		errs   []string
	)

	media, err := s.store.GetMediaForPost(ctx, post.ID)
	if err != nil {
		return result, []string{fmt.Sprintf("get media: %v", err)}
	}
	result.Total = len(media)

	logger := s.logger.With("post_id", post.ID)

	var items []downloader.MediaInfo
	for i, m := range media {
		if sum, ok := s.existingCopy(logger, m); ok {
			result.Skipped++
			if m.Status != domain.MediaStatusCompleted || m.Checksum == "" {
				if err := s.store.UpdateMediaLocalPath(ctx, m.ID, m.LocalPath, sum); err != nil {
					errs = append(errs, fmt.Sprintf("media %s: mark completed: %v", m.ID, err))
				}
			}
			continue
		}
		items = append(items, downloader.MediaInfo{
			MediaID:    m.ID,
			Kind:       m.Kind,
			URL:        m.OriginalURL,
			Index:      i,
			Width:      m.Width,
			Height:     m.Height,
			DurationMs: m.DurationMs,
		})
	}
	if len(items) == 0 {
		return result, errs
	}

	outcomes := s.downloader.DownloadAll(ctx, post.ID, post.CreatedAt, items)
	for _, o := range outcomes {
		if !o.Completed() {
			result.Failed++
			reason := fmt.Sprintf("%s: %s", o.ErrorKind, o.ErrorMessage)
			errs = append(errs, fmt.Sprintf("media %s: %s", o.MediaID, reason))
			if err := s.store.RecordMediaFailure(ctx, o.MediaID, s.now(), reason); err != nil {
				errs = append(errs, fmt.Sprintf("media %s: record failure: %v", o.MediaID, err))
			}
			continue
		}
		if err := s.store.UpdateMediaLocalPath(ctx, o.MediaID, o.LocalPath, o.Checksum); err != nil {
			result.Failed++
			errs = append(errs, fmt.Sprintf("media %s: store local path: %v", o.MediaID, err))
			continue
		}
		logger.Debug("media stored", "media_id", o.MediaID, "path", o.LocalPath, "checksum", o.Checksum)
		result.Completed++
	}
	return result, errs
}

// existingCopy reports whether m's local file can be kept, returning its
// checksum. A file whose digest differs from the stored one is downloaded again.
func (s *Scanner) existingCopy(logger *slog.Logger, m domain.MediaReference) (string, bool) {
	if !downloader.VerifyExisting(m.LocalPath) {
		return "", false
	}
	sum, err := downloader.FileChecksum(m.LocalPath)
	if err != nil {
		logger.Warn("cannot hash local copy", "media_id", m.ID, "path", m.LocalPath, "error", err)
		return "", false
	}
	if m.Checksum != "" && m.Checksum != sum {
		logger.Warn("local copy does not match stored checksum, downloading again",
			"media_id", m.ID,
			"path", m.LocalPath,
			"stored", m.Checksum,
			"actual", sum,
		)
		return "", false
	}
	return sum, true
}

func (s *Scanner) recordAnalysisFailure(ctx context.Context, logger *slog.Logger, postID domain.PostID) {
	if err := s.store.RecordAnalysisFailure(ctx, postID, s.now()); err != nil {
		logger.Warn("failed to record analysis attempt", "post_id", postID, "error", err)
	}
}

// ForceProcess runs both branches for one post synchronously, outside the
// cycle schedule. It returns domain.ErrPostNotFound for unknown posts and
// domain.ErrAlreadyInProgress if the post is being worked on.
func (s *Scanner) ForceProcess(ctx context.Context, postID domain.PostID) (*ForceResult, error) {
	post, err := s.store.GetPostByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !s.acquire(postID) {
		return nil, domain.ErrAlreadyInProgress
	}
	defer s.release(postID)

	logger := s.logger.With("post_id", postID)
	logger.Info("force processing post")

	result := &ForceResult{PostID: postID, Errors: []string{}}

	if s.analyzer == nil {
		result.AI.Skipped = true
	} else {
		result.AI.Attempted = true
		if err := s.analyzePost(ctx, *post); err != nil {
			s.addAI(0, 1)
			result.Errors = append(result.Errors, fmt.Sprintf("analysis: %v", err))
			s.recordAnalysisFailure(ctx, logger, postID)
		} else {
			s.addAI(1, 0)
			result.AI.Succeeded = true
		}
	}

	media, errs := s.processMedia(ctx, *post)
	s.addMedia(int64(media.Completed), int64(media.Failed))
	result.Media = media
	result.Errors = append(result.Errors, errs...)

	logger.Info("force processing finished",
		"ai_succeeded", result.AI.Succeeded,
		"media_completed", media.Completed,
		"media_failed", media.Failed,
		"errors", len(result.Errors),
	)
	return result, nil
}

// acquire marks postID in flight. It returns false if it already was.
func (s *Scanner) acquire(postID domain.PostID) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if _, busy := s.inFlight[postID]; busy {
		return false
	}
	s.inFlight[postID] = struct{}{}
	return true
}

// withPost runs fn while holding postID's in-flight slot. It returns false
// without calling fn if the post is busy.
func (s *Scanner) withPost(postID domain.PostID, fn func()) bool {
	if !s.acquire(postID) {
		return false
	}
	defer s.release(postID)
	fn()
	return true
}

func (s *Scanner) release(postID domain.PostID) {
	s.inFlightMu.Lock()
	delete(s.inFlight, postID)
	s.inFlightMu.Unlock()
}

func (s *Scanner) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scanner) addAI(processed, failed int64) {
	s.mu.Lock()
	s.stats.AIProcessed += processed
	s.stats.AIFailed += failed
	s.mu.Unlock()
}

func (s *Scanner) addMedia(processed, failed int64) {
	s.mu.Lock()
	s.stats.MediaProcessed += processed
	s.stats.MediaFailed += failed
	s.mu.Unlock()
}
