package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	author_username TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	analysis TEXT,
	sentiment_label TEXT,
	sentiment_score DOUBLE PRECISION,
	keywords TEXT[],
	analyzed_at TIMESTAMPTZ,
	analysis_attempted_at TIMESTAMPTZ,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS media (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	original_url TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	local_path TEXT,
	checksum TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	position INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_attempt_at TIMESTAMPTZ,
	last_error TEXT
);

CREATE INDEX IF NOT EXISTS idx_media_post ON media(post_id, position);
CREATE INDEX IF NOT EXISTS idx_posts_ingested ON posts(ingested_at);
`

// pgForeignKeyViolation is the SQLSTATE for a foreign key violation.
const pgForeignKeyViolation = "23503"

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// ConnectPostgres opens a pgx pool and applies the schema.
func ConnectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return pool, nil
}

// PostgresStore implements MetadataStore on PostgreSQL.
type PostgresStore struct {
	pool Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping implements Pinger.
func (s *PostgresStore) Ping(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return conn.Ping(ctx)
}

// InsertPost implements Ingester.
func (s *PostgresStore) InsertPost(ctx context.Context, post domain.PostSummary) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	label, score := sentimentColumns(post.Sentiment)
	_, err = conn.Exec(ctx, `
		INSERT INTO posts (id, author_username, text, created_at, analysis, sentiment_label, sentiment_score, keywords, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			author_username = EXCLUDED.author_username,
			text = EXCLUDED.text,
			created_at = EXCLUDED.created_at`,
		string(post.ID), post.AuthorUsername, post.Text, post.CreatedAt,
		nullString(post.Analysis), label, score, post.Keywords, post.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post %s: %w", post.ID, err)
	}
	return nil
}

// InsertMedia implements Ingester.
func (s *PostgresStore) InsertMedia(ctx context.Context, m domain.MediaReference) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := m.Status
	if status == "" {
		status = domain.MediaStatusPending
	}
	_, err = conn.Exec(ctx, `
		INSERT INTO media (id, post_id, kind, original_url, width, height, duration_ms, local_path, status, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			original_url = EXCLUDED.original_url,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			duration_ms = EXCLUDED.duration_ms,
			position = EXCLUDED.position`,
		m.ID, string(m.PostID), string(m.Kind), m.OriginalURL, m.Width, m.Height, m.DurationMs,
		nullString(m.LocalPath), string(status), m.Position,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return domain.ErrPostNotFound
		}
		return fmt.Errorf("insert media %s: %w", m.ID, err)
	}
	return nil
}

// ListPostsMissingAnalysis implements MetadataStore.
func (s *PostgresStore) ListPostsMissingAnalysis(ctx context.Context, limit int) ([]domain.PostSummary, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		WHERE p.analysis IS NULL OR p.analysis = ''
		ORDER BY p.analysis_attempted_at IS NOT NULL, p.analysis_attempted_at, p.ingested_at, p.id
		LIMIT $1`, pgLimit(limit))
}

// ListPostsWithIncompleteMedia implements MetadataStore.
func (s *PostgresStore) ListPostsWithIncompleteMedia(ctx context.Context, limit int) ([]domain.PostSummary, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN (`+incompleteMediaByPost+`) w ON w.post_id = p.id
		ORDER BY w.last_attempt IS NOT NULL, w.last_attempt, p.ingested_at, p.id
		LIMIT $1`, pgLimit(limit))
}

func (s *PostgresStore) queryPosts(ctx context.Context, query string, args ...any) ([]domain.PostSummary, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.PostSummary
	for rows.Next() {
		p, err := scanPGPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// GetMediaForPost implements MetadataStore.
func (s *PostgresStore) GetMediaForPost(ctx context.Context, postID domain.PostID) ([]domain.MediaReference, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT `+mediaColumns+`
		FROM media
		WHERE post_id = $1
		ORDER BY position, id`, string(postID))
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	var out []domain.MediaReference
	for rows.Next() {
		var (
			m         domain.MediaReference
			postIDCol string
			kind      string
			status    string
			localPath *string
			checksum  *string
			lastError *string
		)
		if err := rows.Scan(&m.ID, &postIDCol, &kind, &m.OriginalURL, &m.Width, &m.Height,
			&m.DurationMs, &localPath, &checksum, &status, &m.Position, &m.Attempts,
			&m.LastAttemptAt, &lastError); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		m.PostID = domain.PostID(postIDCol)
		m.Kind = domain.MediaKind(kind)
		m.Status = domain.MediaStatus(status)
		if localPath != nil {
			m.LocalPath = *localPath
		}
		if checksum != nil {
			m.Checksum = *checksum
		}
		if lastError != nil {
			m.LastError = *lastError
		}
		if m.LastAttemptAt != nil {
			t := m.LastAttemptAt.UTC()
			m.LastAttemptAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMediaLocalPath implements MetadataStore.
func (s *PostgresStore) UpdateMediaLocalPath(ctx context.Context, mediaID, path, checksum string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
		UPDATE media SET local_path = $1, checksum = $2, status = 'completed', last_error = NULL
		WHERE id = $3`, path, nullString(checksum), mediaID)
	if err != nil {
		return fmt.Errorf("update media %s: %w", mediaID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMediaNotFound
	}
	return nil
}

// RecordMediaFailure implements MetadataStore.
func (s *PostgresStore) RecordMediaFailure(ctx context.Context, mediaID string, at time.Time, reason string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
		UPDATE media SET attempts = attempts + 1, last_attempt_at = $1, last_error = $2
		WHERE id = $3`, at.UTC(), reason, mediaID)
	if err != nil {
		return fmt.Errorf("record media failure %s: %w", mediaID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMediaNotFound
	}
	return nil
}

// RecordAnalysisFailure implements MetadataStore.
func (s *PostgresStore) RecordAnalysisFailure(ctx context.Context, postID domain.PostID, at time.Time) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx,
		`UPDATE posts SET analysis_attempted_at = $1 WHERE id = $2`, at.UTC(), string(postID))
	if err != nil {
		return fmt.Errorf("record analysis failure %s: %w", postID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// UpdateAnalysis implements MetadataStore.
func (s *PostgresStore) UpdateAnalysis(ctx context.Context, postID domain.PostID, analysis string, sentiment *domain.Sentiment, keywords []string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if keywords == nil {
		keywords = []string{}
	}
	label, score := sentimentColumns(sentiment)
	tag, err := conn.Exec(ctx, `
		UPDATE posts
		SET analysis = $1, sentiment_label = $2, sentiment_score = $3, keywords = $4, analyzed_at = $5
		WHERE id = $6`,
		analysis, label, score, keywords, time.Now().UTC(), string(postID))
	if err != nil {
		return fmt.Errorf("update analysis %s: %w", postID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// GetPostByID implements MetadataStore.
func (s *PostgresStore) GetPostByID(ctx context.Context, postID domain.PostID) (*domain.PostSummary, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.id = $1`, string(postID))
	p, err := scanPGPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPostNotFound
	}
	return p, err
}

func scanPGPost(row pgx.Row) (*domain.PostSummary, error) {
	var (
		p          domain.PostSummary
		id         string
		analysis   *string
		label      *string
		score      *float64
		keywords   []string
		analyzedAt *time.Time
	)
	err := row.Scan(&id, &p.AuthorUsername, &p.Text, &p.CreatedAt, &analysis,
		&label, &score, &keywords, &analyzedAt, &p.AnalysisAttemptedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}

	p.ID = domain.PostID(id)
	if analysis != nil {
		p.Analysis = *analysis
	}
	if label != nil {
		p.Sentiment = &domain.Sentiment{Label: *label}
		if score != nil {
			p.Sentiment.Score = *score
		}
	}
	p.Keywords = keywords
	p.AnalyzedAt = analyzedAt
	return &p, nil
}

// pgLimit maps non-positive limits to the largest row count, which both
// PostgreSQL and CockroachDB accept as "no limit".
func pgLimit(limit int) int64 {
	if limit <= 0 {
		return math.MaxInt64
	}
	return int64(limit)
}
