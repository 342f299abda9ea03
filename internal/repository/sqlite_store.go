package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	author_username TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT '',
	analysis TEXT,
	sentiment_label TEXT,
	sentiment_score REAL,
	keywords TEXT,
	analyzed_at TIMESTAMP,
	analysis_attempted_at INTEGER,
	ingested_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS media (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	original_url TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	local_path TEXT,
	checksum TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	position INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_attempt_at INTEGER,
	last_error TEXT
);

CREATE INDEX IF NOT EXISTS idx_media_post ON media(post_id, position);
CREATE INDEX IF NOT EXISTS idx_media_status ON media(status);
CREATE INDEX IF NOT EXISTS idx_posts_ingested ON posts(ingested_at);
`

// Attempt times are stored as unix nanoseconds so they order numerically.
const postColumns = `p.id, p.author_username, p.text, p.created_at, p.analysis,
	p.sentiment_label, p.sentiment_score, p.keywords, p.analyzed_at, p.analysis_attempted_at`

const mediaColumns = `id, post_id, kind, original_url, width, height, duration_ms, local_path,
	checksum, status, position, attempts, last_attempt_at, last_error`

// SQLiteStore implements MetadataStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dsn and applies the schema.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = ":memory:"
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping implements Pinger.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertPost implements Ingester.
func (s *SQLiteStore) InsertPost(ctx context.Context, post domain.PostSummary) error {
	var keywords sql.NullString
	if post.Keywords != nil {
		raw, err := json.Marshal(post.Keywords)
		if err != nil {
			return fmt.Errorf("encode keywords: %w", err)
		}
		keywords = sql.NullString{String: string(raw), Valid: true}
	}
	label, score := sentimentColumns(post.Sentiment)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_username, text, created_at, analysis, sentiment_label, sentiment_score, keywords, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			author_username = excluded.author_username,
			text = excluded.text,
			created_at = excluded.created_at`,
		string(post.ID), post.AuthorUsername, post.Text, post.CreatedAt,
		nullString(post.Analysis), label, score, keywords, post.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post %s: %w", post.ID, err)
	}
	return nil
}

// InsertMedia implements Ingester.
func (s *SQLiteStore) InsertMedia(ctx context.Context, m domain.MediaReference) error {
	status := m.Status
	if status == "" {
		status = domain.MediaStatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (id, post_id, kind, original_url, width, height, duration_ms, local_path, status, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			original_url = excluded.original_url,
			width = excluded.width,
			height = excluded.height,
			duration_ms = excluded.duration_ms,
			position = excluded.position`,
		m.ID, string(m.PostID), string(m.Kind), m.OriginalURL, m.Width, m.Height, m.DurationMs,
		nullString(m.LocalPath), string(status), m.Position,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return domain.ErrPostNotFound
		}
		return fmt.Errorf("insert media %s: %w", m.ID, err)
	}
	return nil
}

// ListPostsMissingAnalysis implements MetadataStore.
func (s *SQLiteStore) ListPostsMissingAnalysis(ctx context.Context, limit int) ([]domain.PostSummary, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		WHERE p.analysis IS NULL OR p.analysis = ''
		ORDER BY p.analysis_attempted_at IS NOT NULL, p.analysis_attempted_at, p.ingested_at, p.rowid
		LIMIT ?`, limitArg(limit))
}

// ListPostsWithIncompleteMedia implements MetadataStore.
func (s *SQLiteStore) ListPostsWithIncompleteMedia(ctx context.Context, limit int) ([]domain.PostSummary, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN (`+incompleteMediaByPost+`) w ON w.post_id = p.id
		ORDER BY w.last_attempt IS NOT NULL, w.last_attempt, p.ingested_at, p.rowid
		LIMIT ?`, limitArg(limit))
}

func (s *SQLiteStore) queryPosts(ctx context.Context, query string, args ...any) ([]domain.PostSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.PostSummary
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// GetMediaForPost implements MetadataStore.
func (s *SQLiteStore) GetMediaForPost(ctx context.Context, postID domain.PostID) ([]domain.MediaReference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mediaColumns+`
		FROM media
		WHERE post_id = ?
		ORDER BY position, rowid`, string(postID))
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	var out []domain.MediaReference
	for rows.Next() {
		var (
			m           domain.MediaReference
			postIDCol   string
			kind        string
			status      string
			localPath   sql.NullString
			checksum    sql.NullString
			lastAttempt sql.NullInt64
			lastError   sql.NullString
		)
		if err := rows.Scan(&m.ID, &postIDCol, &kind, &m.OriginalURL, &m.Width, &m.Height,
			&m.DurationMs, &localPath, &checksum, &status, &m.Position, &m.Attempts,
			&lastAttempt, &lastError); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		m.PostID = domain.PostID(postIDCol)
		m.Kind = domain.MediaKind(kind)
		m.Status = domain.MediaStatus(status)
		m.LocalPath = localPath.String
		m.Checksum = checksum.String
		m.LastAttemptAt = unixNanoTime(lastAttempt)
		m.LastError = lastError.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMediaLocalPath implements MetadataStore.
func (s *SQLiteStore) UpdateMediaLocalPath(ctx context.Context, mediaID, path, checksum string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE media SET local_path = ?, checksum = ?, status = 'completed', last_error = NULL
		WHERE id = ?`, path, nullString(checksum), mediaID)
	if err != nil {
		return fmt.Errorf("update media %s: %w", mediaID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMediaNotFound
	}
	return nil
}

// RecordMediaFailure implements MetadataStore.
func (s *SQLiteStore) RecordMediaFailure(ctx context.Context, mediaID string, at time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE media SET attempts = attempts + 1, last_attempt_at = ?, last_error = ?
		WHERE id = ?`, at.UnixNano(), reason, mediaID)
	if err != nil {
		return fmt.Errorf("record media failure %s: %w", mediaID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMediaNotFound
	}
	return nil
}

// RecordAnalysisFailure implements MetadataStore.
func (s *SQLiteStore) RecordAnalysisFailure(ctx context.Context, postID domain.PostID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET analysis_attempted_at = ? WHERE id = ?`, at.UnixNano(), string(postID))
	if err != nil {
		return fmt.Errorf("record analysis failure %s: %w", postID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// UpdateAnalysis implements MetadataStore.
func (s *SQLiteStore) UpdateAnalysis(ctx context.Context, postID domain.PostID, analysis string, sentiment *domain.Sentiment, keywords []string) error {
	if keywords == nil {
		keywords = []string{}
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	label, score := sentimentColumns(sentiment)

	res, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET analysis = ?, sentiment_label = ?, sentiment_score = ?, keywords = ?, analyzed_at = ?
		WHERE id = ?`,
		analysis, label, score, string(raw), time.Now().UTC(), string(postID))
	if err != nil {
		return fmt.Errorf("update analysis %s: %w", postID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// GetPostByID implements MetadataStore.
func (s *SQLiteStore) GetPostByID(ctx context.Context, postID domain.PostID) (*domain.PostSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.id = ?`, string(postID))
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPostNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*domain.PostSummary, error) {
	var (
		p          domain.PostSummary
		id         string
		analysis   sql.NullString
		label      sql.NullString
		score      sql.NullFloat64
		keywords   sql.NullString
		analyzedAt sql.NullTime
		attempted  sql.NullInt64
	)
	err := row.Scan(&id, &p.AuthorUsername, &p.Text, &p.CreatedAt, &analysis,
		&label, &score, &keywords, &analyzedAt, &attempted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}

	p.ID = domain.PostID(id)
	p.Analysis = analysis.String
	if label.Valid {
		p.Sentiment = &domain.Sentiment{Label: label.String, Score: score.Float64}
	}
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &p.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords for %s: %w", id, err)
		}
	}
	if analyzedAt.Valid {
		t := analyzedAt.Time
		p.AnalyzedAt = &t
	}
	p.AnalysisAttemptedAt = unixNanoTime(attempted)
	return &p, nil
}

func unixNanoTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func sentimentColumns(s *domain.Sentiment) (sql.NullString, sql.NullFloat64) {
	if s == nil {
		return sql.NullString{}, sql.NullFloat64{}
	}
	return sql.NullString{String: s.Label, Valid: true}, sql.NullFloat64{Float64: s.Score, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// incompleteMediaByPost yields one row per post with unfinished media.
// last_attempt is NULL while any of them has never been attempted.
const incompleteMediaByPost = `
	SELECT m.post_id,
		CASE WHEN COUNT(*) = COUNT(m.last_attempt_at) THEN MAX(m.last_attempt_at) END AS last_attempt
	FROM media m
	WHERE m.status != 'completed' OR m.local_path IS NULL OR m.local_path = ''
	GROUP BY m.post_id`

// limitArg maps non-positive limits to SQLite's "no limit".
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
