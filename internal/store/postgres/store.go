// Package postgres provides the Postgres-backed submission store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spunwebtech/wayback-submitter/internal/archive"
	"github.com/spunwebtech/wayback-submitter/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for submission rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store writes submission rows into Postgres. Expected schema:
//
//	CREATE TABLE submissions (
//		id BIGSERIAL PRIMARY KEY,
//		content_id BIGINT NOT NULL,
//		source_url TEXT NOT NULL,
//		status TEXT NOT NULL,
//		archive_url TEXT NOT NULL DEFAULT '',
//		response_data TEXT NOT NULL DEFAULT '',
//		submitted_at TIMESTAMPTZ NOT NULL,
//		updated_at TIMESTAMPTZ,
//		due_at TIMESTAMPTZ
//	);
//	CREATE INDEX ON submissions (content_id);
//	CREATE INDEX ON submissions (status);
type Store struct {
	pool  dbPool
	table string
}

var _ store.SubmissionStore = (*Store)(nil)

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "submissions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool dbPool, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "submissions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const recordColumns = "id, content_id, source_url, status, archive_url, response_data, submitted_at, updated_at, due_at"

// Append inserts a submission row and returns it with the assigned id.
func (s *Store) Append(ctx context.Context, draft store.Draft) (archive.SubmissionRecord, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (content_id, source_url, status, archive_url, response_data, submitted_at, due_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, s.table)

	record := archive.SubmissionRecord{
		ContentID:       draft.ContentID,
		SourceURL:       draft.SourceURL,
		Status:          draft.Status,
		ArchiveURL:      draft.ArchiveURL,
		ResponsePayload: draft.ResponsePayload,
		SubmittedAt:     draft.SubmittedAt,
		DueAt:           draft.DueAt,
	}
	err := s.pool.QueryRow(ctx, query,
		draft.ContentID,
		draft.SourceURL,
		string(draft.Status),
		draft.ArchiveURL,
		draft.ResponsePayload,
		draft.SubmittedAt,
		draft.DueAt,
	).Scan(&record.ID)
	if err != nil {
		return archive.SubmissionRecord{}, fmt.Errorf("insert submission: %w", err)
	}
	return record, nil
}

// UpdateStatus transitions a row's status by primary key.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status archive.Status, archiveURL, payload string, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET status = $2,
    archive_url = CASE WHEN $3 = '' THEN archive_url ELSE $3 END,
    response_data = CASE WHEN $4 = '' THEN response_data ELSE $4 END,
    updated_at = $5
WHERE id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query, id, string(status), archiveURL, payload, at)
	if err != nil {
		return fmt.Errorf("update submission %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// LatestFor returns the most recent submission for a content item.
func (s *Store) LatestFor(ctx context.Context, contentID int64) (archive.SubmissionRecord, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE content_id = $1
ORDER BY submitted_at DESC
LIMIT 1`, recordColumns, s.table)

	record, err := scanRecord(s.pool.QueryRow(ctx, query, contentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return archive.SubmissionRecord{}, store.ErrNotFound
		}
		return archive.SubmissionRecord{}, fmt.Errorf("latest submission for content %d: %w", contentID, err)
	}
	return record, nil
}

// HistoryFor returns all submissions for a content item, newest first.
func (s *Store) HistoryFor(ctx context.Context, contentID int64) ([]archive.SubmissionRecord, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE content_id = $1
ORDER BY submitted_at DESC`, recordColumns, s.table)

	rows, err := s.pool.Query(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("history for content %d: %w", contentID, err)
	}
	return collectRecords(rows)
}

// RecentlySubmitted reports whether any row for the content item is newer
// than the cutoff.
func (s *Store) RecentlySubmitted(ctx context.Context, contentID int64, since time.Time) (bool, error) {
	query := fmt.Sprintf(`
SELECT EXISTS (
	SELECT 1 FROM %s WHERE content_id = $1 AND submitted_at > $2
)`, s.table)

	var exists bool
	if err := s.pool.QueryRow(ctx, query, contentID, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("recently submitted check for content %d: %w", contentID, err)
	}
	return exists, nil
}

// FailedWithin returns failed rows newer than the cutoff, most recent first.
func (s *Store) FailedWithin(ctx context.Context, since time.Time, limit int) ([]archive.SubmissionRecord, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE status = 'failed' AND submitted_at > $1
ORDER BY submitted_at DESC
LIMIT $2`, recordColumns, s.table)

	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed submissions: %w", err)
	}
	return collectRecords(rows)
}

// PendingDue returns pending rows whose due time has passed, oldest first.
func (s *Store) PendingDue(ctx context.Context, asOf time.Time, limit int) ([]archive.SubmissionRecord, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE status = 'pending' AND due_at IS NOT NULL AND due_at <= $1
ORDER BY due_at ASC
LIMIT $2`, recordColumns, s.table)

	rows, err := s.pool.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("list due pending submissions: %w", err)
	}
	return collectRecords(rows)
}

// List returns rows matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter store.Filter) ([]archive.SubmissionRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var status *string
	if filter.Status != "" {
		v := string(filter.Status)
		status = &v
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY submitted_at DESC
LIMIT $2 OFFSET $3`, recordColumns, s.table)

	rows, err := s.pool.Query(ctx, query, status, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return collectRecords(rows)
}

// Stats aggregates counts by status in one scan.
func (s *Store) Stats(ctx context.Context) (archive.Stats, error) {
	query := fmt.Sprintf(`
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'success'),
	COUNT(*) FILTER (WHERE status = 'failed'),
	COUNT(*) FILTER (WHERE status = 'pending')
FROM %s`, s.table)

	var stats archive.Stats
	err := s.pool.QueryRow(ctx, query).Scan(&stats.Total, &stats.Success, &stats.Failed, &stats.Pending)
	if err != nil {
		return archive.Stats{}, fmt.Errorf("submission stats: %w", err)
	}
	return stats, nil
}

func scanRecord(row pgx.Row) (archive.SubmissionRecord, error) {
	var (
		record archive.SubmissionRecord
		status string
	)
	err := row.Scan(
		&record.ID,
		&record.ContentID,
		&record.SourceURL,
		&status,
		&record.ArchiveURL,
		&record.ResponsePayload,
		&record.SubmittedAt,
		&record.UpdatedAt,
		&record.DueAt,
	)
	if err != nil {
		return archive.SubmissionRecord{}, err
	}
	record.Status = archive.Status(status)
	return record, nil
}

func collectRecords(rows pgx.Rows) ([]archive.SubmissionRecord, error) {
	defer rows.Close()
	var out []archive.SubmissionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission row: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission rows: %w", err)
	}
	return out, nil
}
