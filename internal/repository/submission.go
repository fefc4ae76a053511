package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
	"github.com/dharsanguruparan/pdfsummarizer/internal/storage"
)

// ErrNotFound is returned when no row matches. It is the journal-wide
// sentinel so callers need not know which journal they hold.
var ErrNotFound = storage.ErrNotFound

// SubmissionRepository persists the diagnostics journal in PostgreSQL.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository constructs a repository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Save upserts a submission row. created_at is kept from the first insert.
func (r *SubmissionRepository) Save(ctx context.Context, rec *model.SubmissionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO submissions (id, sequence, file_name, size, content_type, status, detail, summary_size, archive_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			detail = EXCLUDED.detail,
			summary_size = EXCLUDED.summary_size,
			archive_key = COALESCE(EXCLUDED.archive_key, submissions.archive_key),
			updated_at = EXCLUDED.updated_at
	`, rec.ID, int64(rec.Sequence), rec.FileName, rec.Size, rec.ContentType, string(rec.Status),
		nullable(rec.Detail), rec.SummarySize, nullable(rec.ArchiveKey), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// Get returns a submission by id.
func (r *SubmissionRepository) Get(ctx context.Context, id string) (*model.SubmissionRecord, error) {
	var (
		rec        model.SubmissionRecord
		sequence   int64
		status     string
		detail     sql.NullString
		archiveKey sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, sequence, file_name, size, content_type, status, detail, summary_size, archive_key, created_at, updated_at
		FROM submissions WHERE id=$1
	`, id)
	if err := row.Scan(&rec.ID, &sequence, &rec.FileName, &rec.Size, &rec.ContentType, &status, &detail, &rec.SummarySize, &archiveKey, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("select submission: %w", err)
	}
	rec.Sequence = uint64(sequence)
	rec.Status = model.SubmissionStatus(status)
	rec.Detail = detail.String
	rec.ArchiveKey = archiveKey.String
	return &rec, nil
}

// MarkArchived records the object key a summary was archived under.
func (r *SubmissionRepository) MarkArchived(ctx context.Context, id, key string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE submissions SET archive_key=$1, updated_at=$2 WHERE id=$3
	`, key, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
