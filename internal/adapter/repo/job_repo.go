package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/King-fly/subtitle-api/internal/domain"
)

// PostgresStore implements domain.Store on PostgreSQL. The expected schema
// lives in schema.sql next to this file. All conditional writes lean on the
// WHERE clause carrying the expected state, so concurrent transitions are
// arbitrated by the database, not by this process.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new job record.
func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, owner_id, media_path, filename, language, model, formats, state, progress, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.Owner,
		job.MediaPath,
		job.Filename,
		job.Language,
		job.Model,
		formatStrings(job.Formats),
		job.State,
		job.Progress,
		job.Error,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `
SELECT id, owner_id, media_path, filename, language, model, formats, state, progress, error_message, created_at, updated_at, completed_at
FROM jobs
WHERE id = $1;
`
	return scanJob(s.pool.QueryRow(ctx, query, id))
}

// CompareAndSetState transitions the job iff it is still in the expected
// state. The row update and the state check are one statement, so exactly
// one of two racing transitions can succeed.
func (s *PostgresStore) CompareAndSetState(ctx context.Context, id string, expected, next domain.JobState, change domain.StateChange) (bool, error) {
	if !domain.CanTransition(expected, next) {
		return false, domain.ErrConflict
	}
	query := `
UPDATE jobs
SET state = $3,
    progress = COALESCE($4, progress),
    error_message = COALESCE($5, error_message),
    completed_at = COALESCE($6, completed_at),
    updated_at = NOW()
WHERE id = $1 AND state = $2;
`
	tag, err := s.pool.Exec(ctx, query, id, expected, next, change.Progress, change.Error, change.CompletedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := s.ensureJobExists(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// UpdateProgress advances progress on a processing job; the WHERE clause
// enforces monotonicity and ignores settled jobs.
func (s *PostgresStore) UpdateProgress(ctx context.Context, id string, progress float64) error {
	if progress > 1 {
		progress = 1
	}
	query := `
UPDATE jobs
SET progress = $2, updated_at = NOW()
WHERE id = $1 AND state = 'processing' AND progress < $2;
`
	tag, err := s.pool.Exec(ctx, query, id, progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.ensureJobExists(ctx, id)
}

// AttachSubtitles inserts the full artifact set and completes the job in a
// single transaction. A reader can never observe a completed job with a
// missing requested format.
func (s *PostgresStore) AttachSubtitles(ctx context.Context, jobID string, records []domain.Subtitle) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	complete := `
UPDATE jobs
SET state = 'completed', progress = 1, completed_at = NOW(), updated_at = NOW()
WHERE id = $1 AND state = 'processing';
`
	tag, err := tx.Exec(ctx, complete, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		if err := s.ensureJobExists(ctx, jobID); err != nil {
			return err
		}
		return domain.ErrConflict
	}

	insert := `
INSERT INTO subtitles (id, job_id, format, content)
VALUES ($1, $2, $3, $4);
`
	for _, rec := range records {
		if _, err := tx.Exec(ctx, insert, rec.ID, jobID, rec.Format, rec.Content); err != nil {
			return fmt.Errorf("insert subtitle %s/%s: %w", jobID, rec.Format, err)
		}
	}

	return tx.Commit(ctx)
}

// ListByOwner returns the owner's jobs, newest first.
func (s *PostgresStore) ListByOwner(ctx context.Context, owner string) ([]domain.Job, error) {
	query := `
SELECT id, owner_id, media_path, filename, language, model, formats, state, progress, error_message, created_at, updated_at, completed_at
FROM jobs
WHERE owner_id = $1
ORDER BY created_at DESC;
`
	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListSubtitles returns the artifacts attached to a job.
func (s *PostgresStore) ListSubtitles(ctx context.Context, jobID string) ([]domain.Subtitle, error) {
	if err := s.ensureJobExists(ctx, jobID); err != nil {
		return nil, err
	}
	query := `
SELECT id, job_id, format, content, created_at
FROM subtitles
WHERE job_id = $1
ORDER BY format;
`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Subtitle
	for rows.Next() {
		var rec domain.Subtitle
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Format, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetSubtitleByID fetches one artifact.
func (s *PostgresStore) GetSubtitleByID(ctx context.Context, id string) (*domain.Subtitle, error) {
	query := `
SELECT id, job_id, format, content, created_at
FROM subtitles
WHERE id = $1;
`
	var rec domain.Subtitle
	err := s.pool.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.JobID, &rec.Format, &rec.Content, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Delete removes a job; subtitles go with it via ON DELETE CASCADE.
func (s *PostgresStore) Delete(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ensureJobExists(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1);`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var formats []string
	if err := row.Scan(
		&job.ID,
		&job.Owner,
		&job.MediaPath,
		&job.Filename,
		&job.Language,
		&job.Model,
		&formats,
		&job.State,
		&job.Progress,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Formats = make([]domain.Format, len(formats))
	for i, f := range formats {
		job.Formats[i] = domain.Format(f)
	}
	return &job, nil
}

func formatStrings(formats []domain.Format) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}
