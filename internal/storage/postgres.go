package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/joblens/job-import-service/internal/config"
	"github.com/joblens/job-import-service/internal/models"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db     *sql.DB
	window time.Duration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(cfg config.StorageConfig) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	storage := &PostgreSQLStorage{db: db, window: cfg.LogWindow}

	if err := storage.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return storage, nil
}

// ensureSchema creates the tables if they don't exist
func (p *PostgreSQLStorage) ensureSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			identity_key TEXT PRIMARY KEY,
			job_id       TEXT,
			title        TEXT NOT NULL,
			company      TEXT,
			location     TEXT,
			url          TEXT NOT NULL,
			description  TEXT,
			source       TEXT,
			updated_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_logs (
			id              BIGSERIAL PRIMARY KEY,
			file_name       TEXT NOT NULL,
			ts              TIMESTAMPTZ NOT NULL,
			total_fetched   INTEGER NOT NULL DEFAULT 0,
			new_jobs        INTEGER NOT NULL DEFAULT 0,
			updated_jobs    INTEGER NOT NULL DEFAULT 0,
			failed_jobs     INTEGER NOT NULL DEFAULT 0,
			failure_reasons TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS import_logs_source_ts ON import_logs (file_name, ts DESC)`,
	}

	for _, stmt := range schema {
		if _, err := p.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertJob inserts or updates a posting in one statement keyed on the
// identity column. The xmax check distinguishes a fresh insert from an
// update of an existing row.
func (p *PostgreSQLStorage) UpsertJob(ctx context.Context, job models.Job) (bool, error) {
	var created bool
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO jobs (identity_key, job_id, title, company, location, url, description, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (identity_key) DO UPDATE SET
			job_id      = EXCLUDED.job_id,
			title       = EXCLUDED.title,
			company     = EXCLUDED.company,
			location    = EXCLUDED.location,
			url         = EXCLUDED.url,
			description = EXCLUDED.description,
			source      = EXCLUDED.source,
			updated_at  = EXCLUDED.updated_at
		RETURNING (xmax = 0)`,
		job.IdentityKey(), job.JobID, job.Title, job.Company, job.Location,
		job.URL, job.Description, job.Source, job.UpdatedAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert job: %w", err)
	}
	return created, nil
}

// MergeImportLog adds delta counts into the entry for source within the
// trailing window, creating the entry when none exists. An advisory lock on
// the source serializes concurrent merges, so two workers cannot each insert
// a row for the same window.
func (p *PostgreSQLStorage) MergeImportLog(ctx context.Context, source string, now time.Time, delta models.ImportDelta) error {
	reasons := pq.Array(append([]string{}, delta.FailureReasons...))

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, source); err != nil {
		return fmt.Errorf("failed to lock import log source: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE import_logs SET
			ts              = $1,
			total_fetched   = total_fetched + $2,
			new_jobs        = new_jobs + $3,
			updated_jobs    = updated_jobs + $4,
			failed_jobs     = failed_jobs + $5,
			failure_reasons = failure_reasons || $6
		WHERE id = (
			SELECT id FROM import_logs
			WHERE file_name = $7 AND ts >= $8
			ORDER BY ts DESC LIMIT 1
		)`,
		now, delta.TotalFetched, delta.NewJobs, delta.UpdatedJobs,
		delta.FailedJobs, reasons, source, now.Add(-p.window),
	)
	if err != nil {
		return fmt.Errorf("failed to merge import log: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read merge result: %w", err)
	}

	if affected == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO import_logs (file_name, ts, total_fetched, new_jobs, updated_jobs, failed_jobs, failure_reasons)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			source, now, delta.TotalFetched, delta.NewJobs, delta.UpdatedJobs,
			delta.FailedJobs, reasons,
		)
		if err != nil {
			return fmt.Errorf("failed to create import log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import log merge: %w", err)
	}
	return nil
}

// CountImportLogs returns the total number of import-log entries
func (p *PostgreSQLStorage) CountImportLogs(ctx context.Context) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM import_logs`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count import logs: %w", err)
	}
	return total, nil
}

// ListImportLogs returns one page of entries sorted by timestamp descending
func (p *PostgreSQLStorage) ListImportLogs(ctx context.Context, limit, offset int) ([]models.ImportLog, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT file_name, ts, total_fetched, new_jobs, updated_jobs, failed_jobs, failure_reasons
		FROM import_logs
		ORDER BY ts DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query import logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ImportLog
	for rows.Next() {
		var entry models.ImportLog
		err := rows.Scan(&entry.FileName, &entry.Timestamp, &entry.TotalFetched,
			&entry.NewJobs, &entry.UpdatedJobs, &entry.FailedJobs,
			pq.Array(&entry.FailureReasons))
		if err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read import logs: %w", err)
	}

	return logs, nil
}

// Close closes the PostgreSQL connection
func (p *PostgreSQLStorage) Close() error {
	return p.db.Close()
}
