package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"redactor/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS redaction_jobs (
	id           UUID PRIMARY KEY,
	file_name    TEXT NOT NULL,
	object       TEXT NOT NULL,
	status       TEXT NOT NULL,
	entity_count INTEGER NOT NULL DEFAULT 0,
	method       TEXT NOT NULL DEFAULT '',
	engines      TEXT[] NOT NULL DEFAULT '{}',
	ocr_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	masked_name  TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps jobs in the redaction_jobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// OpenPostgres connects, verifies the connection and creates the table.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute
	config.ConnConfig.RuntimeParams["application_name"] = "redactor"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create redaction_jobs: %w", err)
	}

	store := &PostgresStore{pool: pool, log: logger.WithComponent("jobs")}
	store.log.Info().Msg("Job store connected")
	return store, nil
}

func (s *PostgresStore) Create(ctx context.Context, fileName, object string) (*Job, error) {
	job := &Job{ID: uuid.New(), FileName: fileName, Object: object, Status: StatusQueued}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO redaction_jobs (id, file_name, object, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		job.ID.String(), fileName, object, string(StatusQueued),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	var (
		job    Job
		rawID  string
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, file_name, object, status, entity_count, method, engines,
		        ocr_score, duration_ms, masked_name, error, created_at, updated_at
		 FROM redaction_jobs WHERE id = $1`,
		id.String(),
	).Scan(&rawID, &job.FileName, &job.Object, &status, &job.EntityCount, &job.Method, &job.Engines,
		&job.OCRScore, &job.DurationMS, &job.MaskedName, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	job.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job.Status = Status(status)
	return &job, nil
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, id,
		`UPDATE redaction_jobs SET status = $2, updated_at = now() WHERE id = $1`,
		string(StatusProcessing))
}

func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	engines := outcome.Engines
	if engines == nil {
		engines = []string{}
	}
	return s.update(ctx, id,
		`UPDATE redaction_jobs
		 SET status = $2, entity_count = $3, method = $4, engines = $5, ocr_score = $6,
		     duration_ms = $7, masked_name = $8, error = '', updated_at = now()
		 WHERE id = $1`,
		string(StatusCompleted), outcome.EntityCount, outcome.Method, engines, outcome.OCRScore,
		outcome.Duration.Milliseconds(), outcome.MaskedName)
}

func (s *PostgresStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return s.update(ctx, id,
		`UPDATE redaction_jobs SET status = $2, error = $3, updated_at = now() WHERE id = $1`,
		string(StatusFailed), reason)
}

func (s *PostgresStore) update(ctx context.Context, id uuid.UUID, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, append([]any{id.String()}, args...)...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
	s.log.Info().Msg("Job store closed")
}
