package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"video-insight/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_reports (
	id            TEXT PRIMARY KEY,
	video_url     TEXT NOT NULL,
	success       BOOLEAN NOT NULL,
	total_frames  INTEGER NOT NULL,
	failed_frames INTEGER NOT NULL,
	report        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS analysis_reports_video_created_idx
	ON analysis_reports (video_url, created_at DESC);
`

// PostgresStore keeps each report as a JSONB document with a few columns
// pulled out for lookups.
type PostgresStore struct {
	pool   *pgxpool.Pool
	maxAge time.Duration
}

func NewPostgresStore(ctx context.Context, dsn string, maxAge time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{pool: pool, maxAge: maxAge}, nil
}

func (s *PostgresStore) Save(ctx context.Context, report *models.AnalysisReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_reports
		(id, video_url, success, total_frames, failed_frames, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			success = EXCLUDED.success,
			total_frames = EXCLUDED.total_frames,
			failed_frames = EXCLUDED.failed_frames,
			report = EXCLUDED.report`,
		report.ID, report.VideoURL, report.Success, report.TotalFrames,
		report.FailedFrames(), data, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store report %s: %w", report.ID, err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, videoURL string) (*models.AnalysisReport, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM analysis_reports
		WHERE video_url = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		videoURL).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report for %s: %w", videoURL, err)
	}

	var report models.AnalysisReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

func (s *PostgresStore) IsAnalyzed(ctx context.Context, videoURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM analysis_reports
			WHERE video_url = $1 AND success AND created_at > $2
		)`,
		videoURL, time.Now().Add(-s.maxAge)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check analysis status: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
