// Package storage persists analysis reports so scheduled runs can skip
// videos that were analyzed recently.
package storage

import (
	"context"
	"errors"
	"time"

	"video-insight/internal/models"
	"video-insight/shared/config"
)

// ErrNotFound is returned when no report exists for a video
var ErrNotFound = errors.New("report not found")

// ReportStore is implemented by the JSON file store and the Postgres store
type ReportStore interface {
	Save(ctx context.Context, report *models.AnalysisReport) error
	// Latest returns the newest report for videoURL, successful or not
	Latest(ctx context.Context, videoURL string) (*models.AnalysisReport, error)
	// IsAnalyzed reports whether videoURL has a successful report newer than the store's max age
	IsAnalyzed(ctx context.Context, videoURL string) (bool, error)
	Close() error
}

// Open picks Postgres when a DSN is configured and the JSON file store otherwise
func Open(ctx context.Context, cfg *config.StorageConfig) (ReportStore, error) {
	maxAge := time.Duration(cfg.MaxAgeHours) * time.Hour
	if cfg.PostgresDSN != "" {
		return NewPostgresStore(ctx, cfg.PostgresDSN, maxAge)
	}
	return NewFileStore(cfg.DataDir, maxAge)
}
