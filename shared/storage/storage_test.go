package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-insight/internal/models"
	"video-insight/shared/config"
)

func newReport(videoURL string, success bool, createdAt time.Time) *models.AnalysisReport {
	return &models.AnalysisReport{
		ID:          uuid.NewString(),
		Success:     success,
		VideoURL:    videoURL,
		TotalFrames: 2,
		FrameAnalyses: []models.FrameAnalysisResult{
			{FrameIndex: 0, Payload: map[string]any{"outputs": []any{}}},
			{FrameIndex: 1, FrameTimeSeconds: 1, Error: "frame 1 failed after 3 attempts: timeout"},
		},
		SummaryReport: &models.SummaryReport{Summary: "Quiet plaza.", Timestamp: createdAt},
		CreatedAt:     createdAt,
	}
}

func TestFileStoreSaveAndLatest(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), 24*time.Hour)
	require.NoError(t, err)

	now := time.Now()
	older := newReport("a.mp4", true, now.Add(-2*time.Hour))
	newer := newReport("a.mp4", false, now.Add(-time.Hour))
	other := newReport("b.mp4", true, now)

	for _, r := range []*models.AnalysisReport{older, newer, other} {
		require.NoError(t, store.Save(ctx, r))
	}

	latest, err := store.Latest(ctx, "a.mp4")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	_, err = store.Latest(ctx, "missing.mp4")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 3, store.Count())
}

func TestFileStoreIsAnalyzed(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), 24*time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, newReport("ok.mp4", true, time.Now())))
	require.NoError(t, store.Save(ctx, newReport("failed.mp4", false, time.Now())))

	tests := []struct {
		video    string
		expected bool
	}{
		{"ok.mp4", true},
		{"failed.mp4", false},
		{"unknown.mp4", false},
	}

	for _, tt := range tests {
		t.Run(tt.video, func(t *testing.T) {
			analyzed, err := store.IsAnalyzed(ctx, tt.video)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, analyzed)
		})
	}
}

func TestFileStorePersistsAndPrunes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir, time.Hour)
	require.NoError(t, err)

	fresh := newReport("fresh.mp4", true, time.Now())
	require.NoError(t, store.Save(ctx, fresh))

	// Write a stale report directly, bypassing the save-time prune
	store.reports = append(store.reports, newReport("stale.mp4", true, time.Now().Add(-2*time.Hour)))
	require.NoError(t, store.save())

	reopened, err := NewFileStore(dir, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, reopened.Count())
	latest, err := reopened.Latest(ctx, "fresh.mp4")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, latest.ID)
	assert.Len(t, latest.FrameAnalyses, 2)
	assert.Equal(t, 1, latest.FailedFrames())

	_, err = reopened.Latest(ctx, "stale.mp4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreSaveReplacesSameID(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), time.Hour)
	require.NoError(t, err)

	report := newReport("a.mp4", true, time.Now())
	require.NoError(t, store.Save(ctx, report))

	report.DiversityScore = &models.DiversityScore{OverallDiversityScore: 0.4}
	require.NoError(t, store.Save(ctx, report))

	assert.Equal(t, 1, store.Count())
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/reports.json", []byte("{not json"), 0o644))

	_, err := NewFileStore(dir, time.Hour)
	assert.Error(t, err)
}

func TestOpenDefaultsToFileStore(t *testing.T) {
	store, err := Open(context.Background(), &config.StorageConfig{DataDir: t.TempDir(), MaxAgeHours: 1})
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*FileStore)
	assert.True(t, ok)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping test")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn, time.Hour)
	require.NoError(t, err)
	defer store.Close()

	video := "pg-" + uuid.NewString() + ".mp4"
	report := newReport(video, true, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, store.Save(ctx, report))

	latest, err := store.Latest(ctx, video)
	require.NoError(t, err)
	assert.Equal(t, report.ID, latest.ID)
	assert.Equal(t, "Quiet plaza.", latest.SummaryReport.Summary)

	analyzed, err := store.IsAnalyzed(ctx, video)
	require.NoError(t, err)
	assert.True(t, analyzed)

	_, err = store.Latest(ctx, "missing-"+video)
	assert.ErrorIs(t, err, ErrNotFound)
}
