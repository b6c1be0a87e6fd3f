package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"video-insight/internal/models"
)

// FileStore keeps reports in a single JSON file under the data directory.
// Reports older than maxAge are dropped on open and on every save.
type FileStore struct {
	filePath string
	reports  []*models.AnalysisReport
	mu       sync.RWMutex
	maxAge   time.Duration
	now      func() time.Time
}

func NewFileStore(dataDir string, maxAge time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &FileStore{
		filePath: filepath.Join(dataDir, "reports.json"),
		maxAge:   maxAge,
		now:      time.Now,
	}

	if err := store.load(); err != nil {
		return nil, fmt.Errorf("failed to load report store: %w", err)
	}

	store.cleanup()

	return store, nil
}

func (fs *FileStore) Save(ctx context.Context, report *models.AnalysisReport) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	replaced := false
	for i, existing := range fs.reports {
		if existing.ID == report.ID {
			fs.reports[i] = report
			replaced = true
			break
		}
	}
	if !replaced {
		fs.reports = append(fs.reports, report)
	}

	fs.cleanup()
	return fs.save()
}

func (fs *FileStore) Latest(ctx context.Context, videoURL string) (*models.AnalysisReport, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var latest *models.AnalysisReport
	for _, report := range fs.reports {
		if report.VideoURL != videoURL {
			continue
		}
		if latest == nil || report.CreatedAt.After(latest.CreatedAt) {
			latest = report
		}
	}

	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (fs *FileStore) IsAnalyzed(ctx context.Context, videoURL string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	for _, report := range fs.reports {
		if report.VideoURL == videoURL && report.Success && fs.now().Sub(report.CreatedAt) < fs.maxAge {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of stored reports
func (fs *FileStore) Count() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.reports)
}

func (fs *FileStore) Close() error {
	return nil
}

// cleanup removes reports older than maxAge
func (fs *FileStore) cleanup() {
	if fs.maxAge <= 0 {
		return
	}
	cutoff := fs.now().Add(-fs.maxAge)

	kept := fs.reports[:0]
	for _, report := range fs.reports {
		if !report.CreatedAt.Before(cutoff) {
			kept = append(kept, report)
		}
	}
	fs.reports = kept
}

func (fs *FileStore) load() error {
	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open report file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&fs.reports); err != nil {
		return fmt.Errorf("failed to decode reports: %w", err)
	}
	return nil
}

// save writes through a temp file so a crash never leaves a truncated store
func (fs *FileStore) save() error {
	tmp := fs.filePath + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fs.reports); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode reports: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return os.Rename(tmp, fs.filePath)
}
