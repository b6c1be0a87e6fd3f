// Package frames samples still images from a video at one frame per second.
package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/nfnt/resize"

	"video-insight/internal/models"
	"video-insight/shared/config"
)

// ErrNoFrames means ffmpeg ran but produced no images
var ErrNoFrames = errors.New("no frames extracted")

var framePattern = regexp.MustCompile(`^(\d+)\.jpg$`)

// Source extracts frames with ffmpeg. Remote references are downloaded into
// the run's work directory first; everything is removed when Extract returns.
type Source struct {
	workDir         string
	scale           float64
	quality         int
	downloadTimeout time.Duration
	ffmpeg          string
	logger          *slog.Logger
}

func NewSource(cfg *config.FramesConfig, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Source{
		workDir:         cfg.WorkDir,
		scale:           cfg.Scale,
		quality:         cfg.JPEGQuality,
		downloadTimeout: time.Duration(cfg.DownloadTimeoutSeconds) * time.Second,
		ffmpeg:          "ffmpeg",
		logger:          logger,
	}
	if s.scale <= 0 || s.scale > 1 {
		s.scale = 1
	}
	if s.quality <= 0 || s.quality > 100 {
		s.quality = jpeg.DefaultQuality
	}
	if s.downloadTimeout <= 0 {
		s.downloadTimeout = 5 * time.Minute
	}
	return s
}

// Extract returns frames in time order with Index equal to the sampled
// second. A video that yields no frames is not an error.
func (s *Source) Extract(ctx context.Context, videoRef string) ([]models.FrameImage, error) {
	tempDir, err := os.MkdirTemp(s.workDir, "video-insight-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	videoPath := videoRef
	if isRemote(videoRef) {
		s.logger.Info("downloading video", "video", videoRef)
		videoPath, err = download(ctx, videoRef, tempDir, s.downloadTimeout)
		if err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video file %s is not readable: %w", videoPath, err)
	}

	frameDir := filepath.Join(tempDir, "frames")
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}

	if err := s.runFFmpeg(ctx, videoPath, frameDir); err != nil {
		return nil, err
	}

	frames, err := readFrames(frameDir, s.scale, s.quality)
	if errors.Is(err, ErrNoFrames) {
		s.logger.Warn("video produced no frames", "video", videoRef)
		return []models.FrameImage{}, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("sampled frames", "video", videoRef, "frames", len(frames))
	return frames, nil
}

func (s *Source) runFFmpeg(ctx context.Context, videoPath, frameDir string) error {
	cmd := exec.CommandContext(ctx, s.ffmpeg,
		"-i", videoPath,
		"-vf", "fps=1",
		"-q:v", "2",
		"-loglevel", "error",
		filepath.Join(frameDir, "%06d.jpg"),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extraction failed: %w\nOutput: %s", err, bytes.TrimSpace(output))
	}
	return nil
}

// readFrames loads numbered JPEGs from dir. ffmpeg numbers from 1, so the
// frame index is the position after sorting.
func readFrames(dir string, scale float64, quality int) ([]models.FrameImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	type numbered struct {
		n    int
		name string
	}
	var files []numbered
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := framePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		n, _ := strconv.Atoi(matches[1])
		files = append(files, numbered{n: n, name: entry.Name()})
	}

	if len(files) == 0 {
		return nil, ErrNoFrames
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].n < files[j].n
	})

	frames := make([]models.FrameImage, 0, len(files))
	for i, file := range files {
		data, err := os.ReadFile(filepath.Join(dir, file.name))
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %s: %w", file.name, err)
		}

		if scale < 1 {
			data, err = downscale(data, scale, quality)
			if err != nil {
				return nil, fmt.Errorf("failed to downscale frame %s: %w", file.name, err)
			}
		}

		frames = append(frames, models.FrameImage{Index: i, Data: data})
	}

	return frames, nil
}

func downscale(data []byte, scale float64, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := uint(float64(bounds.Dx()) * scale)
	height := uint(float64(bounds.Dy()) * scale)
	if width == 0 || height == 0 {
		return data, nil
	}

	resized := resize.Resize(width, height, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
