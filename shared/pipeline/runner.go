package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"video-insight/internal/models"
	"video-insight/shared/ai"
	"video-insight/shared/config"
	"video-insight/shared/insights"
	"video-insight/shared/monitoring"
	"video-insight/shared/vision"
)

// FrameSource turns a video reference into frames, one per sampled second
type FrameSource interface {
	Extract(ctx context.Context, videoRef string) ([]models.FrameImage, error)
}

// AnalyzerSession is a vision client scoped to one run
type AnalyzerSession interface {
	FrameAnalyzer
	Close()
}

// CompleterSession is a text-completion client scoped to one call group
type CompleterSession interface {
	ai.Completer
	Close()
}

// RunnerOptions wires a Runner. OpenCompleter may return a nil session when no
// narrative engine is configured.
type RunnerOptions struct {
	Source        FrameSource
	OpenAnalyzer  func(ctx context.Context) (AnalyzerSession, error)
	OpenCompleter func(ctx context.Context) (CompleterSession, error)
	Orchestration OrchestratorOptions
	Metrics       *monitoring.Metrics
	Logger        *slog.Logger
}

// Runner is the pipeline entry point: frames, per-frame analysis, insights,
// narrative, and on demand a diversity score.
type Runner struct {
	source        FrameSource
	openAnalyzer  func(ctx context.Context) (AnalyzerSession, error)
	openCompleter func(ctx context.Context) (CompleterSession, error)
	orchestration OrchestratorOptions
	extractor     *insights.Extractor
	metrics       *monitoring.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewRunner builds a Runner that opens a fresh vision client per run and a
// Gemini client per narrative or scoring call.
func NewRunner(cfg *config.Config, source FrameSource, metrics *monitoring.Metrics, logger *slog.Logger) *Runner {
	return NewRunnerWithOptions(RunnerOptions{
		Source: source,
		OpenAnalyzer: func(ctx context.Context) (AnalyzerSession, error) {
			return vision.NewClient(&cfg.Vision), nil
		},
		OpenCompleter: func(ctx context.Context) (CompleterSession, error) {
			if !cfg.NarrativeEnabled() {
				return nil, nil
			}
			completer, err := ai.NewGeminiCompleter(ctx, &cfg.AI)
			if err != nil {
				return nil, err
			}
			return completer, nil
		},
		Orchestration: OrchestratorOptions{
			BatchSize:   cfg.Pipeline.BatchSize,
			BatchDelay:  cfg.BatchDelay(),
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			Backoff:     cfg.Backoff(),
		},
		Metrics: metrics,
		Logger:  logger,
	})
}

func NewRunnerWithOptions(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	orchestration := opts.Orchestration
	orchestration.Metrics = opts.Metrics
	orchestration.Logger = logger

	openCompleter := opts.OpenCompleter
	if openCompleter == nil {
		openCompleter = func(ctx context.Context) (CompleterSession, error) { return nil, nil }
	}

	return &Runner{
		source:        opts.Source,
		openAnalyzer:  opts.OpenAnalyzer,
		openCompleter: openCompleter,
		orchestration: orchestration,
		extractor:     insights.NewExtractor(logger),
		metrics:       opts.Metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// RunAnalysis always returns a well-formed report. Frame failures are folded
// into FrameAnalyses; a frame source failure or an unexpected panic yields
// Success false with whatever frame results were already gathered.
func (r *Runner) RunAnalysis(ctx context.Context, videoRef string) (report *models.AnalysisReport) {
	start := time.Now()
	logger := r.logger.With("video", videoRef)

	report = &models.AnalysisReport{
		ID:            uuid.NewString(),
		VideoURL:      videoRef,
		FrameAnalyses: []models.FrameAnalysisResult{},
		CreatedAt:     r.now(),
	}

	var frames []models.FrameImage
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("analysis run panicked", "panic", rec)
			report.Success = false
			report.Error = fmt.Sprintf("analysis failed unexpectedly: %v", rec)
			if len(report.FrameAnalyses) != report.TotalFrames {
				report.FrameAnalyses = failedResults(frames, fmt.Errorf("run aborted: %v", rec))
			}
		}
		r.metrics.RunFinished(report.Success, time.Since(start))
	}()

	frames, err := r.source.Extract(ctx, videoRef)
	if err != nil {
		logger.Error("frame extraction failed", "error", err)
		report.Error = fmt.Sprintf("failed to extract frames: %v", err)
		return report
	}
	report.TotalFrames = len(frames)
	logger.Info("extracted frames", "frames", len(frames))

	if len(frames) > 0 {
		report.FrameAnalyses = r.analyzeFrames(ctx, frames)
	}

	lines := r.extractor.Extract(report.FrameAnalyses)
	logger.Debug("extracted insights", "insights", len(lines), "failed_frames", report.FailedFrames())

	summary := r.summarize(ctx, lines)
	report.SummaryReport = &summary
	report.Success = true

	logger.Info("analysis complete",
		"frames", report.TotalFrames,
		"failed_frames", report.FailedFrames(),
		"duration", time.Since(start))
	return report
}

// analyzeFrames holds one vision client for the whole run. If the client
// cannot be opened every frame is recorded as failed.
func (r *Runner) analyzeFrames(ctx context.Context, frames []models.FrameImage) []models.FrameAnalysisResult {
	analyzer, err := r.openAnalyzer(ctx)
	if err != nil {
		r.logger.Error("failed to open vision client", "error", err)
		return failedResults(frames, fmt.Errorf("failed to open vision client: %w", err))
	}
	defer analyzer.Close()

	return NewOrchestrator(analyzer, r.orchestration).Analyze(ctx, frames)
}

func (r *Runner) summarize(ctx context.Context, lines []string) models.SummaryReport {
	if len(lines) == 0 {
		return ai.NewSummaryGenerator(nil, r.logger).Summarize(ctx, lines)
	}

	completer, err := r.openCompleter(ctx)
	if err != nil {
		r.logger.Error("failed to open completion client", "error", err)
		return models.SummaryReport{
			Timestamp: r.now(),
			Error:     fmt.Sprintf("failed to generate summary: %v", err),
		}
	}
	if completer == nil {
		return ai.NewSummaryGenerator(nil, r.logger).Summarize(ctx, lines)
	}
	defer completer.Close()

	return ai.NewSummaryGenerator(completer, r.logger).Summarize(ctx, lines)
}

// ScoreDiversity always returns a fully populated score, all zeros on failure
func (r *Runner) ScoreDiversity(ctx context.Context, summary string) models.DiversityScore {
	completer, err := r.openCompleter(ctx)
	if err != nil {
		r.logger.Warn("failed to open completion client for scoring", "error", err)
		r.metrics.DiversityFallback()
		return models.DiversityScore{}
	}

	var scorer *ai.DiversityScorer
	if completer == nil {
		scorer = ai.NewDiversityScorer(nil, r.logger)
	} else {
		defer completer.Close()
		scorer = ai.NewDiversityScorer(completer, r.logger)
	}

	score, err := scorer.Evaluate(ctx, summary)
	if err != nil {
		r.logger.Warn("diversity scoring fell back to zeros", "error", err)
		r.metrics.DiversityFallback()
		return models.DiversityScore{}
	}
	return score
}

func failedResults(frames []models.FrameImage, cause error) []models.FrameAnalysisResult {
	results := make([]models.FrameAnalysisResult, len(frames))
	for i, frame := range frames {
		results[i] = models.FrameAnalysisResult{
			FrameIndex:       frame.Index,
			FrameTimeSeconds: frame.TimeSeconds(),
			Error:            fmt.Sprintf("frame %d not analyzed: %v", frame.Index, cause),
		}
	}
	return results
}
