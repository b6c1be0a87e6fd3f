package videoanalyst

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"video-insight/internal/models"
	"video-insight/shared/config"
	"video-insight/shared/email"
	"video-insight/shared/frames"
	"video-insight/shared/monitoring"
	"video-insight/shared/pipeline"
	"video-insight/shared/scheduler"
	"video-insight/shared/storage"
)

// AnalysisRunner is the pipeline surface the agent drives
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context, videoRef string) *models.AnalysisReport
	ScoreDiversity(ctx context.Context, summary string) models.DiversityScore
}

type DigestSender interface {
	SendDigest(report *models.DigestReport) error
}

// AnalystMetrics holds per-run counters
type AnalystMetrics struct {
	Videos       int
	Skipped      int
	Analyzed     int
	Failed       int
	FailedFrames int
	Scored       int
}

func (m *AnalystMetrics) GetSummary() string {
	return fmt.Sprintf("analyzed %d of %d videos, skipped %d, %d failed", m.Analyzed, m.Videos, m.Skipped, m.Failed)
}

// VideoAnalystAgent implements the scheduler.Agent interface
type VideoAnalystAgent struct {
	config      *config.Config
	runner      AnalysisRunner
	store       storage.ReportStore
	emailSender DigestSender
	metrics     *monitoring.Metrics
	logger      *slog.Logger
}

func NewVideoAnalystAgent(cfg *config.Config, metrics *monitoring.Metrics, logger *slog.Logger) *VideoAnalystAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoAnalystAgent{
		config:  cfg,
		metrics: metrics,
		logger:  logger,
	}
}

func (v *VideoAnalystAgent) Name() string {
	return "Video Analyst"
}

func (v *VideoAnalystAgent) Initialize() error {
	v.logger.Info("initializing agent", "agent", v.Name())

	if v.runner == nil {
		source := frames.NewSource(&v.config.Frames, v.logger)
		v.runner = pipeline.NewRunner(v.config, source, v.metrics, v.logger)
		v.logger.Info("pipeline initialized", "narrative", v.config.NarrativeEnabled())
	}

	if v.store == nil {
		store, err := storage.Open(context.Background(), &v.config.Storage)
		if err != nil {
			return fmt.Errorf("failed to open report store: %w", err)
		}
		v.store = store
		v.logger.Info("report store initialized", "postgres", v.config.Storage.PostgresDSN != "")
	}

	if v.emailSender == nil && v.config.EmailEnabled() {
		v.emailSender = email.NewSender(&v.config.Email)
		v.logger.Info("email sender initialized", "to", v.config.Email.ToEmail)
	}

	return nil
}

// Close releases the report store
func (v *VideoAnalystAgent) Close() error {
	if v.store == nil {
		return nil
	}
	return v.store.Close()
}

func (v *VideoAnalystAgent) RunOnce(ctx context.Context, events *scheduler.AgentEvents) error {
	startTime := time.Now()
	metrics := &AnalystMetrics{Videos: len(v.config.Videos)}

	if len(v.config.Videos) == 0 {
		v.logger.Info("no videos configured")
		events.OnSuccess(metrics, time.Since(startTime))
		return nil
	}

	var reports []*models.AnalysisReport
	var storeErrors int

	for i, video := range v.config.Videos {
		logger := v.logger.With("video", video)

		analyzed, err := v.store.IsAnalyzed(ctx, video)
		if err != nil {
			logger.Warn("failed to check analysis history, analyzing anyway", "error", err)
		}
		if analyzed {
			metrics.Skipped++
			continue
		}

		logger.Info("analyzing video", "position", i+1, "of", len(v.config.Videos))
		report := v.AnalyzeVideo(ctx, video, v.config.Pipeline.ScoreDiversity)
		reports = append(reports, report)

		if report.Success {
			metrics.Analyzed++
			metrics.FailedFrames += report.FailedFrames()
			if report.DiversityScore != nil {
				metrics.Scored++
			}
		} else {
			metrics.Failed++
			logger.Warn("video analysis failed", "error", report.Error)
		}

		if err := v.store.Save(ctx, report); err != nil {
			storeErrors++
			logger.Warn("failed to store report", "error", err)
		}
	}

	if metrics.Failed > 0 && metrics.Analyzed == 0 {
		return fmt.Errorf("all %d attempted videos failed analysis", metrics.Failed)
	}
	if metrics.Failed > 0 {
		events.OnPartialFailure(fmt.Errorf("%d of %d videos failed analysis", metrics.Failed, len(reports)), time.Since(startTime))
	}
	if storeErrors > 0 {
		events.OnPartialFailure(fmt.Errorf("failed to store %d reports", storeErrors), time.Since(startTime))
	}

	if v.emailSender != nil && len(reports) > 0 {
		digest := &models.DigestReport{
			Date:    time.Now(),
			Reports: reports,
			Failed:  metrics.Failed,
		}
		if err := v.emailSender.SendDigest(digest); err != nil {
			return fmt.Errorf("failed to send email digest: %w", err)
		}
		v.logger.Info("email digest sent", "reports", len(reports))
	}

	events.OnSuccess(metrics, time.Since(startTime))
	v.logger.Info("session complete",
		"videos", metrics.Videos,
		"skipped", metrics.Skipped,
		"analyzed", metrics.Analyzed,
		"failed", metrics.Failed,
		"failed_frames", metrics.FailedFrames)

	return nil
}

// AnalyzeVideo runs the pipeline for one video and optionally scores the
// resulting narrative.
func (v *VideoAnalystAgent) AnalyzeVideo(ctx context.Context, videoRef string, score bool) *models.AnalysisReport {
	return AnalyzeVideo(ctx, v.runner, videoRef, score)
}

// AnalyzeVideo scores diversity only when the run produced a narrative
func AnalyzeVideo(ctx context.Context, runner AnalysisRunner, videoRef string, score bool) *models.AnalysisReport {
	report := runner.RunAnalysis(ctx, videoRef)
	if !score || !report.Success || report.SummaryReport == nil {
		return report
	}
	if report.SummaryReport.Error != "" || report.SummaryReport.Summary == "" {
		return report
	}

	diversity := runner.ScoreDiversity(ctx, report.SummaryReport.Summary)
	report.DiversityScore = &diversity
	return report
}

// ScoreDiversity scores an existing narrative
func (v *VideoAnalystAgent) ScoreDiversity(ctx context.Context, summary string) models.DiversityScore {
	return v.runner.ScoreDiversity(ctx, summary)
}
