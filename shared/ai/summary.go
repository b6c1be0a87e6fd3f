package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"video-insight/internal/models"
)

// NoFramesSummary is returned when there is nothing to summarize
const NoFramesSummary = "No frame insights were available, so no summary could be generated for this video."

// SummaryGeneration keeps the narrative focused while leaving room for
// several paragraphs
var SummaryGeneration = GenerationConfig{
	Temperature:     0.4,
	TopK:            32,
	TopP:            1.0,
	MaxOutputTokens: 2048,
}

// SummaryGenerator turns insight lines into a narrative. A nil Completer
// means no narrative engine is configured.
type SummaryGenerator struct {
	completer Completer
	logger    *slog.Logger
	now       func() time.Time
}

func NewSummaryGenerator(completer Completer, logger *slog.Logger) *SummaryGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryGenerator{
		completer: completer,
		logger:    logger,
		now:       time.Now,
	}
}

// Summarize never returns an error; failures land in SummaryReport.Error
func (s *SummaryGenerator) Summarize(ctx context.Context, insights []string) models.SummaryReport {
	report := models.SummaryReport{Timestamp: s.now()}

	if len(insights) == 0 {
		report.Summary = NoFramesSummary
		return report
	}

	if s.completer == nil {
		report.Summary = strings.Join(insights, "\n")
		return report
	}

	text, err := s.completer.Complete(ctx, buildSummaryPrompt(insights), SummaryGeneration)
	if err != nil {
		s.logger.Error("summary generation failed", "insights", len(insights), "error", err)
		report.Error = fmt.Sprintf("failed to generate summary: %v", err)
		return report
	}

	text = strings.TrimSpace(text)
	if text == "" {
		report.Error = "failed to generate summary: empty response"
		return report
	}

	report.Summary = text
	return report
}

func buildSummaryPrompt(insights []string) string {
	return fmt.Sprintf(`You are reviewing frame-by-frame observations taken from a video, one frame per second.

FRAME OBSERVATIONS:
%s

INSTRUCTIONS:
Write a narrative summary of the video that describes:
1. The overall content and setting of the video
2. The key objects and people that appear
3. How the scene changes over time
4. Patterns or recurring elements across frames

Write the summary as prose paragraphs. Do not use bullet points, headings or JSON.`,
		strings.Join(insights, "\n"),
	)
}
