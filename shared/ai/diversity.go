package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"video-insight/internal/models"
)

// DiversityGeneration asks for near-deterministic, short output
var DiversityGeneration = GenerationConfig{
	Temperature:     0.1,
	TopK:            1,
	TopP:            1.0,
	MaxOutputTokens: 1024,
}

var (
	// ErrNoJSON means the response held no balanced JSON object
	ErrNoJSON = errors.New("no JSON object in response")
	// ErrNoEngine means no completer was configured
	ErrNoEngine = errors.New("no narrative engine configured")
)

var diversitySections = []string{
	"crowd_diversity",
	"behavioral_diversity",
	"environmental_diversity",
	"overall_diversity_score",
}

// DiversityScorer distills a narrative summary into a DiversityScore
type DiversityScorer struct {
	completer Completer
	logger    *slog.Logger
}

func NewDiversityScorer(completer Completer, logger *slog.Logger) *DiversityScorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiversityScorer{
		completer: completer,
		logger:    logger,
	}
}

// Score always returns a fully populated structure; any failure yields the
// all-zero score.
func (d *DiversityScorer) Score(ctx context.Context, summary string) models.DiversityScore {
	score, err := d.Evaluate(ctx, summary)
	if err != nil {
		d.logger.Warn("diversity scoring fell back to zeros", "error", err)
		return models.DiversityScore{}
	}
	return score
}

// Evaluate is Score with the failure cause exposed
func (d *DiversityScorer) Evaluate(ctx context.Context, summary string) (models.DiversityScore, error) {
	if d.completer == nil {
		return models.DiversityScore{}, ErrNoEngine
	}

	text, err := d.completer.Complete(ctx, buildDiversityPrompt(summary), DiversityGeneration)
	if err != nil {
		return models.DiversityScore{}, fmt.Errorf("diversity completion failed: %w", err)
	}

	return ParseDiversityScore(text)
}

// ParseDiversityScore pulls the first JSON object out of free-form model
// output and validates it against the fixed schema.
func ParseDiversityScore(text string) (models.DiversityScore, error) {
	span, ok := firstJSONObject(text)
	if !ok {
		return models.DiversityScore{}, ErrNoJSON
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &sections); err != nil {
		return models.DiversityScore{}, fmt.Errorf("failed to unmarshal diversity JSON: %w", err)
	}
	for _, key := range diversitySections {
		if _, ok := sections[key]; !ok {
			return models.DiversityScore{}, fmt.Errorf("diversity JSON is missing %q", key)
		}
	}

	var score models.DiversityScore
	if err := json.Unmarshal([]byte(span), &score); err != nil {
		return models.DiversityScore{}, fmt.Errorf("diversity JSON does not match schema: %w", err)
	}

	return score.Clamped(), nil
}

func buildDiversityPrompt(summary string) string {
	return fmt.Sprintf(`You are scoring the diversity shown in a video, based only on the summary below.

VIDEO SUMMARY:
%s

SCORING RUBRIC:
- Every score is a number between 0.0 and 1.0
- 0.0 means no diversity for that element, 1.0 means full diversity
- Any element the summary does not mention scores 0.0

Respond with ONLY a JSON object in exactly this format, with no other text:
{
  "crowd_diversity": {
    "age_group_variation": number,
    "gender_distribution": number,
    "ethnic_diversity": number
  },
  "behavioral_diversity": {
    "movement_variation": number,
    "activity_mix": number,
    "group_vs_individual_ratio": number
  },
  "environmental_diversity": {
    "location_type_variation": number,
    "lighting_conditions": number
  },
  "overall_diversity_score": number
}`,
		strings.TrimSpace(summary),
	)
}
