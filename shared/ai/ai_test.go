package ai

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"video-insight/internal/models"
)

type fakeCompleter struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	configs  []GenerationConfig
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, gen GenerationConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.configs = append(f.configs, gen)
	return f.response, f.err
}

func TestSummarize(t *testing.T) {
	insights := []string{"At 0s: A red car", "At 1s: A cyclist passes"}

	t.Run("EmptyInsightsSkipEngine", func(t *testing.T) {
		completer := &fakeCompleter{response: "unused"}
		report := NewSummaryGenerator(completer, nil).Summarize(context.Background(), nil)

		assert.Equal(t, NoFramesSummary, report.Summary)
		assert.Empty(t, report.Error)
		assert.Empty(t, completer.prompts)
		assert.False(t, report.Timestamp.IsZero())
	})

	t.Run("NoEngineJoinsInsights", func(t *testing.T) {
		report := NewSummaryGenerator(nil, nil).Summarize(context.Background(), insights)

		assert.Equal(t, "At 0s: A red car\nAt 1s: A cyclist passes", report.Summary)
		assert.Empty(t, report.Error)
	})

	t.Run("EngineNarrative", func(t *testing.T) {
		completer := &fakeCompleter{response: "  A red car waits while a cyclist passes.\n"}
		report := NewSummaryGenerator(completer, nil).Summarize(context.Background(), insights)

		assert.Equal(t, "A red car waits while a cyclist passes.", report.Summary)
		assert.Empty(t, report.Error)
		require.Len(t, completer.prompts, 1)
		for _, line := range insights {
			assert.Contains(t, completer.prompts[0], line)
		}
		assert.Contains(t, completer.prompts[0], "prose paragraphs")
		assert.Equal(t, SummaryGeneration, completer.configs[0])
	})

	t.Run("EngineFailure", func(t *testing.T) {
		completer := &fakeCompleter{err: errors.New("503 from upstream")}
		report := NewSummaryGenerator(completer, nil).Summarize(context.Background(), insights)

		assert.Empty(t, report.Summary)
		assert.Contains(t, report.Error, "503 from upstream")
	})

	t.Run("EmptyNarrative", func(t *testing.T) {
		completer := &fakeCompleter{response: "   "}
		report := NewSummaryGenerator(completer, nil).Summarize(context.Background(), insights)

		assert.Empty(t, report.Summary)
		assert.Contains(t, report.Error, "empty response")
	})
}

const validScoreJSON = `{
  "crowd_diversity": {"age_group_variation": 0.6, "gender_distribution": 0.5, "ethnic_diversity": 0.3},
  "behavioral_diversity": {"movement_variation": 0.4, "activity_mix": 0.7, "group_vs_individual_ratio": 0.2},
  "environmental_diversity": {"location_type_variation": 0.1, "lighting_conditions": 0.0},
  "overall_diversity_score": 0.45
}`

func TestScore(t *testing.T) {
	t.Run("ParsesWrappedJSON", func(t *testing.T) {
		completer := &fakeCompleter{response: "Sure! Here is the score:\n```json\n" + validScoreJSON + "\n```\nHope it helps {really}."}
		score := NewDiversityScorer(completer, nil).Score(context.Background(), "Two people walk a dog.")

		assert.Equal(t, 0.6, score.CrowdDiversity.AgeGroupVariation)
		assert.Equal(t, 0.7, score.BehavioralDiversity.ActivityMix)
		assert.Equal(t, 0.1, score.EnvironmentalDiversity.LocationTypeVariation)
		assert.Equal(t, 0.45, score.OverallDiversityScore)

		require.Len(t, completer.prompts, 1)
		assert.Contains(t, completer.prompts[0], "Two people walk a dog.")
		assert.Contains(t, completer.prompts[0], "ONLY a JSON object")
		assert.Equal(t, DiversityGeneration, completer.configs[0])
	})

	t.Run("ClampsOutOfRange", func(t *testing.T) {
		completer := &fakeCompleter{response: strings.Replace(validScoreJSON, "0.45", "1.8", 1)}
		score := NewDiversityScorer(completer, nil).Score(context.Background(), "summary")
		assert.Equal(t, 1.0, score.OverallDiversityScore)
	})

	fallbacks := []struct {
		name      string
		completer Completer
	}{
		{"No engine", nil},
		{"Call fails", &fakeCompleter{err: errors.New("timeout")}},
		{"No JSON at all", &fakeCompleter{response: "The video is quite diverse."}},
		{"Broken JSON", &fakeCompleter{response: `{"crowd_diversity": {`}},
		{"Missing section", &fakeCompleter{response: `{"overall_diversity_score": 0.9}`}},
		{"Wrong types", &fakeCompleter{response: `{"crowd_diversity": "high", "behavioral_diversity": {}, "environmental_diversity": {}, "overall_diversity_score": 0.9}`}},
	}

	for _, tt := range fallbacks {
		t.Run(tt.name, func(t *testing.T) {
			score := NewDiversityScorer(tt.completer, nil).Score(context.Background(), "summary")
			assert.Equal(t, models.DiversityScore{}, score)
			for _, v := range score.Values() {
				assert.Equal(t, 0.0, v)
			}
		})
	}
}

func TestEvaluateReportsCause(t *testing.T) {
	_, err := NewDiversityScorer(nil, nil).Evaluate(context.Background(), "summary")
	assert.ErrorIs(t, err, ErrNoEngine)

	_, err = NewDiversityScorer(&fakeCompleter{response: "no json"}, nil).Evaluate(context.Background(), "summary")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		found    bool
	}{
		{"Plain object", `{"a": 1}`, `{"a": 1}`, true},
		{"Surrounded by prose", `Result: {"a": {"b": 2}} done`, `{"a": {"b": 2}}`, true},
		{"Braces inside strings", `{"a": "}{", "b": "\"}"}`, `{"a": "}{", "b": "\"}"}`, true},
		{"Second object ignored", `{"a": 1} and {"b": 2}`, `{"a": 1}`, true},
		{"Unbalanced then balanced", `{ oops {"a": 1}`, `{"a": 1}`, true},
		{"Stray closing first", `} {"a": 1}`, `{"a": 1}`, true},
		{"No object", `nothing here`, ``, false},
		{"Empty", ``, ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, ok := firstJSONObject(tt.input)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, span)
		})
	}
}

func TestPropertyScoreAlwaysInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		response := rapid.OneOf(
			rapid.String(),
			rapid.Just(validScoreJSON),
			rapid.Custom(func(t *rapid.T) string {
				v := rapid.Float64Range(-5, 5).Draw(t, "value")
				return strings.Replace(validScoreJSON, "0.6", strconv.FormatFloat(v, 'f', 3, 64), 1)
			}),
		).Draw(rt, "response")

		score := NewDiversityScorer(&fakeCompleter{response: response}, nil).Score(context.Background(), "summary")
		for _, v := range score.Values() {
			assert.GreaterOrEqual(rt, v, 0.0)
			assert.LessOrEqual(rt, v, 1.0)
		}
	})
}
